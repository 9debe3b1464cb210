package common

import (
	"os"
	"strconv"

	"github.com/fundwit/go-commons/types"
	"github.com/sony/sonyflake"
)

func NextId(idWorker *sonyflake.Sonyflake) types.ID {
	id, err := idWorker.NextID()
	if err != nil {
		panic(err)
	}
	return types.ID(id)
}

// NewIDWorker builds a sonyflake generator. MACHINE_ID pins the machine part,
// otherwise the process id is used so hosts without a private address still get a worker.
func NewIDWorker() *sonyflake.Sonyflake {
	return sonyflake.NewSonyflake(sonyflake.Settings{MachineID: machineID})
}

func machineID() (uint16, error) {
	if v := os.Getenv("MACHINE_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return 0, err
		}
		return uint16(id), nil
	}
	return uint16(os.Getpid()), nil
}
