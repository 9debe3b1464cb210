package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fundwit/go-commons/types"
)

// FillWork is a production report entered after the fact.
type FillWork struct {
	ID types.ID `json:"id" gorm:"primary_key"`

	CompanyName string `json:"companyName" gorm:"size:64"`
	CompanyCode string `json:"companyCode" gorm:"size:32;index:idx_fill_work_target"`
	Operator    string `json:"operator" gorm:"size:64"`
	OrderNumber string `json:"orderNumber" gorm:"size:64;index:idx_fill_work_target"`
	ProductID   string `json:"productId" gorm:"size:64;index:idx_fill_work_target"`
	ProcessName string `json:"processName" gorm:"size:64;index:idx_fill_work_target"`

	WorkDate   time.Time `json:"workDate"`
	StartTime  string    `json:"startTime" gorm:"size:5"`
	EndTime    string    `json:"endTime" gorm:"size:5"`
	HasBreak   bool      `json:"hasBreak"`
	BreakStart string    `json:"breakStart" gorm:"size:5"`
	BreakEnd   string    `json:"breakEnd" gorm:"size:5"`
	// absolute boundaries of the reported window, EndAt is on the next day when the window crosses midnight
	StartAt time.Time `json:"startAt"`
	EndAt   time.Time `json:"endAt"`

	WorkQuantity   int64  `json:"workQuantity"`
	DefectQuantity int64  `json:"defectQuantity"`
	Equipment      string `json:"equipment" gorm:"size:64"`
	Remarks        string `json:"remarks" sql:"type:TEXT"`
	AbnormalNotes  string `json:"abnormalNotes" sql:"type:TEXT"`

	ApprovalStatus ApprovalStatus `json:"approvalStatus" gorm:"size:16;index"`
	Approver       string         `json:"approver" gorm:"size:64"`
	ApprovedAt     *time.Time     `json:"approvedAt"`

	WorkHoursCalculated     float64 `json:"workHoursCalculated"`
	OvertimeHoursCalculated float64 `json:"overtimeHoursCalculated"`
	BreakHours              float64 `json:"breakHours"`

	AllocationID types.ID  `json:"allocationId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (f *FillWork) TargetKey() WorkOrderKey {
	return WorkOrderKey{CompanyCode: f.CompanyCode, OrderNumber: f.OrderNumber, ProductCode: f.ProductID}
}

// OnsiteReport is one live event of a shop floor station.
type OnsiteReport struct {
	ID          types.ID        `json:"id" gorm:"primary_key"`
	WorkOrderID types.ID        `json:"workOrderId" gorm:"index:idx_onsite_target"`
	ProcessName string          `json:"processName" gorm:"size:64;index:idx_onsite_target"`
	Instance    int             `json:"instance"`
	EventType   OnsiteEventType `json:"eventType" gorm:"size:16"`

	WorkQuantity   int64     `json:"workQuantity"`
	DefectQuantity int64     `json:"defectQuantity"`
	Operator       string    `json:"operator" gorm:"size:64"`
	Equipment      string    `json:"equipment" gorm:"size:64"`
	Ts             time.Time `json:"ts"`
}

// AllocationLog records how a split submission distributed its total over the rows.
type AllocationLog struct {
	ID          types.ID `json:"id" gorm:"primary_key"`
	WorkOrderID types.ID `json:"workOrderId" gorm:"index"`
	ProcessName string   `json:"processName" gorm:"size:64"`
	Policy      string   `json:"policy" gorm:"size:16"`

	TotalQuantity int64              `json:"totalQuantity"`
	Rows          AllocationLogItems `json:"rows" sql:"type:TEXT"`
	CreatedBy     string             `json:"createdBy" gorm:"size:64"`
	CreatedAt     time.Time          `json:"createdAt"`
}

type AllocationLogItem struct {
	FillWorkID types.ID `json:"fillWorkId"`
	Operator   string   `json:"operator"`
	Weight     float64  `json:"weight"`
	Quantity   int64    `json:"quantity"`
}

type AllocationLogItems []AllocationLogItem

func (t AllocationLogItems) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *AllocationLogItems) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), c)
}
