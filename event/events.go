package event

import (
	"shopfloor/common"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var idWorker = common.NewIDWorker()

// CreateEvent appends an audit record inside tx, so it commits or rolls back with the change it describes.
func CreateEvent(tx *gorm.DB, sourceType string, sourceId types.ID, sourceKey string, category EventCategory,
	updatedProperties UpdatedProperties, actor string) (*EventRecord, error) {

	record := EventRecord{
		ID: common.NextId(idWorker),
		Event: Event{
			SourceType: sourceType,
			SourceId:   sourceId,
			SourceKey:  sourceKey,

			EventCategory:     category,
			UpdatedProperties: updatedProperties,

			CreatorName: actor,
		},
		Synced:    false,
		Timestamp: types.CurrentTimestamp(),
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}
