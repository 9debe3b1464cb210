package event

import (
	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

func LoadUnsynced(db *gorm.DB, sourceType string, category EventCategory, limit int) ([]EventRecord, error) {
	var records []EventRecord
	q := db.Where("synced = ? AND source_type = ? AND event_category = ?", false, sourceType, category).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func MarkSynced(db *gorm.DB, ids ...types.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return db.Model(&EventRecord{}).Where("id IN (?)", ids).Update("synced", true).Error
}

func LoadEvents(db *gorm.DB, sourceType string, sourceId types.ID) ([]EventRecord, error) {
	var records []EventRecord
	if err := db.Where("source_type = ? AND source_id = ?", sourceType, sourceId).Order("id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
