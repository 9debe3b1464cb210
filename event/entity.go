package event

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/fundwit/go-commons/types"
)

const (
	EventCategoryCreated         = "CREATED"
	EventCategoryPropertyUpdated = "PROPERTY_UPDATED"
	EventCategoryStatusChanged   = "STATUS_CHANGED"
	EventCategoryApprovalDecided = "APPROVAL_DECIDED"
	EventCategoryArchived        = "ARCHIVED"
	EventCategoryPurged          = "PURGED"
)

type EventCategory string

// Event describes one change of one entity: who changed which properties from what to what.
type Event struct {
	SourceId   types.ID `json:"sourceId" gorm:"index:idx_event_source"`
	SourceType string   `json:"sourceType" gorm:"index:idx_event_source"`
	SourceKey  string   `json:"sourceKey"`

	CreatorName string `json:"creatorName"`

	EventCategory     EventCategory     `json:"eventCategory" gorm:"index:idx_event_category"`
	UpdatedProperties UpdatedProperties `json:"updatedProperties" sql:"type:TEXT"`
}

type EventRecord struct {
	ID types.ID `json:"id" gorm:"primary_key"`
	Event

	Timestamp types.Timestamp `json:"timestamp" sql:"type:DATETIME(6)"`
	Synced    bool            `json:"synced"`
}

func (r *EventRecord) TableName() string {
	return "events"
}

type UpdatedProperty struct {
	PropertyName string `json:"propertyName"`
	OldValue     string `json:"oldValue"`
	NewValue     string `json:"newValue"`
}

type UpdatedProperties []UpdatedProperty

func (t UpdatedProperties) Value() (driver.Value, error) {
	jsonBytes, err := json.Marshal(&t)
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (c *UpdatedProperties) Scan(v interface{}) error {
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

// Changed builds a property change, or nil when the value did not change.
func Changed(name string, oldValue, newValue interface{}) *UpdatedProperty {
	o, n := fmt.Sprint(oldValue), fmt.Sprint(newValue)
	if o == n {
		return nil
	}
	return &UpdatedProperty{PropertyName: name, OldValue: o, NewValue: n}
}

// Collect drops the nil entries produced by Changed.
func Collect(changes ...*UpdatedProperty) UpdatedProperties {
	r := UpdatedProperties{}
	for _, c := range changes {
		if c != nil {
			r = append(r, *c)
		}
	}
	return r
}
