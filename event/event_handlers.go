package event

import (
	"github.com/sirupsen/logrus"
)

// EventHandler reacts to one committed event record. It returns nil for records it does not handle.
type EventHandler func(e *EventRecord) *EventHandleResult

type EventHandleResult struct {
	Success           bool
	Message           string
	HandlerIdentifier string
}

// Handlers run after the transaction that produced the records has committed.
type Handlers []EventHandler

// Invoke hands every record to every handler in order. A failing handler never stops the others.
func (hs Handlers) Invoke(records ...*EventRecord) []EventHandleResult {
	var results []EventHandleResult
	for _, record := range records {
		if record == nil {
			continue
		}
		logger := logrus.WithFields(logrus.Fields{"entity_kind": record.SourceType, "entity_key": record.SourceKey})
		for _, handler := range hs {
			r := handler(record)
			if r == nil {
				continue
			}
			results = append(results, *r)
			if r.Success {
				logger.Debugf("%s handled %s event", r.HandlerIdentifier, record.EventCategory)
			} else {
				logger.Errorf("%s failed on %s event: %s", r.HandlerIdentifier, record.EventCategory, r.Message)
			}
		}
	}
	return results
}
