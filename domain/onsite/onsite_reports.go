package onsite

import (
	"context"
	"errors"
	"strings"
	"time"

	"shopfloor/bizerror"
	"shopfloor/common"
	"shopfloor/dispatch"
	"shopfloor/domain"
	"shopfloor/domain/state"
	"shopfloor/domain/workorder"
	"shopfloor/event"
	"shopfloor/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/juju/clock"
)

var idWorker = common.NewIDWorker()

// Event is a live report of a station. The work order is given by id or by its key.
type Event struct {
	WorkOrderID    types.ID   `json:"workOrderId"`
	WorkOrderKey   string     `json:"workOrderKey"`
	ProcessName    string     `json:"processName" binding:"required"`
	EventType      string     `json:"eventType" binding:"required,oneof=start pause resume complete"`
	WorkQuantity   int64      `json:"workQuantity"`
	DefectQuantity int64      `json:"defectQuantity"`
	Operator       string     `json:"operator" binding:"required"`
	Equipment      string     `json:"equipment"`
	Ts             *time.Time `json:"ts"`
}

// Current is the derived machine state of one (work order, process) pair.
type Current struct {
	State    string               `json:"state"`
	Instance int                  `json:"instance"`
	Last     *domain.OnsiteReport `json:"last,omitempty"`
}

type Reporter struct {
	ds     *persistence.DataSourceManager
	poster dispatch.Poster

	Clock clock.Clock
}

func NewReporter(ds *persistence.DataSourceManager, poster dispatch.Poster) *Reporter {
	return &Reporter{ds: ds, poster: poster, Clock: clock.WallClock}
}

// Report appends e after checking it against the current state of its process. Completions are posted for recompute.
func (r *Reporter) Report(ctx context.Context, e *Event) (*domain.OnsiteReport, error) {
	processName := strings.TrimSpace(e.ProcessName)
	if processName == "" {
		return nil, bizerror.NewValidationError(bizerror.MissingRequired, "process_name", "process_name is required")
	}
	if strings.TrimSpace(e.Operator) == "" {
		return nil, bizerror.NewValidationError(bizerror.MissingRequired, "operator", "operator is required")
	}
	if e.WorkQuantity < 0 || e.DefectQuantity < 0 {
		return nil, bizerror.NewValidationError(bizerror.NegativeQuantity, "work_quantity", "quantities must not be negative")
	}
	if !knownEvent(e.EventType) {
		return nil, bizerror.NewValidationError(bizerror.MissingRequired, "event_type", "unknown event type %q", e.EventType)
	}
	ts := r.Clock.Now()
	if e.Ts != nil {
		ts = *e.Ts
	}

	var report *domain.OnsiteReport
	var wo *domain.WorkOrder
	err := r.ds.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if wo, err = r.lockTarget(tx, e); err != nil {
			return err
		}
		if wo.Status == domain.StatusCancelled {
			return &bizerror.StateError{Entity: domain.KindWorkOrder, Key: wo.Key().String(), State: string(wo.Status), Event: "onsite." + e.EventType}
		}
		if _, _, err := workorder.EnsureProcess(tx, wo, processName, e.Operator); err != nil {
			return err
		}

		current, err := derive(tx, wo.ID, processName)
		if err != nil {
			return err
		}
		next, ok := state.OnsiteMachine.Fire(current.State, e.EventType)
		if !ok {
			return &bizerror.StateError{Entity: domain.KindOnsiteReport, Key: wo.Key().String() + "#" + processName,
				State: current.State, Event: e.EventType}
		}
		if current.Last != nil && ts.Before(current.Last.Ts) {
			return bizerror.NewValidationError(bizerror.InvalidTime, "ts", "event at %s precedes the last event at %s",
				ts.Format(time.RFC3339), current.Last.Ts.Format(time.RFC3339))
		}
		instance := current.Instance
		if e.EventType == string(domain.OnsiteStart) {
			instance++
		}

		report = &domain.OnsiteReport{
			ID:             common.NextId(idWorker),
			WorkOrderID:    wo.ID,
			ProcessName:    processName,
			Instance:       instance,
			EventType:      domain.OnsiteEventType(e.EventType),
			WorkQuantity:   e.WorkQuantity,
			DefectQuantity: e.DefectQuantity,
			Operator:       strings.TrimSpace(e.Operator),
			Equipment:      strings.TrimSpace(e.Equipment),
			Ts:             ts.UTC(),
		}
		if err := tx.Create(report).Error; err != nil {
			return err
		}
		_, err = event.CreateEvent(tx, domain.KindOnsiteReport, report.ID, report.ProcessName+"@"+wo.Key().String(),
			event.EventCategoryStatusChanged, event.Collect(event.Changed("state", current.State, next.Name)), report.Operator)
		return err
	})
	if err != nil {
		return nil, err
	}

	if report.EventType == domain.OnsiteComplete && r.poster != nil {
		posted := dispatch.WorkOrderEvent{Action: dispatch.ActionOnsiteCompleted, WorkOrderID: wo.ID, Key: wo.Key()}
		if err := r.poster.Post(ctx, posted); err != nil {
			common.EntityLogger(domain.KindWorkOrder, wo.Key().String()).Warnf("post onsite completion: %v", err)
		}
	}
	return report, nil
}

// State derives the machine state of a process from its event log.
func (r *Reporter) State(ctx context.Context, workOrderID types.ID, processName string) (*Current, error) {
	return derive(r.ds.GormDB(ctx), workOrderID, strings.TrimSpace(processName))
}

func (r *Reporter) lockTarget(tx *gorm.DB, e *Event) (*domain.WorkOrder, error) {
	id := e.WorkOrderID
	if id == 0 {
		key, err := domain.ParseWorkOrderKey(e.WorkOrderKey)
		if err != nil {
			return nil, bizerror.NewValidationError(bizerror.MissingRequired, "work_order_key", "%v", err)
		}
		wo, err := workorder.FindByKey(tx, key)
		if err != nil {
			return nil, err
		}
		id = wo.ID
	}
	return workorder.Lock(tx, id)
}

func derive(db *gorm.DB, workOrderID types.ID, processName string) (*Current, error) {
	last := domain.OnsiteReport{}
	err := db.Where("work_order_id = ? AND process_name = ?", workOrderID, processName).
		Order("ts DESC, id DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Current{State: state.OnsiteIdle.Name}, nil
	}
	if err != nil {
		return nil, err
	}
	current := &Current{Instance: last.Instance, Last: &last}
	switch last.EventType {
	case domain.OnsiteStart, domain.OnsiteResume:
		current.State = state.OnsiteRunning.Name
	case domain.OnsitePause:
		current.State = state.OnsitePaused.Name
	default:
		current.State = state.OnsiteDone.Name
	}
	return current, nil
}

func knownEvent(eventType string) bool {
	for _, t := range state.OnsiteMachine.Transitions {
		if t.Name == eventType {
			return true
		}
	}
	return false
}

// CompletedSums totals the quantities of completion events per process of a work order.
func CompletedSums(db *gorm.DB, workOrderID types.ID) (map[string]Sums, error) {
	var rows []struct {
		ProcessName string
		Good        int64
		Defect      int64
	}
	if err := db.Model(&domain.OnsiteReport{}).
		Select("process_name, COALESCE(SUM(work_quantity), 0) AS good, COALESCE(SUM(defect_quantity), 0) AS defect").
		Where("work_order_id = ? AND event_type = ?", workOrderID, domain.OnsiteComplete).
		Group("process_name").Scan(&rows).Error; err != nil {
		return nil, err
	}
	sums := map[string]Sums{}
	for _, row := range rows {
		sums[row.ProcessName] = Sums{Good: row.Good, Defect: row.Defect}
	}
	return sums, nil
}

type Sums struct {
	Good   int64
	Defect int64
}

// Reports lists all events of a work order in time order.
func Reports(db *gorm.DB, workOrderID types.ID) ([]domain.OnsiteReport, error) {
	var reports []domain.OnsiteReport
	err := db.Where("work_order_id = ?", workOrderID).Order("ts ASC, id ASC").Find(&reports).Error
	return reports, err
}
