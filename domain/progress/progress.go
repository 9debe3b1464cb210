package progress

import (
	"context"
	"time"

	"shopfloor/common"
	"shopfloor/domain"
	"shopfloor/domain/state"
	"shopfloor/domain/workorder"
	"shopfloor/event"
	"shopfloor/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
)

const progressActor = "progress-updater"

// Outcome describes a recompute of one work order.
type Outcome struct {
	WorkOrderID       types.ID            `json:"workOrderId"`
	Key               domain.WorkOrderKey `json:"key"`
	Previous          domain.Status       `json:"previous"`
	Status            domain.Status       `json:"status"`
	CompletedQuantity int64               `json:"completedQuantity"`
}

func (o *Outcome) Changed() bool {
	return o.Previous != o.Status
}

type Summary struct {
	Checked int `json:"checked"`
	Changed int `json:"changed"`
	Failed  int `json:"failed"`
}

// Updater derives process progress and work order status from approved fill-works and on-site completions.
// It is the only writer of progress fields.
type Updater struct {
	ds *persistence.DataSourceManager

	Clock clock.Clock
}

func NewUpdater(ds *persistence.DataSourceManager) *Updater {
	return &Updater{ds: ds, Clock: clock.WallClock}
}

type sourceFigures struct {
	quantity int64
	first    *time.Time
	last     *time.Time
}

func (f *sourceFigures) seen(first, last *time.Time) {
	if first != nil && (f.first == nil || first.Before(*f.first)) {
		t := *first
		f.first = &t
	}
	if last != nil && (f.last == nil || last.After(*f.last)) {
		t := *last
		f.last = &t
	}
}

// Recompute brings the work order up to date under its row lock. Running it again without new reports changes nothing.
func (u *Updater) Recompute(ctx context.Context, workOrderID types.ID) (*Outcome, error) {
	var outcome *Outcome
	err := u.ds.Transaction(ctx, func(tx *gorm.DB) error {
		wo, err := workorder.Lock(tx, workOrderID)
		if err != nil {
			return err
		}
		outcome = &Outcome{WorkOrderID: wo.ID, Key: wo.Key(), Previous: wo.Status, Status: wo.Status, CompletedQuantity: wo.CompletedQuantity}
		if wo.Status == domain.StatusCancelled {
			return nil
		}

		figures, err := collect(tx, wo)
		if err != nil {
			return err
		}
		processes, err := workorder.Processes(tx, wo.ID)
		if err != nil {
			return err
		}

		now := u.Clock.Now()
		var total int64
		allCompleted, anyWork := len(processes) > 0, false
		var earliest sourceFigures
		for i := range processes {
			p := &processes[i]
			f := figures[p.ProcessName]
			if f == nil {
				f = &sourceFigures{}
			}
			earliest.seen(f.first, f.last)
			if err := u.applyProcess(tx, wo, p, f, now); err != nil {
				return err
			}
			total += p.CompletedQuantity
			allCompleted = allCompleted && p.Status == domain.StatusCompleted
			anyWork = anyWork || p.CompletedQuantity > 0 || p.Status != domain.StatusPending
		}

		target := domain.StatusPending
		switch {
		case allCompleted && total > 0:
			target = domain.StatusCompleted
		case anyWork:
			target = domain.StatusInProgress
		}
		if wo.Status == domain.StatusPaused && target != domain.StatusCompleted {
			target = domain.StatusPaused
		}
		if !state.WorkOrderLattice.CanMove(string(wo.Status), string(target)) {
			target = wo.Status
		}

		changes := map[string]interface{}{}
		if total != wo.CompletedQuantity {
			changes["completed_quantity"] = total
		}
		if target != wo.Status {
			changes["status"] = target
			if wo.StartedAt == nil {
				started := now
				if earliest.first != nil {
					started = *earliest.first
				}
				changes["started_at"] = started
			}
			if target == domain.StatusCompleted && wo.CompletedAt == nil {
				changes["completed_at"] = now
			}
		}
		if len(changes) > 0 {
			if err := tx.Model(&domain.WorkOrder{}).Where("id = ?", wo.ID).Updates(changes).Error; err != nil {
				return err
			}
		}
		if target != wo.Status {
			if _, err := event.CreateEvent(tx, domain.KindWorkOrder, wo.ID, wo.Key().String(), event.EventCategoryStatusChanged,
				event.Collect(event.Changed("status", wo.Status, target), event.Changed("completed_quantity", wo.CompletedQuantity, total)),
				progressActor); err != nil {
				return err
			}
		}
		outcome.Status, outcome.CompletedQuantity = target, total
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (u *Updater) applyProcess(tx *gorm.DB, wo *domain.WorkOrder, p *domain.WorkOrderProcess, f *sourceFigures, now time.Time) error {
	target := domain.StatusPending
	switch {
	case f.quantity >= p.PlannedQuantity && f.quantity > 0:
		target = domain.StatusCompleted
	case f.quantity > 0:
		target = domain.StatusInProgress
	}
	if !state.WorkOrderLattice.CanMove(string(p.Status), string(target)) {
		target = p.Status
	}

	changes := map[string]interface{}{}
	if f.quantity != p.CompletedQuantity {
		changes["completed_quantity"] = f.quantity
	}
	if target != p.Status {
		changes["status"] = target
	}
	if target != domain.StatusPending && p.ActualStartTime == nil {
		start := now
		if f.first != nil {
			start = *f.first
		}
		changes["actual_start_time"] = start
		p.ActualStartTime = &start
	}
	if target == domain.StatusCompleted && p.ActualEndTime == nil {
		end := now
		if f.last != nil {
			end = *f.last
		}
		changes["actual_end_time"] = end
		p.ActualEndTime = &end
	}
	if len(changes) == 0 {
		return nil
	}
	if err := tx.Model(&domain.WorkOrderProcess{}).Where("id = ?", p.ID).Updates(changes).Error; err != nil {
		return err
	}
	if target != p.Status {
		if _, err := event.CreateEvent(tx, domain.KindWorkOrderProcess, p.ID, wo.Key().String()+"#"+p.ProcessName,
			event.EventCategoryStatusChanged, event.Collect(event.Changed("status", p.Status, target)), progressActor); err != nil {
			return err
		}
	}
	p.CompletedQuantity, p.Status = f.quantity, target
	return nil
}

// collect sums approved fill-works and on-site completions per process, with the first and last source event times.
func collect(tx *gorm.DB, wo *domain.WorkOrder) (map[string]*sourceFigures, error) {
	figures := map[string]*sourceFigures{}
	get := func(name string) *sourceFigures {
		f, ok := figures[name]
		if !ok {
			f = &sourceFigures{}
			figures[name] = f
		}
		return f
	}

	var fillWorks []domain.FillWork
	if err := tx.Select("process_name, work_quantity, start_at, end_at").
		Where("company_code = ? AND order_number = ? AND product_id = ? AND approval_status = ?",
			wo.CompanyCode, wo.OrderNumber, wo.ProductCode, domain.ApprovalApproved).Find(&fillWorks).Error; err != nil {
		return nil, err
	}
	for i := range fillWorks {
		fw := &fillWorks[i]
		f := get(fw.ProcessName)
		f.quantity += fw.WorkQuantity
		f.seen(&fw.StartAt, &fw.EndAt)
	}

	var reports []domain.OnsiteReport
	if err := tx.Select("process_name, event_type, work_quantity, ts").Where("work_order_id = ?", wo.ID).
		Find(&reports).Error; err != nil {
		return nil, err
	}
	for i := range reports {
		r := &reports[i]
		f := get(r.ProcessName)
		if r.EventType == domain.OnsiteComplete {
			f.quantity += r.WorkQuantity
			f.seen(nil, &r.Ts)
		} else {
			f.seen(&r.Ts, nil)
		}
	}
	return figures, nil
}

// RecomputeAll sweeps active work orders. Failures are logged per work order and counted.
func (u *Updater) RecomputeAll(ctx context.Context) (Summary, error) {
	summary := Summary{}
	var ids []types.ID
	if err := u.ds.Read(ctx, func(db *gorm.DB) error {
		return workorder.EachActive(db, 500, func(wo *domain.WorkOrder) error {
			ids = append(ids, wo.ID)
			return nil
		})
	}); err != nil {
		return summary, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Checked++
		outcome, err := u.Recompute(ctx, id)
		if err != nil {
			common.EntityLogger(domain.KindWorkOrder, id.String()).Errorf("recompute progress failed: %v", err)
			summary.Failed++
			continue
		}
		if outcome.Changed() {
			summary.Changed++
		}
	}
	if summary.Changed > 0 || summary.Failed > 0 {
		logrus.Infof("progress sweep: checked %d, changed %d, failed %d", summary.Checked, summary.Changed, summary.Failed)
	}
	return summary, nil
}
