package fillwork

import (
	"context"
	"errors"
	"strings"

	"shopfloor/bizerror"
	"shopfloor/common"
	"shopfloor/config"
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

type Decision struct {
	Decision string `json:"decision" binding:"required,oneof=approve reject cancel"`
	Approver string `json:"approver" binding:"required"`
}

// Ingestor validates and stores fill-work reports and moves them through approval.
type Ingestor struct {
	ds       *persistence.DataSourceManager
	snapshot func() *config.Snapshot
	catalog  *workorder.Catalog
	poster   dispatch.Poster

	Clock clock.Clock
}

func NewIngestor(ds *persistence.DataSourceManager, snapshot func() *config.Snapshot, catalog *workorder.Catalog,
	poster dispatch.Poster) *Ingestor {
	return &Ingestor{ds: ds, snapshot: snapshot, catalog: catalog, poster: poster, Clock: clock.WallClock}
}

// Submit stores a pending fill-work. Nothing is persisted when the submission is invalid.
func (in *Ingestor) Submit(ctx context.Context, s *Submission) (*domain.FillWork, error) {
	snapshot := in.snapshot()
	measured, err := Validate(s, in.Clock.Now(), snapshot.Config.Location(), limitsOf(snapshot.Config))
	if err != nil {
		return nil, err
	}
	code, err := resolveCompany(snapshot, s)
	if err != nil {
		return nil, err
	}

	var fw *domain.FillWork
	err = in.ds.Transaction(ctx, func(tx *gorm.DB) error {
		wo, err := in.targetWorkOrder(tx, code, s)
		if err != nil {
			return err
		}
		if err := in.resolveProcess(tx, snapshot.Config, wo, s.ProcessName, s.Operator); err != nil {
			return err
		}
		fw = newFillWork(code, s, measured)
		fw.ID = common.NextId(idWorker)
		if err := tx.Create(fw).Error; err != nil {
			return err
		}
		_, err = event.CreateEvent(tx, domain.KindFillWork, fw.ID, fw.TargetKey().String(), event.EventCategoryCreated,
			event.Collect(
				event.Changed("process_name", "", fw.ProcessName),
				event.Changed("work_quantity", "", fw.WorkQuantity),
				event.Changed("defect_quantity", "", fw.DefectQuantity),
			), s.Operator)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fw, nil
}

// Update replaces the reported figures of a fill-work that is still pending.
func (in *Ingestor) Update(ctx context.Context, id types.ID, s *Submission) (*domain.FillWork, error) {
	snapshot := in.snapshot()
	measured, err := Validate(s, in.Clock.Now(), snapshot.Config.Location(), limitsOf(snapshot.Config))
	if err != nil {
		return nil, err
	}
	code, err := resolveCompany(snapshot, s)
	if err != nil {
		return nil, err
	}

	var updated *domain.FillWork
	err = in.ds.Transaction(ctx, func(tx *gorm.DB) error {
		existing, err := lock(tx, id)
		if err != nil {
			return err
		}
		if existing.ApprovalStatus != domain.ApprovalPending {
			return &bizerror.StateError{Entity: domain.KindFillWork, Key: id.String(), State: string(existing.ApprovalStatus), Event: "update"}
		}
		wo, err := in.targetWorkOrder(tx, code, s)
		if err != nil {
			return err
		}
		if err := in.resolveProcess(tx, snapshot.Config, wo, s.ProcessName, s.Operator); err != nil {
			return err
		}

		next := newFillWork(code, s, measured)
		next.ID, next.CreatedAt, next.AllocationID = existing.ID, existing.CreatedAt, existing.AllocationID
		changes := map[string]interface{}{
			"company_name": next.CompanyName, "company_code": next.CompanyCode, "operator": next.Operator,
			"order_number": next.OrderNumber, "product_id": next.ProductID, "process_name": next.ProcessName,
			"work_date": next.WorkDate, "start_time": next.StartTime, "end_time": next.EndTime,
			"has_break": next.HasBreak, "break_start": next.BreakStart, "break_end": next.BreakEnd,
			"start_at": next.StartAt, "end_at": next.EndAt,
			"work_quantity": next.WorkQuantity, "defect_quantity": next.DefectQuantity, "equipment": next.Equipment,
			"remarks": next.Remarks, "abnormal_notes": next.AbnormalNotes,
			"work_hours_calculated": next.WorkHoursCalculated, "overtime_hours_calculated": next.OvertimeHoursCalculated,
			"break_hours": next.BreakHours,
		}
		if err := tx.Model(&domain.FillWork{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return err
		}
		props := event.Collect(
			event.Changed("target", existing.TargetKey().String(), next.TargetKey().String()),
			event.Changed("process_name", existing.ProcessName, next.ProcessName),
			event.Changed("work_quantity", existing.WorkQuantity, next.WorkQuantity),
			event.Changed("defect_quantity", existing.DefectQuantity, next.DefectQuantity),
			event.Changed("work_hours_calculated", existing.WorkHoursCalculated, next.WorkHoursCalculated),
			event.Changed("overtime_hours_calculated", existing.OvertimeHoursCalculated, next.OvertimeHoursCalculated),
		)
		if len(props) > 0 {
			if _, err := event.CreateEvent(tx, domain.KindFillWork, id, next.TargetKey().String(),
				event.EventCategoryPropertyUpdated, props, s.Operator); err != nil {
				return err
			}
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Decide applies an approval decision to a pending fill-work. Approved reports are posted for progress recompute.
func (in *Ingestor) Decide(ctx context.Context, id types.ID, d *Decision) (*domain.FillWork, error) {
	var decided *domain.FillWork
	var target *domain.WorkOrder
	err := in.ds.Transaction(ctx, func(tx *gorm.DB) error {
		fw, err := lock(tx, id)
		if err != nil {
			return err
		}
		to, ok := state.ApprovalMachine.Fire(string(fw.ApprovalStatus), d.Decision)
		if !ok {
			return &bizerror.StateError{Entity: domain.KindFillWork, Key: id.String(), State: string(fw.ApprovalStatus), Event: d.Decision}
		}
		now := in.Clock.Now()
		changes := map[string]interface{}{"approval_status": to.Name, "approver": d.Approver}
		if to.Name == string(domain.ApprovalApproved) {
			changes["approved_at"] = now
			fw.ApprovedAt = &now
			if target, err = workorder.FindByKey(tx, fw.TargetKey()); err != nil {
				return err
			}
		}
		if err := tx.Model(&domain.FillWork{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return err
		}
		if _, err := event.CreateEvent(tx, domain.KindFillWork, id, fw.TargetKey().String(), event.EventCategoryApprovalDecided,
			event.Collect(event.Changed("approval_status", fw.ApprovalStatus, to.Name)), d.Approver); err != nil {
			return err
		}
		fw.ApprovalStatus = domain.ApprovalStatus(to.Name)
		fw.Approver = d.Approver
		decided = fw
		return nil
	})
	if err != nil {
		return nil, err
	}

	if target != nil && in.poster != nil {
		e := dispatch.WorkOrderEvent{Action: dispatch.ActionFillWorkApproved, WorkOrderID: target.ID, Key: target.Key()}
		if err := in.poster.Post(ctx, e); err != nil {
			// the periodic progress sweep picks the work order up later
			common.EntityLogger(domain.KindWorkOrder, target.Key().String()).Warnf("post approved fill-work %d: %v", id, err)
		}
	}
	return decided, nil
}

func FindByID(db *gorm.DB, id types.ID) (*domain.FillWork, error) {
	fw := domain.FillWork{}
	if err := db.Where("id = ?", id).First(&fw).Error; err != nil {
		return nil, notFound(err)
	}
	return &fw, nil
}

// Approved lists approved fill-works of a work order, by work date.
func Approved(db *gorm.DB, key domain.WorkOrderKey) ([]domain.FillWork, error) {
	var fws []domain.FillWork
	err := db.Where("company_code = ? AND order_number = ? AND product_id = ? AND approval_status = ?",
		key.CompanyCode, key.OrderNumber, key.ProductCode, domain.ApprovalApproved).
		Order("work_date ASC, start_at ASC, id ASC").Find(&fws).Error
	return fws, err
}

func lock(tx *gorm.DB, id types.ID) (*domain.FillWork, error) {
	fw := domain.FillWork{}
	if err := persistence.ForUpdate(tx).Where("id = ?", id).First(&fw).Error; err != nil {
		return nil, notFound(err)
	}
	return &fw, nil
}

// targetWorkOrder finds the reported work order, creating a minimal pending one seeded from the report on miss.
func (in *Ingestor) targetWorkOrder(tx *gorm.DB, code string, s *Submission) (*domain.WorkOrder, error) {
	key := domain.WorkOrderKey{CompanyCode: code, OrderNumber: strings.TrimSpace(s.OrderNumber), ProductCode: strings.TrimSpace(s.ProductID)}
	wo, err := workorder.FindByKey(tx, key)
	if err == nil {
		return wo, nil
	}
	if err != bizerror.ErrNotFound {
		return nil, err
	}
	planned := s.WorkQuantity
	if planned < 1 {
		planned = 1
	}
	wo = &domain.WorkOrder{CompanyCode: key.CompanyCode, OrderNumber: key.OrderNumber, ProductCode: key.ProductCode,
		PlannedQuantity: planned, Status: domain.StatusPending, OrderSource: domain.OrderSourceMES}
	if _, err := workorder.Create(tx, wo, []string{s.ProcessName}, s.Operator); err != nil {
		return nil, err
	}
	return wo, nil
}

// resolveProcess accepts steps of the work order and known processes, other names become ad-hoc steps unless strict.
func (in *Ingestor) resolveProcess(tx *gorm.DB, cfg *config.Config, wo *domain.WorkOrder, name, actor string) error {
	name = strings.TrimSpace(name)
	processes, err := workorder.Processes(tx, wo.ID)
	if err != nil {
		return err
	}
	for _, p := range processes {
		if p.ProcessName == name {
			return nil
		}
	}
	if cfg.StrictProcessNames && in.catalog != nil {
		_, known, err := in.catalog.Lookup(tx, wo.CompanyCode, name)
		if err != nil {
			return err
		}
		if !known {
			return bizerror.NewValidationError(bizerror.UnknownProcess, "process_name",
				"process %s is unknown to work order %s", name, wo.Key())
		}
	}
	_, _, err = workorder.EnsureProcess(tx, wo, name, actor)
	return err
}

// resolveCompany tries the explicit code, the company name, the order number prefix, then the default company.
func resolveCompany(snapshot *config.Snapshot, s *Submission) (string, error) {
	if t, ok := snapshot.Tenant(s.CompanyCode); ok {
		return t.Code, nil
	}
	if t, ok := snapshot.TenantByName(s.CompanyName); ok {
		return t.Code, nil
	}
	if t, ok := snapshot.TenantByOrderPrefix(strings.TrimSpace(s.OrderNumber)); ok {
		return t.Code, nil
	}
	if t, ok := snapshot.Tenant(snapshot.Config.DefaultCompanyCode); ok {
		return t.Code, nil
	}
	return "", bizerror.NewValidationError(bizerror.UnknownCompany, "company", "company %s%s is unknown",
		s.CompanyCode, s.CompanyName)
}

func newFillWork(code string, s *Submission, m *Measured) *domain.FillWork {
	fw := &domain.FillWork{
		CompanyName:             strings.TrimSpace(s.CompanyName),
		CompanyCode:             code,
		Operator:                strings.TrimSpace(s.Operator),
		OrderNumber:             strings.TrimSpace(s.OrderNumber),
		ProductID:               strings.TrimSpace(s.ProductID),
		ProcessName:             strings.TrimSpace(s.ProcessName),
		WorkDate:                m.WorkDate,
		StartTime:               strings.TrimSpace(s.StartTime),
		EndTime:                 strings.TrimSpace(s.EndTime),
		HasBreak:                s.HasBreak,
		StartAt:                 m.StartAt.UTC(),
		EndAt:                   m.EndAt.UTC(),
		WorkQuantity:            s.WorkQuantity,
		DefectQuantity:          s.DefectQuantity,
		Equipment:               strings.TrimSpace(s.Equipment),
		Remarks:                 s.Remarks,
		AbnormalNotes:           s.AbnormalNotes,
		ApprovalStatus:          domain.ApprovalPending,
		WorkHoursCalculated:     m.WorkHours,
		OvertimeHoursCalculated: m.OvertimeHours,
		BreakHours:              m.BreakHours,
	}
	if s.HasBreak {
		fw.BreakStart, fw.BreakEnd = strings.TrimSpace(s.BreakStart), strings.TrimSpace(s.BreakEnd)
	}
	return fw
}

func limitsOf(cfg *config.Config) Limits {
	return Limits{NormalHoursCap: cfg.NormalHoursCap, MaxReportHours: cfg.MaxReportHours}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bizerror.ErrNotFound
	}
	return err
}
