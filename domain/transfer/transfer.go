package transfer

import (
	"context"
	"time"

	"shopfloor/bizerror"
	"shopfloor/common"
	"shopfloor/domain"
	"shopfloor/domain/completion"
	"shopfloor/domain/onsite"
	"shopfloor/domain/workorder"
	"shopfloor/event"
	"shopfloor/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/juju/clock"
)

const transferActor = "completion-transfer"

var idWorker = common.NewIDWorker()

type Result struct {
	WorkOrderID          types.ID                `json:"workOrderId"`
	Key                  domain.WorkOrderKey     `json:"key"`
	CompletedWorkOrderID types.ID                `json:"completedWorkOrderId"`
	Method               domain.CompletionMethod `json:"method"`
	AlreadyTransferred   bool                    `json:"alreadyTransferred"`
	PurgedReports        int                     `json:"purgedReports"`
}

// Service moves a completed work order and its approved reports into the archive tables.
type Service struct {
	ds    *persistence.DataSourceManager
	judge *completion.Judge

	// PurgeReports deletes the archived source fill works in the same transaction.
	PurgeReports bool
	Handlers     event.Handlers
	Clock        clock.Clock
}

func NewService(ds *persistence.DataSourceManager, judge *completion.Judge) *Service {
	return &Service{ds: ds, judge: judge, Clock: clock.WallClock}
}

// Transfer archives the work order when the judge considers it completed by method.
// A work order that is already archived is reported as success with AlreadyTransferred set.
func (s *Service) Transfer(ctx context.Context, workOrderID types.ID, method domain.CompletionMethod) (*Result, error) {
	var result *Result
	var records []*event.EventRecord
	err := s.ds.Transaction(ctx, func(tx *gorm.DB) error {
		records = nil
		wo, err := workorder.Lock(tx, workOrderID)
		if err != nil {
			return err
		}
		if existing, err := findArchived(tx, wo); err != nil {
			return err
		} else if existing != nil {
			return &bizerror.ConflictError{Entity: domain.KindCompletedWorkOrder, Key: wo.Key().String()}
		}

		judged, err := s.judge.Evaluate(tx, wo, method)
		if err != nil {
			return err
		}
		if !judged.OverallCompleted {
			return &bizerror.StateError{Entity: domain.KindWorkOrder, Key: wo.Key().String(), State: string(wo.Status), Event: "transfer"}
		}

		result, records, err = s.archive(tx, wo, judged.ChosenMethod)
		return err
	})

	if bizerror.IsConflict(err) {
		common.EntityLogger(domain.KindWorkOrder, workOrderID.String()).Infof("work order already transferred: %v", err)
		return s.already(ctx, workOrderID)
	}
	if err != nil {
		return nil, err
	}

	s.Handlers.Invoke(records...)
	common.EntityLogger(domain.KindWorkOrder, result.Key.String()).
		Infof("transferred to archive %s by %s", result.CompletedWorkOrderID, result.Method)
	return result, nil
}

func (s *Service) TransferByKey(ctx context.Context, key domain.WorkOrderKey, method domain.CompletionMethod) (*Result, error) {
	wo, err := workorder.FindByKey(s.ds.GormDB(ctx), key)
	if err != nil {
		return nil, err
	}
	return s.Transfer(ctx, wo.ID, method)
}

func (s *Service) already(ctx context.Context, workOrderID types.ID) (*Result, error) {
	db := s.ds.GormDB(ctx)
	archived := domain.CompletedWorkOrder{}
	if err := db.Where("source_work_order_id = ?", workOrderID).First(&archived).Error; err != nil {
		if !gorm.IsRecordNotFoundError(err) {
			return nil, err
		}
		wo, err := workorder.FindByID(db, workOrderID)
		if err != nil {
			return nil, err
		}
		found, err := findArchived(db, wo)
		if err != nil {
			return nil, err
		}
		if found == nil {
			return nil, &bizerror.FatalError{Entity: domain.KindWorkOrder, Key: wo.Key().String(), Message: "conflict without archive row"}
		}
		archived = *found
	}
	return &Result{WorkOrderID: workOrderID, Key: archived.Key(), CompletedWorkOrderID: archived.ID,
		Method: archived.CompletionMethod, AlreadyTransferred: true}, nil
}

func (s *Service) archive(tx *gorm.DB, wo *domain.WorkOrder, method domain.CompletionMethod) (*Result, []*event.EventRecord, error) {
	now := s.Clock.Now()
	processes, err := workorder.Processes(tx, wo.ID)
	if err != nil {
		return nil, nil, err
	}
	var reports []domain.FillWork
	if err := tx.Where("company_code = ? AND order_number = ? AND product_id = ? AND approval_status = ?",
		wo.CompanyCode, wo.OrderNumber, wo.ProductCode, domain.ApprovalApproved).
		Order("start_at ASC, id ASC").Find(&reports).Error; err != nil {
		return nil, nil, err
	}
	onsiteReports, err := onsite.Reports(tx, wo.ID)
	if err != nil {
		return nil, nil, err
	}

	head, rollups := rollup(wo, processes, reports, onsiteReports)
	head.ID = common.NextId(idWorker)
	head.CompletionMethod = method
	head.CompletedAt = now
	if wo.CompletedAt != nil {
		head.CompletedAt = *wo.CompletedAt
	}
	head.ArchivedAt = now
	if err := tx.Create(head).Error; err != nil {
		return nil, nil, err
	}

	processIDs := map[string]types.ID{}
	for _, p := range rollups {
		p.ID = common.NextId(idWorker)
		p.CompletedWorkOrderID = head.ID
		if err := tx.Create(p).Error; err != nil {
			return nil, nil, err
		}
		processIDs[p.ProcessName] = p.ID
	}
	for _, r := range reports {
		archived := archivedReport(&r)
		archived.ID = common.NextId(idWorker)
		archived.CompletedWorkOrderID = head.ID
		archived.CompletedProcessID = processIDs[r.ProcessName]
		if err := tx.Create(archived).Error; err != nil {
			return nil, nil, err
		}
	}

	var records []*event.EventRecord
	if wo.Status != domain.StatusCompleted || wo.CompletedAt == nil {
		completedAt := head.CompletedAt
		if err := tx.Model(&domain.WorkOrder{}).Where("id = ?", wo.ID).
			Updates(map[string]interface{}{"status": domain.StatusCompleted, "completed_at": completedAt, "updated_at": now}).Error; err != nil {
			return nil, nil, err
		}
		changes := event.Collect(event.Changed("status", wo.Status, domain.StatusCompleted))
		if len(changes) > 0 {
			record, err := event.CreateEvent(tx, domain.KindWorkOrder, wo.ID, wo.Key().String(), event.EventCategoryStatusChanged, changes, transferActor)
			if err != nil {
				return nil, nil, err
			}
			records = append(records, record)
		}
	}

	result := &Result{WorkOrderID: wo.ID, Key: wo.Key(), CompletedWorkOrderID: head.ID, Method: method}
	if s.PurgeReports && len(reports) > 0 {
		ids := make([]types.ID, 0, len(reports))
		for _, r := range reports {
			ids = append(ids, r.ID)
		}
		if err := tx.Where("id IN (?)", ids).Delete(&domain.FillWork{}).Error; err != nil {
			return nil, nil, err
		}
		record, err := event.CreateEvent(tx, domain.KindWorkOrder, wo.ID, wo.Key().String(), event.EventCategoryPurged,
			event.Collect(event.Changed("approved_reports", len(ids), 0)), transferActor)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, record)
		result.PurgedReports = len(ids)
	}

	record, err := event.CreateEvent(tx, domain.KindCompletedWorkOrder, head.ID, wo.Key().String(), event.EventCategoryArchived,
		event.Collect(
			event.Changed("source_work_order_id", "", wo.ID),
			event.Changed("completion_method", "", method),
			event.Changed("good_quantity", "", head.GoodQuantity),
			event.Changed("total_work_hours", "", head.TotalWorkHours),
		), transferActor)
	if err != nil {
		return nil, nil, err
	}
	records = append(records, record)
	return result, records, nil
}

func rollup(wo *domain.WorkOrder, processes []domain.WorkOrderProcess, reports []domain.FillWork,
	onsiteReports []domain.OnsiteReport) (*domain.CompletedWorkOrder, []*domain.CompletedProcess) {

	head := &domain.CompletedWorkOrder{
		SourceWorkOrderID: wo.ID,
		CompanyCode:       wo.CompanyCode,
		OrderNumber:       wo.OrderNumber,
		ProductCode:       wo.ProductCode,
		OrderSource:       wo.OrderSource,
		PlannedQuantity:   wo.PlannedQuantity,
		ProcessCount:      len(processes),
		ReportCount:       len(reports),
		SourceCreatedAt:   wo.CreatedAt,
		StartedAt:         wo.StartedAt,
	}

	byName := map[string]*domain.CompletedProcess{}
	rollups := make([]*domain.CompletedProcess, 0, len(processes))
	for _, p := range processes {
		cp := &domain.CompletedProcess{
			StepOrder:       p.StepOrder,
			ProcessName:     p.ProcessName,
			Status:          p.Status,
			PlannedQuantity: p.PlannedQuantity,
			Operators:       domain.NewStringSet(),
			Equipment:       domain.NewStringSet(),
			ActualStartTime: p.ActualStartTime,
			ActualEndTime:   p.ActualEndTime,
		}
		rollups = append(rollups, cp)
		if _, ok := byName[p.ProcessName]; !ok {
			byName[p.ProcessName] = cp
		}
	}

	var workHours, overtimeHours float64
	for i := range reports {
		r := &reports[i]
		head.GoodQuantity += r.WorkQuantity
		head.DefectQuantity += r.DefectQuantity
		workHours += r.WorkHoursCalculated
		overtimeHours += r.OvertimeHoursCalculated

		cp, ok := byName[r.ProcessName]
		if !ok {
			continue
		}
		cp.GoodQuantity += r.WorkQuantity
		cp.DefectQuantity += r.DefectQuantity
		cp.WorkHours += r.WorkHoursCalculated
		cp.OvertimeHours += r.OvertimeHoursCalculated
		cp.Operators = cp.Operators.Add(r.Operator)
		cp.Equipment = cp.Equipment.Add(r.Equipment)
		cp.FirstReportDate = earliest(cp.FirstReportDate, r.WorkDate)
		cp.LastReportDate = latest(cp.LastReportDate, r.WorkDate)
	}

	for i := range onsiteReports {
		o := &onsiteReports[i]
		cp, ok := byName[o.ProcessName]
		if ok {
			cp.Operators = cp.Operators.Add(o.Operator)
			cp.Equipment = cp.Equipment.Add(o.Equipment)
		}
		if o.EventType != domain.OnsiteComplete {
			continue
		}
		head.GoodQuantity += o.WorkQuantity
		head.DefectQuantity += o.DefectQuantity
		if ok {
			cp.GoodQuantity += o.WorkQuantity
			cp.DefectQuantity += o.DefectQuantity
			cp.FirstReportDate = earliest(cp.FirstReportDate, common.DateOf(o.Ts))
			cp.LastReportDate = latest(cp.LastReportDate, common.DateOf(o.Ts))
		}
	}

	for _, cp := range rollups {
		cp.WorkHours = common.RoundTo2(cp.WorkHours)
		cp.OvertimeHours = common.RoundTo2(cp.OvertimeHours)
	}
	head.TotalWorkHours = common.RoundTo2(workHours + overtimeHours)
	head.OvertimeHours = common.RoundTo2(overtimeHours)
	return head, rollups
}

func archivedReport(r *domain.FillWork) *domain.CompletedReport {
	return &domain.CompletedReport{
		SourceFillWorkID: r.ID,
		Operator:         r.Operator,
		ProcessName:      r.ProcessName,
		WorkDate:         r.WorkDate,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		WorkQuantity:     r.WorkQuantity,
		DefectQuantity:   r.DefectQuantity,
		WorkHours:        r.WorkHoursCalculated,
		OvertimeHours:    r.OvertimeHoursCalculated,
		BreakHours:       r.BreakHours,
		Equipment:        r.Equipment,
		Approver:         r.Approver,
		ApprovedAt:       r.ApprovedAt,
		Remarks:          r.Remarks,
		AbnormalNotes:    r.AbnormalNotes,
	}
}

func earliest(current *time.Time, t time.Time) *time.Time {
	if current == nil || t.Before(*current) {
		return &t
	}
	return current
}

func latest(current *time.Time, t time.Time) *time.Time {
	if current == nil || t.After(*current) {
		return &t
	}
	return current
}

func findArchived(db *gorm.DB, wo *domain.WorkOrder) (*domain.CompletedWorkOrder, error) {
	archived := domain.CompletedWorkOrder{}
	err := db.Where("source_work_order_id = ? OR (company_code = ? AND order_number = ? AND product_code = ?)",
		wo.ID, wo.CompanyCode, wo.OrderNumber, wo.ProductCode).First(&archived).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &archived, nil
}

// Archived loads the whole archived aggregate.
func Archived(db *gorm.DB, id types.ID) (*domain.CompletedWorkOrderDetail, error) {
	detail := domain.CompletedWorkOrderDetail{}
	if err := db.Where("id = ?", id).First(&detail.CompletedWorkOrder).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, bizerror.ErrNotFound
		}
		return nil, err
	}
	if err := db.Where("completed_work_order_id = ?", id).Order("step_order ASC").Find(&detail.Processes).Error; err != nil {
		return nil, err
	}
	if err := db.Where("completed_work_order_id = ?", id).Order("work_date ASC, id ASC").Find(&detail.Reports).Error; err != nil {
		return nil, err
	}
	return &detail, nil
}

// IsArchived reports whether the work order already has an archive row.
func IsArchived(db *gorm.DB, wo *domain.WorkOrder) (bool, error) {
	found, err := findArchived(db, wo)
	if err != nil {
		return false, err
	}
	return found != nil, nil
}
