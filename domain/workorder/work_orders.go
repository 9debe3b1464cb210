package workorder

import (
	"errors"
	"strings"

	"shopfloor/bizerror"
	"shopfloor/common"
	"shopfloor/domain"
	"shopfloor/event"
	"shopfloor/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var idWorker = common.NewIDWorker()

func FindByKey(db *gorm.DB, key domain.WorkOrderKey) (*domain.WorkOrder, error) {
	wo := domain.WorkOrder{}
	err := db.Where("company_code = ? AND order_number = ? AND product_code = ?", key.CompanyCode, key.OrderNumber, key.ProductCode).
		First(&wo).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &wo, nil
}

func FindByID(db *gorm.DB, id types.ID) (*domain.WorkOrder, error) {
	wo := domain.WorkOrder{}
	if err := db.Where("id = ?", id).First(&wo).Error; err != nil {
		return nil, notFound(err)
	}
	return &wo, nil
}

// Lock loads the work order and holds its row lock until tx ends.
func Lock(tx *gorm.DB, id types.ID) (*domain.WorkOrder, error) {
	wo := domain.WorkOrder{}
	if err := persistence.ForUpdate(tx).Where("id = ?", id).First(&wo).Error; err != nil {
		return nil, notFound(err)
	}
	return &wo, nil
}

func Detail(db *gorm.DB, id types.ID) (*domain.WorkOrderDetail, error) {
	wo, err := FindByID(db, id)
	if err != nil {
		return nil, err
	}
	processes, err := Processes(db, id)
	if err != nil {
		return nil, err
	}
	return &domain.WorkOrderDetail{WorkOrder: *wo, Processes: processes}, nil
}

// Create inserts a work order and one process per name, numbered from step 1.
func Create(tx *gorm.DB, wo *domain.WorkOrder, processNames []string, actor string) (*domain.WorkOrderDetail, error) {
	if wo.PlannedQuantity <= 0 {
		return nil, bizerror.NewValidationError(bizerror.NegativeQuantity, "planned_quantity",
			"planned quantity of %s must be positive, got %d", wo.Key(), wo.PlannedQuantity)
	}
	if len(processNames) == 0 {
		return nil, bizerror.NewValidationError(bizerror.MissingRequired, "processes", "work order %s needs a process", wo.Key())
	}
	record := *wo
	record.ID = common.NextId(idWorker)
	if record.Status == "" {
		record.Status = domain.StatusPending
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}

	detail := &domain.WorkOrderDetail{WorkOrder: record}
	for i, name := range processNames {
		p := domain.WorkOrderProcess{
			ID:              common.NextId(idWorker),
			WorkOrderID:     record.ID,
			StepOrder:       i + 1,
			ProcessName:     strings.TrimSpace(name),
			PlannedQuantity: record.PlannedQuantity,
			Status:          domain.StatusPending,
		}
		if err := tx.Create(&p).Error; err != nil {
			return nil, err
		}
		detail.Processes = append(detail.Processes, p)
	}

	if _, err := event.CreateEvent(tx, domain.KindWorkOrder, record.ID, record.Key().String(), event.EventCategoryCreated,
		event.Collect(
			event.Changed("status", "", record.Status),
			event.Changed("order_source", "", record.OrderSource),
			event.Changed("planned_quantity", "", record.PlannedQuantity),
			event.Changed("processes", "", strings.Join(processNames, ",")),
		), actor); err != nil {
		return nil, err
	}
	*wo = record
	return detail, nil
}

// Processes lists processes of a work order by step order.
func Processes(db *gorm.DB, workOrderID types.ID) ([]domain.WorkOrderProcess, error) {
	var processes []domain.WorkOrderProcess
	if err := db.Where("work_order_id = ?", workOrderID).Order("step_order ASC").Find(&processes).Error; err != nil {
		return nil, err
	}
	return processes, nil
}

// EnsureProcess returns the process named name, appending it as an ad-hoc step after the last one when missing.
func EnsureProcess(tx *gorm.DB, wo *domain.WorkOrder, name string, actor string) (*domain.WorkOrderProcess, bool, error) {
	name = strings.TrimSpace(name)
	p := domain.WorkOrderProcess{}
	err := tx.Where("work_order_id = ? AND process_name = ?", wo.ID, name).Order("step_order ASC").First(&p).Error
	if err == nil {
		return &p, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	var last struct{ MaxStep int }
	if err := tx.Model(&domain.WorkOrderProcess{}).Select("COALESCE(MAX(step_order), 0) AS max_step").
		Where("work_order_id = ?", wo.ID).Scan(&last).Error; err != nil {
		return nil, false, err
	}
	p = domain.WorkOrderProcess{
		ID:              common.NextId(idWorker),
		WorkOrderID:     wo.ID,
		StepOrder:       last.MaxStep + 1,
		ProcessName:     name,
		AdHoc:           true,
		PlannedQuantity: wo.PlannedQuantity,
		Status:          domain.StatusPending,
	}
	if err := tx.Create(&p).Error; err != nil {
		return nil, false, err
	}
	if _, err := event.CreateEvent(tx, domain.KindWorkOrderProcess, p.ID, wo.Key().String()+"#"+name, event.EventCategoryCreated,
		event.Collect(event.Changed("step_order", "", p.StepOrder)), actor); err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// ListActive loads work orders that are neither cancelled nor archived, by id.
func ListActive(db *gorm.DB, afterID types.ID, limit int) ([]domain.WorkOrder, error) {
	var orders []domain.WorkOrder
	q := db.Where("status <> ? AND id > ?", domain.StatusCancelled, afterID).
		Where("NOT EXISTS (SELECT 1 FROM completed_work_orders c WHERE c.source_work_order_id = work_orders.id)").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// EachActive walks every active work order in pages.
func EachActive(db *gorm.DB, pageSize int, fn func(wo *domain.WorkOrder) error) error {
	var after types.ID
	for {
		page, err := ListActive(db, after, pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for i := range page {
			if err := fn(&page[i]); err != nil {
				return err
			}
		}
		after = page[len(page)-1].ID
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bizerror.ErrNotFound
	}
	return err
}
