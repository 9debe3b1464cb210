package companyorder

import (
	"errors"
	"strconv"
	"time"

	"shopfloor/common"
	"shopfloor/domain"
	"shopfloor/event"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
)

var idWorker = common.NewIDWorker()

const syncActor = "erp-sync"

// UpsertResult tells whether the row was inserted or refreshed.
type UpsertResult int

const (
	Created UpsertResult = iota
	Updated
)

// Upsert writes one ERP row keyed by (company_code, erp_order_no, product_id). Payload fields are always refreshed,
// is_converted is preserved unless autoMode asks to derive it from the existence of a matching work order.
func Upsert(tx *gorm.DB, order *domain.CompanyOrder, autoMode bool, now time.Time) (UpsertResult, error) {
	existing := domain.CompanyOrder{}
	err := tx.Where("company_code = ? AND erp_order_no = ? AND product_id = ?",
		order.CompanyCode, order.ErpOrderNo, order.ProductID).First(&existing).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	converted := existing.IsConverted
	if autoMode {
		if converted, err = WorkOrderExists(tx, order.CompanyCode, order.ErpOrderNo); err != nil {
			return 0, err
		}
	}

	if !found {
		record := *order
		record.ID = common.NextId(idWorker)
		record.IsConverted = converted
		record.LastSyncTime = now
		if err := tx.Create(&record).Error; err != nil {
			return 0, err
		}
		*order = record
		if _, err := event.CreateEvent(tx, domain.KindCompanyOrder, record.ID, Key(&record), event.EventCategoryCreated,
			event.Collect(event.Changed("planned_qty", "", record.PlannedQty), event.Changed("is_converted", "", record.IsConverted)),
			syncActor); err != nil {
			return 0, err
		}
		return Created, nil
	}

	changes := map[string]interface{}{
		"planned_qty":        order.PlannedQty,
		"order_date":         order.OrderDate,
		"planned_start_date": order.PlannedStartDate,
		"planned_ship_date":  order.PlannedShipDate,
		"completion_status":  order.CompletionStatus,
		"bill_status":        order.BillStatus,
		"is_converted":       converted,
		"last_sync_time":     now,
	}
	if err := tx.Model(&domain.CompanyOrder{}).Where("id = ?", existing.ID).Updates(changes).Error; err != nil {
		return 0, err
	}
	if existing.IsConverted != converted {
		if _, err := event.CreateEvent(tx, domain.KindCompanyOrder, existing.ID, Key(&existing), event.EventCategoryPropertyUpdated,
			event.Collect(event.Changed("is_converted", existing.IsConverted, converted)), syncActor); err != nil {
			return 0, err
		}
	}
	*order = existing
	order.IsConverted = converted
	return Updated, nil
}

// WorkOrderExists reports whether the company already runs a work order with the order number.
func WorkOrderExists(db *gorm.DB, companyCode, orderNumber string) (bool, error) {
	var n int
	if err := db.Model(&domain.WorkOrder{}).Where("company_code = ? AND order_number = ?", companyCode, orderNumber).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListConvertible loads orders awaiting conversion with an id above afterID, oldest first.
func ListConvertible(db *gorm.DB, afterID types.ID, limit int) ([]domain.CompanyOrder, error) {
	var orders []domain.CompanyOrder
	q := db.Where("is_converted = ? AND completion_status = ? AND bill_status <> ? AND id > ?", false, 2, 1, afterID).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// MarkConverted flips is_converted, the row must still be unconverted.
func MarkConverted(tx *gorm.DB, order *domain.CompanyOrder, actor string) error {
	q := tx.Model(&domain.CompanyOrder{}).Where("id = ? AND is_converted = ?", order.ID, false).Update("is_converted", true)
	if q.Error != nil {
		return q.Error
	}
	if q.RowsAffected != 1 {
		return errors.New("expected affected row is 1, but actual is " + strconv.FormatInt(q.RowsAffected, 10))
	}
	_, err := event.CreateEvent(tx, domain.KindCompanyOrder, order.ID, Key(order), event.EventCategoryPropertyUpdated,
		event.Collect(event.Changed("is_converted", false, true)), actor)
	return err
}

func FindByKey(db *gorm.DB, companyCode, erpOrderNo, productID string) (*domain.CompanyOrder, error) {
	order := domain.CompanyOrder{}
	if err := db.Where("company_code = ? AND erp_order_no = ? AND product_id = ?", companyCode, erpOrderNo, productID).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func Key(o *domain.CompanyOrder) string {
	return o.CompanyCode + "/" + o.ErpOrderNo + "/" + o.ProductID
}

func Count(db *gorm.DB) (int, error) {
	var n int
	err := db.Model(&domain.CompanyOrder{}).Count(&n).Error
	return n, err
}
