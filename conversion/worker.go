package conversion

import (
	"context"
	"errors"
	"time"

	"shopfloor/bizerror"
	"shopfloor/common"
	"shopfloor/domain"
	"shopfloor/domain/companyorder"
	"shopfloor/domain/workorder"
	"shopfloor/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
)

const (
	conversionActor    = "order-conversion"
	DefaultProcessName = "預設工序"
	DefaultBatchSize   = 500
)

type Summary struct {
	Converted      int `json:"converted"`
	AlreadyPresent int `json:"alreadyPresent"`
	Invalid        int `json:"invalid"`
	Failed         int `json:"failed"`
}

// Worker turns unconverted company orders into work orders with their process route.
type Worker struct {
	ds *persistence.DataSourceManager

	Templates      Templates
	DefaultProcess string
	Location       *time.Location
	BatchSize      int
	Clock          clock.Clock
}

func NewWorker(ds *persistence.DataSourceManager) *Worker {
	return &Worker{ds: ds, DefaultProcess: DefaultProcessName, Location: time.Local, BatchSize: DefaultBatchSize,
		Clock: clock.WallClock}
}

// Run pages through the convertible orders once, each order in its own transaction.
// Invalid orders stay unconverted and are paged past.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	summary := Summary{}
	seen := 0
	var afterID types.ID
	for {
		var orders []domain.CompanyOrder
		err := w.ds.Read(ctx, func(db *gorm.DB) error {
			var err error
			orders, err = companyorder.ListConvertible(db, afterID, w.BatchSize)
			return err
		})
		if err != nil {
			return summary, err
		}
		for i := range orders {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			w.convertOne(ctx, &orders[i], &summary)
		}
		seen += len(orders)
		if w.BatchSize <= 0 || len(orders) < w.BatchSize {
			break
		}
		afterID = orders[len(orders)-1].ID
	}
	if seen > 0 {
		logrus.Infof("order conversion: converted %d, already present %d, invalid %d, failed %d",
			summary.Converted, summary.AlreadyPresent, summary.Invalid, summary.Failed)
	}
	return summary, nil
}

func (w *Worker) convertOne(ctx context.Context, order *domain.CompanyOrder, summary *Summary) {
	var created bool
	err := w.ds.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = w.convert(tx, order)
		return err
	})
	log := common.EntityLogger(domain.KindCompanyOrder, companyorder.Key(order))
	var validationErr *bizerror.ValidationError
	switch {
	case errors.As(err, &validationErr):
		log.Warnf("skip company order: %v", err)
		summary.Invalid++
	case err != nil:
		log.Errorf("convert company order failed: %v", err)
		summary.Failed++
	case created:
		summary.Converted++
	default:
		summary.AlreadyPresent++
	}
}

func (w *Worker) convert(tx *gorm.DB, order *domain.CompanyOrder) (bool, error) {
	key := domain.WorkOrderKey{CompanyCode: order.CompanyCode, OrderNumber: order.ErpOrderNo, ProductCode: order.ProductID}
	_, err := workorder.FindByKey(tx, key)
	if err == nil {
		return false, companyorder.MarkConverted(tx, order, conversionActor)
	}
	if err != bizerror.ErrNotFound {
		return false, err
	}

	today := common.DateOf(w.Clock.Now().In(w.location()))
	start := w.date(order.PlannedStartDate, today)
	end := w.date(order.PlannedShipDate, today)
	wo := &domain.WorkOrder{
		CompanyCode:      order.CompanyCode,
		OrderNumber:      order.ErpOrderNo,
		ProductCode:      order.ProductID,
		PlannedQuantity:  order.PlannedQty,
		Status:           domain.StatusPending,
		OrderSource:      domain.OrderSourceERPCompanyOrder,
		PlannedStartDate: &start,
		PlannedEndDate:   &end,
	}
	processes := w.Templates.Route(order.CompanyCode, order.ErpOrderNo, order.ProductID)
	if len(processes) == 0 {
		processes = []string{w.defaultProcess()}
	}
	if _, err := workorder.Create(tx, wo, processes, conversionActor); err != nil {
		return false, err
	}
	return true, companyorder.MarkConverted(tx, order, conversionActor)
}

func (w *Worker) date(s string, fallback time.Time) time.Time {
	if t, ok := common.ParseLenientDate(s, w.location()); ok {
		return t
	}
	return fallback
}

func (w *Worker) location() *time.Location {
	if w.Location == nil {
		return time.Local
	}
	return w.Location
}

func (w *Worker) defaultProcess() string {
	if w.DefaultProcess == "" {
		return DefaultProcessName
	}
	return w.DefaultProcess
}
