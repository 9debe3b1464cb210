package completion

import (
	"context"
	"fmt"

	"shopfloor/common"
	"shopfloor/domain"
	"shopfloor/domain/workorder"
	"shopfloor/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

const DefaultPackagingProcess = "出貨包裝"

type Result struct {
	WorkOrderID       types.ID                `json:"workOrderId"`
	Key               domain.WorkOrderKey     `json:"key"`
	ProcessCompleted  bool                    `json:"processCompleted"`
	ReportCompleted   bool                    `json:"reportCompleted"`
	OverallCompleted  bool                    `json:"overallCompleted"`
	ChosenMethod      domain.CompletionMethod `json:"chosenMethod"`
	PackagingQuantity int64                   `json:"packagingQuantity"`
}

type SweepSummary struct {
	Checked   int `json:"checked"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// ParseMethod accepts process, report or both, an empty method means both.
func ParseMethod(s string) (domain.CompletionMethod, error) {
	switch m := domain.CompletionMethod(s); m {
	case domain.CompletionByProcess, domain.CompletionByReport, domain.CompletionByBoth:
		return m, nil
	case "":
		return domain.CompletionByBoth, nil
	}
	return "", fmt.Errorf("unknown completion method %q, expect process, report or both", s)
}

// Judge decides completion by process status (every process completed) and by report (packaging output reached plan).
type Judge struct {
	ds *persistence.DataSourceManager

	PackagingProcess string
}

func NewJudge(ds *persistence.DataSourceManager, packagingProcess string) *Judge {
	if packagingProcess == "" {
		packagingProcess = DefaultPackagingProcess
	}
	return &Judge{ds: ds, PackagingProcess: packagingProcess}
}

// ProcessCompleted holds when the work order has processes and all of them are completed.
func (j *Judge) ProcessCompleted(db *gorm.DB, wo *domain.WorkOrder) (bool, error) {
	processes, err := workorder.Processes(db, wo.ID)
	if err != nil {
		return false, err
	}
	if len(processes) == 0 {
		return false, nil
	}
	for _, p := range processes {
		if p.Status != domain.StatusCompleted {
			return false, nil
		}
	}
	return true, nil
}

// ReportCompleted holds when approved packaging output reaches the planned quantity.
func (j *Judge) ReportCompleted(db *gorm.DB, wo *domain.WorkOrder) (bool, int64, error) {
	var sum struct{ Total int64 }
	if err := db.Model(&domain.FillWork{}).Select("COALESCE(SUM(work_quantity), 0) AS total").
		Where("company_code = ? AND order_number = ? AND product_id = ? AND process_name = ? AND approval_status = ?",
			wo.CompanyCode, wo.OrderNumber, wo.ProductCode, j.PackagingProcess, domain.ApprovalApproved).
		Scan(&sum).Error; err != nil {
		return false, 0, err
	}
	return sum.Total >= wo.PlannedQuantity, sum.Total, nil
}

// Check runs the engines selected by method on one work order.
func (j *Judge) Check(ctx context.Context, workOrderID types.ID, method domain.CompletionMethod) (*Result, error) {
	var result *Result
	err := j.ds.Read(ctx, func(db *gorm.DB) error {
		wo, err := workorder.FindByID(db, workOrderID)
		if err != nil {
			return err
		}
		result, err = j.Evaluate(db, wo, method)
		return err
	})
	return result, err
}

func (j *Judge) CheckByKey(ctx context.Context, key domain.WorkOrderKey, method domain.CompletionMethod) (*Result, error) {
	var result *Result
	err := j.ds.Read(ctx, func(db *gorm.DB) error {
		wo, err := workorder.FindByKey(db, key)
		if err != nil {
			return err
		}
		result, err = j.Evaluate(db, wo, method)
		return err
	})
	return result, err
}

// Evaluate judges wo with db, which may be an open transaction.
func (j *Judge) Evaluate(db *gorm.DB, wo *domain.WorkOrder, method domain.CompletionMethod) (*Result, error) {
	if method == "" || method == domain.CompletionNone {
		method = domain.CompletionByBoth
	}
	r := &Result{WorkOrderID: wo.ID, Key: wo.Key()}
	var err error
	if method != domain.CompletionByReport {
		if r.ProcessCompleted, err = j.ProcessCompleted(db, wo); err != nil {
			return nil, err
		}
	}
	if method != domain.CompletionByProcess {
		if r.ReportCompleted, r.PackagingQuantity, err = j.ReportCompleted(db, wo); err != nil {
			return nil, err
		}
	}
	r.OverallCompleted = r.ProcessCompleted || r.ReportCompleted
	switch {
	case r.ProcessCompleted && r.ReportCompleted:
		r.ChosenMethod = domain.CompletionByBoth
	case r.ProcessCompleted:
		r.ChosenMethod = domain.CompletionByProcess
	case r.ReportCompleted:
		r.ChosenMethod = domain.CompletionByReport
	default:
		r.ChosenMethod = domain.CompletionNone
	}
	return r, nil
}

// Sweep checks every active, unarchived work order and hands completed ones to onComplete.
func (j *Judge) Sweep(ctx context.Context, method domain.CompletionMethod, onComplete func(ctx context.Context, r *Result) error) (SweepSummary, error) {
	summary := SweepSummary{}
	var ids []types.ID
	if err := j.ds.Read(ctx, func(db *gorm.DB) error {
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
		r, err := j.Check(ctx, id, method)
		if err != nil {
			common.EntityLogger(domain.KindWorkOrder, id.String()).Errorf("check completion failed: %v", err)
			summary.Failed++
			continue
		}
		if !r.OverallCompleted {
			continue
		}
		summary.Completed++
		if onComplete == nil {
			continue
		}
		if err := onComplete(ctx, r); err != nil {
			common.EntityLogger(domain.KindWorkOrder, r.Key.String()).Errorf("handle completed work order failed: %v", err)
			summary.Failed++
		}
	}
	if summary.Completed > 0 || summary.Failed > 0 {
		logrus.Infof("completion sweep (%s): checked %d, completed %d, failed %d", method, summary.Checked, summary.Completed, summary.Failed)
	}
	return summary, nil
}
