package fillwork

import (
	"context"
	"errors"
	"fmt"

	"shopfloor/allocation"
	"shopfloor/bizerror"
	"shopfloor/common"
	"shopfloor/domain"
	"shopfloor/event"

	"github.com/jinzhu/gorm"
)

// SplitRow is the share of one operator in a split submission.
type SplitRow struct {
	Operator   string  `json:"operator"`
	StartTime  string  `json:"startTime"`
	EndTime    string  `json:"endTime"`
	HasBreak   bool    `json:"hasBreak"`
	BreakStart string  `json:"breakStart"`
	BreakEnd   string  `json:"breakEnd"`
	Equipment  string  `json:"equipment"`
	Efficiency float64 `json:"efficiency"`
}

// SplitSubmission reports a total output produced by several operators, to be allocated over the rows.
type SplitSubmission struct {
	Submission
	Rows                []SplitRow                `json:"rows"`
	TotalQuantity       int64                     `json:"totalQuantity"`
	TotalDefectQuantity int64                     `json:"totalDefectQuantity"`
	Policy              string                    `json:"policy"`
	Hybrid              *allocation.HybridWeights `json:"hybrid,omitempty"`
}

type SplitResult struct {
	Allocation domain.AllocationLog `json:"allocation"`
	FillWorks  []domain.FillWork    `json:"fillWorks"`
}

// SubmitSplit validates every row, allocates the totals by the chosen policy and stores all rows together.
func (in *Ingestor) SubmitSplit(ctx context.Context, split *SplitSubmission, actor string) (*SplitResult, error) {
	if len(split.Rows) == 0 {
		return nil, bizerror.NewValidationError(bizerror.MissingRequired, "rows", "at least one row is required")
	}
	if split.TotalQuantity < 0 || split.TotalDefectQuantity < 0 {
		return nil, bizerror.NewValidationError(bizerror.NegativeQuantity, "total_quantity", "total quantities must not be negative")
	}
	policy, err := allocation.ParsePolicy(split.Policy)
	if err != nil {
		return nil, bizerror.NewValidationError(bizerror.MissingRequired, "policy", "%v", err)
	}

	snapshot := in.snapshot()
	now := in.Clock.Now()
	submissions := make([]Submission, len(split.Rows))
	measured := make([]*Measured, len(split.Rows))
	for i, row := range split.Rows {
		s := split.Submission
		s.Operator, s.StartTime, s.EndTime = row.Operator, row.StartTime, row.EndTime
		s.HasBreak, s.BreakStart, s.BreakEnd = row.HasBreak, row.BreakStart, row.BreakEnd
		if row.Equipment != "" {
			s.Equipment = row.Equipment
		}
		s.WorkQuantity, s.DefectQuantity = 0, 0
		m, err := Validate(&s, now, snapshot.Config.Location(), limitsOf(snapshot.Config))
		if err != nil {
			var ve *bizerror.ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("rows[%d].%s", i, ve.Field)
			}
			return nil, err
		}
		submissions[i], measured[i] = s, m
	}
	code, err := resolveCompany(snapshot, &split.Submission)
	if err != nil {
		return nil, err
	}

	result := &SplitResult{}
	err = in.ds.Transaction(ctx, func(tx *gorm.DB) error {
		result.FillWorks = nil
		first := submissions[0]
		first.WorkQuantity = split.TotalQuantity
		wo, err := in.targetWorkOrder(tx, code, &first)
		if err != nil {
			return err
		}
		if err := in.resolveProcess(tx, snapshot.Config, wo, split.ProcessName, actor); err != nil {
			return err
		}

		cfg := allocation.Config{Policy: policy}
		if split.Hybrid != nil {
			cfg.Hybrid = *split.Hybrid
		}
		if in.catalog != nil {
			if cfg.Complexity, err = in.catalog.Complexity(tx, code); err != nil {
				return err
			}
		}
		rows := make([]allocation.Row, len(split.Rows))
		for i, row := range split.Rows {
			historical, average, err := historicalEfficiency(tx, row.Operator, split.ProcessName)
			if err != nil {
				return err
			}
			rows[i] = allocation.Row{
				WorkHours:            measured[i].WorkHours + measured[i].OvertimeHours,
				DurationHours:        measured[i].Duration.Hours(),
				BreakHours:           measured[i].BreakHours,
				ProcessName:          split.ProcessName,
				Efficiency:           row.Efficiency,
				HistoricalEfficiency: historical,
				OperatorAverage:      average,
			}
		}
		allocated, err := allocation.Allocate(rows, split.TotalQuantity, cfg)
		if err != nil {
			return err
		}
		defects := allocation.Distribute(split.TotalDefectQuantity, allocated.Weights)

		log := domain.AllocationLog{
			ID:            common.NextId(idWorker),
			WorkOrderID:   wo.ID,
			ProcessName:   split.ProcessName,
			Policy:        string(allocated.Policy),
			TotalQuantity: split.TotalQuantity,
			CreatedBy:     actor,
		}
		for i := range submissions {
			submissions[i].WorkQuantity, submissions[i].DefectQuantity = allocated.Quantities[i], defects[i]
			fw := newFillWork(code, &submissions[i], measured[i])
			fw.ID = common.NextId(idWorker)
			fw.AllocationID = log.ID
			if err := tx.Create(fw).Error; err != nil {
				return err
			}
			if _, err := event.CreateEvent(tx, domain.KindFillWork, fw.ID, fw.TargetKey().String(), event.EventCategoryCreated,
				event.Collect(
					event.Changed("work_quantity", "", fw.WorkQuantity),
					event.Changed("allocation_id", "", fw.AllocationID),
				), actor); err != nil {
				return err
			}
			log.Rows = append(log.Rows, domain.AllocationLogItem{FillWorkID: fw.ID, Operator: fw.Operator,
				Weight: allocated.Weights[i], Quantity: fw.WorkQuantity})
			result.FillWorks = append(result.FillWorks, *fw)
		}
		if err := tx.Create(&log).Error; err != nil {
			return err
		}
		if _, err := event.CreateEvent(tx, domain.KindAllocation, log.ID, wo.Key().String(), event.EventCategoryCreated,
			event.Collect(event.Changed("policy", "", log.Policy), event.Changed("total_quantity", "", log.TotalQuantity)),
			actor); err != nil {
			return err
		}
		result.Allocation = log
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// historicalEfficiency is the output per hour of the operator's approved reports, on the process and overall.
func historicalEfficiency(tx *gorm.DB, operator, processName string) (float64, float64, error) {
	type sums struct {
		Quantity float64
		Hours    float64
	}
	rate := func(q *gorm.DB) (float64, error) {
		s := sums{}
		if err := q.Model(&domain.FillWork{}).
			Select("COALESCE(SUM(work_quantity), 0) AS quantity, COALESCE(SUM(work_hours_calculated + overtime_hours_calculated), 0) AS hours").
			Where("operator = ? AND approval_status = ?", operator, domain.ApprovalApproved).Scan(&s).Error; err != nil {
			return 0, err
		}
		if s.Hours <= 0 {
			return 0, nil
		}
		return s.Quantity / s.Hours, nil
	}
	onProcess, err := rate(tx.Where("process_name = ?", processName))
	if err != nil {
		return 0, 0, err
	}
	overall, err := rate(tx)
	return onProcess, overall, err
}
