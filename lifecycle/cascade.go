package lifecycle

import (
	"context"

	"shopfloor/common"
	"shopfloor/config"
	"shopfloor/dispatch"
	"shopfloor/domain"
	"shopfloor/domain/completion"
	"shopfloor/domain/progress"
	"shopfloor/domain/transfer"
)

// Cascade brings a work order up to date after a report: progress, then completion, then transfer.
type Cascade struct {
	progress *progress.Updater
	judge    *completion.Judge
	transfer *transfer.Service
	snapshot func() *config.Snapshot

	Method domain.CompletionMethod
}

var _ dispatch.Handler = (*Cascade)(nil)

func NewCascade(progress *progress.Updater, judge *completion.Judge, transfer *transfer.Service, snapshot func() *config.Snapshot) *Cascade {
	return &Cascade{progress: progress, judge: judge, transfer: transfer, snapshot: snapshot, Method: domain.CompletionByBoth}
}

func (c *Cascade) Handle(ctx context.Context, e dispatch.WorkOrderEvent) error {
	outcome, err := c.progress.Recompute(ctx, e.WorkOrderID)
	if err != nil {
		return err
	}
	if outcome.Status == domain.StatusCancelled {
		return nil
	}
	result, err := c.judge.Check(ctx, e.WorkOrderID, c.Method)
	if err != nil {
		return err
	}
	if !result.OverallCompleted {
		return nil
	}
	return c.Complete(ctx, result)
}

// Complete transfers a completed work order when auto transfer is on. It serves as the completion sweep callback.
func (c *Cascade) Complete(ctx context.Context, result *completion.Result) error {
	logger := common.EntityLogger(domain.KindWorkOrder, result.Key.String())
	if !c.AutoTransfer() {
		logger.Debugf("completed by %s, auto transfer is off", result.ChosenMethod)
		return nil
	}
	transferred, err := c.transfer.Transfer(ctx, result.WorkOrderID, c.Method)
	if err != nil {
		return err
	}
	if !transferred.AlreadyTransferred {
		logger.Infof("completed by %s and archived", transferred.Method)
	}
	return nil
}

func (c *Cascade) AutoTransfer() bool {
	if c.snapshot == nil {
		return true
	}
	s := c.snapshot()
	return s == nil || s.Config == nil || s.Config.Scheduling.AutoTransferOnCompletion
}
