package onsite_test

import (
	"context"
	"testing"
	"time"

	"shopfloor/bizerror"
	"shopfloor/dispatch"
	"shopfloor/domain"
	"shopfloor/domain/onsite"
	"shopfloor/domain/workorder"
	"shopfloor/testinfra"

	"github.com/juju/clock/testclock"
	. "github.com/onsi/gomega"
)

type recordingPoster struct {
	events []dispatch.WorkOrderEvent
}

func (p *recordingPoster) Post(ctx context.Context, e dispatch.WorkOrderEvent) error {
	p.events = append(p.events, e)
	return nil
}

func setup(t *testing.T) (*testinfra.TestDatabase, *onsite.Reporter, *recordingPoster, *testclock.Clock, *domain.WorkOrder) {
	testDatabase := testinfra.StartMigratedDatabase("onsite")
	wo := &domain.WorkOrder{CompanyCode: "A", OrderNumber: "331-1", ProductCode: "P-A", PlannedQuantity: 100,
		OrderSource: domain.OrderSourceMES}
	_, err := workorder.Create(testDatabase.DS.GormDB(context.Background()), wo, []string{"工序A"}, "tester")
	Expect(err).To(BeNil())

	poster := &recordingPoster{}
	clk := testclock.NewClock(time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC))
	reporter := onsite.NewReporter(testDatabase.DS, poster)
	reporter.Clock = clk
	return testDatabase, reporter, poster, clk, wo
}

func TestReport(t *testing.T) {
	RegisterTestingT(t)
	ctx := context.Background()

	t.Run("should follow the station state machine", func(t *testing.T) {
		testDatabase, reporter, poster, clk, wo := setup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		report := func(eventType string, qty int64) (*domain.OnsiteReport, error) {
			clk.Advance(10 * time.Minute)
			return reporter.Report(ctx, &onsite.Event{WorkOrderKey: wo.Key().String(), ProcessName: "工序A",
				EventType: eventType, WorkQuantity: qty, Operator: "O1"})
		}

		_, err := report("complete", 10)
		Expect(bizerror.IsState(err)).To(BeTrue())
		_, err = report("pause", 0)
		Expect(bizerror.IsState(err)).To(BeTrue())

		r, err := report("start", 0)
		Expect(err).To(BeNil())
		Expect(r.Instance).To(Equal(1))
		_, err = report("start", 0)
		Expect(bizerror.IsState(err)).To(BeTrue())
		_, err = report("pause", 0)
		Expect(err).To(BeNil())
		_, err = report("pause", 0)
		Expect(bizerror.IsState(err)).To(BeTrue())

		current, err := reporter.State(ctx, wo.ID, "工序A")
		Expect(err).To(BeNil())
		Expect(current.State).To(Equal("paused"))

		_, err = report("resume", 0)
		Expect(err).To(BeNil())
		_, err = report("complete", 60)
		Expect(err).To(BeNil())
		Expect(poster.events).To(HaveLen(1))
		Expect(poster.events[0].Action).To(Equal(dispatch.ActionOnsiteCompleted))
		Expect(poster.events[0].WorkOrderID).To(Equal(wo.ID))

		_, err = report("resume", 0)
		Expect(bizerror.IsState(err)).To(BeTrue())

		r, err = report("start", 0)
		Expect(err).To(BeNil())
		Expect(r.Instance).To(Equal(2))
		_, err = report("complete", 30)
		Expect(err).To(BeNil())

		sums, err := onsite.CompletedSums(testDatabase.DS.GormDB(ctx), wo.ID)
		Expect(err).To(BeNil())
		Expect(sums["工序A"]).To(Equal(onsite.Sums{Good: 90}))

		reports, err := onsite.Reports(testDatabase.DS.GormDB(ctx), wo.ID)
		Expect(err).To(BeNil())
		Expect(reports).To(HaveLen(6))
	})

	t.Run("should keep processes independent and append ad-hoc ones", func(t *testing.T) {
		testDatabase, reporter, _, _, wo := setup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		_, err := reporter.Report(ctx, &onsite.Event{WorkOrderID: wo.ID, ProcessName: "工序A", EventType: "start", Operator: "O1"})
		Expect(err).To(BeNil())
		_, err = reporter.Report(ctx, &onsite.Event{WorkOrderID: wo.ID, ProcessName: "出貨包裝", EventType: "start", Operator: "O2"})
		Expect(err).To(BeNil())

		processes, err := workorder.Processes(testDatabase.DS.GormDB(ctx), wo.ID)
		Expect(err).To(BeNil())
		Expect(processes).To(HaveLen(2))
		Expect(processes[1].AdHoc).To(BeTrue())
	})

	t.Run("should reject invalid events", func(t *testing.T) {
		testDatabase, reporter, _, _, wo := setup(t)
		defer testinfra.StopTestDatabase(testDatabase)

		_, err := reporter.Report(ctx, &onsite.Event{WorkOrderID: wo.ID, ProcessName: "工序A", EventType: "stop", Operator: "O1"})
		Expect(bizerror.IsValidation(err, bizerror.MissingRequired)).To(BeTrue())
		_, err = reporter.Report(ctx, &onsite.Event{WorkOrderID: wo.ID, ProcessName: "工序A", EventType: "complete",
			WorkQuantity: -1, Operator: "O1"})
		Expect(bizerror.IsValidation(err, bizerror.NegativeQuantity)).To(BeTrue())
		_, err = reporter.Report(ctx, &onsite.Event{WorkOrderKey: "A/none/P-A", ProcessName: "工序A", EventType: "start", Operator: "O1"})
		Expect(err).To(Equal(bizerror.ErrNotFound))

		_, err = reporter.Report(ctx, &onsite.Event{WorkOrderID: wo.ID, ProcessName: "工序A", EventType: "start", Operator: "O1"})
		Expect(err).To(BeNil())
		earlier := time.Date(2025, 1, 5, 7, 0, 0, 0, time.UTC)
		_, err = reporter.Report(ctx, &onsite.Event{WorkOrderID: wo.ID, ProcessName: "工序A", EventType: "pause", Operator: "O1",
			Ts: &earlier})
		Expect(bizerror.IsValidation(err, bizerror.InvalidTime)).To(BeTrue())

		Expect(testDatabase.DS.GormDB(ctx).Model(&domain.WorkOrder{}).Where("id = ?", wo.ID).
			Update("status", domain.StatusCancelled).Error).To(BeNil())
		_, err = reporter.Report(ctx, &onsite.Event{WorkOrderID: wo.ID, ProcessName: "工序A", EventType: "pause", Operator: "O1"})
		Expect(bizerror.IsState(err)).To(BeTrue())
	})
}
