package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"shopfloor/config"
	"shopfloor/domain"
	"shopfloor/scheduler"

	. "github.com/onsi/gomega"
)

func snapshotOf(tenants ...config.Tenant) *config.Snapshot {
	cfg := &config.Config{}
	cfg.SyncIntervalMinutes = 2
	cfg.ConvertIntervalMinutes = 3
	return config.NewSnapshot(cfg, tenants, nil, time.Now())
}

func allTasks() scheduler.Tasks {
	return scheduler.Tasks{
		SyncTenant:        func(ctx context.Context, tenant config.Tenant) error { return nil },
		ConvertOrders:     func(ctx context.Context) error { return nil },
		RecomputeProgress: func(ctx context.Context) error { return nil },
		CheckCompletion:   func(ctx context.Context, method domain.CompletionMethod) error { return nil },
		RetryIndex:        func(ctx context.Context) error { return nil },
	}
}

func TestPlan(t *testing.T) {
	RegisterTestingT(t)

	jobs := scheduler.Plan(snapshotOf(
		config.Tenant{Code: "A", Enabled: true},
		config.Tenant{Code: "B", Enabled: false},
		config.Tenant{Code: "C", Enabled: true, SyncInterval: 30 * time.Second},
	), allTasks())

	intervals := map[string]time.Duration{}
	for _, job := range jobs {
		intervals[job.Name] = job.Interval
	}
	Expect(intervals).To(Equal(map[string]time.Duration{
		"erp-sync:A":         2 * time.Minute,
		"erp-sync:C":         30 * time.Second,
		"convert-orders":     3 * time.Minute,
		"recompute-progress": 5 * time.Minute,
		"process-completion": 15 * time.Minute,
		"report-completion":  15 * time.Minute,
		"index-retry":        10 * time.Minute,
	}))

	Expect(scheduler.Plan(snapshotOf(config.Tenant{Code: "A", Enabled: true}), scheduler.Tasks{})).To(BeEmpty())
}

func TestReload(t *testing.T) {
	RegisterTestingT(t)
	s := scheduler.New(allTasks())
	defer s.Stop()

	Expect(s.Reload(snapshotOf(config.Tenant{Code: "A", Enabled: true}, config.Tenant{Code: "B", Enabled: true}))).To(Succeed())
	Expect(s.JobNames()).To(ContainElements("erp-sync:A", "erp-sync:B", "convert-orders"))

	Expect(s.Reload(snapshotOf(config.Tenant{Code: "A", Enabled: true, SyncInterval: time.Minute}))).To(Succeed())
	Expect(s.JobNames()).ToNot(ContainElement("erp-sync:B"))
	Expect(s.Jobs()["erp-sync:A"]).To(Equal(time.Minute))
}

func TestRunsWithoutOverlap(t *testing.T) {
	RegisterTestingT(t)

	var runs, running, overlapped int32
	tasks := scheduler.Tasks{SyncTenant: func(ctx context.Context, tenant config.Tenant) error {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		defer atomic.AddInt32(&running, -1)
		atomic.AddInt32(&runs, 1)
		select {
		case <-time.After(1500 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	}}
	s := scheduler.New(tasks)
	Expect(s.Reload(snapshotOf(config.Tenant{Code: "A", Enabled: true, SyncInterval: time.Second}))).To(Succeed())
	s.Start()

	Eventually(func() int32 { return atomic.LoadInt32(&runs) }, 5*time.Second).Should(BeNumerically(">=", 2))
	s.Stop()
	Expect(atomic.LoadInt32(&overlapped)).To(BeZero())
	Expect(atomic.LoadInt32(&running)).To(BeZero())
}

func TestReloadWithoutOverlap(t *testing.T) {
	RegisterTestingT(t)

	var runs, running, overlapped int32
	tasks := scheduler.Tasks{SyncTenant: func(ctx context.Context, tenant config.Tenant) error {
		if atomic.AddInt32(&running, 1) > 1 {
			atomic.StoreInt32(&overlapped, 1)
		}
		defer atomic.AddInt32(&running, -1)
		atomic.AddInt32(&runs, 1)
		select {
		case <-time.After(2500 * time.Millisecond):
		case <-ctx.Done():
		}
		return nil
	}}
	s := scheduler.New(tasks)
	Expect(s.Reload(snapshotOf(config.Tenant{Code: "A", Enabled: true, SyncInterval: time.Second}))).To(Succeed())
	s.Start()

	Eventually(func() int32 { return atomic.LoadInt32(&runs) }, 3*time.Second, 10*time.Millisecond).Should(BeNumerically(">=", 1))
	// the new entry ticks while the run of the old one is still in progress
	Expect(s.Reload(snapshotOf(config.Tenant{Code: "A", Enabled: true, SyncInterval: 2 * time.Second}))).To(Succeed())
	Expect(s.Jobs()["erp-sync:A"]).To(Equal(2 * time.Second))

	Consistently(func() int32 { return atomic.LoadInt32(&overlapped) }, 3*time.Second, 50*time.Millisecond).Should(BeZero())
	s.Stop()
	Expect(atomic.LoadInt32(&running)).To(BeZero())
}
