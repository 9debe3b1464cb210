package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"shopfloor/config"
	"shopfloor/domain"

	cron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job runs periodically, at most one run at a time. Ticks arriving during a run are dropped.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Tasks are the periodic operations of the service. A nil task is not scheduled.
type Tasks struct {
	SyncTenant        func(ctx context.Context, tenant config.Tenant) error
	ConvertOrders     func(ctx context.Context) error
	RecomputeProgress func(ctx context.Context) error
	CheckCompletion   func(ctx context.Context, method domain.CompletionMethod) error
	RetryIndex        func(ctx context.Context) error
}

// Plan lists the jobs of a snapshot: one ERP sync per enabled tenant, then the service wide sweeps.
func Plan(snapshot *config.Snapshot, tasks Tasks) []Job {
	cfg := snapshot.Config
	var jobs []Job
	if tasks.SyncTenant != nil {
		for _, t := range snapshot.Tenants {
			if !t.Enabled {
				continue
			}
			tenant := t
			interval := tenant.SyncInterval
			if interval <= 0 {
				interval = config.Minutes(cfg.SyncIntervalMinutes, 1)
			}
			jobs = append(jobs, Job{Name: "erp-sync:" + tenant.Code, Interval: interval,
				Run: func(ctx context.Context) error { return tasks.SyncTenant(ctx, tenant) }})
		}
	}
	if tasks.ConvertOrders != nil {
		jobs = append(jobs, Job{Name: "convert-orders", Interval: config.Minutes(cfg.ConvertIntervalMinutes, 3), Run: tasks.ConvertOrders})
	}
	if tasks.RecomputeProgress != nil {
		jobs = append(jobs, Job{Name: "recompute-progress", Interval: config.Minutes(cfg.ProgressIntervalMinutes, 5), Run: tasks.RecomputeProgress})
	}
	if tasks.CheckCompletion != nil {
		jobs = append(jobs,
			Job{Name: "process-completion", Interval: config.Minutes(cfg.ProcessCompletionIntervalMinutes, 15),
				Run: func(ctx context.Context) error { return tasks.CheckCompletion(ctx, domain.CompletionByProcess) }},
			Job{Name: "report-completion", Interval: config.Minutes(cfg.ReportCompletionIntervalMinutes, 15),
				Run: func(ctx context.Context) error { return tasks.CheckCompletion(ctx, domain.CompletionByReport) }},
		)
	}
	if tasks.RetryIndex != nil {
		jobs = append(jobs, Job{Name: "index-retry", Interval: config.Minutes(cfg.IndexRetryIntervalMinutes, 10), Run: tasks.RetryIndex})
	}
	return jobs
}

type entry struct {
	id       cron.EntryID
	interval time.Duration
}

// Scheduler keeps the planned jobs registered on a cron instance and re-plans them on reload.
type Scheduler struct {
	cron  *cron.Cron
	tasks Tasks

	ctx    context.Context
	cancel context.CancelFunc

	lock    sync.Mutex
	entries map[string]entry
	// one guard per job name, kept when the job is re-registered
	guards map[string]*sync.Mutex
}

func New(tasks Tasks) *Scheduler {
	logger := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		tasks:   tasks,
		ctx:     ctx,
		cancel:  cancel,
		entries: map[string]entry{},
		guards:  map[string]*sync.Mutex{},
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Reload registers jobs new in snapshot, drops jobs no longer planned and re-registers jobs whose interval changed.
func (s *Scheduler) Reload(snapshot *config.Snapshot) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	planned := map[string]bool{}
	for _, job := range Plan(snapshot, s.tasks) {
		planned[job.Name] = true
		if current, ok := s.entries[job.Name]; ok {
			if current.interval == job.Interval {
				continue
			}
			s.cron.Remove(current.id)
			delete(s.entries, job.Name)
		}
		id, err := s.cron.AddJob(fmt.Sprintf("@every %s", job.Interval), s.wrap(job))
		if err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
		s.entries[job.Name] = entry{id: id, interval: job.Interval}
		logrus.Infof("scheduled %s every %s", job.Name, job.Interval)
	}
	for name, current := range s.entries {
		if !planned[name] {
			s.cron.Remove(current.id)
			delete(s.entries, name)
			logrus.Infof("unscheduled %s", name)
		}
	}
	return nil
}

// wrap is called with s.lock held.
func (s *Scheduler) wrap(job Job) cron.Job {
	guard, ok := s.guards[job.Name]
	if !ok {
		guard = &sync.Mutex{}
		s.guards[job.Name] = guard
	}
	return cron.FuncJob(func() {
		if s.ctx.Err() != nil {
			return
		}
		if !guard.TryLock() {
			logrus.WithField("job", job.Name).Debug("previous run still in progress, tick skipped")
			return
		}
		defer guard.Unlock()
		startedAt := time.Now()
		if err := job.Run(s.ctx); err != nil {
			logrus.WithField("job", job.Name).Errorf("job failed after %s: %v", time.Since(startedAt).Round(time.Millisecond), err)
			return
		}
		logrus.WithField("job", job.Name).Debugf("job finished in %s", time.Since(startedAt).Round(time.Millisecond))
	})
}

// Jobs lists the names of the registered jobs with their intervals.
func (s *Scheduler) Jobs() map[string]time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	r := make(map[string]time.Duration, len(s.entries))
	for name, e := range s.entries {
		r[name] = e.interval
	}
	return r
}

func (s *Scheduler) JobNames() []string {
	jobs := s.Jobs()
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop cancels the context of running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	logrus.Info("scheduler stopped")
}

// cronLogger routes cron logs through logrus.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logrus.WithFields(fields(keysAndValues)).Debug("cron: ", msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logrus.WithFields(fields(keysAndValues)).WithError(err).Error("cron: ", msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
