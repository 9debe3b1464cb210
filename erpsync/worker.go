package erpsync

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"shopfloor/bizerror"
	"shopfloor/common"
	"shopfloor/config"
	"shopfloor/domain"
	"shopfloor/domain/companyorder"
	"shopfloor/persistence"

	"github.com/jinzhu/gorm"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
	PhaseWriting  Phase = "writing"
	PhaseError    Phase = "error"
)

type Options struct {
	Limit    int
	AutoMode bool
}

type TenantResult struct {
	Tenant   string `json:"tenant"`
	Status   Status `json:"status"`
	Fetched  int    `json:"fetched"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Skipped  int    `json:"skipped"`
	Invalid  int    `json:"invalid"`
	Err      error  `json:"-"`
	ErrorMsg string `json:"error,omitempty"`
}

type TenantState struct {
	Tenant     string        `json:"tenant"`
	Phase      Phase         `json:"phase"`
	LastRunAt  *time.Time    `json:"lastRunAt,omitempty"`
	LastResult *TenantResult `json:"lastResult,omitempty"`
}

// Worker replicates tenant ERP views into the company order store. Runs of one tenant never overlap.
type Worker struct {
	ds     *persistence.DataSourceManager
	source Source
	filter Filter

	MinFetchInterval time.Duration
	Concurrency      int
	Clock            clock.Clock

	lock     sync.Mutex
	running  map[string]bool
	states   map[string]*TenantState
	limiters map[string]*rate.Limiter
}

func NewWorker(ds *persistence.DataSourceManager, source Source, filter Filter) *Worker {
	return &Worker{
		ds:          ds,
		source:      source,
		filter:      filter,
		Concurrency: 4,
		Clock:       clock.WallClock,
		running:     map[string]bool{},
		states:      map[string]*TenantState{},
		limiters:    map[string]*rate.Limiter{},
	}
}

// SyncTenant runs one replication of tenant, all rows are written in a single transaction.
func (w *Worker) SyncTenant(ctx context.Context, tenant config.Tenant, opts Options) TenantResult {
	result := TenantResult{Tenant: tenant.Code}
	if !tenant.Enabled {
		result.Status = StatusSkipped
		return result
	}
	if !w.acquire(tenant.Code) {
		logrus.Infof("erp sync of tenant %s is still running, skip", tenant.Code)
		result.Status = StatusSkipped
		return result
	}
	defer w.release(tenant.Code)

	w.setPhase(tenant.Code, PhaseFetching, nil)
	rows, err := w.fetch(ctx, tenant, opts.Limit)
	if err != nil {
		return w.fail(tenant.Code, result, err)
	}
	result.Fetched = len(rows)

	w.setPhase(tenant.Code, PhaseWriting, nil)
	now := w.Clock.Now()
	err = w.ds.Transaction(ctx, func(tx *gorm.DB) error {
		result.Created, result.Updated, result.Skipped, result.Invalid = 0, 0, 0, 0
		for i := range rows {
			if !w.filter.Accept(&rows[i]) {
				result.Skipped++
				continue
			}
			order, err := toCompanyOrder(tenant.Code, &rows[i])
			if err != nil {
				common.EntityLogger(domain.KindCompanyOrder, tenant.Code+"/"+rows[i].MKOrdNO).Warn(err)
				result.Invalid++
				continue
			}
			r, err := companyorder.Upsert(tx, order, opts.AutoMode, now)
			if err != nil {
				return err
			}
			if r == companyorder.Created {
				result.Created++
			} else {
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return w.fail(tenant.Code, result, err)
	}

	result.Status = StatusSuccess
	logrus.Infof("erp sync of tenant %s: fetched %d, created %d, updated %d, skipped %d, invalid %d",
		tenant.Code, result.Fetched, result.Created, result.Updated, result.Skipped, result.Invalid)
	w.setPhase(tenant.Code, PhaseIdle, &result)
	return result
}

// SyncAll runs every tenant concurrently. A failing tenant never affects the others.
func (w *Worker) SyncAll(ctx context.Context, tenants []config.Tenant, opts Options) []TenantResult {
	results := make([]TenantResult, len(tenants))
	g := errgroup.Group{}
	if w.Concurrency > 0 {
		g.SetLimit(w.Concurrency)
	}
	for i := range tenants {
		i := i
		g.Go(func() error {
			results[i] = w.SyncTenant(ctx, tenants[i], opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// States returns the phase of every tenant seen so far, ordered by tenant code.
func (w *Worker) States() []TenantState {
	w.lock.Lock()
	defer w.lock.Unlock()
	states := make([]TenantState, 0, len(w.states))
	for _, s := range w.states {
		states = append(states, *s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Tenant < states[j].Tenant })
	return states
}

// ExitCode is 0 when every tenant succeeded or was skipped, 2 when some tenant failed.
func ExitCode(results []TenantResult) int {
	for _, r := range results {
		if r.Status == StatusError {
			return 2
		}
	}
	return 0
}

func (w *Worker) fetch(ctx context.Context, tenant config.Tenant, limit int) ([]ErpOrderRow, error) {
	if err := w.limiter(tenant.Code).Wait(ctx); err != nil {
		return nil, err
	}
	rows, err := w.source.Fetch(ctx, tenant, limit)
	if err != nil {
		var sourceErr *bizerror.SourceError
		if !errors.As(err, &sourceErr) {
			err = &bizerror.SourceError{Tenant: tenant.Code, Cause: err}
		}
		return nil, err
	}
	return rows, nil
}

func (w *Worker) fail(tenant string, result TenantResult, err error) TenantResult {
	result.Status = StatusError
	result.Err = err
	result.ErrorMsg = err.Error()
	logrus.WithField("tenant", tenant).Errorf("erp sync failed: %v", err)
	w.setPhase(tenant, PhaseError, &result)
	return result
}

func (w *Worker) acquire(tenant string) bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.running[tenant] {
		return false
	}
	w.running[tenant] = true
	return true
}

func (w *Worker) release(tenant string) {
	w.lock.Lock()
	defer w.lock.Unlock()
	delete(w.running, tenant)
}

func (w *Worker) setPhase(tenant string, phase Phase, result *TenantResult) {
	w.lock.Lock()
	defer w.lock.Unlock()
	s, ok := w.states[tenant]
	if !ok {
		s = &TenantState{Tenant: tenant, Phase: PhaseIdle}
		w.states[tenant] = s
	}
	s.Phase = phase
	if result != nil {
		now := w.Clock.Now()
		r := *result
		s.LastRunAt = &now
		s.LastResult = &r
	}
}

func (w *Worker) limiter(tenant string) *rate.Limiter {
	w.lock.Lock()
	defer w.lock.Unlock()
	l, ok := w.limiters[tenant]
	if !ok {
		limit := rate.Inf
		if w.MinFetchInterval > 0 {
			limit = rate.Every(w.MinFetchInterval)
		}
		l = rate.NewLimiter(limit, 1)
		w.limiters[tenant] = l
	}
	return l
}
