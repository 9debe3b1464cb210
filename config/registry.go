package config

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Snapshot is an immutable view of the service and tenant settings.
type Snapshot struct {
	Config   *Config
	Tenants  []Tenant
	Problems []error
	LoadedAt time.Time

	byCode map[string]int
}

func NewSnapshot(cfg *Config, tenants []Tenant, problems []error, loadedAt time.Time) *Snapshot {
	s := &Snapshot{Config: cfg, Tenants: tenants, Problems: problems, LoadedAt: loadedAt, byCode: map[string]int{}}
	for i, t := range tenants {
		s.byCode[strings.ToUpper(t.Code)] = i
	}
	return s
}

func (s *Snapshot) Tenant(code string) (Tenant, bool) {
	if idx, ok := s.byCode[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return s.Tenants[idx], true
	}
	return Tenant{}, false
}

func (s *Snapshot) TenantByName(name string) (Tenant, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Tenant{}, false
	}
	for _, t := range s.Tenants {
		if t.Name == name || strings.EqualFold(t.Code, name) {
			return t, true
		}
	}
	return Tenant{}, false
}

// TenantByOrderPrefix picks the tenant with the longest order prefix matching orderNumber.
func (s *Snapshot) TenantByOrderPrefix(orderNumber string) (Tenant, bool) {
	best, bestLen := -1, 0
	for i, t := range s.Tenants {
		for _, prefix := range t.OrderPrefixes {
			if strings.HasPrefix(orderNumber, prefix) && len(prefix) > bestLen {
				best, bestLen = i, len(prefix)
			}
		}
	}
	if best < 0 {
		return Tenant{}, false
	}
	return s.Tenants[best], true
}

type Loader func() (*Snapshot, error)

// Registry holds the current snapshot. Readers never observe a partially loaded snapshot.
type Registry struct {
	current atomic.Value
	loader  Loader
}

func NewRegistry(loader Loader) (*Registry, error) {
	snapshot, err := loader()
	if err != nil {
		return nil, err
	}
	r := &Registry{loader: loader}
	r.current.Store(snapshot)
	return r, nil
}

func (r *Registry) Current() *Snapshot {
	return r.current.Load().(*Snapshot)
}

// Reload swaps in a freshly loaded snapshot. On failure the previous snapshot stays in effect.
func (r *Registry) Reload() (*Snapshot, error) {
	snapshot, err := r.loader()
	if err != nil {
		logrus.Errorf("reload config failed, keep the snapshot loaded at %s: %v", r.Current().LoadedAt.Format(time.RFC3339), err)
		return nil, err
	}
	r.current.Store(snapshot)
	logrus.Infof("config reloaded, %d tenants", len(snapshot.Tenants))
	return snapshot, nil
}

// EnvLoader reads the config file at path and the process environment.
func EnvLoader(path string, environ func() []string, now func() time.Time) Loader {
	return func() (*Snapshot, error) {
		cfg, err := Load(path)
		if err != nil {
			return nil, err
		}
		tenants, problems := LoadTenants(environ(), cfg)
		for _, p := range problems {
			logrus.Error(p)
		}
		return NewSnapshot(cfg, tenants, problems, now()), nil
	}
}
