package config

import (
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"shopfloor/bizerror"
	"shopfloor/common"

	"github.com/go-sql-driver/mysql"
)

const (
	tenantEnvPrefix = "ERP_"
	tenantEnvHost   = "_HOST"
)

// Tenant is the connection and scheduling setting of one company ERP.
type Tenant struct {
	Code          string
	Name          string
	Driver        string
	Host          string
	Port          int
	DB            string
	User          string
	Password      string
	View          string
	OrderPrefixes []string
	SyncInterval  time.Duration
	Enabled       bool
}

// DSN builds the driver arguments of the tenant ERP database.
func (t *Tenant) DSN() string {
	if t.Driver != "mysql" {
		return t.DB
	}
	cfg := mysql.NewConfig()
	cfg.User = t.User
	cfg.Passwd = t.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	cfg.DBName = t.DB
	cfg.ParseTime = true
	cfg.Timeout = 5 * time.Second
	cfg.ReadTimeout = 30 * time.Second
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// LoadTenants scans environ for ERP_{TENANT}_HOST entries. A tenant with missing or malformed settings is excluded
// and reported as a ConfigError, other tenants are unaffected.
func LoadTenants(environ []string, cfg *Config) ([]Tenant, []error) {
	env := map[string]string{}
	for _, kv := range environ {
		if idx := strings.Index(kv, "="); idx > 0 {
			env[kv[:idx]] = kv[idx+1:]
		}
	}

	var codes []string
	for key := range env {
		if strings.HasPrefix(key, tenantEnvPrefix) && strings.HasSuffix(key, tenantEnvHost) {
			code := strings.TrimSuffix(strings.TrimPrefix(key, tenantEnvPrefix), tenantEnvHost)
			if code != "" {
				codes = append(codes, code)
			}
		}
	}
	sort.Strings(codes)

	var tenants []Tenant
	var problems []error
	for _, code := range codes {
		t, err := parseTenant(code, env, cfg)
		if err != nil {
			problems = append(problems, err)
			continue
		}
		tenants = append(tenants, *t)
	}
	return tenants, problems
}

func parseTenant(code string, env map[string]string, cfg *Config) (*Tenant, error) {
	get := func(field string) string {
		return strings.TrimSpace(env[tenantEnvPrefix+code+"_"+field])
	}

	t := &Tenant{
		Code:          code,
		Name:          get("NAME"),
		Driver:        get("DRIVER"),
		Host:          get("HOST"),
		DB:            get("DB"),
		User:          get("USER"),
		Password:      env[tenantEnvPrefix+code+"_PASSWORD"],
		View:          get("VIEW"),
		OrderPrefixes: common.SplitList(get("ORDER_PREFIXES")),
		Port:          3306,
		SyncInterval:  Minutes(cfg.SyncIntervalMinutes, 1),
		Enabled:       true,
	}
	if t.Driver == "" {
		t.Driver = "mysql"
	}
	if t.View == "" {
		t.View = cfg.DefaultView
	}

	for _, field := range []string{"HOST", "DB", "USER"} {
		if get(field) == "" {
			return nil, &bizerror.ConfigError{Tenant: code, Field: tenantEnvPrefix + code + "_" + field, Message: "is required"}
		}
	}
	if v := get("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, &bizerror.ConfigError{Tenant: code, Field: tenantEnvPrefix + code + "_PORT", Message: "invalid port " + v}
		}
		t.Port = port
	}
	if v := get("SYNC_INTERVAL_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, &bizerror.ConfigError{Tenant: code, Field: tenantEnvPrefix + code + "_SYNC_INTERVAL_MINUTES", Message: "invalid interval " + v}
		}
		t.SyncInterval = time.Duration(n) * time.Minute
	}
	if v := get("ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &bizerror.ConfigError{Tenant: code, Field: tenantEnvPrefix + code + "_ENABLED", Message: "invalid boolean " + v}
		}
		t.Enabled = enabled
	}
	if !isIdentifier(t.View) {
		return nil, &bizerror.ConfigError{Tenant: code, Field: tenantEnvPrefix + code + "_VIEW", Message: "invalid view name " + t.View}
	}
	return t, nil
}

// view names are interpolated into SQL, only plain identifiers are accepted
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
