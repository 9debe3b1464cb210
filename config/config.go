package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string `yaml:"env" env:"APP_ENV" env-default:"prod"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Timezone string `yaml:"timezone" env:"TIMEZONE" env-default:"Asia/Taipei"`

	HTTPServer `yaml:"http_server"`
	Database   `yaml:"database"`
	Scheduling `yaml:"scheduling"`
	Reporting  `yaml:"reporting"`
	ERP        `yaml:"erp"`
	Archive    `yaml:"archive"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"3s"`
}

type Database struct {
	DriverType  string        `yaml:"driver_type" env:"DB_DRIVER_TYPE" env-default:"mysql"`
	DriverArgs  string        `yaml:"driver_args" env:"DB_DRIVER_ARGS"`
	CallTimeout time.Duration `yaml:"call_timeout" env:"DB_CALL_TIMEOUT" env-default:"30s"`
	LogMode     bool          `yaml:"log_mode" env:"DB_LOG_MODE" env-default:"false"`
}

type Scheduling struct {
	SyncIntervalMinutes              int  `yaml:"sync_interval_minutes" env:"SYNC_INTERVAL_MINUTES" env-default:"1"`
	ConvertIntervalMinutes           int  `yaml:"convert_interval_minutes" env:"CONVERT_INTERVAL_MINUTES" env-default:"3"`
	ProgressIntervalMinutes          int  `yaml:"progress_interval_minutes" env:"PROGRESS_INTERVAL_MINUTES" env-default:"5"`
	ProcessCompletionIntervalMinutes int  `yaml:"process_completion_interval_minutes" env:"PROCESS_COMPLETION_INTERVAL_MINUTES" env-default:"15"`
	ReportCompletionIntervalMinutes  int  `yaml:"report_completion_interval_minutes" env:"REPORT_COMPLETION_INTERVAL_MINUTES" env-default:"15"`
	IndexRetryIntervalMinutes        int  `yaml:"index_retry_interval_minutes" env:"INDEX_RETRY_INTERVAL_MINUTES" env-default:"10"`
	DispatchQueueSize                int  `yaml:"dispatch_queue_size" env:"DISPATCH_QUEUE_SIZE" env-default:"256"`
	AutoTransferOnCompletion         bool `yaml:"auto_transfer_on_completion" env:"AUTO_TRANSFER_ON_COMPLETION" env-default:"true"`
}

type Reporting struct {
	NormalHoursCap       float64 `yaml:"normal_hours_cap" env:"NORMAL_HOURS_CAP" env-default:"8.0"`
	MaxReportHours       float64 `yaml:"max_report_hours" env:"MAX_REPORT_HOURS" env-default:"12"`
	PackagingProcessName string  `yaml:"packaging_process_name" env:"PACKAGING_PROCESS_NAME" env-default:"出貨包裝"`
	DefaultProcessName   string  `yaml:"default_process_name" env:"DEFAULT_PROCESS_NAME" env-default:"預設工序"`
	DefaultCompanyCode   string  `yaml:"default_company_code" env:"DEFAULT_COMPANY_CODE"`
	StrictProcessNames   bool    `yaml:"strict_process_names" env:"STRICT_PROCESS_NAMES" env-default:"false"`
	ProcessTemplatesFile string  `yaml:"process_templates_file" env:"PROCESS_TEMPLATES_FILE"`
}

type ERP struct {
	DateFloor        int           `yaml:"date_floor" env:"ERP_DATE_FLOOR" env-default:"20240101"`
	ExcludedFamilies []string      `yaml:"excluded_families" env:"ERP_EXCLUDED_FAMILIES" env-default:"340-,341-" env-separator:","`
	MinFetchInterval time.Duration `yaml:"min_fetch_interval" env:"ERP_MIN_FETCH_INTERVAL" env-default:"10s"`
	DefaultView      string        `yaml:"default_view" env:"ERP_DEFAULT_VIEW" env-default:"MKOrdMain"`
}

type Archive struct {
	PurgeReportsOnTransfer bool   `yaml:"purge_reports_on_transfer" env:"PURGE_REPORTS_ON_TRANSFER" env-default:"false"`
	ElasticsearchURL       string `yaml:"elasticsearch_url" env:"ELASTICSEARCH_URL"`
	IndexName              string `yaml:"index_name" env:"ARCHIVE_INDEX_NAME" env-default:"completed-work-orders"`
	AMQPURL                string `yaml:"amqp_url" env:"AMQP_URL"`
	AMQPExchange           string `yaml:"amqp_exchange" env:"AMQP_EXCHANGE" env-default:"mes.work_orders"`
}

// Load reads the optional YAML file at path, then lets the environment override it.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func Minutes(n int, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Minute
}
