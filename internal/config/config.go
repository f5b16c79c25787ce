package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Sources    SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Crawl      CrawlConfig      `yaml:"crawl" mapstructure:"crawl"`
	History    HistoryConfig    `yaml:"history" mapstructure:"history"`
	Schedule   ScheduleConfig   `yaml:"schedule" mapstructure:"schedule"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourcesConfig holds the B3 endpoints and HTTP client settings.
type SourcesConfig struct {
	ListCompaniesURL     string  `yaml:"list_companies_url" mapstructure:"list_companies_url"`
	CompanyDetailsURL    string  `yaml:"company_details_url" mapstructure:"company_details_url"`
	SplitSubscriptionURL string  `yaml:"split_subscription_url" mapstructure:"split_subscription_url"`
	DividendsURL         string  `yaml:"dividends_url" mapstructure:"dividends_url"`
	HistoryBaseURL       string  `yaml:"history_base_url" mapstructure:"history_base_url"`
	UserAgent            string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs          int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinBodyBytes         int     `yaml:"min_body_bytes" mapstructure:"min_body_bytes"`
	RatePerSec           float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	HistoryRatePerSec    float64 `yaml:"history_rate_per_sec" mapstructure:"history_rate_per_sec"`
	FTPUser              string  `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword          string  `yaml:"ftp_password" mapstructure:"ftp_password"`
}

// CrawlConfig configures the reference-data crawl.
type CrawlConfig struct {
	MaxParallelism   int             `yaml:"max_parallelism" mapstructure:"max_parallelism"`
	UnitTimeoutSecs  int             `yaml:"unit_timeout_secs" mapstructure:"unit_timeout_secs"`
	Companies        []int           `yaml:"companies" mapstructure:"companies"`
	UpdatePolicy     string          `yaml:"update_policy" mapstructure:"update_policy"`
	PageSize         int             `yaml:"page_size" mapstructure:"page_size"`
	DividendPageSize int             `yaml:"dividend_page_size" mapstructure:"dividend_page_size"`
	Language         string          `yaml:"language" mapstructure:"language"`
	Ancillary        AncillaryConfig `yaml:"ancillary" mapstructure:"ancillary"`
}

// AncillaryConfig controls split and dividend fetches.
type AncillaryConfig struct {
	Mode           string   `yaml:"mode" mapstructure:"mode"`
	Tickers        []string `yaml:"tickers" mapstructure:"tickers"`
	StaleAfterDays int      `yaml:"stale_after_days" mapstructure:"stale_after_days"`
	MaxFetches     int      `yaml:"max_fetches" mapstructure:"max_fetches"`
}

// HistoryConfig configures the price history pipeline. Start and End are
// YYYY-MM-DD; empty Start resumes after the newest stored quote and empty End
// means today.
type HistoryConfig struct {
	MaxParallelism  int    `yaml:"max_parallelism" mapstructure:"max_parallelism"`
	UnitTimeoutSecs int    `yaml:"unit_timeout_secs" mapstructure:"unit_timeout_secs"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	Start           string `yaml:"start" mapstructure:"start"`
	End             string `yaml:"end" mapstructure:"end"`
	SkipWeekends    bool   `yaml:"skip_weekends" mapstructure:"skip_weekends"`
	UpdatePolicy    string `yaml:"update_policy" mapstructure:"update_policy"`
	TempDir         string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// ScheduleConfig holds cron specs for the schedule command. An empty spec
// disables that job.
type ScheduleConfig struct {
	Crawl    string `yaml:"crawl" mapstructure:"crawl"`
	History  string `yaml:"history" mapstructure:"history"`
	Timezone string `yaml:"timezone" mapstructure:"timezone"`

	// RunOnStart runs every scheduled job once before waiting for the first tick.
	RunOnStart bool `yaml:"run_on_start" mapstructure:"run_on_start"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures run-log health checks in the serve command.
type MonitoringConfig struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`

	// StaleAfterHours alerts when a job has not completed within this window.
	StaleAfterHours int `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
}

// LogConfig configures logging. When File is set, logs are also written
// there and rotated.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKETDATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.stale_after_hours", 48)
	v.SetDefault("sources.list_companies_url", "https://sistemaswebb3-listados.b3.com.br/listedCompaniesProxy/CompanyCall/GetInitialCompanies")
	v.SetDefault("sources.company_details_url", "https://sistemaswebb3-listados.b3.com.br/listedCompaniesProxy/CompanyCall/GetDetail")
	v.SetDefault("sources.split_subscription_url", "https://sistemaswebb3-listados.b3.com.br/listedCompaniesProxy/CompanyCall/GetListedSupplementCompany")
	v.SetDefault("sources.dividends_url", "https://sistemaswebb3-listados.b3.com.br/listedCompaniesProxy/CompanyCall/GetListedCashDividends")
	v.SetDefault("sources.history_base_url", "https://bvmf.bmfbovespa.com.br/InstDados/SerHist/COTAHIST_")
	v.SetDefault("sources.user_agent", "marketdata-cli/1.0")
	v.SetDefault("sources.timeout_secs", 60)
	v.SetDefault("sources.min_body_bytes", 10)
	v.SetDefault("sources.rate_per_sec", 20)
	v.SetDefault("sources.history_rate_per_sec", 5)
	v.SetDefault("sources.ftp_user", "")
	v.SetDefault("sources.ftp_password", "")
	v.SetDefault("crawl.max_parallelism", 10)
	v.SetDefault("crawl.unit_timeout_secs", 30)
	v.SetDefault("crawl.companies", []int{})
	v.SetDefault("crawl.update_policy", "skip")
	v.SetDefault("crawl.page_size", 120)
	v.SetDefault("crawl.dividend_page_size", 20)
	v.SetDefault("crawl.language", "pt-br")
	v.SetDefault("crawl.ancillary.mode", "always")
	v.SetDefault("crawl.ancillary.tickers", []string{})
	v.SetDefault("crawl.ancillary.stale_after_days", 30)
	v.SetDefault("crawl.ancillary.max_fetches", 0)
	v.SetDefault("history.max_parallelism", 10)
	v.SetDefault("history.unit_timeout_secs", 300)
	v.SetDefault("history.bucket", "day")
	v.SetDefault("history.start", "")
	v.SetDefault("history.end", "")
	v.SetDefault("history.skip_weekends", true)
	v.SetDefault("history.update_policy", "skip")
	v.SetDefault("history.temp_dir", os.TempDir())
	v.SetDefault("schedule.crawl", "0 20 * * 1-5")
	v.SetDefault("schedule.history", "30 21 * * 1-5")
	v.SetDefault("schedule.timezone", "America/Sao_Paulo")
	v.SetDefault("schedule.run_on_start", false)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger. With a log file configured
// the console output is teed into a rotating file in the same encoding.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	var opts []zap.Option
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		var enc zapcore.Encoder
		if cfg.Format == "console" {
			enc = zapcore.NewConsoleEncoder(zapCfg.EncoderConfig)
		} else {
			enc = zapcore.NewJSONEncoder(zapCfg.EncoderConfig)
		}
		fileCore := zapcore.NewCore(enc, zapcore.AddSync(rotator), zapCfg.Level)
		opts = append(opts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
