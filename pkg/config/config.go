package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Probe     ProbeConfig     `yaml:"probe"`
	Batch     BatchConfig     `yaml:"batch"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Proxy     ProxyConfig     `yaml:"proxy"`
	Retention RetentionConfig `yaml:"retention"`
	Logger    LoggerConfig    `yaml:"logger"`

	Notification NotificationConfig `yaml:"notification"`
}

// ServerConfig HTTP server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"` // debug, release
	APIKey string `yaml:"api_key"` // empty disables auth on control routes
}

// MySQLConfig MySQL configuration. Disabled means the service runs
// in-memory only and the persistence layer degrades to a no-op.
type MySQLConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// RedisConfig Redis configuration, used for the post-scan work queue
// and the distributed cleanup lock. Optional.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ProbeConfig receiver probing configuration
type ProbeConfig struct {
	KiwiTimeout      int    `yaml:"kiwi_timeout"`      // seconds, per fetch
	OpenWebRXTimeout int    `yaml:"openwebrx_timeout"` // seconds, per fetch
	WebSDRTimeout    int    `yaml:"websdr_timeout"`    // seconds, per fetch
	CacheTTLMinutes  int    `yaml:"cache_ttl_minutes"` // result cache TTL
	UserAgent        string `yaml:"user_agent"`
}

// BatchConfig batch precheck configuration
type BatchConfig struct {
	WaveSize      int `yaml:"wave_size"`       // probes in flight per wave
	WaveDelayMs   int `yaml:"wave_delay_ms"`   // pacing between waves
	JobTTLMinutes int `yaml:"job_ttl_minutes"` // unreferenced job expiry
	AdhocLimit    int `yaml:"adhoc_limit"`     // process-wide ad-hoc checks in flight
	AdhocBatchMax int `yaml:"adhoc_batch_max"` // max URLs per /check/batch call
}

// RefreshConfig auto-refresh scheduler configuration
type RefreshConfig struct {
	IntervalMinutes      int `yaml:"interval_minutes"`       // full-fleet rescan interval
	WatchIntervalSeconds int `yaml:"watch_interval_seconds"` // completion watcher poll interval
}

// ProxyConfig outbound proxy pool configuration
type ProxyConfig struct {
	Enabled        bool   `yaml:"enabled"`
	FeedURL        string `yaml:"feed_url"`
	RefreshMinutes int    `yaml:"refresh_minutes"`
	FeedTimeout    int    `yaml:"feed_timeout"` // seconds
}

// RetentionConfig history retention configuration
type RetentionConfig struct {
	HistoryDays           int `yaml:"history_days"`             // purge rows older than this
	PurgeMinIntervalHours int `yaml:"purge_min_interval_hours"` // opportunistic purge gate
}

// NotificationConfig outbound notification configuration. An empty
// webhook URL disables notifications.
type NotificationConfig struct {
	FeishuWebhookURL string `yaml:"feishu_webhook_url"`
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	applyDefaults(&cfg)
	GlobalConfig = &cfg
	return nil
}

// Default returns a config populated with defaults only, used by tests
// and by components constructed without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Probe.KiwiTimeout <= 0 {
		cfg.Probe.KiwiTimeout = 8
	}
	if cfg.Probe.OpenWebRXTimeout <= 0 {
		cfg.Probe.OpenWebRXTimeout = 10
	}
	if cfg.Probe.WebSDRTimeout <= 0 {
		cfg.Probe.WebSDRTimeout = 6
	}
	if cfg.Probe.CacheTTLMinutes <= 0 {
		cfg.Probe.CacheTTLMinutes = 15
	}
	if cfg.Probe.UserAgent == "" {
		cfg.Probe.UserAgent = "sdrwatch/1.0"
	}
	if cfg.Batch.WaveSize <= 0 {
		cfg.Batch.WaveSize = 15
	}
	if cfg.Batch.WaveDelayMs <= 0 {
		cfg.Batch.WaveDelayMs = 500
	}
	if cfg.Batch.JobTTLMinutes <= 0 {
		cfg.Batch.JobTTLMinutes = 30
	}
	if cfg.Batch.AdhocLimit <= 0 {
		cfg.Batch.AdhocLimit = 10
	}
	if cfg.Batch.AdhocBatchMax <= 0 {
		cfg.Batch.AdhocBatchMax = 10
	}
	if cfg.Refresh.IntervalMinutes <= 0 {
		cfg.Refresh.IntervalMinutes = 30
	}
	if cfg.Refresh.WatchIntervalSeconds <= 0 {
		cfg.Refresh.WatchIntervalSeconds = 10
	}
	if cfg.Proxy.RefreshMinutes <= 0 {
		cfg.Proxy.RefreshMinutes = 5
	}
	if cfg.Proxy.FeedTimeout <= 0 {
		cfg.Proxy.FeedTimeout = 20
	}
	if cfg.Retention.HistoryDays <= 0 {
		cfg.Retention.HistoryDays = 30
	}
	if cfg.Retention.PurgeMinIntervalHours <= 0 {
		cfg.Retention.PurgeMinIntervalHours = 6
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Output == "" {
		cfg.Logger.Output = "console"
	}
}

// Timeout returns the per-fetch timeout for the given receiver type.
func (c *ProbeConfig) Timeout(receiverType string) time.Duration {
	switch receiverType {
	case "openwebrx":
		return time.Duration(c.OpenWebRXTimeout) * time.Second
	case "websdr":
		return time.Duration(c.WebSDRTimeout) * time.Second
	default:
		return time.Duration(c.KiwiTimeout) * time.Second
	}
}
