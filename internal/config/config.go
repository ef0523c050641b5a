package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Segments  SegmentsConfig  `mapstructure:"segments"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
	BindAddress string `mapstructure:"bind_address"`
}

// RulesConfig defines rule evaluation settings
type RulesConfig struct {
	Timezone      string `mapstructure:"timezone"`
	DefaultStatus string `mapstructure:"default_status"` // status for segments with no tariff class and no overrides
	HorizonDays   int    `mapstructure:"horizon_days"`
	MinParking    string `mapstructure:"min_parking"` // boundary closer than this classifies as limited
}

// BudgetConfig defines the daily free-minute allowance
type BudgetConfig struct {
	DailyCapMinutes int `mapstructure:"daily_cap_minutes"`
	AnchorHour      int `mapstructure:"anchor_hour"`
}

// SchedulerConfig defines the auto-stop sweep
type SchedulerConfig struct {
	Period string `mapstructure:"period"`
}

// SegmentsConfig defines the segment snapshot cache
type SegmentsConfig struct {
	CacheSize int    `mapstructure:"cache_size"`
	CacheTTL  string `mapstructure:"cache_ttl"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // "redis" or "sqlite"
	Path  string      `mapstructure:"path"` // sqlite database file
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("KERBD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.bind_address", "0.0.0.0")

	// Rules defaults
	v.SetDefault("rules.timezone", "UTC")
	v.SetDefault("rules.default_status", "free")
	v.SetDefault("rules.horizon_days", 7)
	v.SetDefault("rules.min_parking", "10m")

	// Budget defaults
	v.SetDefault("budget.daily_cap_minutes", 120)
	v.SetDefault("budget.anchor_hour", 8)

	// Scheduler defaults
	v.SetDefault("scheduler.period", "30s")

	// Segments cache defaults
	v.SetDefault("segments.cache_size", 1024)
	v.SetDefault("segments.cache_ttl", "5m")

	// Storage defaults
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.path", "/var/lib/kerbd/kerbd.db")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.APIPort <= 0 || cfg.Server.APIPort > 65535 {
		return fmt.Errorf("invalid API port: %d", cfg.Server.APIPort)
	}
	if cfg.Server.MetricsPort <= 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	if _, err := time.LoadLocation(cfg.Rules.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Rules.Timezone, err)
	}
	switch cfg.Rules.DefaultStatus {
	case "free", "paid":
	default:
		return fmt.Errorf("invalid default_status %q (want free or paid)", cfg.Rules.DefaultStatus)
	}
	if cfg.Rules.HorizonDays <= 0 {
		return fmt.Errorf("horizon_days must be positive")
	}
	if _, err := time.ParseDuration(cfg.Rules.MinParking); err != nil {
		return fmt.Errorf("invalid min_parking: %w", err)
	}

	if cfg.Budget.DailyCapMinutes <= 0 {
		return fmt.Errorf("daily_cap_minutes must be positive")
	}
	if cfg.Budget.AnchorHour < 0 || cfg.Budget.AnchorHour > 23 {
		return fmt.Errorf("invalid anchor_hour: %d", cfg.Budget.AnchorHour)
	}

	if _, err := time.ParseDuration(cfg.Scheduler.Period); err != nil {
		return fmt.Errorf("invalid scheduler period: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Segments.CacheTTL); err != nil {
		return fmt.Errorf("invalid segments cache_ttl: %w", err)
	}

	switch cfg.Storage.Type {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for sqlite")
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
	default:
		return fmt.Errorf("unknown storage type %q (want redis or sqlite)", cfg.Storage.Type)
	}

	return nil
}
