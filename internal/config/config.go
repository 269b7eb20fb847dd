package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config 顶层配置。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Data     DataConfig     `mapstructure:"data"`
	Replay   ReplayConfig   `mapstructure:"replay"`
	Advisor  AdvisorConfig  `mapstructure:"advisor"`
	Profiles ProfilesConfig `mapstructure:"profiles"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type DataConfig struct {
	CacheDB    string `mapstructure:"cache_db"`
	ArchiveDir string `mapstructure:"archive_dir"`
}

type ReplayConfig struct {
	BaseIntervalMS    int `mapstructure:"base_interval_ms"`
	MinTickIntervalMS int `mapstructure:"min_tick_interval_ms"`
	MaxConcurrent     int `mapstructure:"max_concurrent"`
}

type AdvisorConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

type ProfilesConfig struct {
	Path string `mapstructure:"path"`
}

func (c ReplayConfig) BaseInterval() time.Duration {
	return time.Duration(c.BaseIntervalMS) * time.Millisecond
}

func (c ReplayConfig) MinTickInterval() time.Duration {
	return time.Duration(c.MinTickIntervalMS) * time.Millisecond
}

func (c AdvisorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Addr 返回监听地址。
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load 读取配置文件；环境变量（TAPESIM_ 前缀）可覆盖任意键。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TAPESIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8087)
	v.SetDefault("log.level", "info")
	v.SetDefault("data.cache_db", "data/ticks.db")
	v.SetDefault("data.archive_dir", "data/archive")
	v.SetDefault("replay.base_interval_ms", 1000)
	v.SetDefault("replay.min_tick_interval_ms", 10)
	v.SetDefault("replay.max_concurrent", 8)
	v.SetDefault("advisor.timeout_ms", 10000)
	v.SetDefault("profiles.path", "configs/profiles.yaml")
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port 非法: %d", cfg.Server.Port)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level 非法: %s", cfg.Log.Level)
	}
	if cfg.Replay.BaseIntervalMS <= 0 {
		return fmt.Errorf("replay.base_interval_ms 必须大于 0")
	}
	if cfg.Replay.MinTickIntervalMS < 0 {
		return fmt.Errorf("replay.min_tick_interval_ms 不能为负")
	}
	if cfg.Replay.MaxConcurrent <= 0 {
		return fmt.Errorf("replay.max_concurrent 必须大于 0")
	}
	if cfg.Advisor.Enabled && strings.TrimSpace(cfg.Advisor.Endpoint) == "" {
		return fmt.Errorf("advisor.enabled 时 endpoint 必填")
	}
	return nil
}
