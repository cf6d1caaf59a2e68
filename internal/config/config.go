package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the analysis service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Clients  ClientsConfig  `yaml:"clients"`
	Logging  LoggingConfig  `yaml:"logging"`
	Rules    RulesConfig    `yaml:"rules"`
	Cache    CacheConfig    `yaml:"cache"`
	Engine   EngineConfig   `yaml:"engine"`
	Analysis map[string]any `yaml:"analysis"`
}

// ServerConfig controls gRPC listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// ClientsConfig groups the collaborators the service pulls run data from.
type ClientsConfig struct {
	Loader LoaderClientConfig `yaml:"loader"`
}

// LoaderClientConfig configures access to the sample-loading and settings APIs.
type LoaderClientConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	SamplesPath  string        `yaml:"samplesPath"`
	SettingsPath string        `yaml:"settingsPath"`
	Timeout      time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSON       bool   `yaml:"json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// RulesConfig controls rule-pack loading for event recommendations.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls Redis/Valkey-backed caching of settings and results.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	SettingsTTL  time.Duration `yaml:"settingsTTL"`
	ResultTTL    time.Duration `yaml:"resultTTL"`
}

// EngineConfig tunes how the service drives the analysis engine.
type EngineConfig struct {
	Parallelism int `yaml:"parallelism"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("MIRADOR_PERF_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50061",
			MetricsAddress:  ":2113",
			GracefulTimeout: 10 * time.Second,
		},
		Clients: ClientsConfig{
			Loader: LoaderClientConfig{
				SamplesPath:  "/api/v1/runs/samples",
				SettingsPath: "/api/v1/projects/settings",
				Timeout:      10 * time.Second,
			},
		},
		Logging: LoggingConfig{Level: "info", JSON: false, MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 14},
		Rules:   RulesConfig{Path: "configs/rules/default.yaml"},
		Cache: CacheConfig{
			Enabled:      false,
			SettingsTTL:  5 * time.Minute,
			ResultTTL:    30 * time.Minute,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Engine: EngineConfig{Parallelism: 1},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MIRADOR_PERF_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("MIRADOR_PERF_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("MIRADOR_PERF_LOADER_BASE_URL"); v != "" {
		cfg.Clients.Loader.BaseURL = v
	}
	if v := os.Getenv("MIRADOR_PERF_LOADER_SAMPLES_PATH"); v != "" {
		cfg.Clients.Loader.SamplesPath = v
	}
	if v := os.Getenv("MIRADOR_PERF_LOADER_SETTINGS_PATH"); v != "" {
		cfg.Clients.Loader.SettingsPath = v
	}
	if v := os.Getenv("MIRADOR_PERF_LOADER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Clients.Loader.Timeout = d
		}
	}
	if v := os.Getenv("MIRADOR_PERF_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MIRADOR_PERF_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MIRADOR_PERF_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("MIRADOR_PERF_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("MIRADOR_PERF_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("MIRADOR_PERF_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("MIRADOR_PERF_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("MIRADOR_PERF_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("MIRADOR_PERF_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("MIRADOR_PERF_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("MIRADOR_PERF_CACHE_MAX_RETRIES"); v != "" {
		if retry, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxRetries = retry
		}
	}
	if v := os.Getenv("MIRADOR_PERF_CACHE_SETTINGS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SettingsTTL = d
		}
	}
	if v := os.Getenv("MIRADOR_PERF_CACHE_RESULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ResultTTL = d
		}
	}
	if v := os.Getenv("MIRADOR_PERF_ENGINE_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.Parallelism = n
		}
	}
}
