package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"task-planner/internal/recurrence"
)

// Config keeps runtime settings for the bot and the CLI.
type Config struct {
	TelegramToken     string        `yaml:"telegram_token"`
	DatabaseURL       string        `yaml:"database_url"`
	ReportInterval    time.Duration `yaml:"-"`
	DefaultTimezone   string        `yaml:"default_timezone"`
	GenerationWindow  int           `yaml:"generation_window"`
	GenerationHorizon time.Duration `yaml:"-"`
	SweepTime         string        `yaml:"sweep_time"`
	SweepRate         float64       `yaml:"sweep_rate"`
}

// fileConfig mirrors Config for the YAML file; durations are given in
// hours and days there, as in the environment.
type fileConfig struct {
	Config                `yaml:",inline"`
	ReportIntervalHours   int `yaml:"report_interval_hours"`
	GenerationHorizonDays int `yaml:"generation_horizon_days"`
}

// Load reads CONFIG_FILE (if set) and then the environment, which wins.
// The token is not checked here: only the bot needs it.
func Load() (Config, error) {
	cfg := Config{}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)

	if _, err := recurrence.LoadLocation(cfg.DefaultTimezone); err != nil {
		return cfg, fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}
	if cfg.GenerationWindow < 1 {
		return cfg, fmt.Errorf("GENERATION_WINDOW must be positive, got %d", cfg.GenerationWindow)
	}
	if _, _, err := ParseClock(cfg.SweepTime); err != nil {
		return cfg, fmt.Errorf("SWEEP_TIME: %w", err)
	}

	return cfg, nil
}

// Window is the generation window the recurring service plans with.
func (c Config) Window() recurrence.Window {
	return recurrence.Window{Count: c.GenerationWindow, Horizon: c.GenerationHorizon}
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg := fc.Config
	if fc.ReportIntervalHours > 0 {
		cfg.ReportInterval = time.Duration(fc.ReportIntervalHours) * time.Hour
	}
	if fc.GenerationHorizonDays > 0 {
		cfg.GenerationHorizon = time.Duration(fc.GenerationHorizonDays) * 24 * time.Hour
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := env("TELEGRAM_TOKEN"); v != "" {
		cfg.TelegramToken = v
	}
	if v := env("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := env("REPORT_INTERVAL_HOURS"); v != "" {
		if d := parseInterval(v); d > 0 {
			cfg.ReportInterval = d
		}
	}
	if v := env("DEFAULT_TIMEZONE"); v != "" {
		cfg.DefaultTimezone = v
	}
	if v := env("GENERATION_WINDOW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GENERATION_WINDOW: %w", err)
		}
		cfg.GenerationWindow = n
	}
	if v := env("GENERATION_HORIZON_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return fmt.Errorf("GENERATION_HORIZON_DAYS: invalid value %q", v)
		}
		cfg.GenerationHorizon = time.Duration(days) * 24 * time.Hour
	}
	if v := env("SWEEP_TIME"); v != "" {
		cfg.SweepTime = v
	}
	if v := env("SWEEP_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SWEEP_RATE: %w", err)
		}
		cfg.SweepRate = rate
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "task_planner.db"
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	if cfg.GenerationWindow == 0 {
		cfg.GenerationWindow = recurrence.DefaultWindowCount
	}
	if cfg.SweepTime == "" {
		cfg.SweepTime = "03:00"
	}
	if cfg.SweepRate == 0 {
		cfg.SweepRate = 20
	}
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseInterval(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

// ParseClock validates an HH:MM string.
func ParseClock(timeStr string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(timeStr), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", timeStr)
	}
	return hour, minute, nil
}
