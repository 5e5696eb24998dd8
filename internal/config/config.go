package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Bank struct {
		SetID string `yaml:"set_id"`
		TTL   string `yaml:"ttl"`
	} `yaml:"bank"`
	Session struct {
		DefaultTimeLimit string `yaml:"default_time_limit"`
		ReconnectGrace   string `yaml:"reconnect_grace"`
		SettleDelay      string `yaml:"settle_delay"`
	} `yaml:"session"`
	Results struct {
		Retention string `yaml:"retention"`
	} `yaml:"results"`
	Cron struct {
		Reminder    string `yaml:"reminder"`
		WeeklyReset string `yaml:"weekly_reset"`
		Cleanup     string `yaml:"cleanup"`
	} `yaml:"cron"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
