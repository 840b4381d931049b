// Package config содержит логику чтения конфигурации сервиса заказов поставщикам.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"
)

const (
	defaultRunAddress  = "localhost:8080"
	defaultLogLevel    = "info"
	defaultTimezone    = "Local"
	defaultLocale      = "en"
	defaultMaxRetries  = 10
	defaultCORSOrigins = "http://localhost:5173"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress         string `env:"RUN_ADDRESS"`
	DatabaseURI        string `env:"DATABASE_URI"`
	DirectoryAddress   string `env:"DIRECTORY_ADDRESS"`
	LogLevel           string `env:"LOG_LEVEL"`
	Timezone           string `env:"TIMEZONE"`
	Locale             string `env:"LOCALE"`
	AuthSecret         string `env:"AUTH_SECRET"`
	LedgerMaxRetries   int    `env:"LEDGER_MAX_RETRIES"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI; in-memory storage when empty")
	flag.StringVar(&cfg.DirectoryAddress, "r", "", "provider directory address")
	flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")
	flag.StringVar(&cfg.Timezone, "tz", defaultTimezone, "IANA timezone for calendar days")
	flag.StringVar(&cfg.Locale, "locale", defaultLocale, "locale for supplier name ordering")
	flag.StringVar(&cfg.AuthSecret, "s", "", "session cookie signing secret")
	flag.IntVar(&cfg.LedgerMaxRetries, "retries", defaultMaxRetries, "max attempts of a ledger transaction")
	flag.StringVar(&cfg.CORSAllowedOrigins, "cors", defaultCORSOrigins, "comma separated CORS origins")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.DirectoryAddress != "" {
		cfg.DirectoryAddress = envCfg.DirectoryAddress
	}
	if envCfg.LogLevel != "" {
		cfg.LogLevel = envCfg.LogLevel
	}
	if envCfg.Timezone != "" {
		cfg.Timezone = envCfg.Timezone
	}
	if envCfg.Locale != "" {
		cfg.Locale = envCfg.Locale
	}
	if envCfg.AuthSecret != "" {
		cfg.AuthSecret = envCfg.AuthSecret
	}
	if envCfg.LedgerMaxRetries != 0 {
		cfg.LedgerMaxRetries = envCfg.LedgerMaxRetries
	}
	if envCfg.CORSAllowedOrigins != "" {
		cfg.CORSAllowedOrigins = envCfg.CORSAllowedOrigins
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.LedgerMaxRetries <= 0 {
		return nil, fmt.Errorf("ledger max retries must be positive, got %d", cfg.LedgerMaxRetries)
	}

	return cfg, nil
}

// Location возвращает часовой пояс календаря.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Language возвращает язык сортировки имён поставщиков.
func (c *Config) Language() (language.Tag, error) {
	tag, err := language.Parse(c.Locale)
	if err != nil {
		return language.Und, fmt.Errorf("parse locale %q: %w", c.Locale, err)
	}
	return tag, nil
}

// AllowedOrigins возвращает список разрешённых CORS-источников.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
