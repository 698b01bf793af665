// Package config loads gateway configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// DATABASE_URL is optional. When empty the gateway runs on in-memory
	// consent and audit stores, which is only acceptable for development.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	// MAPPING_RULES_PATH points at a YAML rule set overriding the built-in
	// defaults. MAPPING_RULES_REFRESH > 0 re-reads the file on that
	// interval; in-flight transformations keep the snapshot they started
	// with.
	MappingRulesPath    string        `mapstructure:"MAPPING_RULES_PATH"`
	MappingRulesRefresh time.Duration `mapstructure:"MAPPING_RULES_REFRESH"`

	AuthMode   string `mapstructure:"AUTH_MODE"` // "jwt" or "dev"
	AuthSecret string `mapstructure:"AUTH_SECRET"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ConsentTimeout time.Duration `mapstructure:"CONSENT_TIMEOUT"`
	AuditTimeout   time.Duration `mapstructure:"AUDIT_TIMEOUT"`
	CacheTTL       time.Duration `mapstructure:"CACHE_TTL"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("AUTH_MODE", "")
	v.SetDefault("MAPPING_RULES_REFRESH", "0")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("CONSENT_TIMEOUT", "2s")
	v.SetDefault("AUDIT_TIMEOUT", "2s")
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind explicitly so Unmarshal sees plain env vars too.
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"MAPPING_RULES_PATH", "MAPPING_RULES_REFRESH", "AUTH_MODE", "AUTH_SECRET",
		"REQUEST_TIMEOUT", "CONSENT_TIMEOUT", "AUDIT_TIMEOUT", "CACHE_TTL",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		_ = v.BindEnv(key)
	}

	// A missing .env file is fine; the environment alone may be complete.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ResolvedAuthMode returns the effective auth mode. Development defaults
// to header-based identity; everything else requires signed tokens.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "dev"
	}
	return "jwt"
}

// Validate checks that the configuration is safe to run with.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case "dev":
		if !c.IsDev() {
			return fmt.Errorf("config: AUTH_MODE=dev is only permitted when ENV=development")
		}
	case "jwt":
		if c.AuthSecret == "" {
			return fmt.Errorf("config: AUTH_SECRET is required when AUTH_MODE is \"jwt\"")
		}
	default:
		return fmt.Errorf("config: AUTH_MODE must be \"jwt\" or \"dev\", got %q", mode)
	}

	if !c.IsDev() && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required outside development; in-memory stores lose consent and audit data on restart")
	}
	if c.ConsentTimeout <= 0 || c.AuditTimeout <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("config: CACHE_TTL must not be negative")
	}
	if c.MappingRulesRefresh < 0 {
		return fmt.Errorf("config: MAPPING_RULES_REFRESH must not be negative")
	}
	if c.MappingRulesRefresh > 0 && c.MappingRulesPath == "" {
		return fmt.Errorf("config: MAPPING_RULES_REFRESH requires MAPPING_RULES_PATH")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: rate limit values must be positive")
	}
	return nil
}
