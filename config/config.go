// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/leave"
	"github.com/warp/payroll-engine/payroll"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Leave     LeaveConfig
	Payroll   PayrollConfig
	Scheduler SchedulerConfig
}

type AppConfig struct {
	Port        int
	Env         string
	LogLevel    string
	CORSOrigins []string
}

// DatabaseConfig selects the store. Driver is "sqlite", "postgres" or "memory".
type DatabaseConfig struct {
	Driver string
	Path   string
	URL    string
}

// LeaveConfig holds annual entitlements.
type LeaveConfig struct {
	CasualPerYear int
	SickPerYear   int
	EarnedPerYear int
	// FiscalYearStartMonth is 1 for calendar-year entitlements.
	FiscalYearStartMonth int
}

type PayrollConfig struct {
	BasicRatio      decimal.Decimal
	HRARatio        decimal.Decimal
	FuelAllowance   decimal.Decimal
	PFMode          string
	PFRate          decimal.Decimal
	PFFixedAmount   decimal.Decimal
	ProfessionalTax decimal.Decimal
}

// SchedulerConfig drives the month-close job.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

// Load reads configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() (*Config, error) {
	var (
		cfg Config
		err error
	)

	if cfg.App.Port, err = getEnvInt("APP_PORT", 8080); err != nil {
		return nil, err
	}
	cfg.App.Env = getEnv("APP_ENV", "development")
	cfg.App.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.App.CORSOrigins = getEnvSlice("CORS_ORIGINS", []string{"*"})

	cfg.Database = DatabaseConfig{
		Driver: getEnv("DB_DRIVER", "sqlite"),
		Path:   getEnv("DB_PATH", "./payroll.db"),
		URL:    getEnv("DATABASE_URL", ""),
	}

	if cfg.Leave.CasualPerYear, err = getEnvInt("LEAVE_CASUAL_PER_YEAR", 4); err != nil {
		return nil, err
	}
	if cfg.Leave.SickPerYear, err = getEnvInt("LEAVE_SICK_PER_YEAR", 2); err != nil {
		return nil, err
	}
	if cfg.Leave.EarnedPerYear, err = getEnvInt("LEAVE_EARNED_PER_YEAR", 0); err != nil {
		return nil, err
	}
	if cfg.Leave.FiscalYearStartMonth, err = getEnvInt("LEAVE_YEAR_START_MONTH", 1); err != nil {
		return nil, err
	}

	defaults := payroll.DefaultPolicy()
	cfg.Payroll.PFMode = getEnv("PAYROLL_PF_MODE", string(defaults.PFMode))
	decimals := []struct {
		key  string
		dst  *decimal.Decimal
		dflt decimal.Decimal
	}{
		{"PAYROLL_BASIC_RATIO", &cfg.Payroll.BasicRatio, defaults.BasicRatio},
		{"PAYROLL_HRA_RATIO", &cfg.Payroll.HRARatio, defaults.HRARatio},
		{"PAYROLL_FUEL_ALLOWANCE", &cfg.Payroll.FuelAllowance, defaults.FuelAllowance},
		{"PAYROLL_PF_RATE", &cfg.Payroll.PFRate, defaults.PFRate},
		{"PAYROLL_PF_FIXED_AMOUNT", &cfg.Payroll.PFFixedAmount, defaults.PFFixedAmount},
		{"PAYROLL_PROFESSIONAL_TAX", &cfg.Payroll.ProfessionalTax, defaults.ProfessionalTax},
	}
	for _, d := range decimals {
		if *d.dst, err = getEnvDecimal(d.key, d.dflt); err != nil {
			return nil, err
		}
	}

	if cfg.Scheduler.Enabled, err = getEnvBool("SCHEDULER_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.Scheduler.Interval, err = getEnvDuration("SCHEDULER_INTERVAL", time.Hour); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid APP_PORT %d", c.App.Port)
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}
	if m := c.Leave.FiscalYearStartMonth; m < 1 || m > 12 {
		return fmt.Errorf("invalid LEAVE_YEAR_START_MONTH %d", m)
	}
	if err := c.Entitlements().Validate(); err != nil {
		return err
	}
	policy, err := c.Policy()
	if err != nil {
		return err
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL must be positive")
	}
	return nil
}

// Entitlements converts the leave section into engine policy.
func (c *Config) Entitlements() leave.Entitlements {
	period := generic.PeriodConfig{Type: generic.PeriodCalendarYear}
	if c.Leave.FiscalYearStartMonth > 1 {
		period = generic.PeriodConfig{
			Type:                 generic.PeriodFiscalYear,
			FiscalYearStartMonth: time.Month(c.Leave.FiscalYearStartMonth),
		}
	}
	return leave.Entitlements{
		CasualPerYear: c.Leave.CasualPerYear,
		SickPerYear:   c.Leave.SickPerYear,
		EarnedPerYear: c.Leave.EarnedPerYear,
		Period:        period,
	}
}

// Policy converts the payroll section into engine policy.
func (c *Config) Policy() (payroll.Policy, error) {
	mode, err := payroll.ParsePFMode(c.Payroll.PFMode)
	if err != nil {
		return payroll.Policy{}, err
	}
	return payroll.Policy{
		BasicRatio:      c.Payroll.BasicRatio,
		HRARatio:        c.Payroll.HRARatio,
		FuelAllowance:   c.Payroll.FuelAllowance,
		PFMode:          mode,
		PFRate:          c.Payroll.PFRate,
		PFFixedAmount:   c.Payroll.PFFixedAmount,
		ProfessionalTax: c.Payroll.ProfessionalTax,
	}, nil
}

// =============================================================================
// ENV HELPERS
// =============================================================================

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvSlice(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
