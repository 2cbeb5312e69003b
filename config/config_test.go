package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := config.FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, []string{"*"}, cfg.App.CORSOrigins)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)

	ent := cfg.Entitlements()
	assert.Equal(t, 4, ent.CasualPerYear)
	assert.Equal(t, 2, ent.SickPerYear)
	assert.Equal(t, generic.PeriodCalendarYear, ent.Period.Type)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, payroll.DefaultPolicy(), policy)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/payroll")
	t.Setenv("CORS_ORIGINS", "https://hr.example.com, https://admin.example.com")
	t.Setenv("LEAVE_CASUAL_PER_YEAR", "6")
	t.Setenv("LEAVE_YEAR_START_MONTH", "4")
	t.Setenv("PAYROLL_PF_MODE", "fixed")
	t.Setenv("PAYROLL_PF_FIXED_AMOUNT", "1500")
	t.Setenv("SCHEDULER_ENABLED", "true")
	t.Setenv("SCHEDULER_INTERVAL", "15m")

	cfg, err := config.FromEnv()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, []string{"https://hr.example.com", "https://admin.example.com"}, cfg.App.CORSOrigins)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)

	ent := cfg.Entitlements()
	assert.Equal(t, 6, ent.CasualPerYear)
	assert.Equal(t, generic.PeriodFiscalYear, ent.Period.Type)
	assert.Equal(t, time.April, ent.Period.FiscalYearStartMonth)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, payroll.PFFixed, policy.PFMode)
	assert.Equal(t, "1500", policy.PFFixedAmount.String())
}

func TestFromEnv_ParseErrors(t *testing.T) {
	for key, value := range map[string]string{
		"APP_PORT":           "eighty",
		"SCHEDULER_ENABLED":  "maybe",
		"SCHEDULER_INTERVAL": "soon",
		"PAYROLL_PF_RATE":    "12%",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := config.FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"postgres without url": {"DB_DRIVER": "postgres"},
		"unknown driver":       {"DB_DRIVER": "mongo"},
		"port out of range":    {"APP_PORT": "70000"},
		"start month":          {"LEAVE_YEAR_START_MONTH": "13"},
		"negative entitlement": {"LEAVE_SICK_PER_YEAR": "-1"},
		"pf mode":              {"PAYROLL_PF_MODE": "voluntary"},
		"basic ratio":          {"PAYROLL_BASIC_RATIO": "1.5"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			cfg, err := config.FromEnv()
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}
