package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 3*time.Second, cfg.Business.LockTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Business.LedgerCacheTTL)
	assert.Equal(t, 3, cfg.Business.ReminderWindowDays)
	assert.Equal(t, "7", cfg.GetScoreThreshold().String())
	assert.Equal(t, "postgres://postgres:@localhost:5432/microbank?sslmode=disable", cfg.Database.DSN())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://bank:secret@db:5432/bank?sslmode=require")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("SCORE_THRESHOLD", "6.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("SCHEDULER_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres://bank:secret@db:5432/bank?sslmode=require", cfg.Database.DSN())
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 750*time.Millisecond, cfg.Business.LockTimeout)
	assert.Equal(t, "6.5", cfg.GetScoreThreshold().String())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, time.UTC, cfg.GetLocation())
}

func TestDatabaseConfig_DSNEscapesCredentials(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: "5432", Name: "bank", User: "app", Password: "p@ss/word", SSLMode: "disable"}

	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/bank?sslmode=disable", d.DSN())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:    ServerConfig{Port: "8080"},
			Database:  DatabaseConfig{Host: "localhost"},
			Scheduler: SchedulerConfig{ReminderSpec: "0 8 * * *", OverdueSpec: "@daily", Timezone: "UTC"},
			Business:  BusinessConfig{ScoreThreshold: "7", LockTimeout: time.Second, ReminderWindowDays: 3},
			Health:    HealthConfig{Timeout: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "SERVER_PORT"},
		{"missing database", func(c *Config) { c.Database.Host = "" }, "DATABASE_URL"},
		{"threshold not a number", func(c *Config) { c.Business.ScoreThreshold = "high" }, "SCORE_THRESHOLD"},
		{"threshold above ten", func(c *Config) { c.Business.ScoreThreshold = "10.5" }, "between 0 and 10"},
		{"zero lock timeout", func(c *Config) { c.Business.LockTimeout = 0 }, "LOCK_TIMEOUT"},
		{"negative window", func(c *Config) { c.Business.ReminderWindowDays = -1 }, "REMINDER_WINDOW_DAYS"},
		{"bad cron", func(c *Config) { c.Scheduler.ReminderSpec = "every morning" }, "SCHEDULER_REMINDER_SPEC"},
		{"bad zone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "SCHEDULER_TIMEZONE"},
		{"zero health timeout", func(c *Config) { c.Health.Timeout = 0 }, "HEALTH_CHECK_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
