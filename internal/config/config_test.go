package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PGUSER", "")
	t.Setenv("PGDATABASE", "")
	t.Setenv("HEALTH_STALENESS_THRESHOLD", "")

	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 6*time.Hour, cfg.Health.StalenessThreshold)
	assert.False(t, cfg.Postgres.Enabled())
	assert.Equal(t, 5, cfg.Events.DeliveryAttempts)
	assert.Equal(t, HealthBands{Healthy: 85, Watch: 70, Degrading: 50}, cfg.Health.CriticalBands)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HEALTH_STALENESS_THRESHOLD", "90m")
	t.Setenv("EVENT_DELIVERY_ATTEMPTS", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.local, ,http://b.local")
	t.Setenv("PGUSER", "ops")
	t.Setenv("PGDATABASE", "health")

	cfg := Load()

	assert.Equal(t, 90*time.Minute, cfg.Health.StalenessThreshold)
	assert.Equal(t, 5, cfg.Events.DeliveryAttempts)
	assert.Equal(t, []string{"http://a.local", "http://b.local"}, cfg.HTTP.AllowedOrigins)
	assert.True(t, cfg.Postgres.Enabled())
}

func TestLoadHealthBands(t *testing.T) {
	t.Setenv("HEALTH_BANDS", "75, 55, 35")
	t.Setenv("HEALTH_CRITICAL_BANDS", "50,70,85")

	cfg := Load()

	assert.Equal(t, HealthBands{Healthy: 75, Watch: 55, Degrading: 35}, cfg.Health.DefaultBands)
	// 내림차순이 아니면 기본값 유지
	assert.Equal(t, HealthBands{Healthy: 85, Watch: 70, Degrading: 50}, cfg.Health.CriticalBands)
}
