package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("SIGNING_ALGORITHM", "")
	cfg := Load()
	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, "ed25519", cfg.SignAlgorithm)
	assert.Equal(t, 5*time.Minute, cfg.WebhookJWTTTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SCHEDULE_HISTORY_SIZE", "200")
	t.Setenv("WEBHOOK_JWT_TTL", "2m")
	cfg := Load()
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 200, cfg.ScheduleHistory)
	assert.Equal(t, 2*time.Minute, cfg.WebhookJWTTTL)
}

func TestValidateRejectsUnknownAlgorithm(t *testing.T) {
	cfg := Load()
	cfg.SignAlgorithm = "md5"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveHistory(t *testing.T) {
	cfg := Load()
	cfg.ScheduleHistory = 0
	assert.Error(t, cfg.Validate())
}
