package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("api")
	require.NoError(t, err)

	assert.Equal(t, "api", cfg.RunMode)
	assert.Equal(t, 50, cfg.DispatchBatchSize)
	assert.Equal(t, 4, cfg.DispatchMaxBatches)
	assert.Equal(t, 5, cfg.DispatchConcurrency)
	assert.Equal(t, 3, cfg.EmailAttempts)
	assert.Equal(t, 2*time.Second, cfg.EmailRetryBaseDelay)
	assert.Equal(t, 2, cfg.WhatsAppAttempts)
	assert.Equal(t, 3*time.Second, cfg.WhatsAppRetryBaseDelay)
	assert.Equal(t, time.Hour, cfg.JwtTTL)
	assert.Equal(t, time.Minute, cfg.PriorityTokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.PriorityCodeTTL)
	assert.Equal(t, 3, cfg.PriorityCodeMaxAttempts)
	assert.Equal(t, "Notificación Sistema", cfg.DefaultSubject)
	assert.Equal(t, "async", cfg.DispatchMode)
	assert.Equal(t, "mongo", cfg.AuditStore)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MONGO_URI", "")
	require.NoError(t, os.Unsetenv("MONGO_URI"))

	_, err := Load("api")
	assert.ErrorContains(t, err, "MONGO_URI")
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DISPATCH_BATCH_SIZE", "10")
	t.Setenv("DISPATCH_MODE", "queue")
	t.Setenv("EMAIL_RETRY_BASE_MS", "250")

	cfg, err := Load("bg")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.DispatchBatchSize)
	assert.Equal(t, "queue", cfg.DispatchMode)
	assert.Equal(t, 250*time.Millisecond, cfg.EmailRetryBaseDelay)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"mode", "DISPATCH_MODE", "batch"},
		{"batch size", "DISPATCH_BATCH_SIZE", "0"},
		{"not a number", "DISPATCH_CONCURRENCY", "five"},
		{"postgres without url", "AUDIT_STORE", "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("POSTGRES_URL", "")
			t.Setenv(tt.key, tt.value)
			_, err := Load("api")
			assert.Error(t, err)
		})
	}
}
