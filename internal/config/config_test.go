package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Presence.Window)
	assert.Equal(t, 30*time.Second, cfg.Presence.SweepInterval)
	assert.Equal(t, "local", cfg.Fanout.Relay)
	assert.Equal(t, 64, cfg.Fanout.SubscriberBuffer)
	assert.Equal(t, 4000, cfg.Messaging.MaxBodyLength)
	assert.Equal(t, 5*time.Second, cfg.Messaging.SendTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PRESENCE_WINDOW", "2m")
	t.Setenv("FANOUT_RELAY", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("DATABASE_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Presence.Window)
	assert.Equal(t, "redis", cfg.Fanout.Relay)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Contains(t, cfg.Database.DSN(), "host=db.internal")
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}},
		{"unknown relay", map[string]string{"JWT_SECRET": "s", "FANOUT_RELAY": "kafka"}},
		{"zero presence window", map[string]string{"JWT_SECRET": "s", "PRESENCE_WINDOW": "0s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
