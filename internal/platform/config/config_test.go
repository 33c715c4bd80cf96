package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 14, cfg.Shop.OrderWindowDays)
	assert.Equal(t, time.Minute, cfg.Snapshot.Interval)
	assert.Equal(t, "Europe/Paris", cfg.Shop.Location().String())
	assert.Equal(t, 10, cfg.Limits.LoginAttempts)
	assert.Equal(t, time.Minute, cfg.Limits.Window)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_ADDRESS", ":9999")
	t.Setenv("DATABASE_DRIVER", "postgres")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_DRIVER", "mongo")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, ShopConfig{Timezone: "Nowhere/Atlantis"}.Location())
}
