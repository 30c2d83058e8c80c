package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("STUDIO_JWT_SECRET", "secret")
	t.Setenv("STUDIO_WEBHOOK_SECRET", "hook")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "Studio Homework API", cfg.AppName)
	require.Equal(t, ":8080", cfg.HTTPAddress())
	require.Equal(t, 10, cfg.TrackingCodeLength)
	require.Equal(t, 5, cfg.TrackingCodeMaxAttempts)
	require.Equal(t, 20, cfg.MaxEvidenceLinks)
	require.Equal(t, 10*time.Minute, cfg.CatalogCacheTTL)
	require.Equal(t, time.Minute, cfg.WebhookRateWindow)
	require.Equal(t, "studio:homework", cfg.ChannelBase)
}

func TestLoadClampsTrackingCodeLength(t *testing.T) {
	t.Setenv("STUDIO_JWT_SECRET", "secret")
	t.Setenv("STUDIO_WEBHOOK_SECRET", "hook")
	t.Setenv("STUDIO_TRACKING_CODE_LENGTH", "4")
	t.Setenv("STUDIO_APP_PORT", ":9090")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8, cfg.TrackingCodeLength)
	require.Equal(t, ":9090", cfg.HTTPAddress())
}

func TestLoadRequiresSecrets(t *testing.T) {
	t.Setenv("STUDIO_JWT_SECRET", "")
	t.Setenv("STUDIO_WEBHOOK_SECRET", "hook")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("STUDIO_JWT_SECRET", "secret")
	t.Setenv("STUDIO_WEBHOOK_SECRET", "")

	_, err = Load()
	require.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("STUDIO_JWT_SECRET", "secret")
	t.Setenv("STUDIO_WEBHOOK_SECRET", "hook")
	t.Setenv("STUDIO_CATALOG_CACHE_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}
