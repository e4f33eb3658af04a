package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/loyalty-engine/config"
	"github.com/meridian/loyalty-engine/ledger"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loyalty.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "content", cfg.DedupMode)
	assert.Equal(t, ledger.DedupContent, cfg.Dedup())
	assert.NotEmpty(t, cfg.Tiers)

	limit, err := cfg.Review.Limit()
	require.NoError(t, err)
	assert.Equal(t, "1000", limit.String())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
port: 9090
dedup_mode: random
queue:
  workers: 2
  max_deliveries: 7
  dedup_window_seconds: 60
review:
  amount_limit: "250.50"
tiers:
  - name: basic
    threshold: 0
  - name: elite
    threshold: 10000
partner_offer_names: [welcome, anniversary]
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, ledger.DedupRandom, cfg.Dedup())
	assert.Equal(t, 2, cfg.Queue.Workers)
	assert.Equal(t, 7, cfg.Queue.MaxDeliveries)
	require.Len(t, cfg.Tiers, 2)
	assert.Equal(t, "elite", cfg.Tiers[1].Name)
	assert.Equal(t, []string{"welcome", "anniversary"}, cfg.PartnerOfferNames)

	limit, err := cfg.Review.Limit()
	require.NoError(t, err)
	assert.Equal(t, "250.5", limit.String())
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	cases := []struct{ name, body string }{
		{"bad port", "port: -1"},
		{"bad dedup mode", "dedup_mode: hash"},
		{"bad workers", "queue:\n  workers: 0"},
		{"bad limit", "review:\n  amount_limit: lots"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, c.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
