package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultPopulatesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, uint16(0), cfg.DomainID)
	require.Equal(t, TransportUdpMulticast, cfg.Transport)
	require.Equal(t, "reliable", cfg.Qos.Reliability)
	require.Equal(t, HistoryKeepLast, cfg.Qos.History)
	require.True(t, cfg.Congestion.Enabled)
	require.Equal(t, 100*time.Millisecond, cfg.TickInterval())
}

func TestTickIntervalFallsBackOnEmptyOrInvalid(t *testing.T) {
	cfg := Default()
	cfg.Congestion.TickInterval = ""
	require.Equal(t, 100*time.Millisecond, cfg.TickInterval())

	cfg.Congestion.TickInterval = "not-a-duration"
	require.Equal(t, 100*time.Millisecond, cfg.TickInterval())

	cfg.Congestion.TickInterval = "250ms"
	require.Equal(t, 250*time.Millisecond, cfg.TickInterval())
}

func TestLoadWithNoPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadWithMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaultFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	body, err := json.Marshal(map[string]any{
		"domain_id": 3,
		"transport": "intra_process",
		"qos": map[string]any{
			"reliability": "best_effort",
			"durability":  "volatile",
			"history":     "keep_all",
			"depth":       10,
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint16(3), cfg.DomainID)
	require.Equal(t, TransportIntraProcess, cfg.Transport)
	require.Equal(t, "best_effort", cfg.Qos.Reliability)
	require.Equal(t, HistoryKeepAll, cfg.Qos.History)
}

func TestLoadRejectsMalformedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"transport": "carrier_pigeon"}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsInvalidJson(t *testing.T) {
	require.Error(t, Validate([]byte("{not json")))
}
