package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagkeep/indicator"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tagkeep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
client_id: bench-1
reader:
  type: serial
  device: /dev/ttyUSB0
flash:
  type: file
  path: /var/lib/tagkeep/flash.bin
  sectors: 4
http:
  addr: ":9000"
mqtt:
  host: broker.local
  topic_prefix: lab
acquisition:
  timeout: 5s
  poll_interval: 50ms
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "bench-1", cfg.ClientID)
	assert.Equal(t, "serial", cfg.Reader.Type)
	assert.Equal(t, "/var/lib/tagkeep/flash.bin", cfg.Flash.Path)
	assert.Equal(t, 4, cfg.Flash.Sectors)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "lab", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 5*time.Second, cfg.Acquisition.Timeout)
	assert.Equal(t, 50*time.Millisecond, cfg.Acquisition.PollInterval)
	// unset values keep their defaults
	assert.Equal(t, time.Second, cfg.Acquisition.RereadGuard)
	assert.Equal(t, indicator.DefaultHold, cfg.Indicator.Hold)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(writeConfig(t, "client_id: x\n"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.Acquisition.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Acquisition.PollInterval)
}

func TestLoadConfig_GuardDisabled(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig(writeConfig(t, "client_id: x\nacquisition:\n  reread_guard: 0s\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.Acquisition.RereadGuard)
	assert.Equal(t, 10*time.Second, cfg.Acquisition.Timeout)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
	}{
		{"missing client id", "reader:\n  type: none\n"},
		{"bad yaml", "client_id: [\n"},
		{"zero timeout", "client_id: x\nacquisition:\n  timeout: 0s\n"},
		{"timeout below poll", "client_id: x\nacquisition:\n  timeout: 50ms\n  poll_interval: 100ms\n"},
		{"negative guard", "client_id: x\nacquisition:\n  reread_guard: -1s\n"},
		{"file flash without path", "client_id: x\nflash:\n  type: file\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	t.Parallel()
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
