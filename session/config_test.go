package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/flux/internal/bwschedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig, *c)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flux.yaml")
	data := `
data_dir: /tmp/downloads
stats_interval: 2s
max_download_speed: 1048576
on_complete: pause
bandwidth_schedule:
  enabled: true
  rules:
    - start: 22
      end: 6
      dl: 0
      ul: 0
    - start: 9
      end: 18
      dl: 102400
      ul: 51200
peer_filter:
  enabled: true
  ban_qq: false
  whitelist: ["-XL0019-"]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))
	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/downloads", c.DataDir)
	assert.Equal(t, 2*time.Second, c.StatsInterval)
	assert.Equal(t, int64(1048576), c.MaxDownloadSpeed)
	assert.Equal(t, ActionPause, c.OnComplete)
	require.Len(t, c.BandwidthSchedule.Rules, 2)
	assert.Equal(t, 22, c.BandwidthSchedule.Rules[0].StartHour)
	assert.Equal(t, int64(51200), c.BandwidthSchedule.Rules[1].Upload)
	assert.False(t, c.PeerFilter.BanQQ)
	assert.True(t, c.PeerFilter.BanXunlei)
	assert.Equal(t, []string{"-XL0019-"}, c.PeerFilter.Whitelist)
	// Unset fields keep defaults.
	assert.Equal(t, DefaultConfig.AlertInterval, c.AlertInterval)
	assert.Equal(t, DefaultConfig.RPCPort, c.RPCPort)
	require.NoError(t, c.validate())
}

func TestConfigValidate(t *testing.T) {
	c := DefaultConfig
	c.OnComplete = "explode"
	assert.Error(t, c.validate())

	c = DefaultConfig
	c.AlertInterval = 0
	assert.Error(t, c.validate())

	c = DefaultConfig
	c.BandwidthSchedule.Rules = []bwschedule.Rule{{StartHour: 25, EndHour: 3}}
	assert.Error(t, c.validate())
}

func TestLoadConfigMaxOpenFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flux.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_open_files: 4096\n"), 0600))
	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), c.MaxOpenFiles)
	assert.Equal(t, uint64(0), DefaultConfig.MaxOpenFiles)
}
