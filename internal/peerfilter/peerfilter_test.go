package peerfilter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownLeechers(t *testing.T) {
	f, err := New(DefaultConfig)
	require.NoError(t, err)

	banned, reason := f.Check("-XL0012-abcdefghijkl", "", "1.2.3.4")
	assert.True(t, banned)
	assert.Equal(t, "Xunlei/Thunder", reason)

	banned, _ = f.Check("-qB4250-abcdefghijkl", "qBittorrent 4.2.5", "1.2.3.4")
	assert.False(t, banned)

	banned, reason = f.Check("-UT3550-abcdefghijkl", "7.10.3.4512", "1.2.3.4")
	assert.True(t, banned)
	assert.Equal(t, "Xunlei version pattern", reason)

	banned, _ = f.Check("-UT3550-abcdefghijkl", "thunder", "1.2.3.4")
	assert.True(t, banned)

	assert.Len(t, f.BanLog(), 3)
	assert.Equal(t, 3, f.Stats().TotalBans)
}

func TestGroupToggles(t *testing.T) {
	cfg := DefaultConfig
	cfg.BanQQ = false
	cfg.BanXunlei = false
	f, err := New(cfg)
	require.NoError(t, err)

	banned, _ := f.Check("-QD1234-", "", "1.2.3.4")
	assert.False(t, banned)
	banned, _ = f.Check("-SD1234-", "", "1.2.3.4")
	assert.False(t, banned)
	banned, _ = f.Check("-BN1234-", "", "1.2.3.4")
	assert.True(t, banned)
	assert.Equal(t, 9-4, f.Stats().RulesActive)
}

func TestDisabled(t *testing.T) {
	f, err := New(Config{})
	require.NoError(t, err)
	banned, _ := f.Check("-XL0012-", "Xunlei", "1.2.3.4")
	assert.False(t, banned)
}

func TestWhitelistAndCustomRules(t *testing.T) {
	cfg := DefaultConfig
	cfg.Whitelist = []string{"-XL0019"}
	cfg.CustomRules = []Rule{{Pattern: "-BAD", Reason: "bad client"}, {Pattern: "offline downloader", Reason: "cloud"}}
	f, err := New(cfg)
	require.NoError(t, err)

	banned, _ := f.Check("-XL0019-xxxx", "Xunlei", "1.2.3.4")
	assert.False(t, banned)

	banned, reason := f.Check("-BAD001-xxxx", "", "1.2.3.4")
	assert.True(t, banned)
	assert.Equal(t, "bad client", reason)

	banned, reason = f.Check("-AB0001-xxxx", "Offline Downloader 1.0", "1.2.3.4")
	assert.True(t, banned)
	assert.Equal(t, "cloud", reason)

	_, err = New(Config{CustomRules: []Rule{{Pattern: "("}}})
	assert.Error(t, err)
}

func TestIPRanges(t *testing.T) {
	cfg := Config{Enabled: true, IPRanges: []string{
		"10.0.0.0/8",
		"192.168.1.10-192.168.1.20",
		"192.168.1.21-192.168.1.30", // adjacent, merged
		"192.168.1.15-192.168.1.25", // overlapping, merged
		"8.8.8.8",
	}}
	f, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Stats().IPRanges)

	for _, ip := range []string{"10.1.2.3", "192.168.1.10", "192.168.1.30", "8.8.8.8"} {
		banned, reason := f.Check("-qB0000-", "", ip)
		assert.True(t, banned, ip)
		assert.Equal(t, "IP blocklist", reason)
	}
	for _, ip := range []string{"11.0.0.1", "192.168.1.9", "192.168.1.31", "8.8.4.4", "::1", "garbage"} {
		banned, _ := f.Check("-qB0000-", "", ip)
		assert.False(t, banned, ip)
	}

	_, err = New(Config{IPRanges: []string{"10.0.0.9-10.0.0.1"}})
	assert.Error(t, err)
	_, err = New(Config{IPRanges: []string{"::1/128"}})
	assert.Error(t, err)
}

func TestBanLogCapped(t *testing.T) {
	f, err := New(DefaultConfig)
	require.NoError(t, err)
	for i := 0; i < MaxBanLog+20; i++ {
		f.Check("-XL0000-", "", fmt.Sprintf("10.0.%d.%d", i/256, i%256))
	}
	log := f.BanLog()
	assert.Len(t, log, MaxBanLog)
	assert.Equal(t, "10.0.0.20", log[0].IP)
}
