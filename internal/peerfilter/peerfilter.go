// Package peerfilter decides whether a connected peer should be banned.
// Peers are matched by peer-id prefix, client name, custom rules and IP ranges.
package peerfilter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// MaxBanLog is the number of bans kept in the ban log.
const MaxBanLog = 500

// Rule bans peers whose peer id starts with Pattern, or whose client name matches it.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason"`
}

// Config of a Filter.
type Config struct {
	Enabled   bool `yaml:"enabled"`
	BanXunlei bool `yaml:"ban_xunlei"`
	BanQQ     bool `yaml:"ban_qq"`
	BanBaidu  bool `yaml:"ban_baidu"`
	// CustomRules are checked after the built-in rules.
	CustomRules []Rule `yaml:"custom_rules"`
	// Whitelist contains peer id prefixes that are never banned.
	Whitelist []string `yaml:"whitelist"`
	// IPRanges are in CIDR form or "first-last" form. Only IPv4 is supported.
	IPRanges []string `yaml:"ip_ranges"`
}

// DefaultConfig bans known leeching clients.
var DefaultConfig = Config{
	Enabled:   true,
	BanXunlei: true,
	BanQQ:     true,
	BanBaidu:  true,
}

type group int

const (
	groupNone group = iota
	groupXunlei
	groupQQ
	groupBaidu
)

type leecher struct {
	prefix string
	reason string
	group  group
}

// Azureus-style peer id prefixes of known leeching clients.
var knownLeechers = []leecher{
	{"-XL", "Xunlei/Thunder", groupXunlei},
	{"-SD", "Thunder (Xunlei variant)", groupXunlei},
	{"-XF", "Xfplay", groupNone},
	{"-QD", "QQ Tornado/Whirlwind", groupQQ},
	{"-BN", "Baidu Net", groupBaidu},
	{"-DL", "Dalunlei", groupXunlei},
	{"-TS", "TorrentStorm", groupNone},
	{"-FG", "FlashGet", groupNone},
	{"-TT", "TuoTu", groupNone},
}

type clientRule struct {
	re     *regexp.Regexp
	reason string
}

var suspiciousClients = []clientRule{
	{regexp.MustCompile(`(?i)Xunlei`), "Xunlei client name match"},
	{regexp.MustCompile(`(?i)Thunder`), "Thunder client name match"},
	{regexp.MustCompile(`(?i)QQDownload`), "QQ Download"},
	{regexp.MustCompile(`^7\.\d+\.\d+\.\d+`), "Xunlei version pattern"},
}

type customRule struct {
	prefix string
	re     *regexp.Regexp
	reason string
}

// Ban is an entry in the ban log.
type Ban struct {
	Time   time.Time
	IP     string
	Client string
	Reason string
}

// Stats about a Filter.
type Stats struct {
	Enabled     bool
	RulesActive int
	IPRanges    int
	TotalBans   int
}

// Filter checks peers against configured rules.
// Check is called from a single goroutine. BanLog and Stats may be called concurrently with it.
type Filter struct {
	enabled   bool
	leechers  []leecher
	custom    []customRule
	whitelist []string
	ranges    *rangeSet

	mLog sync.RWMutex
	log  []Ban
}

// New returns a Filter for the given config.
func New(cfg Config) (*Filter, error) {
	f := &Filter{
		enabled:   cfg.Enabled,
		whitelist: append([]string(nil), cfg.Whitelist...),
		ranges:    newRangeSet(),
	}
	for _, l := range knownLeechers {
		switch {
		case l.group == groupXunlei && !cfg.BanXunlei:
		case l.group == groupQQ && !cfg.BanQQ:
		case l.group == groupBaidu && !cfg.BanBaidu:
		default:
			f.leechers = append(f.leechers, l)
		}
	}
	for _, r := range cfg.CustomRules {
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid peer filter rule %q: %w", r.Pattern, err)
		}
		f.custom = append(f.custom, customRule{prefix: r.Pattern, re: re, reason: r.Reason})
	}
	for _, s := range cfg.IPRanges {
		r, err := parseRange(s)
		if err != nil {
			return nil, fmt.Errorf("invalid ip range %q: %w", s, err)
		}
		f.ranges.add(r)
	}
	return f, nil
}

// Check returns true and a reason if the peer should be banned.
// Banned peers are recorded in the ban log.
func (f *Filter) Check(peerID, client, ip string) (bool, string) {
	if !f.enabled {
		return false, ""
	}
	if len(peerID) > 8 {
		peerID = peerID[:8]
	}
	for _, prefix := range f.whitelist {
		if strings.HasPrefix(peerID, prefix) {
			return false, ""
		}
	}
	for _, l := range f.leechers {
		if strings.HasPrefix(peerID, l.prefix) {
			return f.ban(ip, client, l.reason)
		}
	}
	for _, r := range suspiciousClients {
		if r.re.MatchString(client) {
			return f.ban(ip, client, r.reason)
		}
	}
	for _, r := range f.custom {
		if strings.HasPrefix(peerID, r.prefix) || r.re.MatchString(client) {
			return f.ban(ip, client, r.reason)
		}
	}
	if f.ranges.contains(ip) {
		return f.ban(ip, client, "IP blocklist")
	}
	return false, ""
}

func (f *Filter) ban(ip, client, reason string) (bool, string) {
	f.mLog.Lock()
	f.log = append(f.log, Ban{Time: time.Now(), IP: ip, Client: client, Reason: reason})
	if len(f.log) > MaxBanLog {
		f.log = append(f.log[:0:0], f.log[len(f.log)-MaxBanLog:]...)
	}
	f.mLog.Unlock()
	return true, reason
}

// BanLog returns a copy of the ban log, oldest first.
func (f *Filter) BanLog() []Ban {
	f.mLog.RLock()
	defer f.mLog.RUnlock()
	return append([]Ban(nil), f.log...)
}

// Stats returns the counters of the filter.
func (f *Filter) Stats() Stats {
	f.mLog.RLock()
	defer f.mLog.RUnlock()
	return Stats{
		Enabled:     f.enabled,
		RulesActive: len(f.leechers) + len(f.custom),
		IPRanges:    f.ranges.Len(),
		TotalBans:   len(f.log),
	}
}
