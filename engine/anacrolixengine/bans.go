package anacrolixengine

import (
	"net"
	"sync"

	"github.com/anacrolix/torrent/iplist"
)

// bannedIPs is the client's IP blocklist. The client looks it up from its own
// goroutines, so it has its own lock.
type bannedIPs struct {
	mu  sync.RWMutex
	ips map[string]struct{}
}

var _ iplist.Ranger = (*bannedIPs)(nil)

func newBannedIPs() *bannedIPs {
	return &bannedIPs{ips: make(map[string]struct{})}
}

func (b *bannedIPs) add(ip net.IP) {
	b.mu.Lock()
	b.ips[ip.String()] = struct{}{}
	b.mu.Unlock()
}

func (b *bannedIPs) Lookup(ip net.IP) (iplist.Range, bool) {
	b.mu.RLock()
	_, ok := b.ips[ip.String()]
	b.mu.RUnlock()
	if !ok {
		return iplist.Range{}, false
	}
	return iplist.Range{First: ip, Last: ip, Description: "banned"}, true
}

func (b *bannedIPs) NumRanges() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.ips)
}
