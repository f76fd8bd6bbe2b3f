package peerfilter

import (
	"encoding/binary"
	"errors"
	"net"
	"strings"

	"github.com/google/btree"
)

var errNotIPv4Address = errors.New("address is not ipv4")

type ipRange struct {
	first, last uint32
}

var _ btree.Item = ipRange{}

func (r ipRange) Less(than btree.Item) bool {
	return r.first < than.(ipRange).first
}

// rangeSet holds disjoint IPv4 ranges ordered by their first address.
// Overlapping or adjacent ranges are merged on insert.
type rangeSet struct {
	tree *btree.BTree
}

func newRangeSet() *rangeSet {
	return &rangeSet{tree: btree.New(16)}
}

func (s *rangeSet) Len() int {
	return s.tree.Len()
}

func (s *rangeSet) add(r ipRange) {
	var merged []ipRange
	s.tree.DescendLessOrEqual(ipRange{first: r.last}, func(i btree.Item) bool {
		x := i.(ipRange)
		if uint64(x.last)+1 < uint64(r.first) {
			return false
		}
		merged = append(merged, x)
		return true
	})
	// A range starting right after r.last is adjacent.
	if r.last < ^uint32(0) {
		if i := s.tree.Get(ipRange{first: r.last + 1}); i != nil {
			merged = append(merged, i.(ipRange))
		}
	}
	for _, x := range merged {
		s.tree.Delete(x)
		if x.first < r.first {
			r.first = x.first
		}
		if x.last > r.last {
			r.last = x.last
		}
	}
	s.tree.ReplaceOrInsert(r)
}

func (s *rangeSet) contains(ip string) bool {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return false
	}
	val := binary.BigEndian.Uint32(parsed)
	found := false
	s.tree.DescendLessOrEqual(ipRange{first: val}, func(i btree.Item) bool {
		found = val <= i.(ipRange).last
		return false
	})
	return found
}

func parseRange(s string) (ipRange, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		return parseCIDR(s)
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		first, err := parseIPv4(s[:i])
		if err != nil {
			return ipRange{}, err
		}
		last, err := parseIPv4(s[i+1:])
		if err != nil {
			return ipRange{}, err
		}
		if first > last {
			return ipRange{}, errors.New("first address is after last address")
		}
		return ipRange{first: first, last: last}, nil
	}
	ip, err := parseIPv4(s)
	return ipRange{first: ip, last: ip}, err
}

func parseIPv4(s string) (uint32, error) {
	ip := net.ParseIP(strings.TrimSpace(s)).To4()
	if ip == nil {
		return 0, errNotIPv4Address
	}
	return binary.BigEndian.Uint32(ip), nil
}

func parseCIDR(s string) (r ipRange, err error) {
	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return
	}
	if len(ipnet.IP) != 4 || len(ipnet.Mask) != 4 {
		err = errNotIPv4Address
		return
	}
	r.first = binary.BigEndian.Uint32(ipnet.IP)
	r.last = r.first | ^binary.BigEndian.Uint32(ipnet.Mask)
	return
}
