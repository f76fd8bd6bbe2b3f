package anacrolixengine

import (
	"time"

	"github.com/anacrolix/torrent"
	"github.com/cenkalti/flux/engine"
	"golang.org/x/time/rate"
)

// minBurst must be larger than a single block read so WaitN never fails.
const minBurst = 256 * 1024

func limitOf(bytesPerSecond int64) rate.Limit {
	if bytesPerSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(bytesPerSecond)
}

func burstOf(bytesPerSecond int64) int {
	if bytesPerSecond < minBurst {
		return minBurst
	}
	return int(bytesPerSecond)
}

func toPiecePriority(p int) torrent.PiecePriority {
	switch {
	case p <= engine.PrioritySkip:
		return torrent.PiecePriorityNone
	case p >= engine.PriorityHigh:
		return torrent.PiecePriorityHigh
	default:
		return torrent.PiecePriorityNormal
	}
}

func fromPiecePriority(p torrent.PiecePriority) int {
	switch {
	case p == torrent.PiecePriorityNone:
		return engine.PrioritySkip
	case p >= torrent.PiecePriorityHigh:
		return engine.PriorityHigh
	default:
		return engine.PriorityNormal
	}
}

type rates struct {
	download int64
	upload   int64
}

// speedSample derives transfer rates from the deltas of lifetime byte counters.
type speedSample struct {
	at         time.Time
	downloaded int64
	uploaded   int64
	last       rates
}

// minSampleInterval keeps rates stable when Torrents is called in quick succession.
const minSampleInterval = 500 * time.Millisecond

func (s *speedSample) update(now time.Time, downloaded, uploaded int64) rates {
	if s.at.IsZero() {
		s.at, s.downloaded, s.uploaded = now, downloaded, uploaded
		return rates{}
	}
	elapsed := now.Sub(s.at)
	if elapsed < minSampleInterval {
		return s.last
	}
	sec := elapsed.Seconds()
	s.last = rates{
		download: perSecond(downloaded-s.downloaded, sec),
		upload:   perSecond(uploaded-s.uploaded, sec),
	}
	s.at, s.downloaded, s.uploaded = now, downloaded, uploaded
	return s.last
}

func perSecond(delta int64, sec float64) int64 {
	if delta <= 0 || sec <= 0 {
		return 0
	}
	return int64(float64(delta) / sec)
}

// finishedThisSession reports whether completing a torrent is news. A restored
// torrent that completes without downloading anything was already complete
// before the restart.
func finishedThisSession(loaded bool, downloaded int64) bool {
	return !loaded || downloaded > 0
}

func removeID(ids []engine.TorrentID, id engine.TorrentID) []engine.TorrentID {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func moveID(ids []engine.TorrentID, id engine.TorrentID, dir engine.QueueDirection) []engine.TorrentID {
	pos := -1
	for i, v := range ids {
		if v == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return ids
	}
	switch dir {
	case engine.QueueUp:
		if pos > 0 {
			ids[pos-1], ids[pos] = ids[pos], ids[pos-1]
		}
	case engine.QueueDown:
		if pos < len(ids)-1 {
			ids[pos+1], ids[pos] = ids[pos], ids[pos+1]
		}
	case engine.QueueTop:
		copy(ids[1:pos+1], ids[:pos])
		ids[0] = id
	case engine.QueueBottom:
		copy(ids[pos:], ids[pos+1:])
		ids[len(ids)-1] = id
	}
	return ids
}
