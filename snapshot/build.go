package snapshot

import (
	"time"

	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/internal/speedhistory"
)

// stalledRate is the download rate under which a torrent with seeds is considered stalled.
const stalledRate = 1024

// Meta is the part of torrent state that is kept by the session rather than the engine.
type Meta struct {
	Category string
	Tags     []string
	AddedAt  time.Time
}

// BuildTorrent returns a snapshot of a single torrent.
// h may be nil if no history is kept for the torrent.
func BuildTorrent(st engine.TorrentStatus, meta Meta, h *speedhistory.History) TorrentSnapshot {
	s := TorrentSnapshot{
		ID:              st.ID,
		Name:            st.Name,
		State:           ResolveState(st),
		Progress:        clamp(st.Progress),
		DownloadRate:    st.DownloadRate,
		UploadRate:      st.UploadRate,
		Seeds:           st.Seeds,
		Peers:           st.Peers,
		Connections:     st.Connections,
		QueuePosition:   st.QueuePosition,
		Priority:        st.Priority,
		TotalSize:       st.TotalSize,
		CompletedSize:   st.CompletedSize,
		TotalDownloaded: st.TotalDownloaded,
		TotalUploaded:   st.TotalUploaded,
		Ratio:           ratio(st.TotalUploaded, st.TotalDownloaded),
		ETA:             eta(st.TotalSize-st.CompletedSize, st.DownloadRate),
		SavePath:        st.SavePath,
		Error:           st.Error,
		HasMetadata:     st.HasMetadata,
		Category:        meta.Category,
		tags:            copyStrings(meta.Tags),
		AddedAt:         meta.AddedAt,
		DownloadLimit:   st.DownloadLimit,
		UploadLimit:     st.UploadLimit,
	}
	if h != nil {
		s.DownloadPeak, _ = h.Peak()
		s.DownloadAverage, _ = h.Average()
	}
	return s
}

// ResolveState maps engine flags to a single display state.
// Checks are ordered by precedence.
func ResolveState(st engine.TorrentStatus) State {
	switch {
	case st.Error != "":
		return Error
	case st.Moving:
		return Moving
	case st.Checking:
		return Checking
	case !st.HasMetadata:
		return Metadata
	case st.Paused && st.AutoManaged:
		return Queued
	case st.Paused:
		return Paused
	case st.Seeding:
		return Seeding
	case st.Finished:
		return Completed
	case st.DownloadRate < stalledRate && st.Seeds > 0:
		return Stalled
	default:
		return Downloading
	}
}

// BuildStats returns session statistics. h is the session-wide history and may be nil.
func BuildStats(raw engine.RawStats, h *speedhistory.History, now time.Time, scheduleRule int) SessionStats {
	s := SessionStats{
		Time:            now,
		DownloadRate:    raw.DownloadRate,
		UploadRate:      raw.UploadRate,
		TotalDownloaded: raw.TotalDownloaded,
		TotalUploaded:   raw.TotalUploaded,
		DHTNodes:        raw.DHTNodes,
		DiskCacheSize:   raw.DiskCacheSize,
		DiskCacheUsed:   raw.DiskCacheUsed,
		Torrents:        raw.Torrents,
		ScheduleRule:    scheduleRule,
	}
	if h != nil {
		s.DownloadPeak, s.UploadPeak = h.Peak()
	}
	return s
}

// BuildDetail returns the extended view of a torrent.
func BuildDetail(id engine.TorrentID, d engine.TorrentDetail, h *speedhistory.History, now time.Time) DetailData {
	dd := DetailData{
		ID:          id,
		Time:        now,
		PieceLength: d.PieceLength,
	}
	if len(d.Files) > 0 {
		dd.Files = make([]File, len(d.Files))
		for i, f := range d.Files {
			dd.Files[i] = File{
				Index:    f.Index,
				Path:     f.Path,
				Size:     f.Size,
				Progress: clamp(f.Progress),
				Priority: f.Priority,
			}
		}
	}
	if len(d.Peers) > 0 {
		dd.Peers = make([]Peer, len(d.Peers))
		for i, p := range d.Peers {
			dd.Peers[i] = Peer{
				IP:           p.Addr,
				Port:         p.Port,
				Client:       p.Client,
				DownloadRate: p.DownloadRate,
				UploadRate:   p.UploadRate,
				Progress:     clamp(p.Progress),
				Flags:        p.Flags,
			}
		}
	}
	if len(d.Trackers) > 0 {
		dd.Trackers = make([]Tracker, len(d.Trackers))
		for i, t := range d.Trackers {
			dd.Trackers[i] = Tracker(t)
		}
	}
	if len(d.Pieces) > 0 {
		dd.Pieces = make([]engine.PieceState, len(d.Pieces))
		copy(dd.Pieces, d.Pieces)
	}
	if h != nil {
		dd.DownloadHistory = h.Downloads()
		dd.UploadHistory = h.Uploads()
	}
	return dd
}

func ratio(uploaded, downloaded int64) float64 {
	if downloaded <= 0 {
		return 0
	}
	return float64(uploaded) / float64(downloaded)
}

func eta(remaining, rate int64) time.Duration {
	if rate <= 0 || remaining <= 0 {
		if remaining <= 0 {
			return 0
		}
		return -1
	}
	return time.Duration(remaining/rate) * time.Second
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
