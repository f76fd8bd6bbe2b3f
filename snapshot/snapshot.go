// Package snapshot contains immutable values describing session and torrent state,
// and the functions that build them from engine state.
//
// Values in this package are never mutated after construction. Slices they contain
// are private copies, so values can be shared between goroutines freely.
package snapshot

import (
	"time"

	"github.com/cenkalti/flux/engine"
)

// State of a torrent as shown to the user.
type State int

// Torrent states.
const (
	Downloading State = iota
	Seeding
	Paused
	Queued
	Checking
	Error
	Stalled
	Completed
	Metadata
	Moving
)

var stateStrings = map[State]string{
	Downloading: "Downloading",
	Seeding:     "Seeding",
	Paused:      "Paused",
	Queued:      "Queued",
	Checking:    "Checking",
	Error:       "Error",
	Stalled:     "Stalled",
	Completed:   "Completed",
	Metadata:    "Metadata",
	Moving:      "Moving",
}

func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "Unknown"
}

// ParseState returns the state with the given name.
func ParseState(name string) (State, bool) {
	for s, str := range stateStrings {
		if str == name {
			return s, true
		}
	}
	return 0, false
}

// TorrentSnapshot is a point-in-time view of a single torrent.
type TorrentSnapshot struct {
	ID       engine.TorrentID
	Name     string
	State    State
	Progress float64

	DownloadRate int64
	UploadRate   int64
	// Peak and average download rate over the speed history window.
	DownloadPeak    int64
	DownloadAverage int64

	Seeds       int
	Peers       int
	Connections int

	QueuePosition int
	Priority      int

	TotalSize       int64
	CompletedSize   int64
	TotalDownloaded int64
	TotalUploaded   int64
	Ratio           float64
	// ETA is -1 when unknown.
	ETA time.Duration

	SavePath      string
	Error         string
	HasMetadata   bool
	Category      string
	tags          []string
	AddedAt       time.Time
	DownloadLimit int64
	UploadLimit   int64
}

// Tags returns a copy of the torrent's tags.
func (s TorrentSnapshot) Tags() []string {
	return copyStrings(s.tags)
}

// Equal reports whether two snapshots have identical fields.
func (s TorrentSnapshot) Equal(o TorrentSnapshot) bool {
	if len(s.tags) != len(o.tags) {
		return false
	}
	for i := range s.tags {
		if s.tags[i] != o.tags[i] {
			return false
		}
	}
	return s.ID == o.ID &&
		s.Name == o.Name &&
		s.State == o.State &&
		s.Progress == o.Progress &&
		s.DownloadRate == o.DownloadRate &&
		s.UploadRate == o.UploadRate &&
		s.DownloadPeak == o.DownloadPeak &&
		s.DownloadAverage == o.DownloadAverage &&
		s.Seeds == o.Seeds &&
		s.Peers == o.Peers &&
		s.Connections == o.Connections &&
		s.QueuePosition == o.QueuePosition &&
		s.Priority == o.Priority &&
		s.TotalSize == o.TotalSize &&
		s.CompletedSize == o.CompletedSize &&
		s.TotalDownloaded == o.TotalDownloaded &&
		s.TotalUploaded == o.TotalUploaded &&
		s.Ratio == o.Ratio &&
		s.ETA == o.ETA &&
		s.SavePath == o.SavePath &&
		s.Error == o.Error &&
		s.HasMetadata == o.HasMetadata &&
		s.Category == o.Category &&
		s.AddedAt.Equal(o.AddedAt) &&
		s.DownloadLimit == o.DownloadLimit &&
		s.UploadLimit == o.UploadLimit
}

// WithTags returns a copy of s with the given tags.
func (s TorrentSnapshot) WithTags(tags []string) TorrentSnapshot {
	s.tags = copyStrings(tags)
	return s
}

// SessionStats are aggregate numbers for the whole session.
type SessionStats struct {
	Time            time.Time
	DownloadRate    int64
	UploadRate      int64
	DownloadPeak    int64
	UploadPeak      int64
	TotalDownloaded int64
	TotalUploaded   int64
	DHTNodes        int
	DiskCacheSize   int64
	DiskCacheUsed   int64
	Torrents        int
	// ScheduleRule is the index of the active bandwidth rule, or -1 if default limits apply.
	ScheduleRule int
}

// DetailData is the extended view of the selected torrent.
type DetailData struct {
	ID          engine.TorrentID
	Time        time.Time
	Files       []File
	Peers       []Peer
	Trackers    []Tracker
	Pieces      []engine.PieceState
	PieceLength int64
	// Download and upload history, oldest first.
	DownloadHistory []int64
	UploadHistory   []int64
}

// File of a torrent.
type File struct {
	Index    int
	Path     string
	Size     int64
	Progress float64
	Priority int
}

// Peer of a torrent.
type Peer struct {
	IP           string
	Port         int
	Client       string
	DownloadRate int64
	UploadRate   int64
	Progress     float64
	Flags        string
}

// Tracker of a torrent.
type Tracker struct {
	URL     string
	Tier    int
	Status  string
	Seeds   int
	Peers   int
	Message string
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
