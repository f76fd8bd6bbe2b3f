// Package engine defines the capability that the session worker drives.
// An Engine owns peer-to-peer transfer: peer wire protocol, piece selection, discovery and disk I/O.
// Implementations are not required to be safe for concurrent use; the session worker is the only caller.
package engine

import (
	"errors"
	"time"
)

var (
	// ErrTorrentNotFound is returned for operations on an unknown torrent.
	ErrTorrentNotFound = errors.New("torrent not found")
	// ErrUnsupported is returned when the engine cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported by engine")
	// ErrNoMetadata is returned when resume data is requested before the torrent has metadata.
	ErrNoMetadata = errors.New("torrent has no metadata yet")
)

// TorrentID is the hex encoded info hash of a torrent.
type TorrentID string

// QueueDirection is the direction of a queue move.
type QueueDirection int

// Queue directions.
const (
	QueueTop QueueDirection = iota
	QueueUp
	QueueDown
	QueueBottom
)

func (d QueueDirection) String() string {
	switch d {
	case QueueTop:
		return "top"
	case QueueUp:
		return "up"
	case QueueDown:
		return "down"
	case QueueBottom:
		return "bottom"
	}
	return "unknown"
}

// ParseQueueDirection returns the direction named by s.
func ParseQueueDirection(s string) (QueueDirection, error) {
	switch s {
	case "top":
		return QueueTop, nil
	case "up":
		return QueueUp, nil
	case "down":
		return QueueDown, nil
	case "bottom":
		return QueueBottom, nil
	}
	return 0, errors.New("invalid queue direction: " + s)
}

// File priorities.
const (
	PrioritySkip   = 0
	PriorityLow    = 1
	PriorityNormal = 4
	PriorityHigh   = 7
)

// Engine is the transfer engine capability.
type Engine interface {
	// PollAlerts returns all events accumulated since the previous call.
	PollAlerts() []RawEvent
	// Stats returns session-wide counters.
	Stats() RawStats
	// Torrents returns the current status of every torrent.
	Torrents() []TorrentStatus
	// Detail returns files, peers, trackers and pieces of a torrent.
	Detail(id TorrentID) (TorrentDetail, error)
	// ResumeData returns fresh resume bytes for a torrent.
	ResumeData(id TorrentID) ([]byte, error)

	Add(p AddParams) (TorrentID, error)
	Remove(id TorrentID, deleteFiles bool) error
	Pause(id TorrentID) error
	// Resume starts a paused torrent. Force bypasses queue management.
	Resume(id TorrentID, force bool) error
	SetPriority(id TorrentID, priority int) error
	SetFilePriority(id TorrentID, index int, priority int) error
	SetTorrentLimits(id TorrentID, download, upload int64) error
	SetSessionLimits(download, upload int64) error
	MoveQueue(id TorrentID, dir QueueDirection) error
	ForceRecheck(id TorrentID) error
	ForceReannounce(id TorrentID) error
	SetSequential(id TorrentID, on bool) error
	AddTracker(id TorrentID, url string) error
	RemoveTracker(id TorrentID, url string) error
	BanPeer(id TorrentID, addr string) error
	// MoveStorage moves downloaded data to another directory. The move may finish
	// later; the engine reports the outcome with a storage_moved or
	// storage_moved_failed event.
	MoveStorage(id TorrentID, path string) error
	Close() error
}

// AddParams describes a torrent to add.
// Exactly one of Metainfo and MagnetURI is set.
type AddParams struct {
	Metainfo   []byte
	MagnetURI  string
	SavePath   string
	ResumeData []byte
	Paused     bool
	// FilePriorities are applied once metadata is available.
	FilePriorities []int
	DownloadLimit  int64
	UploadLimit    int64
}

// TorrentStatus is the engine's view of one torrent at the time of the call.
type TorrentStatus struct {
	ID            TorrentID
	Name          string
	SavePath      string
	HasMetadata   bool
	Checking      bool
	Moving        bool
	Paused        bool
	AutoManaged   bool
	Finished      bool
	Seeding       bool
	Sequential    bool
	Error         string
	Progress      float64
	TotalSize     int64
	CompletedSize int64
	// TotalDownloaded and TotalUploaded are payload byte counters across the torrent lifetime.
	TotalDownloaded int64
	TotalUploaded   int64
	DownloadRate    int64
	UploadRate      int64
	Seeds           int
	Peers           int
	Connections     int
	QueuePosition   int
	Priority        int
	DownloadLimit   int64
	UploadLimit     int64
}

// RawStats are session-wide counters.
type RawStats struct {
	DownloadRate    int64
	UploadRate      int64
	TotalDownloaded int64
	TotalUploaded   int64
	DHTNodes        int
	DiskCacheSize   int64
	DiskCacheUsed   int64
	Torrents        int
}

// TorrentDetail is the extended view of a torrent.
type TorrentDetail struct {
	Files       []File
	Peers       []Peer
	Trackers    []Tracker
	Pieces      []PieceState
	PieceLength int64
}

// File inside a torrent.
type File struct {
	Index    int
	Path     string
	Size     int64
	Progress float64
	Priority int
}

// Peer connected to a torrent.
type Peer struct {
	Addr         string
	Port         int
	PeerID       string
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

// PieceState is the download state of a single piece.
type PieceState uint8

// Piece states.
const (
	PieceMissing PieceState = iota
	PieceDownloading
	PieceHave
)

// Raw event types emitted by engines.
const (
	EventTorrentAdded         = "torrent_added"
	EventTorrentRemoved       = "torrent_removed"
	EventTorrentFinished      = "torrent_finished"
	EventTorrentPaused        = "torrent_paused"
	EventTorrentResumed       = "torrent_resumed"
	EventTorrentError         = "torrent_error"
	EventStateChanged         = "state_changed"
	EventMetadataReceived     = "metadata_received"
	EventSaveResumeData       = "save_resume_data"
	EventSaveResumeDataFailed = "save_resume_data_failed"
	EventFileCompleted        = "file_completed"
	EventPeerConnect          = "peer_connect"
	EventTrackerError         = "tracker_error"
	EventListenSucceeded      = "listen_succeeded"
	EventListenFailed         = "listen_failed"
	EventStorageMoved         = "storage_moved"
	EventStorageMoveFailed    = "storage_moved_failed"
)

// RawEvent is an event as reported by the engine.
// The set of types is open; consumers must ignore types they do not know.
type RawEvent struct {
	Type      string
	TorrentID TorrentID
	Time      time.Time
	Message   string
	// ResumeData is set for save_resume_data events.
	ResumeData []byte
	// Peer is set for peer_connect events.
	Peer *Peer
	// FileIndex is set for file_completed events.
	FileIndex int
	// URL is set for tracker events.
	URL string
	// Path is set for storage_moved and storage_moved_failed events. It is where
	// the data is after the event.
	Path string
}
