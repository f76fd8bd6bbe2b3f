package session

import (
	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/internal/bwschedule"
	"github.com/cenkalti/flux/snapshot"
)

// Command is a request from a client to the worker.
// Commands are applied in the order they are submitted.
// A command value must not be modified after it is submitted.
type Command interface {
	commandName() string
}

// AddTorrent adds a new torrent. Exactly one of Metainfo and MagnetURI must be set.
type AddTorrent struct {
	Metainfo  []byte
	MagnetURI string
	// SavePath defaults to Config.DataDir.
	SavePath string
	Category string
	Tags     []string
	Paused   bool
	// Result receives the outcome if not nil. It must have buffer space for one value.
	Result chan<- AddResult
}

// AddResult is the outcome of AddTorrent.
type AddResult struct {
	ID  engine.TorrentID
	Err error
}

// RemoveTorrent removes a torrent and optionally its downloaded files.
type RemoveTorrent struct {
	ID          engine.TorrentID
	DeleteFiles bool
}

// Pause a torrent.
type Pause struct{ ID engine.TorrentID }

// Resume a paused torrent. It may stay queued.
type Resume struct{ ID engine.TorrentID }

// ForceResume starts a torrent ignoring the queue.
type ForceResume struct{ ID engine.TorrentID }

// PauseAll pauses every torrent.
type PauseAll struct{}

// ResumeAll resumes every torrent.
type ResumeAll struct{}

// SetPriority sets the bandwidth priority of a torrent.
type SetPriority struct {
	ID       engine.TorrentID
	Priority int
}

// SetFilePriority sets the priority of a single file. Priority is one of 0, 1, 4, 7.
type SetFilePriority struct {
	ID       engine.TorrentID
	Index    int
	Priority int
}

// SetSpeedLimit sets limits in bytes per second. An empty ID sets the default session limits.
type SetSpeedLimit struct {
	ID       engine.TorrentID
	Download int64
	Upload   int64
}

// MoveQueue moves a torrent in the queue.
type MoveQueue struct {
	ID  engine.TorrentID
	Dir engine.QueueDirection
}

// ForceRecheck verifies downloaded data of a torrent.
type ForceRecheck struct{ ID engine.TorrentID }

// ForceReannounce announces a torrent to its trackers immediately.
type ForceReannounce struct{ ID engine.TorrentID }

// SetSequential toggles in-order download of pieces.
type SetSequential struct {
	ID engine.TorrentID
	On bool
}

// AddTracker adds a tracker URL to a torrent.
type AddTracker struct {
	ID  engine.TorrentID
	URL string
}

// RemoveTracker removes a tracker URL from a torrent.
type RemoveTracker struct {
	ID  engine.TorrentID
	URL string
}

// SetCategory sets the category of a torrent.
type SetCategory struct {
	ID       engine.TorrentID
	Category string
}

// SetTags replaces the tags of a torrent.
type SetTags struct {
	ID   engine.TorrentID
	Tags []string
}

// MoveStorage moves the downloaded data of a torrent to another directory.
// The saved path is reverted if the engine reports that the move failed.
type MoveStorage struct {
	ID   engine.TorrentID
	Path string
}

// SelectTorrent selects the torrent whose DetailData is included in published batches.
// An empty ID clears the selection.
type SelectTorrent struct {
	ID engine.TorrentID
	// Response receives the detail of the torrent, or nil if it does not exist.
	// It must have buffer space for one value.
	Response chan<- *snapshot.DetailData
}

// SetSchedule replaces the bandwidth schedule.
type SetSchedule struct {
	Schedule bwschedule.Schedule
}

// Shutdown stops the worker after saving resume data of all changed torrents.
type Shutdown struct{}

func (AddTorrent) commandName() string      { return "add" }
func (RemoveTorrent) commandName() string   { return "remove" }
func (Pause) commandName() string           { return "pause" }
func (Resume) commandName() string          { return "resume" }
func (ForceResume) commandName() string     { return "force-resume" }
func (PauseAll) commandName() string        { return "pause-all" }
func (ResumeAll) commandName() string       { return "resume-all" }
func (SetPriority) commandName() string     { return "set-priority" }
func (SetFilePriority) commandName() string { return "set-file-priority" }
func (SetSpeedLimit) commandName() string   { return "set-speed-limit" }
func (MoveQueue) commandName() string       { return "move-queue" }
func (ForceRecheck) commandName() string    { return "recheck" }
func (ForceReannounce) commandName() string { return "reannounce" }
func (SetSequential) commandName() string   { return "set-sequential" }
func (AddTracker) commandName() string      { return "add-tracker" }
func (RemoveTracker) commandName() string   { return "remove-tracker" }
func (SetCategory) commandName() string     { return "set-category" }
func (SetTags) commandName() string         { return "set-tags" }
func (MoveStorage) commandName() string     { return "move-storage" }
func (SelectTorrent) commandName() string   { return "select" }
func (SetSchedule) commandName() string     { return "set-schedule" }
func (Shutdown) commandName() string        { return "shutdown" }
