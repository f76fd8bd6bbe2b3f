package alertpipeline

import (
	"time"

	"github.com/cenkalti/flux/engine"
	"github.com/gofrs/uuid"
)

// Effect is the result of translating a raw event.
// The set of effects is closed: SnapshotDirty, ResumeDirty, StoreResume,
// Finished, Removed, StorageMoved, PeerConnected, Notify and LogError.
type Effect interface {
	effect()
}

// SnapshotDirty marks a torrent whose snapshot changed.
type SnapshotDirty struct{ ID engine.TorrentID }

// ResumeDirty marks a torrent whose resume state must be saved.
type ResumeDirty struct{ ID engine.TorrentID }

// StoreResume carries resume data pushed by the engine.
type StoreResume struct {
	ID   engine.TorrentID
	Data []byte
}

// Finished is emitted once when a torrent completes downloading.
type Finished struct{ ID engine.TorrentID }

// Removed is emitted when the engine dropped a torrent.
type Removed struct{ ID engine.TorrentID }

// StorageMoved carries the new save path of a torrent.
type StorageMoved struct {
	ID   engine.TorrentID
	Path string
}

// PeerConnected is emitted for every new peer connection.
type PeerConnected struct {
	ID   engine.TorrentID
	Peer engine.Peer
}

// Notify is a user visible message.
type Notify struct{ Notification Notification }

// LogError is an error to be written to the log.
type LogError struct {
	ID      engine.TorrentID
	Message string
}

func (SnapshotDirty) effect() {}
func (ResumeDirty) effect()   {}
func (StoreResume) effect()   {}
func (Finished) effect()      {}
func (Removed) effect()       {}
func (StorageMoved) effect()  {}
func (PeerConnected) effect() {}
func (Notify) effect()        {}
func (LogError) effect()      {}

// Level of a notification.
type Level int

// Notification levels.
const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "unknown"
}

// Notification is a message to be shown to the user.
type Notification struct {
	ID        string
	TorrentID engine.TorrentID
	Time      time.Time
	Level     Level
	Title     string
	Message   string
}

// NewNotification returns a Notification with a fresh id.
func NewNotification(id engine.TorrentID, level Level, title, message string) Notification {
	return Notification{
		ID:        uuid.Must(uuid.NewV4()).String(),
		TorrentID: id,
		Time:      time.Now(),
		Level:     level,
		Title:     title,
		Message:   message,
	}
}
