// Package alertpipeline translates raw engine events into effects for the session worker.
//
// Events are translated one by one. A failing event is recorded and skipped; it never
// stops the translation of the rest of the batch. Unknown event types are ignored.
package alertpipeline

import (
	"errors"
	"fmt"

	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/internal/logger"
	"github.com/juju/ratelimit"
)

var (
	errMissingTorrentID = errors.New("event has no torrent id")
	errMissingPeer      = errors.New("peer_connect event has no peer")
	errEmptyResumeData  = errors.New("save_resume_data event has no data")
	errBadFileIndex     = errors.New("file_completed event has invalid file index")
	errMissingPath      = errors.New("storage event has no path")
)

// EventError is the error of a single event in a batch.
type EventError struct {
	Index     int
	Type      string
	TorrentID engine.TorrentID
	Err       error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("event #%d (%s, torrent %q): %s", e.Index, e.Type, e.TorrentID, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }

// Result of processing a batch of events.
type Result struct {
	Effects []Effect
	Errors  []error
	// Ignored is the number of events with an unknown type.
	Ignored int
}

// Handler translates a single event by calling emit zero or more times.
// Effects emitted by a handler that returns an error or panics are discarded.
type Handler func(ev engine.RawEvent, emit func(Effect)) error

// Pipeline holds the handlers for each event type.
type Pipeline struct {
	handlers   map[string]Handler
	log        logger.Logger
	logBucket  *ratelimit.Bucket
	suppressed int
}

// New returns a Pipeline with handlers for the standard event types.
func New() *Pipeline {
	p := &Pipeline{
		handlers: make(map[string]Handler),
		log:      logger.New("alerts"),
		// At most 10 error lines per second, bursts up to 20.
		logBucket: ratelimit.NewBucketWithRate(10, 20),
	}
	p.Register(engine.EventTorrentAdded, torrentScoped(handleAdded))
	p.Register(engine.EventTorrentRemoved, torrentScoped(handleRemoved))
	p.Register(engine.EventTorrentFinished, torrentScoped(handleFinished))
	p.Register(engine.EventTorrentPaused, torrentScoped(handleStateChanged))
	p.Register(engine.EventTorrentResumed, torrentScoped(handleStateChanged))
	p.Register(engine.EventStateChanged, torrentScoped(handleStateChanged))
	p.Register(engine.EventStorageMoved, torrentScoped(handleStorageMoved))
	p.Register(engine.EventStorageMoveFailed, torrentScoped(handleStorageMoveFailed))
	p.Register(engine.EventTorrentError, torrentScoped(handleTorrentError))
	p.Register(engine.EventMetadataReceived, torrentScoped(handleMetadata))
	p.Register(engine.EventSaveResumeData, torrentScoped(handleSaveResumeData))
	p.Register(engine.EventSaveResumeDataFailed, torrentScoped(handleSaveResumeDataFailed))
	p.Register(engine.EventFileCompleted, torrentScoped(handleFileCompleted))
	p.Register(engine.EventPeerConnect, torrentScoped(handlePeerConnect))
	p.Register(engine.EventTrackerError, torrentScoped(handleTrackerError))
	p.Register(engine.EventListenSucceeded, handleListenSucceeded)
	p.Register(engine.EventListenFailed, handleListenFailed)
	return p
}

// Register sets the handler for an event type, replacing the existing one.
func (p *Pipeline) Register(typ string, h Handler) {
	p.handlers[typ] = h
}

// Process translates a batch of events in order.
func (p *Pipeline) Process(events []engine.RawEvent) Result {
	var res Result
	for i, ev := range events {
		h, ok := p.handlers[ev.Type]
		if !ok {
			res.Ignored++
			continue
		}
		effects, err := p.translate(h, ev)
		if err != nil {
			err = &EventError{Index: i, Type: ev.Type, TorrentID: ev.TorrentID, Err: err}
			res.Errors = append(res.Errors, err)
			p.logError(err)
			continue
		}
		res.Effects = append(res.Effects, effects...)
	}
	return res
}

func (p *Pipeline) translate(h Handler, ev engine.RawEvent) (effects []Effect, err error) {
	defer func() {
		if r := recover(); r != nil {
			effects = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	err = h(ev, func(e Effect) { effects = append(effects, e) })
	if err != nil {
		return nil, err
	}
	return effects, nil
}

func (p *Pipeline) logError(err error) {
	if p.logBucket.TakeAvailable(1) == 0 {
		p.suppressed++
		return
	}
	if p.suppressed > 0 {
		p.log.Warningf("%d alert errors were not logged", p.suppressed)
		p.suppressed = 0
	}
	p.log.Errorln("cannot translate alert:", err)
}

func torrentScoped(h Handler) Handler {
	return func(ev engine.RawEvent, emit func(Effect)) error {
		if ev.TorrentID == "" {
			return errMissingTorrentID
		}
		return h(ev, emit)
	}
}

func handleAdded(ev engine.RawEvent, emit func(Effect)) error {
	emit(SnapshotDirty{ev.TorrentID})
	emit(ResumeDirty{ev.TorrentID})
	return nil
}

func handleRemoved(ev engine.RawEvent, emit func(Effect)) error {
	emit(SnapshotDirty{ev.TorrentID})
	emit(Removed{ev.TorrentID})
	return nil
}

func handleFinished(ev engine.RawEvent, emit func(Effect)) error {
	emit(SnapshotDirty{ev.TorrentID})
	emit(ResumeDirty{ev.TorrentID})
	emit(Finished{ev.TorrentID})
	emit(Notify{NewNotification(ev.TorrentID, Info, "Download complete", ev.Message)})
	return nil
}

func handleStateChanged(ev engine.RawEvent, emit func(Effect)) error {
	emit(SnapshotDirty{ev.TorrentID})
	emit(ResumeDirty{ev.TorrentID})
	return nil
}

func handleStorageMoved(ev engine.RawEvent, emit func(Effect)) error {
	if ev.Path == "" {
		return errMissingPath
	}
	emit(SnapshotDirty{ev.TorrentID})
	emit(StorageMoved{ID: ev.TorrentID, Path: ev.Path})
	emit(ResumeDirty{ev.TorrentID})
	return nil
}

// handleStorageMoveFailed restores the path the data was left in.
func handleStorageMoveFailed(ev engine.RawEvent, emit func(Effect)) error {
	if ev.Path == "" {
		return errMissingPath
	}
	emit(SnapshotDirty{ev.TorrentID})
	emit(StorageMoved{ID: ev.TorrentID, Path: ev.Path})
	emit(LogError{ID: ev.TorrentID, Message: "move storage failed: " + ev.Message})
	emit(Notify{NewNotification(ev.TorrentID, Error, "Move failed", ev.Message)})
	return nil
}

func handleTorrentError(ev engine.RawEvent, emit func(Effect)) error {
	emit(SnapshotDirty{ev.TorrentID})
	emit(LogError{ID: ev.TorrentID, Message: ev.Message})
	emit(Notify{NewNotification(ev.TorrentID, Error, "Torrent error", ev.Message)})
	return nil
}

func handleMetadata(ev engine.RawEvent, emit func(Effect)) error {
	emit(SnapshotDirty{ev.TorrentID})
	emit(ResumeDirty{ev.TorrentID})
	emit(Notify{NewNotification(ev.TorrentID, Info, "Metadata received", ev.Message)})
	return nil
}

func handleSaveResumeData(ev engine.RawEvent, emit func(Effect)) error {
	if len(ev.ResumeData) == 0 {
		return errEmptyResumeData
	}
	data := make([]byte, len(ev.ResumeData))
	copy(data, ev.ResumeData)
	emit(StoreResume{ID: ev.TorrentID, Data: data})
	return nil
}

func handleSaveResumeDataFailed(ev engine.RawEvent, emit func(Effect)) error {
	emit(ResumeDirty{ev.TorrentID})
	emit(LogError{ID: ev.TorrentID, Message: "save resume data failed: " + ev.Message})
	return nil
}

func handleFileCompleted(ev engine.RawEvent, emit func(Effect)) error {
	if ev.FileIndex < 0 {
		return errBadFileIndex
	}
	emit(SnapshotDirty{ev.TorrentID})
	return nil
}

func handlePeerConnect(ev engine.RawEvent, emit func(Effect)) error {
	if ev.Peer == nil {
		return errMissingPeer
	}
	emit(PeerConnected{ID: ev.TorrentID, Peer: *ev.Peer})
	return nil
}

func handleTrackerError(ev engine.RawEvent, emit func(Effect)) error {
	emit(SnapshotDirty{ev.TorrentID})
	emit(Notify{NewNotification(ev.TorrentID, Warning, "Tracker error", ev.URL+": "+ev.Message)})
	return nil
}

func handleListenSucceeded(ev engine.RawEvent, emit func(Effect)) error {
	emit(Notify{NewNotification("", Info, "Listening", ev.Message)})
	return nil
}

func handleListenFailed(ev engine.RawEvent, emit func(Effect)) error {
	emit(LogError{Message: "listen failed: " + ev.Message})
	emit(Notify{NewNotification("", Error, "Listen failed", ev.Message)})
	return nil
}
