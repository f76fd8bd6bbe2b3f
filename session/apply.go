package session

import (
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/internal/alertpipeline"
	"github.com/cenkalti/flux/internal/resumestore"
	"github.com/cenkalti/flux/snapshot"
)

// apply runs a single command against the engine.
// Errors are logged and reported as notifications, they never stop the worker.
func (w *Worker) apply(cmd Command) {
	err := w.applyCommand(cmd)
	if err != nil {
		w.metrics.CommandsFailed.Inc(1)
		w.log.Warningln(err)
		var ce *CommandError
		var id engine.TorrentID
		if errors.As(err, &ce) {
			id = ce.ID
		}
		w.notifications.Add(alertpipeline.NewNotification(id, alertpipeline.Warning, "Command failed", err.Error()))
		return
	}
	w.metrics.CommandsApplied.Inc(1)
}

func (w *Worker) applyCommand(cmd Command) error {
	switch c := cmd.(type) {
	case AddTorrent:
		id, err := w.addTorrent(c)
		if c.Result != nil {
			c.Result <- AddResult{ID: id, Err: err}
		}
		return wrapCommand(c, id, err)
	case RemoveTorrent:
		return wrapCommand(c, c.ID, w.removeTorrent(c.ID, c.DeleteFiles))
	case Pause:
		return wrapCommand(c, c.ID, w.setPaused(c.ID, true, false))
	case Resume:
		return wrapCommand(c, c.ID, w.setPaused(c.ID, false, false))
	case ForceResume:
		return wrapCommand(c, c.ID, w.setPaused(c.ID, false, true))
	case PauseAll:
		return w.forEach(func(id engine.TorrentID) error { return w.setPaused(id, true, false) })
	case ResumeAll:
		return w.forEach(func(id engine.TorrentID) error { return w.setPaused(id, false, false) })
	case SetPriority:
		return wrapCommand(c, c.ID, w.mutate(c.ID, func() error { return w.engine.SetPriority(c.ID, c.Priority) }))
	case SetFilePriority:
		return wrapCommand(c, c.ID, w.setFilePriority(c))
	case SetSpeedLimit:
		return wrapCommand(c, c.ID, w.setSpeedLimit(c))
	case MoveQueue:
		return wrapCommand(c, c.ID, w.moveQueue(c))
	case ForceRecheck:
		return wrapCommand(c, c.ID, w.mutate(c.ID, func() error { return w.engine.ForceRecheck(c.ID) }))
	case ForceReannounce:
		return wrapCommand(c, c.ID, w.engine.ForceReannounce(c.ID))
	case SetSequential:
		return wrapCommand(c, c.ID, w.mutate(c.ID, func() error { return w.engine.SetSequential(c.ID, c.On) }))
	case AddTracker:
		return wrapCommand(c, c.ID, w.mutate(c.ID, func() error { return w.engine.AddTracker(c.ID, c.URL) }))
	case RemoveTracker:
		return wrapCommand(c, c.ID, w.mutate(c.ID, func() error { return w.engine.RemoveTracker(c.ID, c.URL) }))
	case SetCategory:
		return wrapCommand(c, c.ID, w.updateRecord(c.ID, func(rec *resumestore.Record) { rec.Category = c.Category }))
	case SetTags:
		tags := append([]string(nil), c.Tags...)
		return wrapCommand(c, c.ID, w.updateRecord(c.ID, func(rec *resumestore.Record) { rec.Tags = tags }))
	case MoveStorage:
		if c.Path == "" {
			return wrapCommand(c, c.ID, newInputError("path is empty"))
		}
		return wrapCommand(c, c.ID, w.mutate(c.ID, func() error {
			if err := w.engine.MoveStorage(c.ID, c.Path); err != nil {
				return err
			}
			if rec, ok := w.records[c.ID]; ok {
				rec.SavePath = c.Path
			}
			return nil
		}))
	case SelectTorrent:
		w.selectTorrent(c)
		return nil
	case SetSchedule:
		if err := c.Schedule.Validate(); err != nil {
			return wrapCommand(c, "", &InputError{err: err})
		}
		w.schedule = c.Schedule
		w.applySchedule(time.Now(), false)
		w.publishNow = true
		return nil
	default:
		return newInputError("unknown command: %T", cmd)
	}
}

func wrapCommand(cmd Command, id engine.TorrentID, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: cmd.commandName(), ID: id, Err: err}
}

func (w *Worker) addTorrent(c AddTorrent) (engine.TorrentID, error) {
	if (len(c.Metainfo) == 0) == (c.MagnetURI == "") {
		return "", newInputError("exactly one of metainfo and magnet uri must be given")
	}
	savePath := c.SavePath
	if savePath == "" {
		savePath = w.config.DataDir
	}
	id, err := w.engine.Add(engine.AddParams{
		Metainfo:  c.Metainfo,
		MagnetURI: c.MagnetURI,
		SavePath:  savePath,
		Paused:    c.Paused,
	})
	if err != nil {
		return "", err
	}
	if _, ok := w.records[id]; ok {
		w.log.Infof("torrent %s is already added", id)
		return id, nil
	}
	rec := &resumestore.Record{
		ID:        id,
		Metainfo:  c.Metainfo,
		MagnetURI: c.MagnetURI,
		SavePath:  savePath,
		Category:  c.Category,
		Tags:      append([]string(nil), c.Tags...),
		AddedAt:   time.Now().UTC(),
		Paused:    c.Paused,
	}
	w.records[id] = rec
	// The record exists before any resume data, so the torrent is rechecked if we crash before the first save.
	if err = w.store.Write(rec); err != nil {
		w.log.Errorf("cannot write resume record of torrent %s: %s", id, err)
		w.metrics.ResumeWriteErrors.Inc(1)
	}
	w.dirty[id] = struct{}{}
	w.changed[id] = struct{}{}
	w.publishNow = true
	w.log.Infof("added torrent %s", id)
	return id, nil
}

func (w *Worker) removeTorrent(id engine.TorrentID, deleteFiles bool) error {
	if err := w.engine.Remove(id, deleteFiles); err != nil && !errors.Is(err, engine.ErrTorrentNotFound) {
		return err
	}
	_, known := w.records[id]
	if err := w.store.Delete(id); err != nil {
		w.log.Errorf("cannot delete resume record of torrent %s: %s", id, err)
	}
	w.forget(id)
	w.publishNow = true
	if !known {
		return engine.ErrTorrentNotFound
	}
	w.log.Infof("removed torrent %s", id)
	return nil
}

func (w *Worker) setPaused(id engine.TorrentID, paused, force bool) error {
	return w.mutate(id, func() error {
		var err error
		if paused {
			err = w.engine.Pause(id)
		} else {
			err = w.engine.Resume(id, force)
		}
		if err != nil {
			return err
		}
		if rec, ok := w.records[id]; ok {
			rec.Paused = paused
		}
		return nil
	})
}

func (w *Worker) setFilePriority(c SetFilePriority) error {
	switch c.Priority {
	case engine.PrioritySkip, engine.PriorityLow, engine.PriorityNormal, engine.PriorityHigh:
	default:
		return newInputError("invalid file priority: %d", c.Priority)
	}
	if c.Index < 0 {
		return newInputError("invalid file index: %d", c.Index)
	}
	return w.mutate(c.ID, func() error {
		if err := w.engine.SetFilePriority(c.ID, c.Index, c.Priority); err != nil {
			return err
		}
		if rec, ok := w.records[c.ID]; ok {
			if c.Index >= len(rec.FilePriorities) {
				prios := make([]int, c.Index+1)
				copy(prios, rec.FilePriorities)
				for i := len(rec.FilePriorities); i < len(prios); i++ {
					prios[i] = engine.PriorityNormal
				}
				rec.FilePriorities = prios
			}
			rec.FilePriorities[c.Index] = c.Priority
		}
		return nil
	})
}

func (w *Worker) setSpeedLimit(c SetSpeedLimit) error {
	if c.Download < 0 || c.Upload < 0 {
		return newInputError("speed limit cannot be negative")
	}
	if c.ID == "" {
		w.defaultLimits.Download, w.defaultLimits.Upload = c.Download, c.Upload
		w.applySchedule(time.Now(), false)
		w.publishNow = true
		return nil
	}
	return w.mutate(c.ID, func() error {
		if err := w.engine.SetTorrentLimits(c.ID, c.Download, c.Upload); err != nil {
			return err
		}
		if rec, ok := w.records[c.ID]; ok {
			rec.DownloadLimit, rec.UploadLimit = c.Download, c.Upload
		}
		return nil
	})
}

func (w *Worker) moveQueue(c MoveQueue) error {
	switch c.Dir {
	case engine.QueueTop, engine.QueueUp, engine.QueueDown, engine.QueueBottom:
	default:
		return newInputError("invalid queue direction: %d", c.Dir)
	}
	err := w.engine.MoveQueue(c.ID, c.Dir)
	if err != nil {
		return err
	}
	w.publishNow = true
	return nil
}

// mutate runs f and marks the torrent for saving and publishing if it succeeds.
func (w *Worker) mutate(id engine.TorrentID, f func() error) error {
	if err := f(); err != nil {
		return err
	}
	if _, ok := w.records[id]; ok {
		w.dirty[id] = struct{}{}
	}
	w.changed[id] = struct{}{}
	w.publishNow = true
	return nil
}

func (w *Worker) updateRecord(id engine.TorrentID, f func(rec *resumestore.Record)) error {
	rec, ok := w.records[id]
	if !ok {
		return engine.ErrTorrentNotFound
	}
	f(rec)
	w.dirty[id] = struct{}{}
	w.changed[id] = struct{}{}
	w.publishNow = true
	return nil
}

// forEach calls f for every known torrent in id order. It continues on error and returns the first one.
func (w *Worker) forEach(f func(id engine.TorrentID) error) error {
	ids := make([]engine.TorrentID, 0, len(w.records))
	for id := range w.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var first error
	for _, id := range ids {
		if err := f(id); err != nil {
			w.log.Warningf("torrent %s: %s", id, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (w *Worker) selectTorrent(c SelectTorrent) {
	w.selected = c.ID
	var d *snapshot.DetailData
	if c.ID != "" {
		d = w.buildDetail(time.Now())
	}
	if c.Response != nil {
		select {
		case c.Response <- d:
		default:
			w.log.Warningln("select response channel is full, dropping detail of", c.ID)
		}
	}
	w.publishNow = true
}
