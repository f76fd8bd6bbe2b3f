package session

import (
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/flux/engine"
)

func (w *Worker) handleResumeTick(now time.Time) {
	if len(w.dirty) == 0 {
		return
	}
	n := len(w.dirty)
	w.saveDirty()
	w.log.Debugf("saved resume data of %d torrents, %d remaining", n-len(w.dirty), len(w.dirty))
}

// saveDirty saves resume data of changed torrents in id order.
// A torrent that cannot be saved stays dirty and is tried again later.
func (w *Worker) saveDirty() {
	ids := make([]engine.TorrentID, 0, len(w.dirty))
	for id := range w.dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		w.saveResume(id)
	}
}

func (w *Worker) saveResume(id engine.TorrentID) {
	rec, ok := w.records[id]
	if !ok {
		delete(w.dirty, id)
		return
	}
	data, err := w.engine.ResumeData(id)
	if errors.Is(err, engine.ErrNoMetadata) {
		w.log.Debugln("torrent has no metadata yet, resume data not saved:", id)
		return
	}
	if err != nil {
		w.log.Warningf("cannot get resume data of torrent %s: %s", id, err)
		w.metrics.ResumeWriteErrors.Inc(1)
		return
	}
	rec.ResumeData = data
	w.writeRecord(id)
}

func (w *Worker) writeRecord(id engine.TorrentID) {
	rec := w.records[id]
	if err := w.store.Write(rec); err != nil {
		w.log.Errorf("cannot write resume record of torrent %s: %s", id, err)
		w.metrics.ResumeWriteErrors.Inc(1)
		w.dirty[id] = struct{}{}
		return
	}
	w.metrics.ResumeWrites.Inc(1)
	delete(w.dirty, id)
}
