package session

import (
	"sort"
	"time"

	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/internal/resumestore"
	"github.com/cenkalti/flux/internal/speedhistory"
	"github.com/cenkalti/flux/snapshot"
)

// Batch is the unit published to clients. A Batch must not be modified after it is received.
type Batch struct {
	// Seq increases by one with every published batch.
	Seq   uint64
	Stats snapshot.SessionStats
	// Torrents are ordered by queue position, then id.
	Torrents []snapshot.TorrentSnapshot
	// Detail of the selected torrent, nil if nothing is selected.
	Detail *snapshot.DetailData
	// Changed lists torrents whose state changed since the previous batch.
	Changed []engine.TorrentID
}

// Torrent returns the snapshot of a torrent in the batch.
func (b *Batch) Torrent(id engine.TorrentID) (snapshot.TorrentSnapshot, bool) {
	for _, t := range b.Torrents {
		if t.ID == id {
			return t, true
		}
	}
	return snapshot.TorrentSnapshot{}, false
}

func (w *Worker) handleStatsTick(now time.Time) {
	torrents := w.publish(now, true)
	w.checkRatio(torrents)
}

// publish builds a batch from the current engine state and sends it to clients.
// Speed history is sampled only on stats ticks so samples stay evenly spaced.
func (w *Worker) publish(now time.Time, sample bool) []snapshot.TorrentSnapshot {
	w.publishNow = false
	// Engines may refresh transfer rates while listing torrents.
	statuses := w.engine.Torrents()
	raw := w.engine.Stats()
	if sample {
		w.sessionHistory.Add(speedhistory.Sample{Time: now, Download: raw.DownloadRate, Upload: raw.UploadRate})
		w.metrics.SpeedDownload.Mark(raw.DownloadRate)
		w.metrics.SpeedUpload.Mark(raw.UploadRate)
	}
	torrents := make([]snapshot.TorrentSnapshot, 0, len(statuses))
	present := make(map[engine.TorrentID]struct{}, len(statuses))
	for _, st := range statuses {
		h := w.historyOf(st.ID)
		if sample {
			h.Add(speedhistory.Sample{Time: now, Download: st.DownloadRate, Upload: st.UploadRate})
		}
		torrents = append(torrents, snapshot.BuildTorrent(st, metaOf(w.records[st.ID]), h))
		present[st.ID] = struct{}{}
	}
	sort.SliceStable(torrents, func(i, j int) bool {
		if torrents[i].QueuePosition != torrents[j].QueuePosition {
			return torrents[i].QueuePosition < torrents[j].QueuePosition
		}
		return torrents[i].ID < torrents[j].ID
	})
	var changed []engine.TorrentID
	for id := range w.changed {
		if _, ok := present[id]; ok {
			changed = append(changed, id)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	clear(w.changed)
	// Histories of torrents that disappeared from the engine.
	for id := range w.histories {
		if _, ok := present[id]; !ok {
			delete(w.histories, id)
		}
	}
	w.seq++
	b := &Batch{
		Seq:      w.seq,
		Stats:    snapshot.BuildStats(raw, w.sessionHistory, now, w.activeLimits.Rule),
		Torrents: torrents,
		Detail:   w.buildDetail(now),
		Changed:  changed,
	}
	w.latest.Store(b)
	w.send(b)
	w.metrics.SnapshotsPublished.Inc(1)
	w.metrics.Torrents.Update(int64(len(torrents)))
	w.metrics.DirtyResume.Update(int64(len(w.dirty)))
	return torrents
}

// send puts b on the snapshot channel, replacing a batch that was not consumed yet.
func (w *Worker) send(b *Batch) {
	for {
		select {
		case w.snapshotC <- b:
			return
		default:
		}
		select {
		case <-w.snapshotC:
			w.metrics.SnapshotsCoalesced.Inc(1)
		default:
		}
	}
}

// buildDetail returns the detail of the selected torrent. It is built only for the selected one.
func (w *Worker) buildDetail(now time.Time) *snapshot.DetailData {
	if w.selected == "" {
		return nil
	}
	d, err := w.engine.Detail(w.selected)
	if err != nil {
		w.log.Debugf("cannot get detail of torrent %s: %s", w.selected, err)
		return nil
	}
	dd := snapshot.BuildDetail(w.selected, d, w.histories[w.selected], now)
	return &dd
}

func (w *Worker) checkRatio(torrents []snapshot.TorrentSnapshot) {
	if w.config.MaxRatio <= 0 {
		return
	}
	for _, t := range torrents {
		if t.State != snapshot.Seeding && t.State != snapshot.Completed {
			continue
		}
		if t.Ratio < w.config.MaxRatio {
			continue
		}
		if _, ok := w.ratioApplied[t.ID]; ok {
			continue
		}
		w.ratioApplied[t.ID] = struct{}{}
		w.runAction(t.ID, w.config.RatioAction, "share ratio reached")
	}
}

func metaOf(rec *resumestore.Record) snapshot.Meta {
	if rec == nil {
		return snapshot.Meta{}
	}
	return snapshot.Meta{Category: rec.Category, Tags: rec.Tags, AddedAt: rec.AddedAt}
}
