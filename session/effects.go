package session

import (
	"errors"
	"time"

	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/internal/alertpipeline"
)

func (w *Worker) handleAlertTick(now time.Time) {
	events := w.engine.PollAlerts()
	if len(events) == 0 {
		return
	}
	res := w.pipeline.Process(events)
	w.metrics.AlertErrors.Inc(int64(len(res.Errors)))
	w.metrics.AlertsIgnored.Inc(int64(res.Ignored))
	for _, e := range res.Effects {
		w.handleEffect(e)
	}
}

func (w *Worker) handleEffect(e alertpipeline.Effect) {
	switch e := e.(type) {
	case alertpipeline.SnapshotDirty:
		if _, ok := w.records[e.ID]; ok {
			w.changed[e.ID] = struct{}{}
		}
	case alertpipeline.ResumeDirty:
		if _, ok := w.records[e.ID]; ok {
			w.dirty[e.ID] = struct{}{}
		}
	case alertpipeline.StoreResume:
		rec, ok := w.records[e.ID]
		if !ok {
			return
		}
		rec.ResumeData = e.Data
		w.writeRecord(e.ID)
	case alertpipeline.Finished:
		if _, ok := w.finished[e.ID]; ok {
			return
		}
		if _, ok := w.records[e.ID]; !ok {
			return
		}
		w.finished[e.ID] = struct{}{}
		w.runAction(e.ID, w.config.OnComplete, "download complete")
	case alertpipeline.Removed:
		if _, ok := w.records[e.ID]; !ok {
			return
		}
		// Removed by the engine itself.
		if err := w.store.Delete(e.ID); err != nil {
			w.log.Errorf("cannot delete resume record of torrent %s: %s", e.ID, err)
		}
		w.forget(e.ID)
		w.publishNow = true
	case alertpipeline.StorageMoved:
		rec, ok := w.records[e.ID]
		if !ok {
			return
		}
		if rec.SavePath != e.Path {
			w.log.Infof("save path of torrent %s is %s", e.ID, e.Path)
			rec.SavePath = e.Path
		}
		w.writeRecord(e.ID)
	case alertpipeline.PeerConnected:
		w.checkPeer(e.ID, e.Peer)
	case alertpipeline.Notify:
		w.notifications.Add(e.Notification)
	case alertpipeline.LogError:
		if e.ID == "" {
			w.log.Errorln(e.Message)
		} else {
			w.log.Errorf("torrent %s: %s", e.ID, e.Message)
		}
	}
}

func (w *Worker) checkPeer(id engine.TorrentID, p engine.Peer) {
	banned, reason := w.filter.Check(p.PeerID, p.Client, p.Addr)
	if !banned {
		return
	}
	w.metrics.PeersBanned.Inc(1)
	w.log.Infof("banning peer %s (%s) of torrent %s: %s", p.Addr, p.Client, id, reason)
	if err := w.engine.BanPeer(id, p.Addr); err != nil && !errors.Is(err, engine.ErrTorrentNotFound) {
		w.log.Warningf("cannot ban peer %s: %s", p.Addr, err)
	}
}

// runAction applies a completion or ratio action to a torrent.
func (w *Worker) runAction(id engine.TorrentID, action Action, reason string) {
	var err error
	switch action {
	case ActionPause:
		err = w.setPaused(id, true, false)
	case ActionRemove:
		err = w.removeTorrent(id, false)
	default:
		return
	}
	if err != nil {
		w.log.Warningf("cannot %s torrent %s after %s: %s", action, id, reason, err)
		return
	}
	w.log.Infof("torrent %s: %s, action: %s", id, reason, action)
	w.notifications.Add(alertpipeline.NewNotification(id, alertpipeline.Info, "Torrent "+actionPastTense(action), reason))
}

func actionPastTense(a Action) string {
	switch a {
	case ActionPause:
		return "paused"
	case ActionRemove:
		return "removed"
	}
	return string(a)
}
