package anacrolixengine

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"github.com/cenkalti/flux/engine"
	"github.com/otiai10/copy"
)

var errMoving = errors.New("storage of torrent is being moved")

// move is a storage move in progress. The torrent is dropped from the client
// while its files are copied and added back when the copy finishes.
type move struct {
	from string
	to   string
	mi   metainfo.MetaInfo
	done chan error
}

// MoveStorage copies the files of a torrent to path in the background and
// removes the old files. The torrent is inactive until the copy finishes.
func (e *Engine) MoveStorage(id engine.TorrentID, path string) error {
	en, err := e.active(id)
	if err != nil {
		return err
	}
	if path == en.savePath {
		return nil
	}
	if !infoReady(en.t) {
		return engine.ErrNoMetadata
	}
	name := en.t.Name()
	m := &move{
		from: en.savePath,
		to:   path,
		mi:   en.t.Metainfo(),
		done: make(chan error, 1),
	}
	en.pendingPriorities = filePriorities(en.t)
	// Drop closes the files so the copy sees complete pieces.
	en.t.Drop()
	en.move = m
	go func() {
		m.done <- moveFiles(filepath.Join(m.from, name), filepath.Join(m.to, name))
	}()
	return nil
}

func moveFiles(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return err
	}
	// Same file system: a rename is enough.
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copy.Copy(src, dst); err != nil {
		_ = os.RemoveAll(dst)
		return err
	}
	return os.RemoveAll(src)
}

// checkMove adds the torrent back if its move has finished.
// It returns false while the files are being copied.
func (e *Engine) checkMove(id engine.TorrentID, en *entry) bool {
	var moveErr error
	select {
	case moveErr = <-en.move.done:
	default:
		return false
	}
	m := en.move
	en.move = nil
	savePath := m.to
	if moveErr != nil {
		savePath = m.from
	}
	if err := e.readd(en, m.mi, savePath); err != nil {
		e.log.Errorf("cannot add torrent %s back after moving storage: %s", id, err)
		e.emit(engine.RawEvent{Type: engine.EventTorrentError, TorrentID: id, Message: err.Error()})
		return true
	}
	if moveErr != nil {
		e.emit(engine.RawEvent{Type: engine.EventStorageMoveFailed, TorrentID: id, Message: moveErr.Error(), Path: savePath})
		return true
	}
	e.emit(engine.RawEvent{Type: engine.EventStorageMoved, TorrentID: id, Path: savePath})
	return true
}

func (e *Engine) readd(en *entry, mi metainfo.MetaInfo, savePath string) error {
	spec, err := torrent.TorrentSpecFromMetaInfoErr(&mi)
	if err != nil {
		return err
	}
	spec.Storage = storage.NewFile(savePath)
	t, _, err := e.client.AddTorrentSpec(spec)
	if err != nil {
		return err
	}
	en.t = t
	en.savePath = savePath
	en.hadInfo = false
	en.loaded = true
	en.peers = make(map[string]struct{})
	en.speed = speedSample{}
	en.rates = rates{}
	if en.paused {
		pauseTorrent(en)
	} else {
		resumeTorrent(en)
	}
	// Piece completion is kept per storage directory.
	go t.VerifyData()
	return nil
}

func filePriorities(t *torrent.Torrent) []int {
	files := t.Files()
	prios := make([]int, len(files))
	for i, f := range files {
		prios[i] = fromPiecePriority(f.Priority())
	}
	return prios
}

// waitMoves blocks until running copies finish so no file is left half written.
func (e *Engine) waitMoves() {
	for id, en := range e.torrents {
		if en.move == nil {
			continue
		}
		e.log.Infof("waiting for storage move of torrent %s", id)
		if err := <-en.move.done; err != nil {
			e.log.Errorf("cannot move storage of torrent %s: %s", id, err)
		}
	}
}
