// Package enginetest provides an in-memory Engine for tests.
package enginetest

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/cenkalti/flux/engine"
)

// Engine is a scriptable engine.Engine. All methods are safe for concurrent use
// so tests can inspect it while a worker is running.
type Engine struct {
	m        sync.Mutex
	torrents map[engine.TorrentID]*engine.TorrentStatus
	details  map[engine.TorrentID]engine.TorrentDetail
	queue    []engine.TorrentID
	events   []engine.RawEvent
	calls    []string
	stats    engine.RawStats
	resumeN  map[engine.TorrentID]int
	closed   bool

	// Session rates summed by the last Torrents call.
	ratesFromTorrents bool
	sampled           engine.RawStats

	sessionDownload int64
	sessionUpload   int64

	resumeErr map[engine.TorrentID]error
	callErr   map[string]error
	blocks    map[string]*block
}

type block struct {
	entered chan struct{}
	release chan struct{}
}

var _ engine.Engine = (*Engine)(nil)

// New returns an empty Engine.
func New() *Engine {
	return &Engine{
		torrents:  make(map[engine.TorrentID]*engine.TorrentStatus),
		details:   make(map[engine.TorrentID]engine.TorrentDetail),
		resumeN:   make(map[engine.TorrentID]int),
		resumeErr: make(map[engine.TorrentID]error),
		callErr:   make(map[string]error),
		blocks:    make(map[string]*block),
	}
}

// IDFor returns the id the engine assigns to a torrent added with p.
func IDFor(p engine.AddParams) engine.TorrentID {
	if i := strings.Index(p.MagnetURI, "xt=urn:btih:"); i >= 0 {
		s := p.MagnetURI[i+len("xt=urn:btih:"):]
		if j := strings.IndexByte(s, '&'); j >= 0 {
			s = s[:j]
		}
		return engine.TorrentID(strings.ToLower(s))
	}
	sum := sha1.Sum(p.Metainfo)
	return engine.TorrentID(hex.EncodeToString(sum[:]))
}

// SetResumeErr makes ResumeData fail for a torrent. A nil error clears the failure.
func (e *Engine) SetResumeErr(id engine.TorrentID, err error) {
	e.m.Lock()
	e.resumeErr[id] = err
	e.m.Unlock()
}

// SetCallErr makes the named operation ("add", "pause", "resume", ...) fail.
func (e *Engine) SetCallErr(name string, err error) {
	e.m.Lock()
	e.callErr[name] = err
	e.m.Unlock()
}

// Block makes the next call of the named operation wait until release is called.
// entered is closed when the call starts waiting.
func (e *Engine) Block(name string) (entered <-chan struct{}, release func()) {
	b := &block{entered: make(chan struct{}), release: make(chan struct{})}
	e.m.Lock()
	e.blocks[name] = b
	e.m.Unlock()
	var once sync.Once
	return b.entered, func() { once.Do(func() { close(b.release) }) }
}

func (e *Engine) wait(name string) {
	e.m.Lock()
	b, ok := e.blocks[name]
	delete(e.blocks, name)
	e.m.Unlock()
	if !ok {
		return
	}
	close(b.entered)
	<-b.release
}

// Calls returns the log of mutating calls in order, like "pause:<id>".
func (e *Engine) Calls() []string {
	e.m.Lock()
	defer e.m.Unlock()
	return append([]string(nil), e.calls...)
}

// Emit queues an event for the next PollAlerts call.
func (e *Engine) Emit(ev ...engine.RawEvent) {
	e.m.Lock()
	e.events = append(e.events, ev...)
	e.m.Unlock()
}

// Update calls f with the status of a torrent.
func (e *Engine) Update(id engine.TorrentID, f func(st *engine.TorrentStatus)) {
	e.m.Lock()
	defer e.m.Unlock()
	if st, ok := e.torrents[id]; ok {
		f(st)
	}
}

// SetStats sets the value returned from Stats.
func (e *Engine) SetStats(s engine.RawStats) {
	e.m.Lock()
	e.stats = s
	e.m.Unlock()
}

// SetDetail sets the value returned from Detail.
// RatesFromTorrents makes Stats report the sum of the torrent rates seen by the
// last Torrents call instead of the rates given to SetStats.
func (e *Engine) RatesFromTorrents() {
	e.m.Lock()
	e.ratesFromTorrents = true
	e.m.Unlock()
}

func (e *Engine) SetDetail(id engine.TorrentID, d engine.TorrentDetail) {
	e.m.Lock()
	e.details[id] = d
	e.m.Unlock()
}

// Has returns true if the torrent exists.
func (e *Engine) Has(id engine.TorrentID) bool {
	e.m.Lock()
	defer e.m.Unlock()
	_, ok := e.torrents[id]
	return ok
}

// Status returns a copy of a torrent's status.
func (e *Engine) Status(id engine.TorrentID) (engine.TorrentStatus, bool) {
	e.m.Lock()
	defer e.m.Unlock()
	st, ok := e.torrents[id]
	if !ok {
		return engine.TorrentStatus{}, false
	}
	return *st, true
}

// SessionLimits returns the last limits set with SetSessionLimits.
func (e *Engine) SessionLimits() (download, upload int64) {
	e.m.Lock()
	defer e.m.Unlock()
	return e.sessionDownload, e.sessionUpload
}

// ResumeDataCalls returns how many times ResumeData was called for a torrent.
func (e *Engine) ResumeDataCalls(id engine.TorrentID) int {
	e.m.Lock()
	defer e.m.Unlock()
	return e.resumeN[id]
}

// Closed returns true after Close is called.
func (e *Engine) Closed() bool {
	e.m.Lock()
	defer e.m.Unlock()
	return e.closed
}

func (e *Engine) PollAlerts() []engine.RawEvent {
	e.m.Lock()
	defer e.m.Unlock()
	events := e.events
	e.events = nil
	return events
}

func (e *Engine) Stats() engine.RawStats {
	e.m.Lock()
	defer e.m.Unlock()
	s := e.stats
	s.Torrents = len(e.torrents)
	if e.ratesFromTorrents {
		s.DownloadRate, s.UploadRate = e.sampled.DownloadRate, e.sampled.UploadRate
	}
	return s
}

func (e *Engine) Torrents() []engine.TorrentStatus {
	e.m.Lock()
	defer e.m.Unlock()
	out := make([]engine.TorrentStatus, 0, len(e.queue))
	e.sampled = engine.RawStats{}
	for i, id := range e.queue {
		st := *e.torrents[id]
		st.QueuePosition = i
		e.sampled.DownloadRate += st.DownloadRate
		e.sampled.UploadRate += st.UploadRate
		out = append(out, st)
	}
	return out
}

func (e *Engine) Detail(id engine.TorrentID) (engine.TorrentDetail, error) {
	e.m.Lock()
	defer e.m.Unlock()
	if _, ok := e.torrents[id]; !ok {
		return engine.TorrentDetail{}, engine.ErrTorrentNotFound
	}
	return e.details[id], nil
}

func (e *Engine) ResumeData(id engine.TorrentID) ([]byte, error) {
	e.m.Lock()
	defer e.m.Unlock()
	e.resumeN[id]++
	if err := e.resumeErr[id]; err != nil {
		return nil, err
	}
	if _, ok := e.torrents[id]; !ok {
		return nil, engine.ErrTorrentNotFound
	}
	return []byte(fmt.Sprintf("resume-%s-%d", id, e.resumeN[id])), nil
}

func (e *Engine) Add(p engine.AddParams) (engine.TorrentID, error) {
	e.wait("add")
	e.m.Lock()
	defer e.m.Unlock()
	if err := e.callErr["add"]; err != nil {
		return "", err
	}
	id := IDFor(p)
	e.calls = append(e.calls, "add:"+string(id))
	if _, ok := e.torrents[id]; ok {
		return id, nil
	}
	e.torrents[id] = &engine.TorrentStatus{
		ID:            id,
		Name:          string(id),
		SavePath:      p.SavePath,
		HasMetadata:   len(p.Metainfo) > 0,
		Checking:      len(p.ResumeData) == 0 && len(p.Metainfo) > 0,
		Paused:        p.Paused,
		DownloadLimit: p.DownloadLimit,
		UploadLimit:   p.UploadLimit,
	}
	e.queue = append(e.queue, id)
	e.events = append(e.events, engine.RawEvent{Type: engine.EventTorrentAdded, TorrentID: id})
	return id, nil
}

func (e *Engine) Remove(id engine.TorrentID, deleteFiles bool) error {
	return e.mutate("remove", id, func(*engine.TorrentStatus) error {
		delete(e.torrents, id)
		delete(e.details, id)
		for i, x := range e.queue {
			if x == id {
				e.queue = append(e.queue[:i], e.queue[i+1:]...)
				break
			}
		}
		e.events = append(e.events, engine.RawEvent{Type: engine.EventTorrentRemoved, TorrentID: id})
		return nil
	})
}

func (e *Engine) Pause(id engine.TorrentID) error {
	return e.mutate("pause", id, func(st *engine.TorrentStatus) error {
		st.Paused = true
		return nil
	})
}

func (e *Engine) Resume(id engine.TorrentID, force bool) error {
	name := "resume"
	if force {
		name = "force_resume"
	}
	return e.mutate(name, id, func(st *engine.TorrentStatus) error {
		st.Paused = false
		st.AutoManaged = !force
		return nil
	})
}

func (e *Engine) SetPriority(id engine.TorrentID, priority int) error {
	return e.mutate("priority", id, func(st *engine.TorrentStatus) error {
		st.Priority = priority
		return nil
	})
}

func (e *Engine) SetFilePriority(id engine.TorrentID, index int, priority int) error {
	return e.mutate("file_priority", id, func(*engine.TorrentStatus) error {
		d := e.details[id]
		if index < 0 || index >= len(d.Files) {
			return fmt.Errorf("file index out of range: %d", index)
		}
		d.Files[index].Priority = priority
		return nil
	})
}

func (e *Engine) SetTorrentLimits(id engine.TorrentID, download, upload int64) error {
	return e.mutate("torrent_limits", id, func(st *engine.TorrentStatus) error {
		st.DownloadLimit, st.UploadLimit = download, upload
		return nil
	})
}

func (e *Engine) SetSessionLimits(download, upload int64) error {
	e.m.Lock()
	defer e.m.Unlock()
	e.calls = append(e.calls, fmt.Sprintf("session_limits:%d/%d", download, upload))
	e.sessionDownload, e.sessionUpload = download, upload
	return nil
}

func (e *Engine) MoveQueue(id engine.TorrentID, dir engine.QueueDirection) error {
	return e.mutate("queue_"+dir.String(), id, func(*engine.TorrentStatus) error {
		i := 0
		for i < len(e.queue) && e.queue[i] != id {
			i++
		}
		q := append(e.queue[:i:i], e.queue[i+1:]...)
		var to int
		switch dir {
		case engine.QueueTop:
			to = 0
		case engine.QueueUp:
			to = max(i-1, 0)
		case engine.QueueDown:
			to = min(i+1, len(q))
		case engine.QueueBottom:
			to = len(q)
		}
		q = append(q, "")
		copy(q[to+1:], q[to:])
		q[to] = id
		e.queue = q
		return nil
	})
}

func (e *Engine) ForceRecheck(id engine.TorrentID) error {
	return e.mutate("recheck", id, func(st *engine.TorrentStatus) error {
		st.Checking = true
		return nil
	})
}

func (e *Engine) ForceReannounce(id engine.TorrentID) error {
	return e.mutate("reannounce", id, nil)
}

func (e *Engine) SetSequential(id engine.TorrentID, on bool) error {
	return e.mutate("sequential", id, func(st *engine.TorrentStatus) error {
		st.Sequential = on
		return nil
	})
}

func (e *Engine) AddTracker(id engine.TorrentID, url string) error {
	return e.mutate("add_tracker", id, func(*engine.TorrentStatus) error {
		d := e.details[id]
		d.Trackers = append(d.Trackers, engine.Tracker{URL: url})
		e.details[id] = d
		return nil
	})
}

func (e *Engine) RemoveTracker(id engine.TorrentID, url string) error {
	return e.mutate("remove_tracker", id, func(*engine.TorrentStatus) error {
		d := e.details[id]
		for i, t := range d.Trackers {
			if t.URL == url {
				d.Trackers = append(d.Trackers[:i], d.Trackers[i+1:]...)
				break
			}
		}
		e.details[id] = d
		return nil
	})
}

func (e *Engine) BanPeer(id engine.TorrentID, addr string) error {
	return e.mutate("ban:"+addr, id, nil)
}

// MoveStorage completes at once and queues a storage_moved event.
func (e *Engine) MoveStorage(id engine.TorrentID, path string) error {
	return e.mutate("move_storage", id, func(st *engine.TorrentStatus) error {
		st.SavePath = path
		e.events = append(e.events, engine.RawEvent{Type: engine.EventStorageMoved, TorrentID: id, Path: path})
		return nil
	})
}

func (e *Engine) Close() error {
	e.m.Lock()
	defer e.m.Unlock()
	e.closed = true
	e.calls = append(e.calls, "close")
	return nil
}

func (e *Engine) mutate(name string, id engine.TorrentID, f func(*engine.TorrentStatus) error) error {
	e.wait(name)
	e.m.Lock()
	defer e.m.Unlock()
	e.calls = append(e.calls, name+":"+string(id))
	if err := e.callErr[name]; err != nil {
		return err
	}
	st, ok := e.torrents[id]
	if !ok {
		return engine.ErrTorrentNotFound
	}
	if f == nil {
		return nil
	}
	return f(st)
}
