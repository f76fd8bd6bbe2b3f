// Package session runs the worker that owns the torrent engine.
//
// A single goroutine applies commands, polls engine alerts, publishes snapshots,
// persists resume data and evaluates the bandwidth schedule. Clients talk to it
// only through Submit and the snapshot channel.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/internal/alertpipeline"
	"github.com/cenkalti/flux/internal/bwschedule"
	"github.com/cenkalti/flux/internal/logger"
	"github.com/cenkalti/flux/internal/peerfilter"
	"github.com/cenkalti/flux/internal/resumestore"
	"github.com/cenkalti/flux/internal/speedhistory"
)

// OpenEngineFunc creates the engine. It is retried until Config.EngineStartTimeout elapses.
type OpenEngineFunc func(cfg Config) (engine.Engine, error)

// Worker is the single owner of the engine and the resume store.
type Worker struct {
	config   Config
	engine   engine.Engine
	store    *resumestore.Store
	pipeline *alertpipeline.Pipeline
	filter   *peerfilter.Filter
	log      logger.Logger
	metrics  *workerMetrics
	rpc      *rpcServer

	commandC  chan Command
	snapshotC chan *Batch
	latest    atomic.Pointer[Batch]

	notifications *notificationLog

	createdAt time.Time
	closeOnce sync.Once
	closeC    chan struct{}
	doneC     chan struct{}

	// Fields below are accessed only from the run goroutine.
	records        map[engine.TorrentID]*resumestore.Record
	dirty          map[engine.TorrentID]struct{}
	histories      map[engine.TorrentID]*speedhistory.History
	sessionHistory *speedhistory.History
	finished       map[engine.TorrentID]struct{}
	ratioApplied   map[engine.TorrentID]struct{}
	changed        map[engine.TorrentID]struct{}
	selected       engine.TorrentID
	schedule       bwschedule.Schedule
	defaultLimits  bwschedule.Limits
	activeLimits   bwschedule.Limits
	limitsApplied  bool
	publishNow     bool
	seq            uint64
}

// New opens the resume store and the engine, re-adds saved torrents and starts the worker goroutine.
// A *resumestore.SchemaError is returned unchanged if the database was written by a newer version.
func New(cfg Config, open OpenEngineFunc) (*Worker, error) {
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	l := logger.New("session")
	if cfg.MaxOpenFiles > 0 {
		if err := setNoFile(cfg.MaxOpenFiles); err != nil {
			l.Warningf("cannot set open file limit to %d: %s", cfg.MaxOpenFiles, err)
		}
	}
	store, err := resumestore.Open(cfg.Database, cfg.DatabaseOpenTimeout)
	if err != nil {
		return nil, err
	}
	e, err := openEngine(cfg, open, l)
	if err != nil {
		store.Close()
		return nil, err
	}
	filter, err := peerfilter.New(cfg.PeerFilter)
	if err != nil {
		e.Close()
		store.Close()
		return nil, err
	}
	interval := cfg.StatsInterval
	w := &Worker{
		config:         cfg,
		engine:         e,
		store:          store,
		pipeline:       alertpipeline.New(),
		filter:         filter,
		log:            l,
		commandC:       make(chan Command, cfg.CommandQueueSize),
		snapshotC:      make(chan *Batch, 1),
		notifications:  newNotificationLog(cfg.NotificationLogSize),
		createdAt:      time.Now(),
		closeC:         make(chan struct{}),
		doneC:          make(chan struct{}),
		records:        make(map[engine.TorrentID]*resumestore.Record),
		dirty:          make(map[engine.TorrentID]struct{}),
		histories:      make(map[engine.TorrentID]*speedhistory.History),
		sessionHistory: speedhistory.New(cfg.SpeedHistoryWindow, interval),
		finished:       make(map[engine.TorrentID]struct{}),
		ratioApplied:   make(map[engine.TorrentID]struct{}),
		changed:        make(map[engine.TorrentID]struct{}),
		schedule:       cfg.BandwidthSchedule,
		defaultLimits:  bwschedule.Limits{Download: cfg.MaxDownloadSpeed, Upload: cfg.MaxUploadSpeed, Rule: -1},
	}
	w.metrics = newWorkerMetrics(w)
	if err = w.loadExistingTorrents(); err != nil {
		w.metrics.Close()
		e.Close()
		store.Close()
		return nil, err
	}
	w.applySchedule(time.Now(), true)
	if cfg.RPCEnabled {
		w.rpc = newRPCServer(w)
		if err = w.rpc.Start(cfg.RPCHost, cfg.RPCPort); err != nil {
			w.metrics.Close()
			e.Close()
			store.Close()
			return nil, err
		}
	}
	go w.run()
	return w, nil
}

func openEngine(cfg Config, open OpenEngineFunc, l logger.Logger) (engine.Engine, error) {
	var e engine.Engine
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = cfg.EngineStartTimeout
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = time.Millisecond
	}
	err := backoff.RetryNotify(func() error {
		var err error
		e, err = open(cfg)
		return err
	}, bo, func(err error, d time.Duration) {
		l.Warningf("cannot create engine, retrying in %s: %s", d, err)
	})
	return e, err
}

// loadExistingTorrents re-adds every saved torrent to the engine.
// Torrents without usable resume data are verified from disk.
func (w *Worker) loadExistingTorrents() error {
	records, bad, err := w.store.List()
	if err != nil {
		return err
	}
	for id, err := range bad {
		w.log.Errorf("cannot decode resume record of torrent %s: %s", id, err)
	}
	var loaded int
	for _, rec := range records {
		recheck := resumestore.RecheckRequired(rec, nil)
		p := engine.AddParams{
			Metainfo:       rec.Metainfo,
			MagnetURI:      rec.MagnetURI,
			SavePath:       rec.SavePath,
			ResumeData:     rec.ResumeData,
			Paused:         rec.Paused,
			FilePriorities: rec.FilePriorities,
			DownloadLimit:  rec.DownloadLimit,
			UploadLimit:    rec.UploadLimit,
		}
		id, err := w.engine.Add(p)
		if err != nil {
			w.log.Errorf("cannot load torrent %s: %s", rec.ID, err)
			continue
		}
		if id != rec.ID {
			w.log.Warningf("torrent %s was loaded with id %s", rec.ID, id)
			rec.ID = id
		}
		w.records[id] = rec
		if recheck {
			w.log.Infof("torrent %s has no resume data, recheck required", id)
			if err = w.engine.ForceRecheck(id); err != nil && !errors.Is(err, engine.ErrUnsupported) {
				w.log.Warningf("cannot recheck torrent %s: %s", id, err)
			}
			w.dirty[id] = struct{}{}
		}
		loaded++
	}
	w.log.Infof("loaded %d existing torrents", loaded)
	return nil
}

// Submit sends a command to the worker. If the command queue is full it waits for
// Config.CommandTimeout and then returns ErrCommandQueueFull.
func (w *Worker) Submit(ctx context.Context, cmd Command) error {
	select {
	case <-w.closeC:
		return ErrClosed
	default:
	}
	select {
	case w.commandC <- cmd:
		return nil
	default:
	}
	timer := time.NewTimer(w.config.CommandTimeout)
	defer timer.Stop()
	select {
	case w.commandC <- cmd:
		return nil
	case <-w.closeC:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		w.metrics.CommandsRejected.Inc(1)
		return ErrCommandQueueFull
	}
}

// Snapshots returns the channel of published batches. Only the most recent
// unconsumed batch is kept. The channel is closed after the worker stops.
func (w *Worker) Snapshots() <-chan *Batch {
	return w.snapshotC
}

// Latest returns the last published batch, or nil if nothing was published yet.
func (w *Worker) Latest() *Batch {
	return w.latest.Load()
}

// Notifications returns recent notifications, oldest first.
func (w *Worker) Notifications() []alertpipeline.Notification {
	return w.notifications.List()
}

// BanLog returns the peers banned by the peer filter.
func (w *Worker) BanLog() []peerfilter.Ban {
	return w.filter.BanLog()
}

// Done is closed when the worker goroutine exits.
func (w *Worker) Done() <-chan struct{} {
	return w.doneC
}

// Close stops the worker, saves resume data of changed torrents and closes the engine.
func (w *Worker) Close() error {
	if w.rpc != nil {
		if err := w.rpc.Stop(w.config.RPCShutdownTimeout); err != nil {
			w.log.Errorln("cannot stop rpc server:", err)
		}
	}
	select {
	case w.commandC <- Shutdown{}:
	case <-w.closeC:
	}
	<-w.doneC
	return nil
}

func (w *Worker) run() {
	defer close(w.doneC)
	timers := newTimerSet(time.Now(),
		timerSpec{"alerts", w.config.AlertInterval, w.handleAlertTick},
		timerSpec{"stats", w.config.StatsInterval, w.handleStatsTick},
		timerSpec{"resume", w.config.ResumeSaveInterval, w.handleResumeTick},
		timerSpec{"schedule", w.config.ScheduleInterval, w.handleScheduleTick},
	)
	wait := time.NewTimer(timers.untilNext(time.Now()))
	defer wait.Stop()
	var pending Command
	for {
		if pending != nil {
			if stop := w.drain(pending); stop {
				w.shutdown()
				return
			}
			pending = nil
		}
		timers.fire()
		if w.publishNow {
			w.publish(time.Now(), false)
		}
		if !wait.Stop() {
			select {
			case <-wait.C:
			default:
			}
		}
		wait.Reset(timers.untilNext(time.Now()))
		select {
		case cmd := <-w.commandC:
			pending = cmd
		case <-wait.C:
		}
	}
}

// drain applies cmd and then up to CommandBatch-1 more queued commands without blocking.
// It returns true if a Shutdown command was received.
func (w *Worker) drain(cmd Command) bool {
	for i := 0; ; i++ {
		if _, ok := cmd.(Shutdown); ok {
			return true
		}
		w.apply(cmd)
		if i+1 >= w.config.CommandBatch {
			return false
		}
		select {
		case cmd = <-w.commandC:
		default:
			return false
		}
	}
}

func (w *Worker) shutdown() {
	w.closeOnce.Do(func() { close(w.closeC) })
	w.rejectQueued()
	// Events queued since the last tick may mark more torrents dirty.
	w.handleAlertTick(time.Now())
	w.log.Infof("shutting down, saving %d torrents", len(w.dirty))
	w.saveDirty()
	if err := w.engine.Close(); err != nil {
		w.log.Errorln("cannot close engine:", err)
	}
	if err := w.store.Close(); err != nil {
		w.log.Errorln("cannot close resume database:", err)
	}
	w.metrics.Close()
	close(w.snapshotC)
	w.log.Infoln("session closed after", time.Since(w.createdAt).Round(time.Second))
}

// rejectQueued answers commands that were accepted by Submit but will never be applied.
func (w *Worker) rejectQueued() {
	var n int
	for {
		select {
		case cmd := <-w.commandC:
			n++
			switch c := cmd.(type) {
			case AddTorrent:
				if c.Result != nil {
					select {
					case c.Result <- AddResult{Err: ErrClosed}:
					default:
					}
				}
			case SelectTorrent:
				if c.Response != nil {
					select {
					case c.Response <- nil:
					default:
					}
				}
			}
		default:
			if n > 0 {
				w.log.Warningf("dropped %d commands queued after shutdown", n)
			}
			return
		}
	}
}

func (w *Worker) historyOf(id engine.TorrentID) *speedhistory.History {
	h, ok := w.histories[id]
	if !ok {
		h = speedhistory.New(w.config.SpeedHistoryWindow, w.config.StatsInterval)
		w.histories[id] = h
	}
	return h
}

func (w *Worker) forget(id engine.TorrentID) {
	delete(w.records, id)
	delete(w.dirty, id)
	delete(w.histories, id)
	delete(w.finished, id)
	delete(w.ratioApplied, id)
	delete(w.changed, id)
	if w.selected == id {
		w.selected = ""
	}
}

// RPCAddr returns the address of the RPC server, or an empty string if it is disabled.
func (w *Worker) RPCAddr() string {
	if w.rpc == nil {
		return ""
	}
	return w.rpc.Addr().String()
}
