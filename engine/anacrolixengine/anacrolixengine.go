// Package anacrolixengine implements engine.Engine on top of github.com/anacrolix/torrent.
//
// The anacrolix client has no alert queue, so events are synthesized in PollAlerts
// by comparing the state of each torrent with the state seen in the previous poll.
package anacrolixengine

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/internal/logger"
	"golang.org/x/time/rate"
)

// defaultMaxConns is restored when a paused torrent is resumed.
const defaultMaxConns = 35

// Config of the engine.
type Config struct {
	DataDir    string
	ListenPort int
	// Session limits in bytes per second. Zero means unlimited.
	DownloadLimit int64
	UploadLimit   int64
}

// Engine drives an anacrolix client. It is not safe for concurrent use.
type Engine struct {
	client          *torrent.Client
	downloadLimiter *rate.Limiter
	uploadLimiter   *rate.Limiter
	torrents        map[engine.TorrentID]*entry
	queue           []engine.TorrentID
	events          []engine.RawEvent
	bans            *bannedIPs
	log             logger.Logger
}

type entry struct {
	t          *torrent.Torrent
	savePath   string
	paused     bool
	priority   int
	sequential bool
	// Added with existing data, from resume data at startup or after a storage move.
	loaded bool
	move   *move
	// File priorities to apply when metadata arrives.
	pendingPriorities []int

	// State seen in the previous poll.
	hadInfo  bool
	finished bool
	peers    map[string]struct{}

	speed speedSample
	rates rates
}

var _ engine.Engine = (*Engine)(nil)

// New starts an anacrolix client.
func New(cfg Config) (*Engine, error) {
	dl := rate.NewLimiter(limitOf(cfg.DownloadLimit), burstOf(cfg.DownloadLimit))
	ul := rate.NewLimiter(limitOf(cfg.UploadLimit), burstOf(cfg.UploadLimit))

	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}
	clientConfig.ListenPort = cfg.ListenPort
	clientConfig.Seed = true
	clientConfig.DownloadRateLimiter = dl
	clientConfig.UploadRateLimiter = ul
	bans := newBannedIPs()
	clientConfig.IPBlocklist = bans

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		client:          client,
		downloadLimiter: dl,
		uploadLimiter:   ul,
		torrents:        make(map[engine.TorrentID]*entry),
		bans:            bans,
		log:             logger.New("anacrolix"),
	}
	e.emit(engine.RawEvent{Type: engine.EventListenSucceeded, Message: fmt.Sprint(client.ListenAddrs())})
	return e, nil
}

func (e *Engine) emit(ev engine.RawEvent) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.events = append(e.events, ev)
}

func (e *Engine) get(id engine.TorrentID) (*entry, error) {
	en, ok := e.torrents[id]
	if !ok {
		return nil, engine.ErrTorrentNotFound
	}
	return en, nil
}

// active returns a torrent that is not being moved.
func (e *Engine) active(id engine.TorrentID) (*entry, error) {
	en, err := e.get(id)
	if err != nil {
		return nil, err
	}
	if en.move != nil {
		return nil, errMoving
	}
	return en, nil
}

func (e *Engine) Add(p engine.AddParams) (engine.TorrentID, error) {
	var spec *torrent.TorrentSpec
	var err error
	// Resume data of a magnet link that has received metadata is the full metainfo.
	mi := p.Metainfo
	if len(mi) == 0 && len(p.ResumeData) > 0 {
		mi = p.ResumeData
	}
	switch {
	case len(mi) > 0:
		var m *metainfo.MetaInfo
		m, err = metainfo.Load(bytes.NewReader(mi))
		if err != nil {
			return "", err
		}
		spec, err = torrent.TorrentSpecFromMetaInfoErr(m)
	case p.MagnetURI != "":
		spec, err = torrent.TorrentSpecFromMagnetUri(p.MagnetURI)
	default:
		return "", fmt.Errorf("no metainfo or magnet uri")
	}
	if err != nil {
		return "", err
	}
	savePath := p.SavePath
	if savePath != "" {
		spec.Storage = storage.NewFile(savePath)
	}
	t, _, err := e.client.AddTorrentSpec(spec)
	if err != nil {
		return "", err
	}
	id := engine.TorrentID(t.InfoHash().HexString())
	if _, ok := e.torrents[id]; ok {
		return id, nil
	}
	en := &entry{
		t:                 t,
		savePath:          savePath,
		priority:          engine.PriorityNormal,
		loaded:            len(p.ResumeData) > 0,
		pendingPriorities: p.FilePriorities,
		peers:             make(map[string]struct{}),
	}
	e.torrents[id] = en
	e.queue = append(e.queue, id)
	if p.Paused {
		pauseTorrent(en)
	} else {
		resumeTorrent(en)
	}
	if p.DownloadLimit > 0 || p.UploadLimit > 0 {
		e.log.Warningf("per torrent limits are not supported, ignoring limits of %s", id)
	}
	e.emit(engine.RawEvent{Type: engine.EventTorrentAdded, TorrentID: id})
	return id, nil
}

func (e *Engine) Remove(id engine.TorrentID, deleteFiles bool) error {
	en, err := e.active(id)
	if err != nil {
		return err
	}
	name := en.t.Name()
	en.t.Drop()
	delete(e.torrents, id)
	e.queue = removeID(e.queue, id)
	if deleteFiles && en.savePath != "" && name != "" {
		if err = os.RemoveAll(filepath.Join(en.savePath, name)); err != nil {
			e.log.Errorf("cannot delete files of %s: %s", id, err)
		}
	}
	e.emit(engine.RawEvent{Type: engine.EventTorrentRemoved, TorrentID: id})
	return nil
}

func (e *Engine) Pause(id engine.TorrentID) error {
	en, err := e.active(id)
	if err != nil {
		return err
	}
	pauseTorrent(en)
	e.emit(engine.RawEvent{Type: engine.EventTorrentPaused, TorrentID: id})
	return nil
}

// Resume starts a torrent. There is no queue limit, so force has no effect.
func (e *Engine) Resume(id engine.TorrentID, force bool) error {
	en, err := e.active(id)
	if err != nil {
		return err
	}
	resumeTorrent(en)
	e.emit(engine.RawEvent{Type: engine.EventTorrentResumed, TorrentID: id})
	return nil
}

func pauseTorrent(en *entry) {
	en.paused = true
	en.t.DisallowDataDownload()
	en.t.DisallowDataUpload()
	en.t.SetMaxEstablishedConns(0)
}

func resumeTorrent(en *entry) {
	en.paused = false
	en.t.SetMaxEstablishedConns(defaultMaxConns)
	en.t.AllowDataUpload()
	en.t.AllowDataDownload()
	if infoReady(en.t) {
		en.t.DownloadAll()
	}
}

func (e *Engine) SetPriority(id engine.TorrentID, priority int) error {
	en, err := e.get(id)
	if err != nil {
		return err
	}
	en.priority = priority
	return nil
}

func (e *Engine) SetFilePriority(id engine.TorrentID, index int, priority int) error {
	en, err := e.active(id)
	if err != nil {
		return err
	}
	if !infoReady(en.t) {
		return engine.ErrNoMetadata
	}
	files := en.t.Files()
	if index < 0 || index >= len(files) {
		return fmt.Errorf("file index out of range: %d", index)
	}
	files[index].SetPriority(toPiecePriority(priority))
	return nil
}

func (e *Engine) SetTorrentLimits(id engine.TorrentID, download, upload int64) error {
	return engine.ErrUnsupported
}

func (e *Engine) SetSessionLimits(download, upload int64) error {
	e.downloadLimiter.SetLimit(limitOf(download))
	e.downloadLimiter.SetBurst(burstOf(download))
	e.uploadLimiter.SetLimit(limitOf(upload))
	e.uploadLimiter.SetBurst(burstOf(upload))
	return nil
}

func (e *Engine) MoveQueue(id engine.TorrentID, dir engine.QueueDirection) error {
	if _, err := e.get(id); err != nil {
		return err
	}
	e.queue = moveID(e.queue, id, dir)
	return nil
}

func (e *Engine) ForceRecheck(id engine.TorrentID) error {
	en, err := e.active(id)
	if err != nil {
		return err
	}
	if !infoReady(en.t) {
		return engine.ErrNoMetadata
	}
	go en.t.VerifyData()
	return nil
}

func (e *Engine) ForceReannounce(id engine.TorrentID) error {
	return engine.ErrUnsupported
}

func (e *Engine) SetSequential(id engine.TorrentID, on bool) error {
	return engine.ErrUnsupported
}

func (e *Engine) AddTracker(id engine.TorrentID, url string) error {
	en, err := e.active(id)
	if err != nil {
		return err
	}
	en.t.AddTrackers([][]string{{url}})
	return nil
}

func (e *Engine) RemoveTracker(id engine.TorrentID, url string) error {
	return engine.ErrUnsupported
}

func (e *Engine) BanPeer(id engine.TorrentID, addr string) error {
	ip := net.ParseIP(addr)
	if ip == nil {
		return fmt.Errorf("invalid peer address: %s", addr)
	}
	e.bans.add(ip)
	// The blocklist only rejects new connections.
	for _, en := range e.torrents {
		for _, pc := range en.t.PeerConns() {
			if host, _ := splitAddr(pc.RemoteAddr.String()); ip.Equal(net.ParseIP(host)) {
				_ = pc.Close()
			}
		}
	}
	return nil
}

// ResumeData returns the bencoded metainfo. Piece state is verified from disk on load.
func (e *Engine) ResumeData(id engine.TorrentID) ([]byte, error) {
	en, err := e.get(id)
	if err != nil {
		return nil, err
	}
	if !infoReady(en.t) {
		return nil, engine.ErrNoMetadata
	}
	mi := en.t.Metainfo()
	var buf bytes.Buffer
	if err = mi.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *Engine) PollAlerts() []engine.RawEvent {
	for _, id := range e.queue {
		e.diff(id, e.torrents[id])
	}
	events := e.events
	e.events = nil
	return events
}

func (e *Engine) diff(id engine.TorrentID, en *entry) {
	if en.move != nil && !e.checkMove(id, en) {
		return
	}
	t := en.t
	if !en.hadInfo && infoReady(t) {
		en.hadInfo = true
		e.applyPendingPriorities(en)
		if !en.paused {
			t.DownloadAll()
		}
		if !en.loaded {
			e.emit(engine.RawEvent{Type: engine.EventMetadataReceived, TorrentID: id, Message: t.Name()})
		}
	}
	if !en.finished && isComplete(t) {
		en.finished = true
		st := t.Stats()
		if finishedThisSession(en.loaded, st.BytesReadUsefulData.Int64()) {
			e.emit(engine.RawEvent{Type: engine.EventTorrentFinished, TorrentID: id, Message: t.Name()})
		}
	}
	seen := make(map[string]struct{}, len(en.peers))
	for _, pc := range t.PeerConns() {
		addr := pc.RemoteAddr.String()
		seen[addr] = struct{}{}
		if _, ok := en.peers[addr]; ok {
			continue
		}
		host, port := splitAddr(addr)
		e.emit(engine.RawEvent{
			Type:      engine.EventPeerConnect,
			TorrentID: id,
			Peer:      &engine.Peer{Addr: host, Port: port, PeerID: string(pc.PeerID[:])},
		})
	}
	en.peers = seen
}

func (e *Engine) applyPendingPriorities(en *entry) {
	if len(en.pendingPriorities) == 0 {
		return
	}
	files := en.t.Files()
	for i, p := range en.pendingPriorities {
		if i < len(files) {
			files[i].SetPriority(toPiecePriority(p))
		}
	}
	en.pendingPriorities = nil
}

func (e *Engine) Stats() engine.RawStats {
	var s engine.RawStats
	for _, en := range e.torrents {
		s.DownloadRate += en.rates.download
		s.UploadRate += en.rates.upload
		st := en.t.Stats()
		s.TotalDownloaded += st.BytesReadUsefulData.Int64()
		s.TotalUploaded += st.BytesWrittenData.Int64()
	}
	s.Torrents = len(e.torrents)
	return s
}

func (e *Engine) Torrents() []engine.TorrentStatus {
	now := time.Now()
	out := make([]engine.TorrentStatus, 0, len(e.queue))
	for i, id := range e.queue {
		en := e.torrents[id]
		t := en.t
		st := t.Stats()
		en.rates = en.speed.update(now, st.BytesReadUsefulData.Int64(), st.BytesWrittenData.Int64())
		ready := infoReady(t)
		status := engine.TorrentStatus{
			ID:              id,
			Name:            t.Name(),
			SavePath:        en.savePath,
			HasMetadata:     ready,
			Moving:          en.move != nil,
			Paused:          en.paused,
			Sequential:      en.sequential,
			TotalDownloaded: st.BytesReadUsefulData.Int64(),
			TotalUploaded:   st.BytesWrittenData.Int64(),
			DownloadRate:    en.rates.download,
			UploadRate:      en.rates.upload,
			Seeds:           st.ConnectedSeeders,
			Peers:           st.ActivePeers,
			Connections:     st.TotalPeers,
			QueuePosition:   i,
			Priority:        en.priority,
		}
		if ready {
			status.TotalSize = t.Length()
			status.CompletedSize = t.BytesCompleted()
			if status.TotalSize > 0 {
				status.Progress = float64(status.CompletedSize) / float64(status.TotalSize)
			}
			status.Finished = isComplete(t)
			status.Seeding = status.Finished && !en.paused && t.Seeding()
		}
		out = append(out, status)
	}
	return out
}

func (e *Engine) Detail(id engine.TorrentID) (engine.TorrentDetail, error) {
	en, err := e.get(id)
	if err != nil {
		return engine.TorrentDetail{}, err
	}
	t := en.t
	var d engine.TorrentDetail
	for _, pc := range t.PeerConns() {
		host, port := splitAddr(pc.RemoteAddr.String())
		d.Peers = append(d.Peers, engine.Peer{Addr: host, Port: port, PeerID: string(pc.PeerID[:])})
	}
	mi := t.Metainfo()
	for tier, urls := range mi.UpvertedAnnounceList() {
		for _, u := range urls {
			d.Trackers = append(d.Trackers, engine.Tracker{URL: u, Tier: tier})
		}
	}
	if !infoReady(t) {
		return d, nil
	}
	d.PieceLength = t.Info().PieceLength
	for i, f := range t.Files() {
		var progress float64
		if f.Length() > 0 {
			progress = float64(f.BytesCompleted()) / float64(f.Length())
		}
		d.Files = append(d.Files, engine.File{
			Index:    i,
			Path:     f.Path(),
			Size:     f.Length(),
			Progress: progress,
			Priority: fromPiecePriority(f.Priority()),
		})
	}
	n := t.NumPieces()
	d.Pieces = make([]engine.PieceState, n)
	for i := 0; i < n; i++ {
		ps := t.PieceState(i)
		switch {
		case ps.Complete:
			d.Pieces[i] = engine.PieceHave
		case ps.Partial:
			d.Pieces[i] = engine.PieceDownloading
		}
	}
	return d, nil
}

func (e *Engine) Close() error {
	e.waitMoves()
	errs := e.client.Close()
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func infoReady(t *torrent.Torrent) bool {
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}

func isComplete(t *torrent.Torrent) bool {
	if !infoReady(t) {
		return false
	}
	l := t.Length()
	return l > 0 && t.BytesCompleted() >= l
}

func splitAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}
