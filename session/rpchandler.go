package session

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/internal/rpctypes"
	"github.com/cenkalti/flux/snapshot"
	"github.com/powerman/rpc-codec/jsonrpc2"
)

var (
	errTorrentNotFound = jsonrpc2.NewError(1, "torrent not found")
	errQueueFull       = jsonrpc2.NewError(3, "command queue is full, try again later")
	errTimeout         = jsonrpc2.NewError(4, "timeout waiting for session")
)

// replyTimeout is how long a handler waits for a command that returns a value.
const replyTimeout = 10 * time.Second

type rpcHandler struct {
	worker *Worker
}

func (h *rpcHandler) Version(args struct{}, reply *string) error {
	*reply = Version
	return nil
}

func (h *rpcHandler) ListTorrents(args *rpctypes.ListTorrentsRequest, reply *rpctypes.ListTorrentsResponse) error {
	b := h.worker.Latest()
	if b == nil {
		reply.Torrents = []rpctypes.Torrent{}
		return nil
	}
	reply.Torrents = make([]rpctypes.Torrent, 0, len(b.Torrents))
	for _, t := range b.Torrents {
		reply.Torrents = append(reply.Torrents, newTorrent(t))
	}
	return nil
}

func (h *rpcHandler) GetSessionStats(args *rpctypes.GetSessionStatsRequest, reply *rpctypes.GetSessionStatsResponse) error {
	b := h.worker.Latest()
	if b == nil {
		return nil
	}
	s := b.Stats
	reply.Stats = rpctypes.SessionStats{
		DownloadSpeed:   s.DownloadRate,
		UploadSpeed:     s.UploadRate,
		DownloadPeak:    s.DownloadPeak,
		UploadPeak:      s.UploadPeak,
		TotalDownloaded: s.TotalDownloaded,
		TotalUploaded:   s.TotalUploaded,
		DHTNodes:        s.DHTNodes,
		Torrents:        s.Torrents,
		ScheduleRule:    s.ScheduleRule,
		Seq:             b.Seq,
	}
	return nil
}

func (h *rpcHandler) GetDetail(args *rpctypes.GetDetailRequest, reply *rpctypes.GetDetailResponse) error {
	respC := make(chan *snapshot.DetailData, 1)
	err := h.submit(SelectTorrent{ID: engine.TorrentID(args.ID), Response: respC})
	if err != nil {
		return err
	}
	select {
	case d := <-respC:
		if d == nil {
			return errTorrentNotFound
		}
		reply.Detail = newDetail(d)
		return nil
	case <-h.worker.Done():
		return toRPCError(ErrClosed)
	case <-time.After(replyTimeout):
		return errTimeout
	}
}

func (h *rpcHandler) AddTorrent(args *rpctypes.AddTorrentRequest, reply *rpctypes.AddTorrentResponse) error {
	b, err := base64.StdEncoding.DecodeString(args.Torrent)
	if err != nil {
		return jsonrpc2.NewError(2, "invalid base64: "+err.Error())
	}
	id, err := h.add(AddTorrent{Metainfo: b}, args.AddTorrentOptions)
	reply.ID = string(id)
	return err
}

func (h *rpcHandler) AddURI(args *rpctypes.AddURIRequest, reply *rpctypes.AddURIResponse) error {
	id, err := h.add(AddTorrent{MagnetURI: args.URI}, args.AddTorrentOptions)
	reply.ID = string(id)
	return err
}

func (h *rpcHandler) add(cmd AddTorrent, opt rpctypes.AddTorrentOptions) (engine.TorrentID, error) {
	resultC := make(chan AddResult, 1)
	cmd.SavePath = opt.SavePath
	cmd.Category = opt.Category
	cmd.Tags = opt.Tags
	cmd.Paused = opt.Paused
	cmd.Result = resultC
	if err := h.submit(cmd); err != nil {
		return "", err
	}
	select {
	case res := <-resultC:
		return res.ID, toRPCError(res.Err)
	case <-h.worker.Done():
		return "", toRPCError(ErrClosed)
	case <-time.After(replyTimeout):
		return "", errTimeout
	}
}

func (h *rpcHandler) RemoveTorrent(args *rpctypes.RemoveTorrentRequest, reply *rpctypes.RemoveTorrentResponse) error {
	return h.submitFor(args.ID, RemoveTorrent{ID: engine.TorrentID(args.ID), DeleteFiles: args.DeleteFiles})
}

func (h *rpcHandler) PauseTorrent(args *rpctypes.PauseTorrentRequest, reply *rpctypes.PauseTorrentResponse) error {
	return h.submitFor(args.ID, Pause{ID: engine.TorrentID(args.ID)})
}

func (h *rpcHandler) ResumeTorrent(args *rpctypes.ResumeTorrentRequest, reply *rpctypes.ResumeTorrentResponse) error {
	if args.Force {
		return h.submitFor(args.ID, ForceResume{ID: engine.TorrentID(args.ID)})
	}
	return h.submitFor(args.ID, Resume{ID: engine.TorrentID(args.ID)})
}

func (h *rpcHandler) PauseAll(args *rpctypes.PauseAllRequest, reply *rpctypes.PauseAllResponse) error {
	return h.submit(PauseAll{})
}

func (h *rpcHandler) ResumeAll(args *rpctypes.ResumeAllRequest, reply *rpctypes.ResumeAllResponse) error {
	return h.submit(ResumeAll{})
}

func (h *rpcHandler) SetSpeedLimit(args *rpctypes.SetSpeedLimitRequest, reply *rpctypes.SetSpeedLimitResponse) error {
	if args.Download < 0 || args.Upload < 0 {
		return jsonrpc2.NewError(2, "speed limit cannot be negative")
	}
	cmd := SetSpeedLimit{ID: engine.TorrentID(args.ID), Download: args.Download, Upload: args.Upload}
	if args.ID == "" {
		return h.submit(cmd)
	}
	return h.submitFor(args.ID, cmd)
}

func (h *rpcHandler) MoveQueue(args *rpctypes.MoveQueueRequest, reply *rpctypes.MoveQueueResponse) error {
	dir, err := engine.ParseQueueDirection(args.Direction)
	if err != nil {
		return jsonrpc2.NewError(2, err.Error())
	}
	return h.submitFor(args.ID, MoveQueue{ID: engine.TorrentID(args.ID), Dir: dir})
}

func (h *rpcHandler) Recheck(args *rpctypes.RecheckRequest, reply *rpctypes.RecheckResponse) error {
	return h.submitFor(args.ID, ForceRecheck{ID: engine.TorrentID(args.ID)})
}

func (h *rpcHandler) MoveStorage(args *rpctypes.MoveStorageRequest, reply *rpctypes.MoveStorageResponse) error {
	if args.Path == "" {
		return jsonrpc2.NewError(2, "path is required")
	}
	return h.submitFor(args.ID, MoveStorage{ID: engine.TorrentID(args.ID), Path: args.Path})
}

func (h *rpcHandler) Reannounce(args *rpctypes.ReannounceRequest, reply *rpctypes.ReannounceResponse) error {
	return h.submitFor(args.ID, ForceReannounce{ID: engine.TorrentID(args.ID)})
}

func (h *rpcHandler) SetFilePriority(args *rpctypes.SetFilePriorityRequest, reply *rpctypes.SetFilePriorityResponse) error {
	switch args.Priority {
	case engine.PrioritySkip, engine.PriorityLow, engine.PriorityNormal, engine.PriorityHigh:
	default:
		return jsonrpc2.NewError(2, "priority must be one of 0, 1, 4, 7")
	}
	return h.submitFor(args.ID, SetFilePriority{ID: engine.TorrentID(args.ID), Index: args.Index, Priority: args.Priority})
}

func (h *rpcHandler) GetBanLog(args *rpctypes.GetBanLogRequest, reply *rpctypes.GetBanLogResponse) error {
	bans := h.worker.BanLog()
	reply.Bans = make([]rpctypes.Ban, len(bans))
	for i, b := range bans {
		reply.Bans[i] = rpctypes.Ban{
			Time:   rpctypes.Time{Time: b.Time},
			IP:     b.IP,
			Client: b.Client,
			Reason: b.Reason,
		}
	}
	return nil
}

func (h *rpcHandler) GetNotifications(args *rpctypes.GetNotificationsRequest, reply *rpctypes.GetNotificationsResponse) error {
	ns := h.worker.Notifications()
	reply.Notifications = make([]rpctypes.Notification, len(ns))
	for i, n := range ns {
		reply.Notifications[i] = rpctypes.Notification{
			ID:        n.ID,
			TorrentID: string(n.TorrentID),
			Time:      rpctypes.Time{Time: n.Time},
			Level:     n.Level.String(),
			Title:     n.Title,
			Message:   n.Message,
		}
	}
	return nil
}

func (h *rpcHandler) submit(cmd Command) error {
	return toRPCError(h.worker.Submit(context.Background(), cmd))
}

// submitFor checks that the torrent exists in the last published batch before submitting.
func (h *rpcHandler) submitFor(id string, cmd Command) error {
	if b := h.worker.Latest(); b != nil {
		if _, ok := b.Torrent(engine.TorrentID(id)); !ok {
			return errTorrentNotFound
		}
	}
	return h.submit(cmd)
}

func toRPCError(err error) error {
	var ie *InputError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ie):
		return jsonrpc2.NewError(2, ie.Error())
	case errors.Is(err, engine.ErrTorrentNotFound):
		return errTorrentNotFound
	case errors.Is(err, ErrCommandQueueFull):
		return errQueueFull
	}
	return err
}

func newTorrent(t snapshot.TorrentSnapshot) rpctypes.Torrent {
	r := rpctypes.Torrent{
		ID:            string(t.ID),
		Name:          t.Name,
		State:         t.State.String(),
		Progress:      t.Progress,
		DownloadSpeed: t.DownloadRate,
		UploadSpeed:   t.UploadRate,
		DownloadPeak:  t.DownloadPeak,
		Seeds:         t.Seeds,
		Peers:         t.Peers,
		QueuePosition: t.QueuePosition,
		TotalSize:     t.TotalSize,
		CompletedSize: t.CompletedSize,
		Ratio:         t.Ratio,
		SavePath:      t.SavePath,
		Category:      t.Category,
		Tags:          t.Tags(),
		AddedAt:       rpctypes.Time{Time: t.AddedAt},
		DownloadLimit: t.DownloadLimit,
		UploadLimit:   t.UploadLimit,
	}
	if t.ETA >= 0 {
		eta := int64(t.ETA / time.Second)
		r.ETA = &eta
	}
	if t.Error != "" {
		errStr := t.Error
		r.Error = &errStr
	}
	return r
}

func newDetail(d *snapshot.DetailData) rpctypes.Detail {
	r := rpctypes.Detail{
		ID:              string(d.ID),
		Files:           make([]rpctypes.File, len(d.Files)),
		Peers:           make([]rpctypes.Peer, len(d.Peers)),
		Trackers:        make([]rpctypes.Tracker, len(d.Trackers)),
		PiecesTotal:     len(d.Pieces),
		PieceLength:     d.PieceLength,
		DownloadHistory: d.DownloadHistory,
		UploadHistory:   d.UploadHistory,
	}
	for i, f := range d.Files {
		r.Files[i] = rpctypes.File(f)
	}
	for i, p := range d.Peers {
		r.Peers[i] = rpctypes.Peer{
			Addr:          net.JoinHostPort(p.IP, strconv.Itoa(p.Port)),
			Client:        p.Client,
			DownloadSpeed: p.DownloadRate,
			UploadSpeed:   p.UploadRate,
			Progress:      p.Progress,
			Flags:         p.Flags,
		}
	}
	for i, t := range d.Trackers {
		r.Trackers[i] = rpctypes.Tracker(t)
	}
	for _, p := range d.Pieces {
		if p == engine.PieceHave {
			r.PiecesHave++
		}
	}
	return r
}
