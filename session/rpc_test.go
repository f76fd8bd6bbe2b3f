package session

import (
	"bytes"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/engine/enginetest"
	"github.com/cenkalti/flux/internal/rpctypes"
	"github.com/cenkalti/flux/rpcclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRPCClient(t *testing.T, w *Worker) *rpcclient.Client {
	host, portStr, err := net.SplitHostPort(w.RPCAddr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return rpcclient.New(host, port)
}

func TestRPC(t *testing.T) {
	e := enginetest.New()
	cfg := testConfig(t)
	cfg.RPCEnabled = true
	cfg.RPCPort = 0
	w := newWorker(t, cfg, e)
	defer w.Close()
	clt := newRPCClient(t, w)
	defer clt.Close()

	v, err := clt.Version()
	require.NoError(t, err)
	assert.Equal(t, Version, v)

	id, err := clt.AddURI(magnet(hashA), rpctypes.AddTorrentOptions{Category: "linux"})
	require.NoError(t, err)
	assert.Equal(t, hashA, id)

	mi := []byte("d4:infod4:name1:aee")
	id2, err := clt.AddTorrent(bytes.NewReader(mi), rpctypes.AddTorrentOptions{Paused: true})
	require.NoError(t, err)
	assert.Equal(t, string(enginetest.IDFor(engine.AddParams{Metainfo: mi})), id2)

	_, err = clt.AddURI("", rpctypes.AddTorrentOptions{})
	assert.Error(t, err)

	require.Eventually(t, func() bool {
		torrents, err := clt.ListTorrents()
		return err == nil && len(torrents) == 2
	}, waitTimeout, 5*time.Millisecond)

	torrents, err := clt.ListTorrents()
	require.NoError(t, err)
	assert.Equal(t, hashA, torrents[0].ID)
	assert.Equal(t, "linux", torrents[0].Category)

	require.NoError(t, clt.PauseTorrent(id))
	require.Eventually(t, func() bool {
		st, _ := e.Status(engine.TorrentID(id))
		return st.Paused
	}, waitTimeout, time.Millisecond)

	assert.Error(t, clt.PauseTorrent("unknown"))
	assert.Error(t, clt.MoveQueue(id, "sideways"))
	assert.Error(t, clt.SetFilePriority(id, 0, 3))
	assert.Error(t, clt.MoveStorage(id, ""))
	require.NoError(t, clt.MoveStorage(id, "/mnt/archive"))
	require.Eventually(t, func() bool {
		st, _ := e.Status(engine.TorrentID(id))
		return st.SavePath == "/mnt/archive"
	}, waitTimeout, time.Millisecond)
	require.NoError(t, clt.MoveQueue(id2, "top"))

	e.SetDetail(engine.TorrentID(id), engine.TorrentDetail{
		Pieces:   []engine.PieceState{engine.PieceHave, engine.PieceHave, engine.PieceMissing},
		Trackers: []engine.Tracker{{URL: "udp://tracker.example:80", Status: "working"}},
	})
	d, err := clt.GetDetail(id)
	require.NoError(t, err)
	assert.Equal(t, 2, d.PiecesHave)
	assert.Equal(t, 3, d.PiecesTotal)
	require.Len(t, d.Trackers, 1)
	assert.Equal(t, "working", d.Trackers[0].Status)

	_, err = clt.GetDetail("unknown")
	assert.Error(t, err)

	require.NoError(t, clt.SetSpeedLimit("", 100, 200))
	require.Eventually(t, func() bool {
		dl, ul := e.SessionLimits()
		return dl == 100 && ul == 200
	}, waitTimeout, time.Millisecond)

	stats, err := clt.GetSessionStats()
	require.NoError(t, err)
	assert.Equal(t, -1, stats.ScheduleRule)

	bans, err := clt.GetBanLog()
	require.NoError(t, err)
	assert.Empty(t, bans)

	notifications, err := clt.GetNotifications()
	require.NoError(t, err)
	assert.NotEmpty(t, notifications)

	require.NoError(t, clt.RemoveTorrent(id, false))
	require.Eventually(t, func() bool { return !e.Has(engine.TorrentID(id)) }, waitTimeout, time.Millisecond)
}
