package console

import (
	"bytes"
	"testing"

	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/internal/rpctypes"
	"github.com/cenkalti/flux/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows(ids ...string) []snapshot.TorrentSnapshot {
	var r []snapshot.TorrentSnapshot
	for i, id := range ids {
		r = append(r, snapshot.TorrentSnapshot{ID: engine.TorrentID(id), Name: id, QueuePosition: i})
	}
	return r
}

func TestSetRowsKeepsSelection(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.setRows(rows("a", "b", "c")))
	assert.Equal(t, engine.TorrentID("a"), c.selected)

	c.move(1)
	assert.Equal(t, engine.TorrentID("b"), c.selected)

	// b moved to the end, selection follows it.
	require.NoError(t, c.setRows(rows("a", "c", "b")))
	assert.Equal(t, engine.TorrentID("b"), c.selected)
	assert.Equal(t, rows("a", "c", "b"), c.rows)

	// b removed, the last row is selected.
	require.NoError(t, c.setRows(rows("a", "c")))
	assert.Equal(t, engine.TorrentID("c"), c.selected)

	require.NoError(t, c.setRows(nil))
	assert.Equal(t, engine.TorrentID(""), c.selected)
}

func TestMoveClamps(t *testing.T) {
	c := New(nil)
	c.move(1)
	assert.Equal(t, engine.TorrentID(""), c.selected)

	require.NoError(t, c.setRows(rows("a", "b")))
	c.move(-1)
	assert.Equal(t, engine.TorrentID("a"), c.selected)
	c.move(5)
	assert.Equal(t, engine.TorrentID("b"), c.selected)
}

func TestFromRPC(t *testing.T) {
	eta := int64(90)
	msg := "disk full"
	r := fromRPC([]rpctypes.Torrent{
		{ID: "a", State: "Seeding", ETA: &eta, Tags: []string{"x"}},
		{ID: "b", State: "Error", Error: &msg},
	})
	require.Len(t, r, 2)
	assert.Equal(t, snapshot.Seeding, r[0].State)
	assert.Equal(t, int64(90), int64(r[0].ETA.Seconds()))
	assert.Equal(t, []string{"x"}, r[0].Tags())
	assert.Equal(t, snapshot.Error, r[1].State)
	assert.Equal(t, "disk full", r[1].Error)
	assert.Equal(t, int64(-1), int64(r[1].ETA))
}

func TestDrawTorrents(t *testing.T) {
	c := New(nil)
	r := rows("a", "b")
	r[1].DownloadRate = 2048
	require.NoError(t, c.setRows(r))
	var buf bytes.Buffer
	c.drawTorrents(&buf)
	out := buf.String()
	assert.Contains(t, out, "> ")
	assert.Contains(t, out, "2.0 KiB/s")
}
