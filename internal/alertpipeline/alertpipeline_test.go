package alertpipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cenkalti/flux/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dirtyIDs(effects []Effect) []engine.TorrentID {
	var ids []engine.TorrentID
	for _, e := range effects {
		if d, ok := e.(ResumeDirty); ok {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

func TestOneBadEventDoesNotBlockBatch(t *testing.T) {
	p := New()
	var events []engine.RawEvent
	for i := 0; i < 10; i++ {
		events = append(events, engine.RawEvent{Type: engine.EventStateChanged, TorrentID: engine.TorrentID(fmt.Sprintf("t%d", i))})
	}
	events[4].TorrentID = ""

	res := p.Process(events)
	require.Len(t, res.Errors, 1)
	var ee *EventError
	require.True(t, errors.As(res.Errors[0], &ee))
	assert.Equal(t, 4, ee.Index)
	assert.ErrorIs(t, res.Errors[0], errMissingTorrentID)

	assert.Equal(t, []engine.TorrentID{"t0", "t1", "t2", "t3", "t5", "t6", "t7", "t8", "t9"}, dirtyIDs(res.Effects))
}

func TestPanicIsIsolated(t *testing.T) {
	p := New()
	p.Register("explode", func(ev engine.RawEvent, emit func(Effect)) error {
		emit(ResumeDirty{ev.TorrentID})
		panic("boom")
	})
	res := p.Process([]engine.RawEvent{
		{Type: "explode", TorrentID: "a"},
		{Type: engine.EventTorrentFinished, TorrentID: "b"},
	})
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "boom")
	// Effects emitted before the panic are discarded.
	assert.Equal(t, []engine.TorrentID{"b"}, dirtyIDs(res.Effects))

	var finished, notified bool
	for _, e := range res.Effects {
		switch e := e.(type) {
		case Finished:
			finished = e.ID == "b"
		case Notify:
			notified = e.Notification.Level == Info && e.Notification.ID != ""
		}
	}
	assert.True(t, finished)
	assert.True(t, notified)
}

func TestUnknownIgnored(t *testing.T) {
	p := New()
	res := p.Process([]engine.RawEvent{{Type: "dht_bootstrap"}, {Type: "block_finished", TorrentID: "x"}})
	assert.Equal(t, 2, res.Ignored)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Effects)
}

func TestPayloadValidation(t *testing.T) {
	p := New()
	res := p.Process([]engine.RawEvent{
		{Type: engine.EventSaveResumeData, TorrentID: "a"},
		{Type: engine.EventPeerConnect, TorrentID: "a"},
		{Type: engine.EventFileCompleted, TorrentID: "a", FileIndex: -1},
		{Type: engine.EventSaveResumeData, TorrentID: "a", ResumeData: []byte("data")},
		{Type: engine.EventPeerConnect, TorrentID: "a", Peer: &engine.Peer{Addr: "1.2.3.4", PeerID: "-XL0000-"}},
	})
	assert.Len(t, res.Errors, 3)
	require.Len(t, res.Effects, 2)
	assert.Equal(t, StoreResume{ID: "a", Data: []byte("data")}, res.Effects[0])
	pc, ok := res.Effects[1].(PeerConnected)
	require.True(t, ok)
	assert.Equal(t, "1.2.3.4", pc.Peer.Addr)
}

func TestErrorLogThrottled(t *testing.T) {
	p := New()
	events := make([]engine.RawEvent, 100)
	for i := range events {
		events[i] = engine.RawEvent{Type: engine.EventTorrentAdded}
	}
	res := p.Process(events)
	assert.Len(t, res.Errors, 100)
	assert.True(t, p.suppressed > 0)
}

func TestStorageMoved(t *testing.T) {
	p := New()
	res := p.Process([]engine.RawEvent{
		{Type: engine.EventStorageMoved, TorrentID: "a"},
		{Type: engine.EventStorageMoved, TorrentID: "a", Path: "/new"},
		{Type: engine.EventStorageMoveFailed, TorrentID: "b", Message: "permission denied", Path: "/old"},
		{Type: engine.EventStorageMoveFailed, TorrentID: "c", Message: "permission denied"},
	})
	require.Len(t, res.Errors, 2)
	assert.ErrorIs(t, res.Errors[0], errMissingPath)
	assert.ErrorIs(t, res.Errors[1], errMissingPath)
	assert.Contains(t, res.Effects, StorageMoved{ID: "b", Path: "/old"})
	assert.Contains(t, res.Effects, StorageMoved{ID: "a", Path: "/new"})
	assert.Contains(t, res.Effects, ResumeDirty{ID: "a"})
	assert.Contains(t, res.Effects, LogError{ID: "b", Message: "move storage failed: permission denied"})
	assert.NotContains(t, res.Effects, ResumeDirty{ID: "b"})
}
