package modeldiff

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(id string, progress float64) snapshot.TorrentSnapshot {
	return snapshot.TorrentSnapshot{ID: engine.TorrentID(id), Name: id, Progress: progress}
}

func ids(rows []snapshot.TorrentSnapshot) []engine.TorrentID {
	out := make([]engine.TorrentID, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func assertRoundTrip(t *testing.T, old, new []snapshot.TorrentSnapshot) []Patch {
	t.Helper()
	patches := Diff(old, new)
	got, err := Apply(old, patches)
	require.NoError(t, err, "patches: %v", patches)
	require.Equal(t, len(new), len(got), "patches: %v", patches)
	for i := range new {
		assert.True(t, new[i].Equal(got[i]), "row %d: want %s got %s, patches: %v", i, new[i].ID, got[i].ID, patches)
	}
	return patches
}

func TestUpdateInsertRemove(t *testing.T) {
	old := []snapshot.TorrentSnapshot{snap("A", 0.1), snap("B", 0.5)}
	new := []snapshot.TorrentSnapshot{snap("B", 0.6), snap("C", 0)}

	patches := assertRoundTrip(t, old, new)
	require.Len(t, patches, 3)

	assert.Equal(t, Update, patches[0].Op)
	assert.Equal(t, engine.TorrentID("B"), patches[0].ID)
	assert.Equal(t, 0.6, patches[0].Snapshot.Progress)

	assert.Equal(t, Insert, patches[1].Op)
	assert.Equal(t, engine.TorrentID("C"), patches[1].ID)
	assert.Equal(t, 2, patches[1].Index)

	assert.Equal(t, Remove, patches[2].Op)
	assert.Equal(t, engine.TorrentID("A"), patches[2].ID)
}

func TestNoChanges(t *testing.T) {
	rows := []snapshot.TorrentSnapshot{snap("A", 0.1), snap("B", 0.2), snap("C", 0.3)}
	assert.Empty(t, Diff(rows, rows))
	assert.Empty(t, Diff(nil, nil))
}

func TestSwapTieBreak(t *testing.T) {
	old := []snapshot.TorrentSnapshot{snap("A", 0), snap("B", 0)}
	new := []snapshot.TorrentSnapshot{snap("B", 0), snap("A", 0)}

	patches := assertRoundTrip(t, old, new)
	// A and B are equally good anchors. The lexically smaller one stays.
	require.Len(t, patches, 1)
	assert.Equal(t, Patch{Op: Move, ID: "B", From: 1, To: 0}, patches[0])
}

func TestMoveOnlyDisplacedRows(t *testing.T) {
	old := []snapshot.TorrentSnapshot{snap("A", 0), snap("B", 0), snap("C", 0), snap("D", 0), snap("E", 0)}
	new := []snapshot.TorrentSnapshot{snap("A", 0), snap("C", 0), snap("D", 0), snap("E", 0), snap("B", 0)}

	patches := assertRoundTrip(t, old, new)
	require.Len(t, patches, 1)
	assert.Equal(t, Move, patches[0].Op)
	assert.Equal(t, engine.TorrentID("B"), patches[0].ID)
}

func TestRemovesComeLast(t *testing.T) {
	old := []snapshot.TorrentSnapshot{snap("A", 0), snap("B", 0), snap("C", 0)}
	new := []snapshot.TorrentSnapshot{snap("D", 0), snap("C", 1), snap("A", 0)}

	patches := assertRoundTrip(t, old, new)
	seenRemove := false
	for _, p := range patches {
		if p.Op == Remove {
			seenRemove = true
			continue
		}
		assert.False(t, seenRemove, "%s after remove", p)
	}
	assert.True(t, seenRemove)
}

func TestPatchGroupOrder(t *testing.T) {
	old := []snapshot.TorrentSnapshot{snap("A", 0), snap("B", 0), snap("C", 0)}
	new := []snapshot.TorrentSnapshot{snap("C", 0), snap("A", 1), snap("D", 0)}

	patches := assertRoundTrip(t, old, new)
	rank := map[Op]int{Update: 0, Move: 1, Insert: 2, Remove: 3}
	seen := make(map[Op]bool)
	for i, p := range patches {
		seen[p.Op] = true
		if i > 0 {
			assert.LessOrEqual(t, rank[patches[i-1].Op], rank[p.Op], "%s before %s", patches[i-1], p)
		}
	}
	assert.Len(t, seen, 4)
}

func TestDeterministic(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		old, new := randomPair(rnd)
		assert.Equal(t, Diff(old, new), Diff(old, new))
	}
}

func TestRoundTripRandom(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		old, new := randomPair(rnd)
		assertRoundTrip(t, old, new)
	}
}

func TestApplyInvalid(t *testing.T) {
	old := []snapshot.TorrentSnapshot{snap("A", 0)}

	_, err := Apply(old, []Patch{{Op: Remove, ID: "X"}})
	assert.ErrorIs(t, err, ErrInvalidPatch)

	_, err = Apply(old, []Patch{{Op: Insert, Index: 5, ID: "X"}})
	assert.ErrorIs(t, err, ErrInvalidPatch)

	_, err = Apply(old, []Patch{{Op: Move, ID: "B", From: 0, To: 0}})
	assert.ErrorIs(t, err, ErrInvalidPatch)

	// Apply must not modify its input.
	got, err := Apply(old, []Patch{{Op: Update, ID: "A", Snapshot: snap("A", 1)}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got[0].Progress)
	assert.Equal(t, 0.0, old[0].Progress)
	assert.Equal(t, []engine.TorrentID{"A"}, ids(got))
}

func randomPair(rnd *rand.Rand) (old, new []snapshot.TorrentSnapshot) {
	pool := rnd.Perm(12)
	for _, n := range pool[:rnd.Intn(10)] {
		old = append(old, snap(fmt.Sprintf("t%02d", n), float64(rnd.Intn(3))))
	}
	for _, n := range rnd.Perm(12)[:rnd.Intn(10)] {
		new = append(new, snap(fmt.Sprintf("t%02d", n), float64(rnd.Intn(3))))
	}
	return old, new
}
