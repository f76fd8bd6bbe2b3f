// Package modeldiff computes the edit operations that turn one ordered list of
// torrent snapshots into another.
//
// Patches are emitted in four groups, in this order: Update, Move, Insert, Remove.
// Every index refers to a working list that starts as the old list and is
// edited patch by patch. Rows to be removed stay in the working list until the
// Remove group, so index arithmetic of earlier patches never depends on them.
package modeldiff

import (
	"errors"
	"fmt"

	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/snapshot"
)

// Op is the kind of a patch.
type Op int

// Patch operations.
const (
	Insert Op = iota
	Update
	Remove
	Move
)

func (o Op) String() string {
	switch o {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Remove:
		return "remove"
	case Move:
		return "move"
	}
	return "unknown"
}

// Patch is a single edit operation.
//
//	Insert: Snapshot is inserted at Index.
//	Update: the row with ID is replaced by Snapshot.
//	Remove: the row with ID is removed.
//	Move:   the row with ID is taken out of From and put at To.
type Patch struct {
	Op       Op
	ID       engine.TorrentID
	Index    int
	From     int
	To       int
	Snapshot snapshot.TorrentSnapshot
}

func (p Patch) String() string {
	switch p.Op {
	case Insert:
		return fmt.Sprintf("insert(%d, %s)", p.Index, p.ID)
	case Move:
		return fmt.Sprintf("move(%s, %d->%d)", p.ID, p.From, p.To)
	default:
		return fmt.Sprintf("%s(%s)", p.Op, p.ID)
	}
}

// ErrInvalidPatch is returned from Apply when a patch does not match the list.
var ErrInvalidPatch = errors.New("invalid patch")

// Diff returns the patches that transform old into new.
// The result is deterministic for a given pair of inputs.
// Both lists must not contain duplicate ids.
func Diff(old, new []snapshot.TorrentSnapshot) []Patch {
	oldIndex := make(map[engine.TorrentID]int, len(old))
	for i, s := range old {
		oldIndex[s.ID] = i
	}
	newIDs := make(map[engine.TorrentID]struct{}, len(new))
	for _, s := range new {
		newIDs[s.ID] = struct{}{}
	}

	var patches []Patch

	// Common rows in new order, with their old positions.
	var common []snapshot.TorrentSnapshot
	var positions []int
	for _, s := range new {
		i, ok := oldIndex[s.ID]
		if !ok {
			continue
		}
		common = append(common, s)
		positions = append(positions, i)
		if !old[i].Equal(s) {
			patches = append(patches, Patch{Op: Update, ID: s.ID, Snapshot: s})
		}
	}

	w := newWorkList(old)

	// Rows outside the kept subsequence are moved right after their predecessor in new order.
	keep := stableSet(common, positions)
	var prev engine.TorrentID
	for i, s := range common {
		if !keep[i] {
			from := w.indexOf(s.ID)
			w.remove(from)
			to := 0
			if i > 0 {
				to = w.indexOf(prev) + 1
			}
			w.insert(to, s.ID)
			if from != to {
				patches = append(patches, Patch{Op: Move, ID: s.ID, From: from, To: to})
			}
		}
		prev = s.ID
	}

	// Inserts go right after the previous row of the new list.
	prev = ""
	for i, s := range new {
		if _, ok := oldIndex[s.ID]; !ok {
			to := 0
			if i > 0 {
				to = w.indexOf(prev) + 1
			}
			w.insert(to, s.ID)
			patches = append(patches, Patch{Op: Insert, ID: s.ID, Index: to, Snapshot: s})
		}
		prev = s.ID
	}

	for _, s := range old {
		if _, ok := newIDs[s.ID]; !ok {
			patches = append(patches, Patch{Op: Remove, ID: s.ID})
		}
	}
	return patches
}

// Apply returns the result of applying patches to old. old is not modified.
func Apply(old []snapshot.TorrentSnapshot, patches []Patch) ([]snapshot.TorrentSnapshot, error) {
	rows := make([]snapshot.TorrentSnapshot, len(old))
	copy(rows, old)
	find := func(id engine.TorrentID) int {
		for i := range rows {
			if rows[i].ID == id {
				return i
			}
		}
		return -1
	}
	for _, p := range patches {
		switch p.Op {
		case Insert:
			if p.Index < 0 || p.Index > len(rows) {
				return nil, fmt.Errorf("%w: %s: index out of range", ErrInvalidPatch, p)
			}
			rows = append(rows, snapshot.TorrentSnapshot{})
			copy(rows[p.Index+1:], rows[p.Index:])
			rows[p.Index] = p.Snapshot
		case Update:
			i := find(p.ID)
			if i < 0 {
				return nil, fmt.Errorf("%w: %s: id not found", ErrInvalidPatch, p)
			}
			rows[i] = p.Snapshot
		case Remove:
			i := find(p.ID)
			if i < 0 {
				return nil, fmt.Errorf("%w: %s: id not found", ErrInvalidPatch, p)
			}
			rows = append(rows[:i], rows[i+1:]...)
		case Move:
			if p.From < 0 || p.From >= len(rows) || rows[p.From].ID != p.ID {
				return nil, fmt.Errorf("%w: %s: row mismatch", ErrInvalidPatch, p)
			}
			s := rows[p.From]
			rows = append(rows[:p.From], rows[p.From+1:]...)
			if p.To < 0 || p.To > len(rows) {
				return nil, fmt.Errorf("%w: %s: index out of range", ErrInvalidPatch, p)
			}
			rows = append(rows, snapshot.TorrentSnapshot{})
			copy(rows[p.To+1:], rows[p.To:])
			rows[p.To] = s
		default:
			return nil, fmt.Errorf("%w: unknown op %d", ErrInvalidPatch, p.Op)
		}
	}
	return rows, nil
}

// stableSet marks the rows that keep their place: a longest subsequence of rows whose
// old positions are increasing. When several such subsequences exist, the one whose ids
// are lexically smallest, compared element by element in new order, is chosen.
func stableSet(rows []snapshot.TorrentSnapshot, positions []int) []bool {
	n := len(positions)
	keep := make([]bool, n)
	if n == 0 {
		return keep
	}
	// length[i] is the length of the longest increasing run starting at i.
	length := make([]int, n)
	best := 0
	for i := n - 1; i >= 0; i-- {
		length[i] = 1
		for j := i + 1; j < n; j++ {
			if positions[j] > positions[i] && length[j]+1 > length[i] {
				length[i] = length[j] + 1
			}
		}
		if length[i] > best {
			best = length[i]
		}
	}
	last := -1
	for want := best; want > 0; want-- {
		pick := -1
		for j := last + 1; j < n; j++ {
			if length[j] != want {
				continue
			}
			if last >= 0 && positions[j] < positions[last] {
				continue
			}
			if pick < 0 || rows[j].ID < rows[pick].ID {
				pick = j
			}
		}
		keep[pick] = true
		last = pick
	}
	return keep
}

type workList struct {
	ids []engine.TorrentID
}

func newWorkList(rows []snapshot.TorrentSnapshot) *workList {
	w := &workList{ids: make([]engine.TorrentID, len(rows))}
	for i, s := range rows {
		w.ids[i] = s.ID
	}
	return w
}

func (w *workList) indexOf(id engine.TorrentID) int {
	for i, x := range w.ids {
		if x == id {
			return i
		}
	}
	return -1
}

func (w *workList) remove(i int) {
	w.ids = append(w.ids[:i], w.ids[i+1:]...)
}

func (w *workList) insert(i int, id engine.TorrentID) {
	w.ids = append(w.ids, "")
	copy(w.ids[i+1:], w.ids[i:])
	w.ids[i] = id
}
