// Package console implements a terminal user interface that talks to a running session over RPC.
package console

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/flux/engine"
	"github.com/cenkalti/flux/internal/rpctypes"
	"github.com/cenkalti/flux/modeldiff"
	"github.com/cenkalti/flux/rpcclient"
	"github.com/cenkalti/flux/snapshot"
	"github.com/dustin/go-humanize"
	"github.com/jroimartin/gocui"
)

const refreshInterval = time.Second

// Console shows the torrent list on top and the detail of the selected torrent below.
type Console struct {
	client *rpcclient.Client

	mu       sync.Mutex
	rows     []snapshot.TorrentSnapshot
	selected engine.TorrentID
	detail   *rpctypes.Detail
	stats    *rpctypes.SessionStats
	changes  int
	errRows  error
	errStats error
	errDet   error

	closeC chan struct{}
}

// New returns a console that uses clt for all requests.
func New(clt *rpcclient.Client) *Console {
	return &Console{
		client: clt,
		closeC: make(chan struct{}),
	}
}

// Run blocks until the user quits.
func (c *Console) Run() error {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return err
	}
	defer g.Close()

	g.SetManagerFunc(c.layout)

	if err = c.keybindings(g); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.updateLoop(g)
	}()
	defer wg.Wait()
	defer close(c.closeC)

	err = g.MainLoop()
	if err == gocui.ErrQuit {
		err = nil
	}
	return err
}

func (c *Console) keybindings(g *gocui.Gui) error {
	bindings := []struct {
		key interface{}
		fn  func(*gocui.Gui, *gocui.View) error
	}{
		{gocui.KeyCtrlC, quit},
		{'q', quit},
		{'j', c.selectNext},
		{gocui.KeyArrowDown, c.selectNext},
		{'k', c.selectPrev},
		{gocui.KeyArrowUp, c.selectPrev},
		{'p', c.pause},
		{'r', c.resume},
		{'R', c.recheck},
	}
	for _, b := range bindings {
		if err := g.SetKeybinding("", b.key, gocui.ModNone, b.fn); err != nil {
			return err
		}
	}
	return nil
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}

func (c *Console) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	split := maxY / 2
	if v, err := g.SetView("torrents", -1, -1, maxX, split); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Frame = false
	}
	if v, err := g.SetView("detail", -1, split, maxX, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Wrap = true
		v.Title = "Detail"
	}
	if v, err := g.SetView("status", -1, maxY-2, maxX, maxY); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Frame = false
	}
	c.redraw(g)
	return nil
}

func (c *Console) redraw(g *gocui.Gui) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, err := g.View("torrents"); err == nil {
		v.Clear()
		c.drawTorrents(v)
	}
	if v, err := g.View("detail"); err == nil {
		v.Clear()
		c.drawDetail(v)
	}
	if v, err := g.View("status"); err == nil {
		v.Clear()
		c.drawStatus(v)
	}
}

func (c *Console) drawTorrents(w io.Writer) {
	if c.errRows != nil {
		fmt.Fprintln(w, "error:", c.errRows)
		return
	}
	for _, t := range c.rows {
		marker := " "
		if t.ID == c.selected {
			marker = ">"
		}
		fmt.Fprintf(w, "%s %3d %-12s %5.1f%% %10s/s %10s/s %s\n",
			marker,
			t.QueuePosition,
			t.State,
			t.Progress*100,
			humanize.IBytes(uint64(t.DownloadRate)),
			humanize.IBytes(uint64(t.UploadRate)),
			t.Name,
		)
	}
}

func (c *Console) drawDetail(w io.Writer) {
	if c.errDet != nil {
		fmt.Fprintln(w, "error:", c.errDet)
		return
	}
	d := c.detail
	if d == nil {
		return
	}
	fmt.Fprintf(w, "ID: %s\n", d.ID)
	fmt.Fprintf(w, "Pieces: %d/%d (%s each)\n", d.PiecesHave, d.PiecesTotal, humanize.IBytes(uint64(d.PieceLength)))
	fmt.Fprintf(w, "Files (%d):\n", len(d.Files))
	for _, f := range d.Files {
		fmt.Fprintf(w, "  %5.1f%% %10s p%d %s\n", f.Progress*100, humanize.IBytes(uint64(f.Size)), f.Priority, f.Path)
	}
	fmt.Fprintf(w, "Peers (%d):\n", len(d.Peers))
	for _, p := range d.Peers {
		fmt.Fprintf(w, "  %-22s %-20s %10s/s %10s/s\n", p.Addr, p.Client, humanize.IBytes(uint64(p.DownloadSpeed)), humanize.IBytes(uint64(p.UploadSpeed)))
	}
	fmt.Fprintf(w, "Trackers (%d):\n", len(d.Trackers))
	for _, t := range d.Trackers {
		fmt.Fprintf(w, "  [%d] %s %s %s\n", t.Tier, t.URL, t.Status, t.Message)
	}
}

func (c *Console) drawStatus(w io.Writer) {
	if c.errStats != nil {
		fmt.Fprintln(w, "error:", c.errStats)
		return
	}
	s := c.stats
	if s == nil {
		fmt.Fprint(w, "connecting...")
		return
	}
	fmt.Fprintf(w, "torrents: %d  down: %s/s  up: %s/s  changes: %d  [j/k] select [p] pause [r] resume [R] recheck [q] quit",
		s.Torrents,
		humanize.IBytes(uint64(s.DownloadSpeed)),
		humanize.IBytes(uint64(s.UploadSpeed)),
		c.changes,
	)
}

func (c *Console) updateLoop(g *gocui.Gui) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		c.refresh()
		g.Update(func(g *gocui.Gui) error {
			c.redraw(g)
			return nil
		})
		select {
		case <-ticker.C:
		case <-c.closeC:
			return
		}
	}
}

func (c *Console) refresh() {
	torrents, errRows := c.client.ListTorrents()
	stats, errStats := c.client.GetSessionStats()

	c.mu.Lock()
	c.errRows = errRows
	c.errStats = errStats
	if errRows == nil {
		if err := c.setRows(fromRPC(torrents)); err != nil {
			c.errRows = err
		}
	}
	if errStats == nil {
		c.stats = stats
	}
	selected := c.selected
	c.mu.Unlock()

	if selected == "" {
		c.setDetail(nil, nil)
		return
	}
	c.setDetail(c.client.GetDetail(string(selected)))
}

func (c *Console) setDetail(d *rpctypes.Detail, err error) {
	c.mu.Lock()
	c.detail, c.errDet = d, err
	c.mu.Unlock()
}

// setRows replaces the list by patching the current one. The selection follows
// its torrent when it moves; if the torrent is gone, the row at the same position is selected.
func (c *Console) setRows(rows []snapshot.TorrentSnapshot) error {
	patches := modeldiff.Diff(c.rows, rows)
	updated, err := modeldiff.Apply(c.rows, patches)
	if err != nil {
		return err
	}
	oldIndex := indexOf(c.rows, c.selected)
	c.rows = updated
	c.changes = len(patches)
	if indexOf(c.rows, c.selected) >= 0 {
		return nil
	}
	switch {
	case len(c.rows) == 0:
		c.selected = ""
	case oldIndex < 0:
		c.selected = c.rows[0].ID
	case oldIndex >= len(c.rows):
		c.selected = c.rows[len(c.rows)-1].ID
	default:
		c.selected = c.rows[oldIndex].ID
	}
	return nil
}

func indexOf(rows []snapshot.TorrentSnapshot, id engine.TorrentID) int {
	for i := range rows {
		if rows[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Console) move(delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rows) == 0 {
		return
	}
	i := indexOf(c.rows, c.selected) + delta
	if i < 0 {
		i = 0
	}
	if i >= len(c.rows) {
		i = len(c.rows) - 1
	}
	if c.rows[i].ID != c.selected {
		c.selected = c.rows[i].ID
		c.detail = nil
	}
}

func (c *Console) selectNext(g *gocui.Gui, v *gocui.View) error {
	c.move(1)
	c.redraw(g)
	return nil
}

func (c *Console) selectPrev(g *gocui.Gui, v *gocui.View) error {
	c.move(-1)
	c.redraw(g)
	return nil
}

func (c *Console) selectedID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.selected)
}

func (c *Console) pause(g *gocui.Gui, v *gocui.View) error {
	return c.onSelected(c.client.PauseTorrent)
}

func (c *Console) resume(g *gocui.Gui, v *gocui.View) error {
	return c.onSelected(func(id string) error { return c.client.ResumeTorrent(id, false) })
}

func (c *Console) recheck(g *gocui.Gui, v *gocui.View) error {
	return c.onSelected(c.client.Recheck)
}

// onSelected runs f in the background so the UI does not block on RPC.
// Errors are shown in the detail view.
func (c *Console) onSelected(f func(id string) error) error {
	id := c.selectedID()
	if id == "" {
		return nil
	}
	go func() {
		if err := f(id); err != nil {
			c.setDetail(nil, err)
		}
	}()
	return nil
}

func fromRPC(torrents []rpctypes.Torrent) []snapshot.TorrentSnapshot {
	rows := make([]snapshot.TorrentSnapshot, 0, len(torrents))
	for _, t := range torrents {
		state, _ := snapshot.ParseState(t.State)
		s := snapshot.TorrentSnapshot{
			ID:            engine.TorrentID(t.ID),
			Name:          t.Name,
			State:         state,
			Progress:      t.Progress,
			DownloadRate:  t.DownloadSpeed,
			UploadRate:    t.UploadSpeed,
			DownloadPeak:  t.DownloadPeak,
			Seeds:         t.Seeds,
			Peers:         t.Peers,
			QueuePosition: t.QueuePosition,
			TotalSize:     t.TotalSize,
			CompletedSize: t.CompletedSize,
			Ratio:         t.Ratio,
			ETA:           -1,
			SavePath:      t.SavePath,
			Category:      t.Category,
			AddedAt:       t.AddedAt.Time,
			DownloadLimit: t.DownloadLimit,
			UploadLimit:   t.UploadLimit,
		}
		if t.ETA != nil {
			s.ETA = time.Duration(*t.ETA) * time.Second
		}
		if t.Error != nil {
			s.Error = *t.Error
		}
		rows = append(rows, s.WithTags(t.Tags))
	}
	return rows
}
