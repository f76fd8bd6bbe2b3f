// Package speedhistory keeps a fixed window of rate samples for sparkline rendering.
package speedhistory

import "time"

// Default window and sample interval used by the session worker.
const (
	DefaultWindow   = 5 * time.Minute
	DefaultInterval = time.Second
)

// Sample is a single rate measurement in bytes per second.
type Sample struct {
	Time     time.Time
	Download int64
	Upload   int64
}

// History is a FIFO ring of samples. Oldest samples are evicted first when the ring is full.
// History is not safe for concurrent use.
type History struct {
	samples []Sample
	head    int // index of the oldest sample
	n       int
}

// New returns an empty History holding window/interval samples.
// The capacity is at least one sample.
func New(window, interval time.Duration) *History {
	c := 1
	if interval > 0 && window > interval {
		c = int(window / interval)
	}
	return &History{samples: make([]Sample, c)}
}

// Add appends a sample, evicting the oldest one if the ring is full.
func (h *History) Add(s Sample) {
	c := len(h.samples)
	if h.n < c {
		h.samples[(h.head+h.n)%c] = s
		h.n++
		return
	}
	h.samples[h.head] = s
	h.head = (h.head + 1) % c
}

// Len returns the number of samples currently held.
func (h *History) Len() int { return h.n }

// Cap returns the maximum number of samples.
func (h *History) Cap() int { return len(h.samples) }

// Samples returns a copy of held samples, oldest first.
func (h *History) Samples() []Sample {
	out := make([]Sample, h.n)
	c := len(h.samples)
	for i := 0; i < h.n; i++ {
		out[i] = h.samples[(h.head+i)%c]
	}
	return out
}

// Last returns the newest sample.
func (h *History) Last() (Sample, bool) {
	if h.n == 0 {
		return Sample{}, false
	}
	return h.samples[(h.head+h.n-1)%len(h.samples)], true
}

// Peak returns the maximum download and upload rates in the window.
func (h *History) Peak() (download, upload int64) {
	c := len(h.samples)
	for i := 0; i < h.n; i++ {
		s := h.samples[(h.head+i)%c]
		if s.Download > download {
			download = s.Download
		}
		if s.Upload > upload {
			upload = s.Upload
		}
	}
	return
}

// Average returns the mean download and upload rates in the window.
func (h *History) Average() (download, upload int64) {
	if h.n == 0 {
		return 0, 0
	}
	c := len(h.samples)
	var sd, su int64
	for i := 0; i < h.n; i++ {
		s := h.samples[(h.head+i)%c]
		sd += s.Download
		su += s.Upload
	}
	return sd / int64(h.n), su / int64(h.n)
}

// Downloads returns download rates oldest first.
func (h *History) Downloads() []int64 {
	return h.series(func(s Sample) int64 { return s.Download })
}

// Uploads returns upload rates oldest first.
func (h *History) Uploads() []int64 {
	return h.series(func(s Sample) int64 { return s.Upload })
}

func (h *History) series(f func(Sample) int64) []int64 {
	out := make([]int64, h.n)
	c := len(h.samples)
	for i := 0; i < h.n; i++ {
		out[i] = f(h.samples[(h.head+i)%c])
	}
	return out
}
