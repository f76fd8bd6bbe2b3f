package speedhistory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCapacity(t *testing.T) {
	h := New(DefaultWindow, DefaultInterval)
	assert.Equal(t, 300, h.Cap())
	assert.Equal(t, 0, h.Len())

	h = New(time.Second, 0)
	assert.Equal(t, 1, h.Cap())
}

func TestEvictsOldestFirst(t *testing.T) {
	h := New(5*time.Minute, time.Second)
	start := time.Unix(1000, 0)
	for i := 0; i < 600; i++ {
		h.Add(Sample{Time: start.Add(time.Duration(i) * time.Second), Download: int64(i)})
	}
	assert.Equal(t, 300, h.Len())

	samples := h.Samples()
	assert.Len(t, samples, 300)
	assert.Equal(t, int64(300), samples[0].Download)
	assert.Equal(t, int64(599), samples[299].Download)

	last, ok := h.Last()
	assert.True(t, ok)
	assert.Equal(t, int64(599), last.Download)
}

func TestPeakAndAverage(t *testing.T) {
	h := New(4*time.Second, time.Second)
	_, ok := h.Last()
	assert.False(t, ok)
	d, u := h.Average()
	assert.Zero(t, d)
	assert.Zero(t, u)

	h.Add(Sample{Download: 10, Upload: 1})
	h.Add(Sample{Download: 30, Upload: 5})
	h.Add(Sample{Download: 20, Upload: 3})

	d, u = h.Peak()
	assert.Equal(t, int64(30), d)
	assert.Equal(t, int64(5), u)
	d, u = h.Average()
	assert.Equal(t, int64(20), d)
	assert.Equal(t, int64(3), u)

	// Peak drops once the 30 is evicted.
	h.Add(Sample{Download: 1})
	h.Add(Sample{Download: 2})
	h.Add(Sample{Download: 3})
	d, _ = h.Peak()
	assert.Equal(t, int64(20), d)
	assert.Equal(t, []int64{20, 1, 2, 3}, h.Downloads())
	assert.Equal(t, []int64{3, 0, 0, 0}, h.Uploads())
}

func TestSamplesIsCopy(t *testing.T) {
	h := New(2*time.Second, time.Second)
	h.Add(Sample{Download: 1})
	s := h.Samples()
	s[0].Download = 99
	last, _ := h.Last()
	assert.Equal(t, int64(1), last.Download)
}
