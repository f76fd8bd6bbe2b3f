package bwschedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour int) time.Time {
	return time.Date(2024, 1, 1, hour, 30, 0, 0, time.Local)
}

func TestActive(t *testing.T) {
	s := Schedule{
		Enabled: true,
		Rules: []Rule{
			{StartHour: 9, EndHour: 17, Download: 500, Upload: 100},
			{StartHour: 22, EndHour: 6, Download: 0, Upload: 0},
		},
	}
	defaults := Limits{Download: 1000, Upload: 200}

	l, ok := s.Active(at(10), defaults)
	assert.True(t, ok)
	assert.Equal(t, Limits{Download: 500, Upload: 100, Rule: 0}, l)

	l, _ = s.Active(at(17), defaults)
	assert.Equal(t, Limits{Download: 1000, Upload: 200, Rule: -1}, l)

	l, _ = s.Active(at(23), defaults)
	assert.Equal(t, 1, l.Rule)
	l, _ = s.Active(at(3), defaults)
	assert.Equal(t, 1, l.Rule)

	s.Enabled = false
	l, ok = s.Active(at(10), defaults)
	assert.False(t, ok)
	assert.Equal(t, -1, l.Rule)
	assert.Equal(t, int64(1000), l.Download)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Schedule{Rules: []Rule{{StartHour: 0, EndHour: 24}}}.Validate())
	assert.Error(t, Schedule{Rules: []Rule{{StartHour: 0, EndHour: 25}}}.Validate())
	assert.Error(t, Schedule{Rules: []Rule{{StartHour: 1, EndHour: 2, Download: -1}}}.Validate())
}
