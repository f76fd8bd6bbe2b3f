package session

import "time"

type timerSpec struct {
	name     string
	interval time.Duration
	fn       func(now time.Time)
}

type deadline struct {
	timerSpec
	next time.Time
}

// timerSet keeps a deadline per periodic task so a single time.Timer can serve all of them.
// The next deadline is computed from the time a task returns, so a slow task delays
// later ticks instead of making them pile up.
type timerSet struct {
	timers []deadline
}

func newTimerSet(now time.Time, specs ...timerSpec) *timerSet {
	s := &timerSet{timers: make([]deadline, len(specs))}
	for i, spec := range specs {
		s.timers[i] = deadline{timerSpec: spec, next: now.Add(spec.interval)}
	}
	return s
}

// fire runs every task whose deadline has passed, in registration order.
func (s *timerSet) fire() {
	for i := range s.timers {
		t := &s.timers[i]
		now := time.Now()
		if now.Before(t.next) {
			continue
		}
		t.fn(now)
		t.next = time.Now().Add(t.interval)
	}
}

// untilNext returns the duration until the earliest deadline.
func (s *timerSet) untilNext(now time.Time) time.Duration {
	var earliest time.Time
	for i, t := range s.timers {
		if i == 0 || t.next.Before(earliest) {
			earliest = t.next
		}
	}
	d := earliest.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
