// Package bwschedule selects session transfer limits by time of day.
package bwschedule

import (
	"fmt"
	"time"
)

// Rule applies limits from StartHour (inclusive) to EndHour (exclusive).
// A rule with EndHour before StartHour spans midnight.
// Limits are in bytes per second, zero means unlimited.
type Rule struct {
	StartHour int   `yaml:"start"`
	EndHour   int   `yaml:"end"`
	Download  int64 `yaml:"dl"`
	Upload    int64 `yaml:"ul"`
}

func (r Rule) matches(hour int) bool {
	if r.StartHour <= r.EndHour {
		return r.StartHour <= hour && hour < r.EndHour
	}
	return hour >= r.StartHour || hour < r.EndHour
}

// Schedule is an ordered list of rules. The first matching rule wins.
type Schedule struct {
	Enabled bool   `yaml:"enabled"`
	Rules   []Rule `yaml:"rules"`
}

// Limits is the pair of limits in effect.
type Limits struct {
	Download int64
	Upload   int64
	// Rule is the index of the matching rule, or -1 for the default limits.
	Rule int
}

// Validate returns an error if a rule has hours outside of 0-24.
func (s Schedule) Validate() error {
	for i, r := range s.Rules {
		if r.StartHour < 0 || r.StartHour > 24 || r.EndHour < 0 || r.EndHour > 24 {
			return fmt.Errorf("bandwidth rule %d: hours must be between 0 and 24", i)
		}
		if r.Download < 0 || r.Upload < 0 {
			return fmt.Errorf("bandwidth rule %d: limits must not be negative", i)
		}
	}
	return nil
}

// Active returns the limits in effect at t. If the schedule is disabled or no rule
// matches, the default limits are returned. The second return value is false
// when the schedule is disabled.
func (s Schedule) Active(t time.Time, defaults Limits) (Limits, bool) {
	defaults.Rule = -1
	if !s.Enabled {
		return defaults, false
	}
	hour := t.Hour()
	for i, r := range s.Rules {
		if r.matches(hour) {
			return Limits{Download: r.Download, Upload: r.Upload, Rule: i}, true
		}
	}
	return defaults, true
}
