package session

import "time"

func (w *Worker) handleScheduleTick(now time.Time) {
	w.applySchedule(now, false)
}

// applySchedule sets session limits if the applicable rule or the default limits changed.
func (w *Worker) applySchedule(now time.Time, force bool) {
	limits, _ := w.schedule.Active(now, w.defaultLimits)
	if w.limitsApplied && !force && limits == w.activeLimits {
		return
	}
	if err := w.engine.SetSessionLimits(limits.Download, limits.Upload); err != nil {
		w.log.Warningln("cannot set session limits:", err)
		return
	}
	if limits.Rule >= 0 {
		w.log.Infof("bandwidth rule #%d in effect: download %d B/s, upload %d B/s", limits.Rule, limits.Download, limits.Upload)
	} else {
		w.log.Infof("default limits in effect: download %d B/s, upload %d B/s", limits.Download, limits.Upload)
	}
	w.activeLimits = limits
	w.limitsApplied = true
}
