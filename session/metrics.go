package session

import (
	"time"

	"github.com/rcrowley/go-metrics"
)

type workerMetrics struct {
	registry metrics.Registry

	Uptime             metrics.Gauge
	Torrents           metrics.Gauge
	DirtyResume        metrics.Gauge
	QueuedCommands     metrics.Gauge
	CommandsApplied    metrics.Counter
	CommandsFailed     metrics.Counter
	CommandsRejected   metrics.Counter
	AlertErrors        metrics.Counter
	AlertsIgnored      metrics.Counter
	ResumeWrites       metrics.Counter
	ResumeWriteErrors  metrics.Counter
	SnapshotsPublished metrics.Counter
	SnapshotsCoalesced metrics.Counter
	PeersBanned        metrics.Counter
	SpeedDownload      metrics.Meter
	SpeedUpload        metrics.Meter
}

func newWorkerMetrics(w *Worker) *workerMetrics {
	r := metrics.NewRegistry()
	return &workerMetrics{
		registry: r,

		Uptime:         metrics.NewRegisteredFunctionalGauge("uptime", r, func() int64 { return int64(time.Since(w.createdAt) / time.Second) }),
		Torrents:       metrics.NewRegisteredGauge("torrents", r),
		DirtyResume:    metrics.NewRegisteredGauge("dirty_resume", r),
		QueuedCommands: metrics.NewRegisteredFunctionalGauge("queued_commands", r, func() int64 { return int64(len(w.commandC)) }),

		CommandsApplied:  metrics.NewRegisteredCounter("commands_applied", r),
		CommandsFailed:   metrics.NewRegisteredCounter("commands_failed", r),
		CommandsRejected: metrics.NewRegisteredCounter("commands_rejected", r),

		AlertErrors:   metrics.NewRegisteredCounter("alert_errors", r),
		AlertsIgnored: metrics.NewRegisteredCounter("alerts_ignored", r),

		ResumeWrites:      metrics.NewRegisteredCounter("resume_writes", r),
		ResumeWriteErrors: metrics.NewRegisteredCounter("resume_write_errors", r),

		SnapshotsPublished: metrics.NewRegisteredCounter("snapshots_published", r),
		SnapshotsCoalesced: metrics.NewRegisteredCounter("snapshots_coalesced", r),

		PeersBanned: metrics.NewRegisteredCounter("peers_banned", r),

		SpeedDownload: metrics.NewRegisteredMeter("speed_download", r),
		SpeedUpload:   metrics.NewRegisteredMeter("speed_upload", r),
	}
}

func (m *workerMetrics) Close() {
	m.SpeedDownload.Stop()
	m.SpeedUpload.Stop()
}
