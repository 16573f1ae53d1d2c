package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"
)

// ReporterWorker periodically refreshes the monitoring snapshot and logs it.
type ReporterWorker struct {
	log        *slog.Logger
	monitoring *observability.MonitoringManager
	interval   time.Duration
}

func NewReporterWorker(log *slog.Logger, monitoring *observability.MonitoringManager, interval time.Duration) *ReporterWorker {
	return &ReporterWorker{log: log, monitoring: monitoring, interval: interval}
}

// Run starts the reporting loop until context cancellation
func (w *ReporterWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logStats()
			w.log.Info("Reporter stopped")
			return nil
		case <-ticker.C:
			w.logStats()
		}
	}
}

func (w *ReporterWorker) logStats() {
	stats := w.monitoring.Refresh()
	w.log.Info("Relay stats",
		"uptime", stats.Uptime,
		"connections", stats.Connections,
		"queue", stats.QueueSize,
		"messages", stats.MessagesPersisted,
		"private", stats.PrivateMessages,
		"reactions", stats.ReactionsUpdated,
		"failures", stats.Failures,
		"restarts", stats.WorkerRestarts,
		"mem_mb", stats.AllocMemMb,
		"rss", stats.Process.RSSBytes,
		"cpu", stats.Process.CPUPercent,
	)
}
