package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"roomcast/observability"

	"github.com/shirou/gopsutil/process"
)

const bytesPerMb = 1024 * 1024

// HeartbeatWorker periodically logs the server counters together with
// the process's own memory and CPU footprint, so an operator can watch
// a deployment from the logs alone.
type HeartbeatWorker struct {
	log        *slog.Logger
	interval   time.Duration
	monitoring *observability.Manager
}

func NewHeartbeatWorker(log *slog.Logger, interval time.Duration,
	monitoring *observability.Manager) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, interval: interval, monitoring: monitoring}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := w.monitoring.Latest()
			rss, cpu := selfStats(p)
			w.log.Info("Heartbeat",
				"rooms_active", stats.RoomsActive,
				"sessions_open", stats.SessionsOpen,
				"messages_stored", stats.MessagesStored,
				"broadcast_drops", stats.BroadcastDrops,
				"log_clears", stats.LogClears,
				"rss_mb", rss/bytesPerMb,
				"cpu_percent", cpu)
		}
	}
}

// selfStats collects process memory and CPU usage, tolerating platforms
// where one of the probes is unavailable.
func selfStats(p *process.Process) (uint64, float64) {
	var rss uint64
	var cpu float64
	if memInfo, err := p.MemoryInfo(); err == nil {
		rss = memInfo.RSS
	}
	if percent, err := p.CPUPercent(); err == nil {
		cpu = percent
	}
	return rss, cpu
}
