package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	_ "github.com/shirou/gopsutil"
	"github.com/shirou/gopsutil/process"
)

// HealthMonitoringWorker samples the server's own process at a fixed
// interval and logs CPU and memory usage. Purely observational: it
// never interferes with the read/write path.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	metricInterval time.Duration
}

func NewHealthMonitoringWorker(log *slog.Logger, metricInterval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{log: log, metricInterval: metricInterval}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	pid := int32(os.Getpid())
	proc, err := process.NewProcess(pid)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			cpu, err := proc.CPUPercent()
			if err != nil {
				w.log.Error("Error while finding process cpu usage", "err", err)
				continue
			}
			ram, err := proc.MemoryPercent()
			if err != nil {
				w.log.Error("Error while finding process ram usage", "err", err)
				continue
			}
			w.log.Info("Process health", "pid", pid, "cpu_percent", cpu, "ram_percent", ram)
		}
	}
}
