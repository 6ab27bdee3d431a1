package workers

import (
	"context"
	"log/slog"
	"os"
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessStatsWorker samples the server process (CPU, RSS, status) along
// with the number of live connections.
type ProcessStatsWorker struct {
	log            *slog.Logger
	registry       contract.IRegistry
	telemetryChan  chan<- event.Event
	metricInterval time.Duration
}

func NewProcessStatsWorker(log *slog.Logger,
	registry contract.IRegistry,
	telemetryChan chan<- event.Event,
	metricInterval time.Duration) *ProcessStatsWorker {
	return &ProcessStatsWorker{
		log:            log,
		registry:       registry,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
	}
}

func (w *ProcessStatsWorker) Run(ctx context.Context) error {
	pid := int32(os.Getpid())
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			if !event.Publish(w.telemetryChan, event.New(event.ProcessStatsType, event.ProcessStats{
				PID:         pid,
				Status:      status,
				Cpu:         cpu,
				Ram:         rss,
				Connections: w.registry.Len(),
			})) {
				w.log.Debug("Process stats sample lost")
			}
		}
	}
}

// selfStats retrieves memory, CPU and OS status of the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}
	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, string(domain.ToStatus(status)), nil
}
