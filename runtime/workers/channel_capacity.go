package workers

import (
	"context"
	"log/slog"
	"shop-chat/domain/event"
	"time"
)

// ChannelGauge reads the fill level of one internal queue.
type ChannelGauge struct {
	Name     string
	Capacity int
	Length   func() int
}

// Gauge watches ch under name.
func Gauge[T any](name string, ch chan T) ChannelGauge {
	return ChannelGauge{
		Name:     name,
		Capacity: cap(ch),
		Length:   func() int { return len(ch) },
	}
}

// ChannelCapacityWorker samples the internal queues (telemetry, auto-reply)
// every interval. A sample that does not fit in the telemetry channel is dropped.
type ChannelCapacityWorker struct {
	log       *slog.Logger
	gauges    []ChannelGauge
	telemetry chan<- event.Event
	interval  time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger, gauges []ChannelGauge,
	telemetry chan<- event.Event, interval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{log: log, gauges: gauges, telemetry: telemetry, interval: interval}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Channel sampling stopped")
			return nil
		case now := <-ticker.C:
			w.sample(now.UTC())
		}
	}
}

func (w ChannelCapacityWorker) sample(at time.Time) {
	for _, g := range w.gauges {
		sample := event.Event{
			Type:      event.ChannelCapacityType,
			CreatedAt: at,
			Payload: event.ChannelCapacity{
				ChannelName: g.Name,
				Capacity:    g.Capacity,
				Length:      g.Length(),
			},
		}
		if !event.Publish(w.telemetry, sample) {
			w.log.Debug("Channel capacity sample lost", "channel", g.Name)
		}
	}
}
