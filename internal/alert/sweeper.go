package alert

import (
	"context"
	"encoding/json"
	"time"

	"github.com/baotran97/gridpulse-core/internal/device"
	"github.com/baotran97/gridpulse-core/internal/eventbus"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/logging"
)

// Sweeper runs the idle sweep on a fixed cadence and distributes the
// resulting device transitions to live viewers.
type Sweeper struct {
	pipeline *Pipeline
	bus      device.Publisher
	logger   *logging.Logger
	interval time.Duration
}

// NewSweeper creates an idle sweeper.
func NewSweeper(pipeline *Pipeline, bus device.Publisher, logger *logging.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		pipeline: pipeline,
		bus:      bus,
		logger:   logger,
		interval: interval,
	}
}

// Run executes the sweep loop until the context is cancelled. Intended to
// be launched as a goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("idle sweeper started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("idle sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one cycle and pushes each newly disconnected record on its
// tenant's device status channel.
func (s *Sweeper) sweep(ctx context.Context) {
	count, swept := s.pipeline.SweepIdle(ctx)
	if count == 0 {
		return
	}

	s.logger.Info("idle sweep flagged silent devices", "count", count)

	for _, sd := range swept {
		if sd.Tenant == "" {
			continue
		}
		payload, err := json.Marshal(sd.Record)
		if err != nil {
			s.logger.Warn("swept record marshal failed", "mac", sd.Record.MAC, "error", err)
			continue
		}
		if err := s.bus.Publish(ctx, eventbus.DeviceStatusChannel(sd.Tenant), payload); err != nil {
			s.logger.Warn("swept record publish failed", "mac", sd.Record.MAC, "error", err)
		}
	}
}
