// Package scheduler runs the periodic wallet code expiry sweep.
package scheduler

import (
	"context"
	"time"

	"walletbridge/pkg/logger"
)

// Registry is the slice of the code registry the sweeper needs.
type Registry interface {
	ExpireDue(ctx context.Context) (int64, error)
}

// Scheduler ticks at a fixed interval and marks due codes expired.
type Scheduler struct {
	registry Registry
	interval time.Duration
	logger   logger.Logger
	stop     chan struct{}
}

func NewScheduler(registry Registry, interval time.Duration, log logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		registry: registry,
		interval: interval,
		logger:   log,
		stop:     make(chan struct{}),
	}
}

// Start launches the sweep loop. A sweep runs immediately so restarts do not
// postpone expiry by a full interval.
func (s *Scheduler) Start() {
	go func() {
		s.sweep()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
	s.logger.Info("expiry sweep started", map[string]interface{}{
		"interval": s.interval.String(),
	})
}

// Stop terminates the sweep loop.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expired, err := s.registry.ExpireDue(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if expired > 0 {
		s.logger.Info("expired due wallet codes", map[string]interface{}{"count": expired})
	}
}
