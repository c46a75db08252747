package engine

import (
	"context"
	"time"
)

// Sweeper resolves expired debates on a fixed interval.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

func NewSweeper(e *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{engine: e, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.engine.ResolveExpired(ctx)
			if err != nil && ctx.Err() == nil {
				s.engine.logger.Error("debate sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.engine.logger.Info("debate sweep", "resolved", n)
			}
		}
	}
}
