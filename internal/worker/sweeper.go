package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpirySweeper ends expired opins.
type ExpirySweeper interface {
	SweepAll(ctx context.Context) (int, error)
}

// Sweeper runs an ExpirySweeper on a fixed interval.
type Sweeper struct {
	target   ExpirySweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper that runs every interval.
func NewSweeper(target ExpirySweeper, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{target: target, interval: interval, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		n, err := s.target.SweepAll(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Warn("expiry sweep failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Debug("expiry sweep", zap.Int("ended", n))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopping")
			return
		case <-ticker.C:
		}
	}
}
