package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/layer-3/rangda/ports"
)

const DefaultSweepInterval = 10 * time.Minute

// ChallengeSweeper periodically removes expired unconsumed challenges
// so abandoned flows don't leak storage. Stores with native expiry can
// make DeleteExpired a no-op.
type ChallengeSweeper struct {
	interval   time.Duration
	challenges ports.ChallengeStore
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewChallengeSweeper creates a sweeper over the given store.
func NewChallengeSweeper(challenges ports.ChallengeStore, interval time.Duration, logger *zap.Logger) *ChallengeSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChallengeSweeper{
		interval:   interval,
		challenges: challenges,
		logger:     logger.Named("challenge-sweeper"),
	}
}

// Start runs the sweep loop in the background.
func (w *ChallengeSweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)

	go w.run(ctx)

	w.logger.Info("challenge sweeper started", zap.Duration("interval", w.interval))
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (w *ChallengeSweeper) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("challenge sweeper stopped")
}

func (w *ChallengeSweeper) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := w.challenges.DeleteExpired(ctx, time.Now())
			if err != nil {
				w.logger.Warn("sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				w.logger.Debug("swept expired challenges", zap.Int("removed", removed))
			}
		}
	}
}
