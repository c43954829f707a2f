package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dillipm021073/arc-studio-sub001/internal/logging"
)

// Sweeper runs SweepLocks on a fixed interval. The owner starts and stops
// it; nothing runs until Start.
type Sweeper struct {
	engine   Engine
	interval time.Duration
	logger   logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(e Engine, interval time.Duration, logger logrus.FieldLogger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{engine: e, interval: interval, logger: logging.OrDiscard(logger)}
}

// Start sweeps once right away and then on every tick until ctx is done or
// Stop is called. Starting a running sweeper does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one pass and logs its outcome.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	res, err := s.engine.SweepLocks(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.WithError(err).Error("lock sweep failed")
		}
		return res, err
	}
	fields := logrus.Fields{
		"expired":             len(res.Expired),
		"inactive_initiative": len(res.Inactive),
		"orphans":             len(res.Orphans),
	}
	if len(res.Expired)+len(res.Inactive) > 0 {
		s.logger.WithFields(fields).Info("swept locks")
	} else {
		s.logger.WithFields(fields).Debug("lock sweep found nothing to remove")
	}
	for _, v := range res.Orphans {
		s.logger.WithFields(logrus.Fields{
			"initiative": v.Initiative(),
			"artifact":   artifactEntity(v.ArtifactType, v.ArtifactID),
			"version_id": v.ID,
		}).Warn("working copy has no live lock")
	}
	return res, nil
}
