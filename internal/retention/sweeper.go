package retention

import (
	"Shorty-Backend/internal/config"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultInterval         = time.Hour
	DefaultInactivityWindow = 7 * 24 * time.Hour
	DefaultCycleTimeout     = time.Minute
)

// LinkPurger удаляет ссылки, неактивные с threshold
type LinkPurger interface {
	DeleteLinksLastUsedBefore(ctx context.Context, threshold time.Time) (int64, error)
}

// Sweeper периодически удаляет ссылки, которыми не пользовались дольше
// окна неактивности. Ни разу не открытые ссылки считаются от created_at.
type Sweeper struct {
	store            LinkPurger
	interval         time.Duration
	inactivityWindow time.Duration
	cycleTimeout     time.Duration
	log              *zap.Logger
	now              func() time.Time
}

func NewSweeper(store LinkPurger, cfg *config.Retention, log *zap.Logger) *Sweeper {
	s := &Sweeper{
		store:            store,
		interval:         cfg.Interval,
		inactivityWindow: cfg.InactivityWindow,
		cycleTimeout:     cfg.CycleTimeout,
		log:              log.With(zap.String("component", "retention_sweeper")),
		now:              time.Now,
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.inactivityWindow <= 0 {
		s.inactivityWindow = DefaultInactivityWindow
	}
	if s.cycleTimeout <= 0 {
		s.cycleTimeout = DefaultCycleTimeout
	}
	return s
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
// Failed cycles are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("retention sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("inactivity_window", s.inactivityWindow),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.cycle(ctx)

		select {
		case <-ctx.Done():
			s.log.Info("retention sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce deletes every link inactive since now - inactivity window.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cycleTimeout)
	defer cancel()

	threshold := s.now().UTC().Add(-s.inactivityWindow)
	deleted, err := s.store.DeleteLinksLastUsedBefore(ctx, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to purge links inactive since %s: %w", threshold.Format(time.RFC3339), err)
	}
	return deleted, nil
}

func (s *Sweeper) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	deleted, err := s.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Error("retention cycle failed, will retry next tick", zap.Error(err))
		return
	}

	if deleted > 0 {
		s.log.Info("purged inactive links", zap.Int64("deleted", deleted), zap.Duration("took", time.Since(start)))
	} else {
		s.log.Debug("no inactive links to purge")
	}
}
