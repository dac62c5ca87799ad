package service

import (
	"context"
	"sync"
	"time"

	"github.com/medflow/pharmacy-inventory/pkg/actor"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// ScanScheduler runs the expiry scanner periodically
type ScanScheduler struct {
	scanner  *ExpiryScanner
	interval time.Duration
	logger   *logger.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewScanScheduler creates a new scan scheduler
func NewScanScheduler(scanner *ExpiryScanner, interval time.Duration, log *logger.Logger) *ScanScheduler {
	return &ScanScheduler{
		scanner:  scanner,
		interval: interval,
		logger:   log.WithComponent("scan_scheduler"),
	}
}

// Start runs one scan immediately and then one per interval in a background
// goroutine until Stop is called or ctx is done
func (s *ScanScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(actor.WithActor(ctx, actor.System()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info().Dur("interval", s.interval).Msg("scan scheduler started")

		s.runScanCycle(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("scan scheduler stopped")
				return
			case <-ticker.C:
				s.runScanCycle(ctx)
			}
		}
	}()
}

// Stop stops the scheduler and waits for a running scan to finish
func (s *ScanScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *ScanScheduler) runScanCycle(ctx context.Context) {
	start := time.Now()
	report, err := s.scanner.ScanAll(ctx)
	if err != nil {
		return
	}

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("near_expiry", report.NearExpiry).
		Int("expired", report.Expired).
		Int("below_threshold", report.BelowThreshold).
		Msg("inventory scan completed")
}
