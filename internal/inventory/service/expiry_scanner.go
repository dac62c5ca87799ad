package service

import (
	"context"
	"fmt"

	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/events"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// ExpiryScanner finds stock that needs attention and announces it. It keeps
// no state between runs: each run classifies batches afresh.
type ExpiryScanner struct {
	batches     *repository.BatchRepository
	allocations *repository.AllocationRepository
	classifier  domain.ExpiryClassifier
	publisher   *events.InventoryEventPublisher
	clock       Clock
	logger      *logger.Logger
}

// ScanReport summarizes one scan
type ScanReport struct {
	NearExpiry     int
	Expired        int
	BelowThreshold int
}

// NewExpiryScanner creates a new expiry scanner
func NewExpiryScanner(
	batches *repository.BatchRepository,
	allocations *repository.AllocationRepository,
	classifier domain.ExpiryClassifier,
	publisher *events.InventoryEventPublisher,
	log *logger.Logger,
) *ExpiryScanner {
	return &ExpiryScanner{
		batches:     batches,
		allocations: allocations,
		classifier:  classifier,
		publisher:   publisher,
		clock:       systemClock,
		logger:      log.WithComponent("expiry_scanner"),
	}
}

// WithClock replaces the scanner clock
func (s *ExpiryScanner) WithClock(clock Clock) *ExpiryScanner {
	s.clock = clock
	return s
}

// ScanAll runs every scan. A failing scan is logged and the others still run.
func (s *ExpiryScanner) ScanAll(ctx context.Context) (ScanReport, error) {
	var report ScanReport
	scanners := []struct {
		name string
		fn   func(context.Context, *ScanReport) error
	}{
		{"expiry", s.scanExpiry},
		{"threshold", s.scanThresholds},
	}

	var lastErr error
	for _, scanner := range scanners {
		if err := scanner.fn(ctx, &report); err != nil {
			s.logger.Error().Err(err).Str("scanner", scanner.name).Msg("inventory scan failed")
			lastErr = err
		}
	}
	return report, lastErr
}

// scanExpiry announces every allocated batch that is near expiry or expired
func (s *ExpiryScanner) scanExpiry(ctx context.Context, report *ScanReport) error {
	now := s.clock()
	cutoff := s.classifier.Range(domain.StatusNearExpiry, now).NotAfter
	if cutoff == nil {
		return nil
	}

	batches, err := s.batches.ListExpiringUpTo(ctx, *cutoff)
	if err != nil {
		return fmt.Errorf("scanExpiry: list batches: %w", err)
	}

	for _, b := range batches {
		if err := enrichBatch(s.logger, s.classifier, b, now); err != nil {
			continue
		}
		switch b.Status {
		case domain.StatusExpired:
			report.Expired++
		case domain.StatusNearExpiry:
			report.NearExpiry++
		default:
			continue
		}
		s.publisher.PublishBatchExpiry(ctx, b)
	}
	return nil
}

// scanThresholds announces allocations at or below their reorder threshold
func (s *ExpiryScanner) scanThresholds(ctx context.Context, report *ScanReport) error {
	rows, err := s.allocations.ListAtOrBelowThreshold(ctx)
	if err != nil {
		return fmt.Errorf("scanThresholds: list allocations: %w", err)
	}
	for _, row := range rows {
		report.BelowThreshold++
		s.publisher.PublishShelfBelowThreshold(ctx, row)
	}
	return nil
}
