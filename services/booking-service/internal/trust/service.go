package trust

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/bookingengine/services/booking-service/internal/model"
)

// HistoryReader returns every booking a customer has made, in any status.
type HistoryReader interface {
	CustomerHistory(ctx context.Context, customerID string) ([]model.Booking, error)
}

// Service serves trust breakdowns, caching each report for ttl.
type Service struct {
	history HistoryReader
	cache   cache.Cache
	ttl     time.Duration
	clock   clock.Clock
	logger  *slog.Logger
}

func NewService(history HistoryReader, c cache.Cache, ttl time.Duration, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{history: history, cache: c, ttl: ttl, clock: clk, logger: logger}
}

func cacheKey(customerID string) string {
	return "trust:" + customerID
}

// Breakdown returns the customer's report. Cache failures are logged and the
// report is computed from history.
func (s *Service) Breakdown(ctx context.Context, customerID string) (Report, error) {
	var cached Report
	if s.cache != nil {
		ok, err := s.cache.Get(ctx, cacheKey(customerID), &cached)
		if err != nil {
			s.logger.Warn("trust cache read failed", "customer_id", customerID, "err", err)
		} else if ok {
			return cached, nil
		}
	}

	history, err := s.history.CustomerHistory(ctx, customerID)
	if err != nil {
		return Report{}, errors.Wrap(err, "load customer history")
	}
	report := Compute(history, s.clock.Now())

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey(customerID), report, s.ttl); err != nil {
			s.logger.Warn("trust cache write failed", "customer_id", customerID, "err", err)
		}
	}
	return report, nil
}

// Invalidate drops the cached report after the customer's history changed.
func (s *Service) Invalidate(ctx context.Context, customerID string) {
	if s.cache == nil || customerID == "" {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(customerID)); err != nil {
		s.logger.Warn("trust cache invalidate failed", "customer_id", customerID, "err", err)
	}
}
