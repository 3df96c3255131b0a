package slippage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// FeedbackRecorder persists realised slippage outcomes.
type FeedbackRecorder interface {
	Insert(ctx context.Context, fb domain.SlippageFeedback) error
}

// CoordinatorConfig tunes caching and purging.
type CoordinatorConfig struct {
	CacheTTL      time.Duration // how long an estimate is reused
	MaxAge        time.Duration // cache and pending entries older than this are purged
	HistoryTTL    time.Duration // feedback histories idle longer than this are purged
	PurgeInterval time.Duration
}

// Key scopes volatility, estimate and feedback history to one venue's
// market for a canonical symbol.
func Key(venue, canonical string) string {
	return venue + ":" + canonical
}

// DefaultCoordinatorConfig returns the stock settings.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		CacheTTL:      5 * time.Second,
		MaxAge:        time.Hour,
		HistoryTTL:    24 * time.Hour,
		PurgeInterval: time.Hour,
	}
}

type cacheKey struct {
	symbol string
	size   float64
	isBuy  bool
}

type cachedEstimate struct {
	value float64
	at    time.Time
}

// Coordinator feeds prices into the VolatilityTracker, caches estimates from
// the Estimator, and closes the feedback loop for executed trades.
type Coordinator struct {
	tracker   *VolatilityTracker
	estimator *Estimator
	cfg       CoordinatorConfig
	logger    *slog.Logger
	now       func() time.Time

	cacheMu sync.Mutex
	cache   map[cacheKey]cachedEstimate

	pendingMu sync.Mutex
	pending   map[string]domain.PendingTrade

	feedback FeedbackRecorder
}

// NewCoordinator wires a tracker and estimator together.
func NewCoordinator(tracker *VolatilityTracker, estimator *Estimator, cfg CoordinatorConfig, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultCoordinatorConfig()
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = def.HistoryTTL
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = def.PurgeInterval
	}
	return &Coordinator{
		tracker:   tracker,
		estimator: estimator,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "slippage_coordinator")),
		now:       time.Now,
		cache:     make(map[cacheKey]cachedEstimate),
		pending:   make(map[string]domain.PendingTrade),
	}
}

// SetFeedbackRecorder enables persistence of execution feedback.
func (c *Coordinator) SetFeedbackRecorder(r FeedbackRecorder) {
	c.feedback = r
}

// EstimateSlippage records the ticker's price for volatility tracking, then
// returns a cached or fresh estimate for (symbol, size, side).
func (c *Coordinator) EstimateSlippage(symbol string, t domain.Ticker, ob *domain.OrderBook, size float64, isBuy bool) float64 {
	now := c.now()
	if p := t.Price(); p > 0 {
		ts := t.Timestamp
		if ts.IsZero() {
			ts = now
		}
		c.tracker.Update(symbol, p, ts)
	}

	key := cacheKey{symbol: symbol, size: size, isBuy: isBuy}
	if c.cfg.CacheTTL > 0 {
		c.cacheMu.Lock()
		hit, ok := c.cache[key]
		c.cacheMu.Unlock()
		if ok && now.Sub(hit.at) < c.cfg.CacheTTL {
			return hit.value
		}
	}

	est := c.estimator.Estimate(t, ob, size, isBuy, symbol)

	c.cacheMu.Lock()
	c.cache[key] = cachedEstimate{value: est, at: now}
	c.cacheMu.Unlock()
	return est
}

// Condition exposes the tracker's latest market condition for symbol.
func (c *Coordinator) Condition(symbol string) (domain.MarketCondition, bool) {
	return c.tracker.Condition(symbol)
}

// RecordPendingTrade registers a trade awaiting execution and returns its ID.
func (c *Coordinator) RecordPendingTrade(symbol string, size float64, side domain.Side, predicted float64) string {
	id := uuid.NewString()
	c.pendingMu.Lock()
	c.pending[id] = domain.PendingTrade{
		ID:                id,
		Symbol:            symbol,
		Size:              size,
		Side:              side,
		PredictedSlippage: predicted,
		CreatedAt:         c.now(),
	}
	c.pendingMu.Unlock()
	return id
}

// PendingCount returns the number of trades awaiting feedback.
func (c *Coordinator) PendingCount() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// RecordTradeExecution resolves a pending trade. It returns the realised
// slippage, which is direction-aware and never negative, and feeds it into
// the estimator's history.
func (c *Coordinator) RecordTradeExecution(ctx context.Context, tradeID string, executedPrice, expectedPrice float64) (float64, error) {
	if expectedPrice <= 0 || executedPrice <= 0 {
		return 0, fmt.Errorf("slippage: trade %s: prices must be positive: %w", tradeID, domain.ErrInvalidInput)
	}

	c.pendingMu.Lock()
	pt, ok := c.pending[tradeID]
	if ok {
		delete(c.pending, tradeID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return 0, fmt.Errorf("slippage: pending trade %s: %w", tradeID, domain.ErrNotFound)
	}

	realized := (executedPrice - expectedPrice) / expectedPrice
	if pt.Side == domain.SideSell {
		realized = (expectedPrice - executedPrice) / expectedPrice
	}
	if realized < 0 {
		realized = 0
	}

	c.estimator.RecordObservation(pt.Symbol, pt.PredictedSlippage, realized)

	if c.feedback != nil {
		fb := domain.SlippageFeedback{
			TradeID:           pt.ID,
			Symbol:            pt.Symbol,
			Side:              pt.Side,
			Size:              pt.Size,
			PredictedSlippage: pt.PredictedSlippage,
			RealizedSlippage:  realized,
			ExpectedPrice:     expectedPrice,
			ExecutedPrice:     executedPrice,
			RecordedAt:        c.now().UTC(),
		}
		if err := c.feedback.Insert(ctx, fb); err != nil {
			c.logger.WarnContext(ctx, "persist slippage feedback failed",
				slog.String("trade_id", tradeID),
				slog.String("error", err.Error()),
			)
		}
	}
	return realized, nil
}

// Purge drops cached estimates and pending trades older than MaxAge, and
// idle feedback histories older than HistoryTTL.
func (c *Coordinator) Purge() (cached, pending, histories int) {
	now := c.now()
	cutoff := now.Add(-c.cfg.MaxAge)

	c.cacheMu.Lock()
	for k, v := range c.cache {
		if v.at.Before(cutoff) {
			delete(c.cache, k)
			cached++
		}
	}
	c.cacheMu.Unlock()

	c.pendingMu.Lock()
	for id, pt := range c.pending {
		if pt.CreatedAt.Before(cutoff) {
			delete(c.pending, id)
			pending++
		}
	}
	c.pendingMu.Unlock()

	histories = c.estimator.PurgeHistory(now.Add(-c.cfg.HistoryTTL))
	return cached, pending, histories
}

// Run purges on PurgeInterval until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cached, pending, hist := c.Purge()
			c.logger.Info("slippage state purged",
				slog.Int("cached", cached),
				slog.Int("pending", pending),
				slog.Int("histories", hist),
			)
		}
	}
}
