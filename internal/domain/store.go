package domain

import (
	"context"
	"time"
)

// OpportunityStore persists ranked opportunity history.
type OpportunityStore interface {
	InsertBatch(ctx context.Context, cycleID string, opps []ArbitrageOpportunity) error
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]ArbitrageOpportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// FeedbackStore persists realised slippage feedback.
type FeedbackStore interface {
	Insert(ctx context.Context, fb SlippageFeedback) error
	ListBySymbol(ctx context.Context, symbol string, limit int) ([]SlippageFeedback, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]SlippageFeedback, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
