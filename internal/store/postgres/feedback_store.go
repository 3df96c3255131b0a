package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// FeedbackStore implements domain.FeedbackStore using PostgreSQL. It also
// satisfies slippage.FeedbackRecorder.
type FeedbackStore struct {
	pool *pgxpool.Pool
}

// NewFeedbackStore creates a new FeedbackStore backed by the given pool.
func NewFeedbackStore(pool *pgxpool.Pool) *FeedbackStore {
	return &FeedbackStore{pool: pool}
}

const feedbackSelectCols = `trade_id, symbol, side, size, predicted_slippage,
	realized_slippage, expected_price, executed_price, recorded_at`

// Insert stores one realised slippage observation. A repeated trade ID
// overwrites the earlier row.
func (s *FeedbackStore) Insert(ctx context.Context, fb domain.SlippageFeedback) error {
	const query = `
		INSERT INTO slippage_feedback (
			trade_id, symbol, side, size, predicted_slippage,
			realized_slippage, expected_price, executed_price, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (trade_id) DO UPDATE SET
			realized_slippage = EXCLUDED.realized_slippage,
			executed_price    = EXCLUDED.executed_price,
			recorded_at       = EXCLUDED.recorded_at`

	recordedAt := fb.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, query,
		fb.TradeID, fb.Symbol, string(fb.Side), fb.Size, fb.PredictedSlippage,
		fb.RealizedSlippage, fb.ExpectedPrice, fb.ExecutedPrice, recordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert slippage feedback %s: %w", fb.TradeID, err)
	}
	return nil
}

// ListBySymbol returns the newest feedback rows for a symbol. Rows are keyed
// venue:canonical; a bare canonical symbol matches every venue.
func (s *FeedbackStore) ListBySymbol(ctx context.Context, symbol string, limit int) ([]domain.SlippageFeedback, error) {
	query := `SELECT ` + feedbackSelectCols + ` FROM slippage_feedback
		WHERE symbol = $1 OR split_part(symbol, ':', 2) = $1
		ORDER BY recorded_at DESC`
	args := []any{symbol}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.query(ctx, "list feedback by symbol", query, args...)
}

// ListBefore returns the oldest feedback rows recorded before the cutoff.
func (s *FeedbackStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.SlippageFeedback, error) {
	query := `SELECT ` + feedbackSelectCols + ` FROM slippage_feedback WHERE recorded_at < $1 ORDER BY recorded_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.query(ctx, "list feedback before cutoff", query, args...)
}

// DeleteBefore removes feedback rows recorded before the cutoff.
func (s *FeedbackStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM slippage_feedback WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete feedback before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func (s *FeedbackStore) query(ctx context.Context, op, query string, args ...any) ([]domain.SlippageFeedback, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.SlippageFeedback
	for rows.Next() {
		var (
			fb   domain.SlippageFeedback
			side string
		)
		if err := rows.Scan(
			&fb.TradeID, &fb.Symbol, &side, &fb.Size, &fb.PredictedSlippage,
			&fb.RealizedSlippage, &fb.ExpectedPrice, &fb.ExecutedPrice, &fb.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan feedback: %w", err)
		}
		fb.Side = domain.Side(side)
		out = append(out, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}

var _ domain.FeedbackStore = (*FeedbackStore)(nil)
