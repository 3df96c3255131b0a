package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, symbol, buy_venue, sell_venue, buy_symbol, sell_symbol,
	buy_price, sell_price, price_diff_pct, profit_pct, fee_pct,
	buy_slippage, sell_slippage, position_size, viable, risk, detected_at`

// InsertBatch stores one scan cycle's opportunities in a single round trip.
// Rows that already exist are left untouched.
func (s *OpportunityStore) InsertBatch(ctx context.Context, cycleID string, opps []domain.ArbitrageOpportunity) error {
	if len(opps) == 0 {
		return nil
	}
	const query = `
		INSERT INTO opportunities (
			id, cycle_id, symbol, buy_venue, sell_venue, buy_symbol, sell_symbol,
			buy_price, sell_price, price_diff_pct, profit_pct, fee_pct,
			buy_slippage, sell_slippage, position_size, viable, risk, detected_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, o := range opps {
		risk, err := encodeRisk(o.Risk)
		if err != nil {
			return fmt.Errorf("postgres: encode risk %s: %w", o.ID, err)
		}
		batch.Queue(query,
			o.ID, cycleID, o.Symbol, o.BuyVenue, o.SellVenue, o.BuySymbol, o.SellSymbol,
			o.BuyPrice, o.SellPrice, o.PriceDiffPct, o.ProfitPct, o.FeePct,
			o.BuySlippage, o.SellSlippage, o.PositionSize, o.Viable, risk, o.DetectedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range opps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert opportunities for cycle %s: %w", cycleID, err)
		}
	}
	return nil
}

// ListRecent returns the newest opportunities first. limit <= 0 returns all.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities ORDER BY detected_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.query(ctx, "list recent opportunities", query, args...)
}

// ListBefore returns the oldest opportunities detected before the cutoff.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ArbitrageOpportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities WHERE detected_at < $1 ORDER BY detected_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.query(ctx, "list opportunities before cutoff", query, args...)
}

// DeleteBefore removes opportunities detected before the cutoff.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func (s *OpportunityStore) query(ctx context.Context, op, query string, args ...any) ([]domain.ArbitrageOpportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var opps []domain.ArbitrageOpportunity
	for rows.Next() {
		var (
			o    domain.ArbitrageOpportunity
			risk []byte
		)
		if err := rows.Scan(
			&o.ID, &o.Symbol, &o.BuyVenue, &o.SellVenue, &o.BuySymbol, &o.SellSymbol,
			&o.BuyPrice, &o.SellPrice, &o.PriceDiffPct, &o.ProfitPct, &o.FeePct,
			&o.BuySlippage, &o.SellSlippage, &o.PositionSize, &o.Viable, &risk, &o.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		if o.Risk, err = decodeRisk(risk); err != nil {
			return nil, fmt.Errorf("postgres: decode risk %s: %w", o.ID, err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return opps, nil
}

func encodeRisk(r *domain.RiskAssessment) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	return sonnet.Marshal(r)
}

func decodeRisk(data []byte) (*domain.RiskAssessment, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var r domain.RiskAssessment
	if err := sonnet.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)
