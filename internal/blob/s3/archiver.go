package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

const contentTypeJSONL = "application/x-ndjson"

// OpportunitySource is the slice of domain.OpportunityStore the archiver
// needs.
type OpportunitySource interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ArbitrageOpportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// FeedbackSource is the slice of domain.FeedbackStore the archiver needs.
type FeedbackSource interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.SlippageFeedback, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver implements domain.Archiver. Rows older than the cutoff are
// written as one JSONL object per run and, when prune is set, deleted from
// the database once the upload succeeded.
type Archiver struct {
	writer        domain.BlobWriter
	opportunities OpportunitySource
	feedback      FeedbackSource
	prune         bool
	logger        *slog.Logger
}

// NewArchiver creates an Archiver. Either source may be nil, in which case
// the matching Archive call is a no-op.
func NewArchiver(writer domain.BlobWriter, opps OpportunitySource, fb FeedbackSource, prune bool, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		writer:        writer,
		opportunities: opps,
		feedback:      fb,
		prune:         prune,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOpportunities uploads opportunities detected before the cutoff to
// archive/opportunities/.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	if a.opportunities == nil {
		return 0, nil
	}
	rows, err := a.opportunities.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities: %w", err)
	}
	return archive(ctx, a, "opportunities", before, rows, a.opportunities.DeleteBefore)
}

// ArchiveFeedback uploads slippage feedback recorded before the cutoff to
// archive/slippage_feedback/.
func (a *Archiver) ArchiveFeedback(ctx context.Context, before time.Time) (int64, error) {
	if a.feedback == nil {
		return 0, nil
	}
	rows, err := a.feedback.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive slippage_feedback: %w", err)
	}
	return archive(ctx, a, "slippage_feedback", before, rows, a.feedback.DeleteBefore)
}

func archive[T any](
	ctx context.Context,
	a *Archiver,
	kind string,
	before time.Time,
	rows []T,
	deleteBefore func(context.Context, time.Time) (int64, error),
) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}

	path := archivePath(kind, before)
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: %w", kind, err)
	}

	count := int64(len(rows))
	a.logger.Info("archived rows",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Int64("count", count),
	)

	if a.prune {
		deleted, err := deleteBefore(ctx, before)
		if err != nil {
			return count, fmt.Errorf("s3blob: prune %s: %w", kind, err)
		}
		a.logger.Info("pruned archived rows", slog.String("kind", kind), slog.Int64("deleted", deleted))
	}
	return count, nil
}

// archivePath partitions by cutoff day and stamps the cutoff time so
// repeated runs never overwrite each other:
//
//	archive/opportunities/2025-01-31/20250131T000000Z.jsonl
func archivePath(kind string, before time.Time) string {
	b := before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, b.Format("2006-01-02"), b.Format("20060102T150405Z"))
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	for i, rec := range records {
		line, err := sonnet.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("jsonl record %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
