package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/atlas-promo/atlas-promo/internal/jobs"
	"github.com/atlas-promo/atlas-promo/internal/ledger"
)

// OverdueScanner flips pending installments past their due date to late.
type OverdueScanner struct {
	pool    *pgxpool.Pool
	cache   *ledger.ViewCache
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewOverdueScanner constructs the scanner with its dependencies.
func NewOverdueScanner(pool *pgxpool.Pool, cache *ledger.ViewCache, metrics *jobmetrics.Metrics, logger *slog.Logger) *OverdueScanner {
	return &OverdueScanner{pool: pool, cache: cache, metrics: metrics, logger: logger}
}

// Handle processes TaskTypeOverdueScan tasks.
func (s *OverdueScanner) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := s.metrics.Track(TaskTypeOverdueScan)
	var payload OverdueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE installments
		SET status = $1, updated_at = now()
		WHERE status = $2 AND due_date IS NOT NULL AND due_date < $3
	`, string(ledger.InstallmentLate), string(ledger.InstallmentPending), asOf)
	if err != nil {
		s.logger.Error("overdue scan failed", slog.Any("error", err))
		return tracker.End(err)
	}
	if tag.RowsAffected() > 0 {
		s.logger.Info("marked installments late", slog.Int64("count", tag.RowsAffected()))
		s.metrics.AddFlagged(string(ledger.InstallmentLate), int(tag.RowsAffected()))
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("cache bump after overdue scan", slog.Any("error", err))
		}
	}
	return tracker.End(nil)
}
