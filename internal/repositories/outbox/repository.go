// Package outbox persists sync intents in the sync_outbox table. Entries are
// written inside the caller's transaction so a record write and its sync
// intent land atomically.
package outbox

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/database"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

const outboxTable = "sync_outbox"

var outboxColumns = []string{
	"id", "record_type", "record_id", "operation", "status",
	"attempts", "last_error", "created_at", "processed_at",
}

// Repository implements annotations.OutboxStore on PostgreSQL.
type Repository struct {
	db          database.DB
	logger      ectologger.Logger
	maxAttempts int
}

// NewRepository creates a new outbox repository. Entries that fail more than
// maxAttempts times are parked as failed instead of retried; maxAttempts <= 0
// selects the default of 5.
func NewRepository(db database.DB, logger ectologger.Logger, maxAttempts int) *Repository {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Repository{
		db:          db,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Enqueue records a pending sync intent. When the context carries an open
// transaction the insert joins it; commit stays with the caller.
func (r *Repository) Enqueue(ctx context.Context, entry *annotations.Entry) error {
	ctx, span := tracing.StartSpan(ctx, "outbox.Repository.Enqueue")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = annotations.StatusPending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(outboxTable)
	ib.Cols(outboxColumns...)
	ib.Values(entry.ID, entry.RecordType, entry.RecordID, entry.Operation, entry.Status,
		entry.Attempts, entry.LastError, entry.CreatedAt, entry.ProcessedAt)

	query, args := ib.Build()

	var err error
	if tx, ok := database.TxFromContext(ctx); ok {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_type": entry.RecordType,
			"record_id":   entry.RecordID,
			"operation":   entry.Operation,
		}).Error("Failed to enqueue outbox entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to enqueue outbox entry")
	}

	return nil
}

// ListPending returns the oldest pending entries up to limit.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]*annotations.Entry, error) {
	ctx, span := tracing.StartSpan(ctx, "outbox.Repository.ListPending")
	defer span.End()

	if limit < 1 {
		limit = 100
	}

	sb := database.NewSelectBuilder()
	sb.Select(outboxColumns...)
	sb.From(outboxTable)
	sb.Where(sb.Equal("status", annotations.StatusPending))
	sb.OrderBy("created_at")
	sb.Limit(limit)

	query, args := sb.Build()
	var entries []*annotations.Entry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending outbox entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending outbox entries")
	}

	return entries, nil
}

// MarkProcessed closes an entry after a successful dispatch.
func (r *Repository) MarkProcessed(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "outbox.Repository.MarkProcessed")
	defer span.End()

	now := time.Now().UTC()
	ub := database.NewUpdateBuilder()
	ub.Update(outboxTable)
	ub.Set(
		ub.Assign("status", annotations.StatusProcessed),
		ub.Assign("processed_at", now),
		ub.Assign("last_error", nil),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to mark outbox entry processed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark outbox entry processed")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "outbox entry %s not found", id)
	}

	return nil
}

// MarkFailed records a dispatch failure. The entry stays pending for another
// pass until it runs out of attempts, then parks as failed.
func (r *Repository) MarkFailed(ctx context.Context, id, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "outbox.Repository.MarkFailed")
	defer span.End()

	query := `
		UPDATE sync_outbox
		SET attempts = attempts + 1,
		    last_error = $2,
		    status = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, reason, r.maxAttempts)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to mark outbox entry failed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark outbox entry failed")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "outbox entry %s not found", id)
	}

	return nil
}

// CountPending returns how many entries are waiting for dispatch.
func (r *Repository) CountPending(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "outbox.Repository.CountPending")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(outboxTable)
	sb.Where(sb.Equal("status", annotations.StatusPending))

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count pending outbox entries")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count pending outbox entries")
	}

	return count, nil
}

// DeleteProcessedBefore prunes processed entries older than cutoff and
// returns how many were removed.
func (r *Repository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "outbox.Repository.DeleteProcessedBefore")
	defer span.End()

	sb := database.NewDeleteBuilder()
	sb.DeleteFrom(outboxTable)
	sb.Where(
		sb.Equal("status", annotations.StatusProcessed),
		sb.LessThan("processed_at", cutoff),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to prune processed outbox entries")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to prune processed outbox entries")
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{"count": rows}).Info("Pruned processed outbox entries")
	}
	return rows, nil
}
