// Package slackchannel persists Slack channels and records a sync intent for
// every write.
package slackchannel

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/database"
	"github.com/Kode-Rex/weave/pkg/models"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

const slackChannelsTable = "slack_channels"

// Repository handles slack channel persistence
type Repository struct {
	db     database.DB
	outbox annotations.OutboxStore
	logger ectologger.Logger
}

// NewRepository creates a new slack channel repository
func NewRepository(db database.DB, outbox annotations.OutboxStore, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		outbox: outbox,
		logger: logger,
	}
}

// UpsertResult contains the result of an upsert operation
type UpsertResult struct {
	Channel *models.SlackChannel
	IsNew   bool
}

// Upsert creates or updates a slack channel by id. The row write and the
// outbox entry commit in one transaction.
func (r *Repository) Upsert(ctx context.Context, req models.UpsertSlackChannelRequest) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "slackchannel.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	data := req.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	query := `
		INSERT INTO slack_channels (
			id, name, is_private, is_archived, created, creator,
			num_members, purpose, topic, data, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_private = EXCLUDED.is_private,
			is_archived = EXCLUDED.is_archived,
			created = EXCLUDED.created,
			creator = EXCLUDED.creator,
			num_members = EXCLUDED.num_members,
			purpose = EXCLUDED.purpose,
			topic = EXCLUDED.topic,
			data = slack_channels.data || EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
		RETURNING id, name, is_private, is_archived, created, creator,
			num_members, purpose, topic, data, created_at, updated_at,
			(xmax = 0) AS inserted
	`

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	var result struct {
		models.SlackChannel
		Inserted bool `db:"inserted"`
	}
	err = tx.GetContext(txCtx, &result, query,
		req.ID, req.Name, req.IsPrivate, req.IsArchived, req.Created, req.Creator,
		req.NumMembers, req.Purpose, req.Topic, data, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": req.ID}).Error("Failed to upsert slack channel")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert slack channel")
	}

	operation := annotations.OpUpdate
	if result.Inserted {
		operation = annotations.OpInsert
	}
	if err := r.outbox.Enqueue(txCtx, &annotations.Entry{
		RecordType: models.KeySlackChannel,
		RecordID:   result.ID,
		Operation:  operation,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit slack channel upsert")
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": result.ID}).Info("Created slack channel")
	} else {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": result.ID}).Debug("Updated slack channel")
	}
	return &UpsertResult{Channel: &result.SlackChannel, IsNew: result.Inserted}, nil
}

// Get retrieves a slack channel by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.SlackChannel, error) {
	ctx, span := tracing.StartSpan(ctx, "slackchannel.Repository.Get")
	defer span.End()

	channel, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "slack channel %s not found", id)
	}
	return channel, nil
}

// Load fetches a slack channel for dispatch. A vanished row returns
// (nil, nil) so the dispatcher can skip it.
func (r *Repository) Load(ctx context.Context, id string) (any, error) {
	channel, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, nil
	}
	return channel, nil
}

func (r *Repository) find(ctx context.Context, id string) (*models.SlackChannel, error) {
	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "is_private", "is_archived", "created", "creator",
		"num_members", "purpose", "topic", "data", "created_at", "updated_at")
	sb.From(slackChannelsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var channel models.SlackChannel
	if err := r.db.GetContext(ctx, &channel, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get slack channel")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get slack channel")
	}
	return &channel, nil
}

// List retrieves slack channels with pagination. Archived channels are
// excluded unless includeArchived is set.
func (r *Repository) List(ctx context.Context, includeArchived bool, page, pageSize int) (*models.SlackChannelListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "slackchannel.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := database.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From(slackChannelsTable)
	if !includeArchived {
		countSb.Where(countSb.Equal("is_archived", false))
	}

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count slack channels")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count slack channels")
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "is_private", "is_archived", "created", "creator",
		"num_members", "purpose", "topic", "data", "created_at", "updated_at")
	sb.From(slackChannelsTable)
	if !includeArchived {
		sb.Where(sb.Equal("is_archived", false))
	}
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var channels []models.SlackChannel
	if err := r.db.SelectContext(ctx, &channels, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list slack channels")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list slack channels")
	}

	return &models.SlackChannelListResponse{
		Items:      channels,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Delete removes a slack channel row and queues the store cleanup.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "slackchannel.Repository.Delete")
	defer span.End()

	sb := database.NewDeleteBuilder()
	sb.DeleteFrom(slackChannelsTable)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to delete slack channel")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete slack channel")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "slack channel %s not found", id)
	}

	if err := r.outbox.Enqueue(txCtx, &annotations.Entry{
		RecordType: models.KeySlackChannel,
		RecordID:   id,
		Operation:  annotations.OpDelete,
	}); err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit slack channel delete")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted slack channel")
	return nil
}
