// Package slackuser persists Slack workspace members and records a sync
// intent for every write.
package slackuser

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

const slackUsersTable = "slack_users"

// Repository handles slack user persistence
type Repository struct {
	db     database.DB
	outbox annotations.OutboxStore
	logger ectologger.Logger
}

// NewRepository creates a new slack user repository
func NewRepository(db database.DB, outbox annotations.OutboxStore, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		outbox: outbox,
		logger: logger,
	}
}

// UpsertResult contains the result of an upsert operation
type UpsertResult struct {
	User  *models.SlackUser
	IsNew bool
}

// Upsert creates or updates a slack user by id. The row write and the outbox
// entry commit in one transaction. Incoming raw data is merged over the
// stored payload so keys from earlier syncs survive partial updates.
func (r *Repository) Upsert(ctx context.Context, req models.UpsertSlackUserRequest) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "slackuser.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	data := req.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	query := `
		INSERT INTO slack_users (
			id, name, real_name, display_name, email, is_admin, is_owner,
			is_bot, deleted, team_id, data, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			real_name = EXCLUDED.real_name,
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			is_admin = EXCLUDED.is_admin,
			is_owner = EXCLUDED.is_owner,
			is_bot = EXCLUDED.is_bot,
			deleted = EXCLUDED.deleted,
			team_id = EXCLUDED.team_id,
			data = slack_users.data || EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
		RETURNING id, name, real_name, display_name, email, is_admin, is_owner,
			is_bot, deleted, team_id, data, created_at, updated_at,
			(xmax = 0) AS inserted
	`

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	var result struct {
		models.SlackUser
		Inserted bool `db:"inserted"`
	}
	err = tx.GetContext(txCtx, &result, query,
		req.ID, req.Name, req.RealName, req.DisplayName, req.Email,
		req.IsAdmin, req.IsOwner, req.IsBot, req.Deleted, req.TeamID,
		data, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": req.ID}).Error("Failed to upsert slack user")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert slack user")
	}

	operation := annotations.OpUpdate
	if result.Inserted {
		operation = annotations.OpInsert
	}
	if err := r.outbox.Enqueue(txCtx, &annotations.Entry{
		RecordType: models.KeySlackUser,
		RecordID:   result.ID,
		Operation:  operation,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit slack user upsert")
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": result.ID}).Info("Created slack user")
	} else {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": result.ID}).Debug("Updated slack user")
	}
	return &UpsertResult{User: &result.SlackUser, IsNew: result.Inserted}, nil
}

// Get retrieves a slack user by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.SlackUser, error) {
	ctx, span := tracing.StartSpan(ctx, "slackuser.Repository.Get")
	defer span.End()

	user, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "slack user %s not found", id)
	}
	return user, nil
}

// Load fetches a slack user for dispatch. A vanished row returns (nil, nil)
// so the dispatcher can skip it.
func (r *Repository) Load(ctx context.Context, id string) (any, error) {
	user, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return user, nil
}

func (r *Repository) find(ctx context.Context, id string) (*models.SlackUser, error) {
	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "real_name", "display_name", "email", "is_admin", "is_owner",
		"is_bot", "deleted", "team_id", "data", "created_at", "updated_at")
	sb.From(slackUsersTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var user models.SlackUser
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get slack user")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get slack user")
	}
	return &user, nil
}

// List retrieves slack users with pagination. Deleted users are excluded
// unless includeDeleted is set.
func (r *Repository) List(ctx context.Context, includeDeleted bool, page, pageSize int) (*models.SlackUserListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "slackuser.Repository.List")
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
	countSb.From(slackUsersTable)
	if !includeDeleted {
		countSb.Where(countSb.Equal("deleted", false))
	}

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count slack users")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count slack users")
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "name", "real_name", "display_name", "email", "is_admin", "is_owner",
		"is_bot", "deleted", "team_id", "data", "created_at", "updated_at")
	sb.From(slackUsersTable)
	if !includeDeleted {
		sb.Where(sb.Equal("deleted", false))
	}
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var users []models.SlackUser
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list slack users")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list slack users")
	}

	return &models.SlackUserListResponse{
		Items:      users,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Delete removes a slack user row and queues the store cleanup.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "slackuser.Repository.Delete")
	defer span.End()

	sb := database.NewDeleteBuilder()
	sb.DeleteFrom(slackUsersTable)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to delete slack user")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete slack user")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "slack user %s not found", id)
	}

	if err := r.outbox.Enqueue(txCtx, &annotations.Entry{
		RecordType: models.KeySlackUser,
		RecordID:   id,
		Operation:  annotations.OpDelete,
	}); err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit slack user delete")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted slack user")
	return nil
}
