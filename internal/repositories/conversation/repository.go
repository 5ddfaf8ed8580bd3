// Package conversation persists chat sessions and records a sync intent for
// every write.
package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/database"
	"github.com/Kode-Rex/weave/pkg/models"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

const conversationsTable = "conversations"

// Repository handles conversation persistence
type Repository struct {
	db     database.DB
	outbox annotations.OutboxStore
	logger ectologger.Logger
}

// NewRepository creates a new conversation repository
func NewRepository(db database.DB, outbox annotations.OutboxStore, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		outbox: outbox,
		logger: logger,
	}
}

// Create starts a new conversation. The row write and the outbox entry
// commit in one transaction.
func (r *Repository) Create(ctx context.Context, req models.CreateConversationRequest) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	metadata := req.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	query := `
		INSERT INTO conversations (user_id, title, is_active, conversation_metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, title, is_active, conversation_metadata, created_at, updated_at
	`

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	var conv models.Conversation
	err = tx.GetContext(txCtx, &conv, query, req.UserID, req.Title, true, metadata, now, now)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": req.UserID}).Error("Failed to create conversation")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create conversation")
	}

	if err := r.outbox.Enqueue(txCtx, &annotations.Entry{
		RecordType: models.KeyConversation,
		RecordID:   strconv.Itoa(conv.ID),
		Operation:  annotations.OpInsert,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit conversation create")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": conv.ID, "user_id": req.UserID}).Info("Created conversation")
	return &conv, nil
}

// Update applies the non-nil fields of the request to a conversation.
func (r *Repository) Update(ctx context.Context, id int, req models.UpdateConversationRequest) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(conversationsTable)
	assigns := []string{ub.Assign("updated_at", time.Now().UTC())}
	if req.Title != nil {
		assigns = append(assigns, ub.Assign("title", *req.Title))
	}
	if req.IsActive != nil {
		assigns = append(assigns, ub.Assign("is_active", *req.IsActive))
	}
	if len(req.Metadata) > 0 {
		assigns = append(assigns, ub.Assign("conversation_metadata", req.Metadata))
	}
	ub.Set(assigns...)
	ub.Where(ub.Equal("id", id))
	query, args := ub.Build()

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to update conversation")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update conversation")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "conversation %d not found", id)
	}

	if err := r.outbox.Enqueue(txCtx, &annotations.Entry{
		RecordType: models.KeyConversation,
		RecordID:   strconv.Itoa(id),
		Operation:  annotations.OpUpdate,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit conversation update")
	}

	return r.Get(ctx, id)
}

// Get retrieves a conversation by ID
func (r *Repository) Get(ctx context.Context, id int) (*models.Conversation, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.Get")
	defer span.End()

	conv, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "conversation %d not found", id)
	}
	return conv, nil
}

// Load fetches a conversation for dispatch. Record ids travel as strings;
// a vanished row returns (nil, nil) so the dispatcher can skip it.
func (r *Repository) Load(ctx context.Context, id string) (any, error) {
	numeric, err := strconv.Atoi(id)
	if err != nil {
		return nil, errors.Wrapf(err, "parse conversation id %q", id)
	}

	conv, err := r.find(ctx, numeric)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, nil
	}
	return conv, nil
}

func (r *Repository) find(ctx context.Context, id int) (*models.Conversation, error) {
	sb := database.NewSelectBuilder()
	sb.Select("id", "user_id", "title", "is_active", "conversation_metadata", "created_at", "updated_at")
	sb.From(conversationsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var conv models.Conversation
	if err := r.db.GetContext(ctx, &conv, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get conversation")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get conversation")
	}
	return &conv, nil
}

// ListByUser retrieves a user's conversations, most recent first.
func (r *Repository) ListByUser(ctx context.Context, userID string, page, pageSize int) (*models.ConversationListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.ListByUser")
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
	countSb.From(conversationsTable)
	countSb.Where(countSb.Equal("user_id", userID))

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to count conversations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count conversations")
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "user_id", "title", "is_active", "conversation_metadata", "created_at", "updated_at")
	sb.From(conversationsTable)
	sb.Where(sb.Equal("user_id", userID))
	sb.OrderBy("updated_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var conversations []models.Conversation
	if err := r.db.SelectContext(ctx, &conversations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"user_id": userID}).Error("Failed to list conversations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list conversations")
	}

	return &models.ConversationListResponse{
		Items:      conversations,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// List retrieves conversations across all users in id order. Backfill pages
// through this, so the ordering must stay stable between calls.
func (r *Repository) List(ctx context.Context, page, pageSize int) (*models.ConversationListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.List")
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
	countSb.From(conversationsTable)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count conversations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count conversations")
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "user_id", "title", "is_active", "conversation_metadata", "created_at", "updated_at")
	sb.From(conversationsTable)
	sb.OrderBy("id ASC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var conversations []models.Conversation
	if err := r.db.SelectContext(ctx, &conversations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list conversations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list conversations")
	}

	return &models.ConversationListResponse{
		Items:      conversations,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Delete removes a conversation row and queues the store cleanup. Messages
// cascade in SQL.
func (r *Repository) Delete(ctx context.Context, id int) error {
	ctx, span := tracing.StartSpan(ctx, "conversation.Repository.Delete")
	defer span.End()

	sb := database.NewDeleteBuilder()
	sb.DeleteFrom(conversationsTable)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to delete conversation")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete conversation")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "conversation %d not found", id)
	}

	if err := r.outbox.Enqueue(txCtx, &annotations.Entry{
		RecordType: models.KeyConversation,
		RecordID:   strconv.Itoa(id),
		Operation:  annotations.OpDelete,
	}); err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit conversation delete")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted conversation")
	return nil
}
