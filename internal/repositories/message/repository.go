// Package message persists conversation turns. Messages carry no store
// projections, so writes here never touch the outbox.
package message

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Kode-Rex/weave/pkg/database"
	"github.com/Kode-Rex/weave/pkg/models"
	"github.com/Kode-Rex/weave/pkg/tracing"
)

const messagesTable = "messages"

// Repository handles message persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new message repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create appends a message to a conversation.
func (r *Repository) Create(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.Create")
	defer span.End()

	metadata := req.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	query := `
		INSERT INTO messages (conversation_id, role, content, message_metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, conversation_id, role, content, message_metadata, created_at
	`

	var msg models.Message
	err := r.db.GetContext(ctx, &msg, query, req.ConversationID, req.Role, req.Content, metadata, time.Now().UTC())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"conversation_id": req.ConversationID}).Error("Failed to create message")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create message")
	}

	return &msg, nil
}

// ListByConversation retrieves a conversation's messages in send order.
func (r *Repository) ListByConversation(ctx context.Context, conversationID int, page, pageSize int) (*models.MessageListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "message.Repository.ListByConversation")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	countSb := database.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From(messagesTable)
	countSb.Where(countSb.Equal("conversation_id", conversationID))

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"conversation_id": conversationID}).Error("Failed to count messages")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count messages")
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "conversation_id", "role", "content", "message_metadata", "created_at")
	sb.From(messagesTable)
	sb.Where(sb.Equal("conversation_id", conversationID))
	sb.OrderBy("created_at", "id")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"conversation_id": conversationID}).Error("Failed to list messages")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}

	return &models.MessageListResponse{
		Items:      messages,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
