package models

import (
	"encoding/json"
	"time"

	"github.com/Kode-Rex/weave/pkg/annotations"
)

// Conversation is a chat session owned by a mesh user. Conversations are
// projected into the graph only; message content is searched through the
// retrieval indexes instead.
type Conversation struct {
	ID        int             `json:"id" db:"id"`
	UserID    *string         `json:"user_id,omitempty" db:"user_id"`
	Title     string          `json:"title" db:"title"`
	IsActive  bool            `json:"is_active" db:"is_active"`
	Metadata  json.RawMessage `json:"conversation_metadata,omitempty" db:"conversation_metadata"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

func (Conversation) GraphNodeConfig() annotations.GraphNodeConfig {
	return annotations.GraphNodeConfig{
		Label:         "Conversation",
		IDField:       "id",
		ExcludeFields: []string{"conversation_metadata", "created_at", "updated_at"},
	}
}

func (Conversation) GraphRelationships() []annotations.RelationshipConfig {
	return []annotations.RelationshipConfig{
		{
			Type:        "STARTED_BY",
			Target:      KeyMeshUser,
			SourceField: "user_id",
		},
	}
}

// CreateConversationRequest is the request for starting a conversation
type CreateConversationRequest struct {
	UserID   string          `json:"user_id" validate:"required"`
	Title    string          `json:"title" validate:"required"`
	Metadata json.RawMessage `json:"conversation_metadata,omitempty"`
}

// UpdateConversationRequest is the request for renaming or closing a conversation
type UpdateConversationRequest struct {
	Title    *string         `json:"title,omitempty"`
	IsActive *bool           `json:"is_active,omitempty"`
	Metadata json.RawMessage `json:"conversation_metadata,omitempty"`
}

// ConversationListResponse is the response for listing conversations
type ConversationListResponse struct {
	Items      []Conversation `json:"items"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}
