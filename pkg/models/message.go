package models

import (
	"encoding/json"
	"time"
)

// Message is a single turn in a conversation. Messages stay relational only;
// they carry no store projections.
type Message struct {
	ID             int             `json:"id" db:"id"`
	ConversationID int             `json:"conversation_id" db:"conversation_id"`
	Role           string          `json:"role" db:"role"`
	Content        string          `json:"content" db:"content"`
	Metadata       json.RawMessage `json:"message_metadata,omitempty" db:"message_metadata"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// CreateMessageRequest is the request for appending a message to a conversation
type CreateMessageRequest struct {
	ConversationID int             `json:"conversation_id" validate:"required"`
	Role           string          `json:"role" validate:"required,oneof=user assistant system tool"`
	Content        string          `json:"content" validate:"required"`
	Metadata       json.RawMessage `json:"message_metadata,omitempty"`
}

// MessageListResponse is the response for listing conversation messages
type MessageListResponse struct {
	Items      []Message `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}
