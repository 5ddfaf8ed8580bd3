package models

import (
	"encoding/json"
	"time"

	"github.com/Kode-Rex/weave/pkg/annotations"
)

// SlackUser is a Slack workspace member mirrored into the graph and search
// stores.
// Field order matches schema: id, name, real_name, display_name, email, ...
type SlackUser struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	RealName    string          `json:"real_name" db:"real_name"`
	DisplayName string          `json:"display_name" db:"display_name"`
	Email       string          `json:"email" db:"email"`
	IsAdmin     bool            `json:"is_admin" db:"is_admin"`
	IsOwner     bool            `json:"is_owner" db:"is_owner"`
	IsBot       bool            `json:"is_bot" db:"is_bot"`
	Deleted     bool            `json:"deleted" db:"deleted"`
	TeamID      *string         `json:"team_id,omitempty" db:"team_id"`
	Data        json.RawMessage `json:"data,omitempty" db:"data"` // Raw Slack API payload
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

func (SlackUser) GraphNodeConfig() annotations.GraphNodeConfig {
	return annotations.GraphNodeConfig{
		Label:         "SlackUser",
		IDField:       "id",
		ExcludeFields: []string{"data", "created_at", "updated_at"},
	}
}

func (SlackUser) SearchIndexConfig() annotations.SearchIndexConfig {
	return annotations.SearchIndexConfig{
		IndexName:     "slack_users",
		TextFields:    []string{"name", "real_name", "display_name"},
		ExcludeFields: []string{"data"},
	}
}

// DisplayNameOrName returns the best human-readable name available.
func (u *SlackUser) DisplayNameOrName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Name != "" {
		return u.Name
	}
	return u.RealName
}

// IsActiveUser reports whether this is a live human account.
func (u *SlackUser) IsActiveUser() bool {
	return !u.Deleted && !u.IsBot
}

// UpsertSlackUserRequest is the request for creating or updating a Slack user
type UpsertSlackUserRequest struct {
	ID          string          `json:"id" validate:"required"`
	Name        string          `json:"name"`
	RealName    string          `json:"real_name"`
	DisplayName string          `json:"display_name"`
	Email       string          `json:"email" validate:"omitempty,email"`
	IsAdmin     bool            `json:"is_admin"`
	IsOwner     bool            `json:"is_owner"`
	IsBot       bool            `json:"is_bot"`
	Deleted     bool            `json:"deleted"`
	TeamID      *string         `json:"team_id,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// SlackUserListResponse is the response for listing Slack users
type SlackUserListResponse struct {
	Items      []SlackUser `json:"items"`
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}
