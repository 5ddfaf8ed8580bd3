package models

import (
	"encoding/json"
	"time"

	"github.com/Kode-Rex/weave/pkg/annotations"
)

// SlackChannel is a Slack channel mirrored into the graph and search stores.
// The creator field links the channel to the SlackUser who opened it.
type SlackChannel struct {
	ID         string          `json:"id" db:"id"`
	Name       string          `json:"name" db:"name"`
	IsPrivate  bool            `json:"is_private" db:"is_private"`
	IsArchived bool            `json:"is_archived" db:"is_archived"`
	Created    *time.Time      `json:"created,omitempty" db:"created"` // Creation time reported by Slack
	Creator    *string         `json:"creator,omitempty" db:"creator"`
	NumMembers int             `json:"num_members" db:"num_members"`
	Purpose    string          `json:"purpose" db:"purpose"`
	Topic      string          `json:"topic" db:"topic"`
	Data       json.RawMessage `json:"data,omitempty" db:"data"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

func (SlackChannel) GraphNodeConfig() annotations.GraphNodeConfig {
	return annotations.GraphNodeConfig{
		Label:         "SlackChannel",
		IDField:       "id",
		ExcludeFields: []string{"data", "created_at", "updated_at"},
	}
}

func (SlackChannel) GraphRelationships() []annotations.RelationshipConfig {
	return []annotations.RelationshipConfig{
		{
			Type:        "CREATED_BY",
			Target:      KeySlackUser,
			SourceField: "creator",
		},
	}
}

func (SlackChannel) SearchIndexConfig() annotations.SearchIndexConfig {
	return annotations.SearchIndexConfig{
		IndexName:     "slack_channels",
		TextFields:    []string{"name", "purpose", "topic"},
		ExcludeFields: []string{"data"},
	}
}

// IsOpen reports whether the channel is joinable by workspace members.
func (c *SlackChannel) IsOpen() bool {
	return !c.IsArchived && !c.IsPrivate
}

// UpsertSlackChannelRequest is the request for creating or updating a Slack channel
type UpsertSlackChannelRequest struct {
	ID         string          `json:"id" validate:"required"`
	Name       string          `json:"name" validate:"required"`
	IsPrivate  bool            `json:"is_private"`
	IsArchived bool            `json:"is_archived"`
	Created    *time.Time      `json:"created,omitempty"`
	Creator    *string         `json:"creator,omitempty"`
	NumMembers int             `json:"num_members"`
	Purpose    string          `json:"purpose"`
	Topic      string          `json:"topic"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// SlackChannelListResponse is the response for listing Slack channels
type SlackChannelListResponse struct {
	Items      []SlackChannel `json:"items"`
	TotalCount int            `json:"total_count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
}
