package models

import (
	"encoding/json"
	"time"

	"github.com/Kode-Rex/weave/pkg/annotations"
)

// MeshUser is an InsightMesh platform account. It keeps the InsightMeshUser
// node label and insightmesh_users index so existing graph queries and saved
// searches keep working.
type MeshUser struct {
	ID           string          `json:"id" db:"id"`
	Email        string          `json:"email" db:"email"`
	Name         string          `json:"name" db:"name"`
	IsActive     bool            `json:"is_active" db:"is_active"`
	UserMetadata json.RawMessage `json:"user_metadata,omitempty" db:"user_metadata"`
	OpenWebUIID  *string         `json:"openwebui_id,omitempty" db:"openwebui_id"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

func (MeshUser) GraphNodeConfig() annotations.GraphNodeConfig {
	return annotations.GraphNodeConfig{
		Label:         "InsightMeshUser",
		IDField:       "id",
		ExcludeFields: []string{"user_metadata", "created_at", "updated_at"},
	}
}

func (MeshUser) SearchIndexConfig() annotations.SearchIndexConfig {
	return annotations.SearchIndexConfig{
		IndexName:     "insightmesh_users",
		TextFields:    []string{"name", "email"},
		ExcludeFields: []string{"user_metadata", "openwebui_id"},
	}
}

// UpsertMeshUserRequest is the request for creating or updating a mesh user
type UpsertMeshUserRequest struct {
	ID           string          `json:"id" validate:"required"`
	Email        string          `json:"email" validate:"required,email"`
	Name         string          `json:"name"`
	IsActive     bool            `json:"is_active"`
	UserMetadata json.RawMessage `json:"user_metadata,omitempty"`
	OpenWebUIID  *string         `json:"openwebui_id,omitempty"`
}

// MeshUserListResponse is the response for listing mesh users
type MeshUserListResponse struct {
	Items      []MeshUser `json:"items"`
	TotalCount int        `json:"total_count"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
}
