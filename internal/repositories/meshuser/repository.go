// Package meshuser persists InsightMesh platform accounts and records a sync
// intent for every write.
package meshuser

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

const meshUsersTable = "insightmesh_users"

// Repository handles mesh user persistence
type Repository struct {
	db     database.DB
	outbox annotations.OutboxStore
	logger ectologger.Logger
}

// NewRepository creates a new mesh user repository
func NewRepository(db database.DB, outbox annotations.OutboxStore, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		outbox: outbox,
		logger: logger,
	}
}

// UpsertResult contains the result of an upsert operation
type UpsertResult struct {
	User  *models.MeshUser
	IsNew bool
}

// Upsert creates or updates a mesh user by id. The row write and the outbox
// entry commit in one transaction.
func (r *Repository) Upsert(ctx context.Context, req models.UpsertMeshUserRequest) (*UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "meshuser.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	metadata := req.UserMetadata
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	query := `
		INSERT INTO insightmesh_users (
			id, email, name, is_active, user_metadata, openwebui_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			user_metadata = insightmesh_users.user_metadata || EXCLUDED.user_metadata,
			openwebui_id = EXCLUDED.openwebui_id,
			updated_at = EXCLUDED.updated_at
		RETURNING id, email, name, is_active, user_metadata, openwebui_id, created_at, updated_at,
			(xmax = 0) AS inserted
	`

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	var result struct {
		models.MeshUser
		Inserted bool `db:"inserted"`
	}
	err = tx.GetContext(txCtx, &result, query,
		req.ID, req.Email, req.Name, req.IsActive, metadata, req.OpenWebUIID, now, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": req.ID}).Error("Failed to upsert mesh user")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert mesh user")
	}

	operation := annotations.OpUpdate
	if result.Inserted {
		operation = annotations.OpInsert
	}
	if err := r.outbox.Enqueue(txCtx, &annotations.Entry{
		RecordType: models.KeyMeshUser,
		RecordID:   result.ID,
		Operation:  operation,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(txCtx); err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit mesh user upsert")
	}

	if result.Inserted {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": result.ID}).Info("Created mesh user")
	} else {
		r.logger.WithContext(ctx).WithFields(map[string]any{"id": result.ID}).Debug("Updated mesh user")
	}
	return &UpsertResult{User: &result.MeshUser, IsNew: result.Inserted}, nil
}

// Get retrieves a mesh user by ID
func (r *Repository) Get(ctx context.Context, id string) (*models.MeshUser, error) {
	ctx, span := tracing.StartSpan(ctx, "meshuser.Repository.Get")
	defer span.End()

	user, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "mesh user %s not found", id)
	}
	return user, nil
}

// GetByEmail retrieves a mesh user by email. Returns nil when no account
// matches; callers treat that as anonymous.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.MeshUser, error) {
	ctx, span := tracing.StartSpan(ctx, "meshuser.Repository.GetByEmail")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "email", "name", "is_active", "user_metadata", "openwebui_id", "created_at", "updated_at")
	sb.From(meshUsersTable)
	sb.Where(sb.Equal("email", email))
	sb.Limit(1)

	query, args := sb.Build()
	var user models.MeshUser
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"email": email}).Error("Failed to get mesh user by email")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get mesh user")
	}
	return &user, nil
}

// GetByOpenWebUIID retrieves the mesh user linked to an OpenWebUI account.
// Returns nil when no account is linked.
func (r *Repository) GetByOpenWebUIID(ctx context.Context, openWebUIID string) (*models.MeshUser, error) {
	ctx, span := tracing.StartSpan(ctx, "meshuser.Repository.GetByOpenWebUIID")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("id", "email", "name", "is_active", "user_metadata", "openwebui_id", "created_at", "updated_at")
	sb.From(meshUsersTable)
	sb.Where(sb.Equal("openwebui_id", openWebUIID))
	sb.Limit(1)

	query, args := sb.Build()
	var user models.MeshUser
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"openwebui_id": openWebUIID}).Error("Failed to get mesh user by openwebui id")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get mesh user")
	}
	return &user, nil
}

// Load fetches a mesh user for dispatch. A vanished row returns (nil, nil)
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

func (r *Repository) find(ctx context.Context, id string) (*models.MeshUser, error) {
	sb := database.NewSelectBuilder()
	sb.Select("id", "email", "name", "is_active", "user_metadata", "openwebui_id", "created_at", "updated_at")
	sb.From(meshUsersTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var user models.MeshUser
	if err := r.db.GetContext(ctx, &user, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to get mesh user")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get mesh user")
	}
	return &user, nil
}

// List retrieves mesh users with pagination
func (r *Repository) List(ctx context.Context, page, pageSize int) (*models.MeshUserListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "meshuser.Repository.List")
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
	countSb.From(meshUsersTable)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count mesh users")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count mesh users")
	}

	sb := database.NewSelectBuilder()
	sb.Select("id", "email", "name", "is_active", "user_metadata", "openwebui_id", "created_at", "updated_at")
	sb.From(meshUsersTable)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var users []models.MeshUser
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list mesh users")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list mesh users")
	}

	return &models.MeshUserListResponse{
		Items:      users,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Delete removes a mesh user row and queues the store cleanup.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "meshuser.Repository.Delete")
	defer span.End()

	sb := database.NewDeleteBuilder()
	sb.DeleteFrom(meshUsersTable)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to delete mesh user")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete mesh user")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "mesh user %s not found", id)
	}

	if err := r.outbox.Enqueue(txCtx, &annotations.Entry{
		RecordType: models.KeyMeshUser,
		RecordID:   id,
		Operation:  annotations.OpDelete,
	}); err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit mesh user delete")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted mesh user")
	return nil
}
