package slackuser_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kode-Rex/weave/internal/repositories/outbox"
	"github.com/Kode-Rex/weave/internal/repositories/slackuser"
	"github.com/Kode-Rex/weave/pkg/database"
	"github.com/Kode-Rex/weave/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	// Use environment variables or defaults for test DB
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "postgres"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "postgres"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "weave"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

// assertNotFound asserts that err is an HTTP 404 error
func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err), "expected 404, got: %d", httperror.GetStatusCode(err))
}

func TestSlackUserRepository_CRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	outboxRepo := outbox.NewRepository(db, logger, 5)
	repo := slackuser.NewRepository(db, outboxRepo, logger)
	ctx := context.Background()

	id := "U" + uuid.New().String()
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, "DELETE FROM sync_outbox WHERE record_id = $1", id)
		_, _ = db.ExecContext(ctx, "DELETE FROM slack_users WHERE id = $1", id)
	})

	t.Run("upsert creates a new user", func(t *testing.T) {
		result, err := repo.Upsert(ctx, models.UpsertSlackUserRequest{
			ID:       id,
			Name:     "alice",
			RealName: "Alice Smith",
			Email:    id + "@example.com",
			Data:     json.RawMessage(`{"tz": "UTC"}`),
		})
		require.NoError(t, err)
		assert.True(t, result.IsNew)
		assert.Equal(t, id, result.User.ID)
		assert.Equal(t, "alice", result.User.Name)
	})

	t.Run("upsert updates and merges raw data", func(t *testing.T) {
		result, err := repo.Upsert(ctx, models.UpsertSlackUserRequest{
			ID:       id,
			Name:     "alice",
			RealName: "Alice A. Smith",
			Email:    id + "@example.com",
			Data:     json.RawMessage(`{"title": "engineer"}`),
		})
		require.NoError(t, err)
		assert.False(t, result.IsNew)
		assert.Equal(t, "Alice A. Smith", result.User.RealName)

		var data map[string]any
		require.NoError(t, json.Unmarshal(result.User.Data, &data))
		assert.Equal(t, "UTC", data["tz"], "keys from earlier syncs should survive")
		assert.Equal(t, "engineer", data["title"])
	})

	t.Run("get returns the user", func(t *testing.T) {
		user, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, user.ID)
	})

	t.Run("get missing user returns 404", func(t *testing.T) {
		_, err := repo.Get(ctx, "U-does-not-exist")
		assertNotFound(t, err)
	})

	t.Run("list includes the user", func(t *testing.T) {
		resp, err := repo.List(ctx, false, 1, 100)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, resp.TotalCount, 1)
	})

	t.Run("every write queued a sync intent", func(t *testing.T) {
		var count int
		err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sync_outbox WHERE record_id = $1", id)
		require.NoError(t, err)
		assert.Equal(t, 2, count, "insert and update should each enqueue")
	})

	t.Run("delete removes the user", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, id))

		_, err := repo.Get(ctx, id)
		assertNotFound(t, err)

		var count int
		err = db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sync_outbox WHERE record_id = $1", id)
		require.NoError(t, err)
		assert.Equal(t, 3, count, "delete should enqueue a third intent")
	})

	t.Run("delete missing user returns 404", func(t *testing.T) {
		assertNotFound(t, repo.Delete(ctx, id))
	})
}
