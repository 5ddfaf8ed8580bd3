package ingest

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Kode-Rex/weave/internal/repositories/meshuser"
	"github.com/Kode-Rex/weave/internal/repositories/slackchannel"
	"github.com/Kode-Rex/weave/internal/repositories/slackuser"
	"github.com/Kode-Rex/weave/pkg/annotations"
	"github.com/Kode-Rex/weave/pkg/kafka"
	"github.com/Kode-Rex/weave/pkg/models"
)

// SlackUserStore applies slack user changes to the primary store.
type SlackUserStore interface {
	Upsert(ctx context.Context, req models.UpsertSlackUserRequest) (*slackuser.UpsertResult, error)
	Delete(ctx context.Context, id string) error
}

// SlackChannelStore applies slack channel changes to the primary store.
type SlackChannelStore interface {
	Upsert(ctx context.Context, req models.UpsertSlackChannelRequest) (*slackchannel.UpsertResult, error)
	Delete(ctx context.Context, id string) error
}

// MeshUserStore applies mesh user changes to the primary store.
type MeshUserStore interface {
	Upsert(ctx context.Context, req models.UpsertMeshUserRequest) (*meshuser.UpsertResult, error)
	Delete(ctx context.Context, id string) error
}

// RegisterRepositoryHandlers binds the change handlers for every ingested
// record type. Conversations are created through the API, never ingested, so
// they get no handler here.
func RegisterRepositoryHandlers(
	p *Processor,
	slackUsers SlackUserStore,
	slackChannels SlackChannelStore,
	meshUsers MeshUserStore,
	logger ectologger.Logger,
) {
	p.RegisterHandler(models.KeySlackUser, slackUserHandler(slackUsers, logger))
	p.RegisterHandler(models.KeySlackChannel, slackChannelHandler(slackChannels, logger))
	p.RegisterHandler(models.KeyMeshUser, meshUserHandler(meshUsers, logger))
}

func slackUserHandler(store SlackUserStore, logger ectologger.Logger) ChangeHandler {
	return func(ctx context.Context, change *kafka.ChangeMessage) error {
		if change.Operation == annotations.OpDelete {
			return deleteRecord(ctx, store.Delete, change, logger)
		}
		if !isUpsertOperation(change, logger) {
			return nil
		}

		var req models.UpsertSlackUserRequest
		if !decodePayload(ctx, change, &req, logger) {
			return nil
		}
		if req.ID == "" {
			req.ID = change.RecordID
		}
		if req.ID == "" {
			logger.WithContext(ctx).WithField("record_type", change.RecordType).Warn("Skipping change: missing record id")
			return nil
		}

		_, err := store.Upsert(ctx, req)
		return err
	}
}

func slackChannelHandler(store SlackChannelStore, logger ectologger.Logger) ChangeHandler {
	return func(ctx context.Context, change *kafka.ChangeMessage) error {
		if change.Operation == annotations.OpDelete {
			return deleteRecord(ctx, store.Delete, change, logger)
		}
		if !isUpsertOperation(change, logger) {
			return nil
		}

		var req models.UpsertSlackChannelRequest
		if !decodePayload(ctx, change, &req, logger) {
			return nil
		}
		if req.ID == "" {
			req.ID = change.RecordID
		}
		if req.ID == "" || req.Name == "" {
			logger.WithContext(ctx).WithFields(map[string]any{
				"record_type": change.RecordType,
				"record_id":   req.ID,
			}).Warn("Skipping change: missing required channel fields")
			return nil
		}

		_, err := store.Upsert(ctx, req)
		return err
	}
}

func meshUserHandler(store MeshUserStore, logger ectologger.Logger) ChangeHandler {
	return func(ctx context.Context, change *kafka.ChangeMessage) error {
		if change.Operation == annotations.OpDelete {
			return deleteRecord(ctx, store.Delete, change, logger)
		}
		if !isUpsertOperation(change, logger) {
			return nil
		}

		var req models.UpsertMeshUserRequest
		if !decodePayload(ctx, change, &req, logger) {
			return nil
		}
		if req.ID == "" {
			req.ID = change.RecordID
		}
		if req.ID == "" || req.Email == "" {
			logger.WithContext(ctx).WithFields(map[string]any{
				"record_type": change.RecordType,
				"record_id":   req.ID,
			}).Warn("Skipping change: missing required mesh user fields")
			return nil
		}

		_, err := store.Upsert(ctx, req)
		return err
	}
}

func isUpsertOperation(change *kafka.ChangeMessage, logger ectologger.Logger) bool {
	if change.Operation == annotations.OpInsert || change.Operation == annotations.OpUpdate {
		return true
	}
	logger.WithFields(map[string]any{
		"record_type": change.RecordType,
		"operation":   change.Operation,
	}).Warn("Skipping change: unknown operation")
	return false
}

// decodePayload maps the envelope data onto a typed upsert request.
func decodePayload(ctx context.Context, change *kafka.ChangeMessage, dest any, logger ectologger.Logger) bool {
	if change.Data == nil {
		logger.WithContext(ctx).WithFields(map[string]any{
			"record_type": change.RecordType,
			"record_id":   change.RecordID,
		}).Warn("Skipping change: missing payload")
		return false
	}

	raw, err := json.Marshal(change.Data)
	if err == nil {
		err = json.Unmarshal(raw, dest)
	}
	if err != nil {
		logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_type": change.RecordType,
			"record_id":   change.RecordID,
		}).Warn("Skipping change: malformed payload")
		return false
	}
	return true
}

// deleteRecord applies a delete envelope. A record that is already gone is
// not an error; replayed deletes are expected.
func deleteRecord(ctx context.Context, del func(context.Context, string) error, change *kafka.ChangeMessage, logger ectologger.Logger) error {
	if change.RecordID == "" {
		logger.WithContext(ctx).WithField("record_type", change.RecordType).Warn("Skipping delete: missing record id")
		return nil
	}

	err := del(ctx, change.RecordID)
	if err != nil && httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound {
		logger.WithContext(ctx).WithFields(map[string]any{
			"record_type": change.RecordType,
			"record_id":   change.RecordID,
		}).Debug("Record already deleted, skipping")
		return nil
	}
	return err
}
