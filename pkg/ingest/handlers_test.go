package ingest

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kode-Rex/weave/internal/repositories/meshuser"
	"github.com/Kode-Rex/weave/internal/repositories/slackchannel"
	"github.com/Kode-Rex/weave/internal/repositories/slackuser"
	"github.com/Kode-Rex/weave/pkg/models"
)

type fakeSlackUserStore struct {
	upserts   []models.UpsertSlackUserRequest
	deletes   []string
	upsertErr error
	deleteErr error
}

func (f *fakeSlackUserStore) Upsert(_ context.Context, req models.UpsertSlackUserRequest) (*slackuser.UpsertResult, error) {
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserts = append(f.upserts, req)
	return &slackuser.UpsertResult{User: &models.SlackUser{ID: req.ID}, IsNew: true}, nil
}

func (f *fakeSlackUserStore) Delete(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, id)
	return nil
}

type fakeSlackChannelStore struct {
	upserts []models.UpsertSlackChannelRequest
	deletes []string
}

func (f *fakeSlackChannelStore) Upsert(_ context.Context, req models.UpsertSlackChannelRequest) (*slackchannel.UpsertResult, error) {
	f.upserts = append(f.upserts, req)
	return &slackchannel.UpsertResult{Channel: &models.SlackChannel{ID: req.ID}, IsNew: true}, nil
}

func (f *fakeSlackChannelStore) Delete(_ context.Context, id string) error {
	f.deletes = append(f.deletes, id)
	return nil
}

type fakeMeshUserStore struct {
	upserts []models.UpsertMeshUserRequest
	deletes []string
}

func (f *fakeMeshUserStore) Upsert(_ context.Context, req models.UpsertMeshUserRequest) (*meshuser.UpsertResult, error) {
	f.upserts = append(f.upserts, req)
	return &meshuser.UpsertResult{User: &models.MeshUser{ID: req.ID}, IsNew: true}, nil
}

func (f *fakeMeshUserStore) Delete(_ context.Context, id string) error {
	f.deletes = append(f.deletes, id)
	return nil
}

type handlerFixture struct {
	processor *Processor
	users     *fakeSlackUserStore
	channels  *fakeSlackChannelStore
	mesh      *fakeMeshUserStore
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		processor: NewProcessor(testLogger(), &fakeBulk{}, 0),
		users:     &fakeSlackUserStore{},
		channels:  &fakeSlackChannelStore{},
		mesh:      &fakeMeshUserStore{},
	}
	RegisterRepositoryHandlers(f.processor, f.users, f.channels, f.mesh, testLogger())
	return f
}

func TestSlackUserInsertEnvelope(t *testing.T) {
	f := newHandlerFixture()

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeySlackUser, "insert", "U1", map[string]any{
		"name":      "dana",
		"real_name": "Dana Reeve",
		"email":     "dana@acme.io",
		"is_admin":  true,
	}))
	require.NoError(t, err)

	require.Len(t, f.users.upserts, 1)
	req := f.users.upserts[0]
	assert.Equal(t, "U1", req.ID, "record id fills a payload without one")
	assert.Equal(t, "dana", req.Name)
	assert.Equal(t, "Dana Reeve", req.RealName)
	assert.Equal(t, "dana@acme.io", req.Email)
	assert.True(t, req.IsAdmin)
}

func TestSlackUserPayloadIDWins(t *testing.T) {
	f := newHandlerFixture()

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeySlackUser, "update", "", map[string]any{
		"id":   "U9",
		"name": "kit",
	}))
	require.NoError(t, err)

	require.Len(t, f.users.upserts, 1)
	assert.Equal(t, "U9", f.users.upserts[0].ID)
}

func TestSlackUserDeleteEnvelope(t *testing.T) {
	f := newHandlerFixture()

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeySlackUser, "delete", "U1", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"U1"}, f.users.deletes)
}

func TestDeleteOfMissingRecordIsSkipped(t *testing.T) {
	f := newHandlerFixture()
	f.users.deleteErr = httperror.NewHTTPError(http.StatusNotFound, "slack user U404 not found")

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeySlackUser, "delete", "U404", nil))
	assert.NoError(t, err, "replayed deletes are not failures")
}

func TestDeleteFailurePropagates(t *testing.T) {
	f := newHandlerFixture()
	f.users.deleteErr = errors.New("db down")

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeySlackUser, "delete", "U1", nil))
	assert.Error(t, err)
}

func TestUpsertWithoutIDIsSkipped(t *testing.T) {
	f := newHandlerFixture()

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeySlackUser, "insert", "", map[string]any{"name": "ghost"}))
	assert.NoError(t, err)
	assert.Empty(t, f.users.upserts)
}

func TestUpsertWithoutPayloadIsSkipped(t *testing.T) {
	f := newHandlerFixture()

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeySlackUser, "insert", "U1", nil))
	assert.NoError(t, err)
	assert.Empty(t, f.users.upserts)
}

func TestUnknownOperationIsSkipped(t *testing.T) {
	f := newHandlerFixture()

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeySlackUser, "truncate", "U1", map[string]any{"id": "U1"}))
	assert.NoError(t, err)
	assert.Empty(t, f.users.upserts)
	assert.Empty(t, f.users.deletes)
}

func TestUpsertFailurePropagates(t *testing.T) {
	f := newHandlerFixture()
	f.users.upsertErr = errors.New("db down")

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeySlackUser, "insert", "U1", map[string]any{"id": "U1"}))
	assert.Error(t, err)
}

func TestSlackChannelEnvelope(t *testing.T) {
	f := newHandlerFixture()

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeySlackChannel, "insert", "C1", map[string]any{
		"name":    "general",
		"creator": "U1",
		"topic":   "company wide",
	}))
	require.NoError(t, err)

	require.Len(t, f.channels.upserts, 1)
	req := f.channels.upserts[0]
	assert.Equal(t, "C1", req.ID)
	assert.Equal(t, "general", req.Name)
	require.NotNil(t, req.Creator)
	assert.Equal(t, "U1", *req.Creator)
}

func TestSlackChannelWithoutNameIsSkipped(t *testing.T) {
	f := newHandlerFixture()

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeySlackChannel, "insert", "C1", map[string]any{"id": "C1"}))
	assert.NoError(t, err)
	assert.Empty(t, f.channels.upserts)
}

func TestMeshUserEnvelope(t *testing.T) {
	f := newHandlerFixture()

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeyMeshUser, "update", "m1", map[string]any{
		"email":     "dana@acme.io",
		"name":      "Dana Reeve",
		"is_active": true,
	}))
	require.NoError(t, err)

	require.Len(t, f.mesh.upserts, 1)
	req := f.mesh.upserts[0]
	assert.Equal(t, "m1", req.ID)
	assert.Equal(t, "dana@acme.io", req.Email)
	assert.True(t, req.IsActive)
}

func TestMeshUserWithoutEmailIsSkipped(t *testing.T) {
	f := newHandlerFixture()

	err := f.processor.ProcessMessage(context.Background(), changeMsg(models.KeyMeshUser, "insert", "m1", map[string]any{"name": "no email"}))
	assert.NoError(t, err)
	assert.Empty(t, f.mesh.upserts)
}
