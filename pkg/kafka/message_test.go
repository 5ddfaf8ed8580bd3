package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChangeMessage(t *testing.T) {
	jsonData := `{
		"record_type": "slack:user",
		"operation": "update",
		"record_id": "U123456",
		"data": {
			"id": "U123456",
			"name": "alice",
			"real_name": "Alice Smith",
			"is_bot": false
		},
		"timestamp": "2025-01-15T10:30:00Z",
		"trace_id": "abc123"
	}`

	msg, err := ParseChangeMessage([]byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, "slack:user", msg.RecordType)
	assert.Equal(t, "update", msg.Operation)
	assert.Equal(t, "U123456", msg.RecordID)
	assert.Equal(t, "alice", msg.Data["name"])
	assert.Equal(t, false, msg.Data["is_bot"])
	assert.Equal(t, time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC), msg.Timestamp)
	assert.Equal(t, "abc123", msg.TraceID)
}

func TestParseChangeMessageInvalidJSON(t *testing.T) {
	_, err := ParseChangeMessage([]byte(`{"record_type": `))
	require.Error(t, err)
}

func TestParseDocumentMessage(t *testing.T) {
	jsonData := `{
		"index": "slack_messages",
		"id": "msg-001",
		"content": "deploy finished, all green",
		"meta": {
			"channel": "C042",
			"permissions": [{"type": "user", "value": "alice@example.com"}]
		},
		"timestamp": "2025-01-15T10:30:00Z"
	}`

	msg, err := ParseDocumentMessage([]byte(jsonData))
	require.NoError(t, err)

	assert.Equal(t, "slack_messages", msg.Index)
	assert.Equal(t, "msg-001", msg.ID)
	assert.Equal(t, "deploy finished, all green", msg.Content)
	assert.Equal(t, "C042", msg.Meta["channel"])
}

func TestMessageHeaders(t *testing.T) {
	headers := &MessageHeaders{
		EventType:   "record.synced",
		RecordType:  "slack:user",
		Operation:   "insert",
		TraceParent: "00-trace-span-01",
	}

	kafkaHeaders := headers.ToKafkaHeaders()

	assert.Len(t, kafkaHeaders, 4)

	headerMap := make(map[string]string)
	for _, h := range kafkaHeaders {
		headerMap[h.Key] = string(h.Value)
	}

	assert.Equal(t, "record.synced", headerMap["event_type"])
	assert.Equal(t, "slack:user", headerMap["record_type"])
	assert.Equal(t, "insert", headerMap["operation"])
	assert.Equal(t, "00-trace-span-01", headerMap["traceparent"])
}

func TestMessageHeadersSkipsEmpty(t *testing.T) {
	headers := &MessageHeaders{EventType: "record.sync_failed"}

	kafkaHeaders := headers.ToKafkaHeaders()

	require.Len(t, kafkaHeaders, 1)
	assert.Equal(t, "event_type", kafkaHeaders[0].Key)
}

func TestExtractHeaders(t *testing.T) {
	headers := []Header{
		{Key: "event_type", Value: []byte("record.synced")},
		{Key: "record_type", Value: []byte("mesh:user")},
		{Key: "operation", Value: []byte("delete")},
		{Key: "traceparent", Value: []byte("00-abc-def-01")},
		{Key: "unknown", Value: []byte("ignored")},
	}

	mh := ExtractHeaders(headers)

	assert.Equal(t, "record.synced", mh.EventType)
	assert.Equal(t, "mesh:user", mh.RecordType)
	assert.Equal(t, "delete", mh.Operation)
	assert.Equal(t, "00-abc-def-01", mh.TraceParent)
	assert.Empty(t, mh.TraceState)
}
