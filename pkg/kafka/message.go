package kafka

import (
	"encoding/json"
	"time"
)

// ChangeMessage is an incoming record change captured from a source system.
// The ingest worker replays these against the registered record types.
type ChangeMessage struct {
	RecordType string         `json:"record_type"` // registry key, e.g. "slack:user"
	Operation  string         `json:"operation"`   // insert, update, delete
	RecordID   string         `json:"record_id"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`

	// Tracing
	TraceID string `json:"trace_id,omitempty"`
}

// ParseChangeMessage parses a raw Kafka message into a ChangeMessage
func ParseChangeMessage(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DocumentMessage is an incoming content document bound for a retrieval
// index. These bypass the record registry and are bulk-indexed as-is.
type DocumentMessage struct {
	Index     string         `json:"index"` // e.g. "slack_messages", "web_pages"
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Meta      map[string]any `json:"meta,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ParseDocumentMessage parses a raw Kafka message into a DocumentMessage
func ParseDocumentMessage(data []byte) (*DocumentMessage, error) {
	var msg DocumentMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Record event types emitted after dispatch
const (
	EventRecordSynced     = "record.synced"
	EventRecordSyncFailed = "record.sync_failed"
)

// RecordEvent is the event Weave emits after dispatching a record to the
// annotated stores.
type RecordEvent struct {
	EventType  string    `json:"event_type"` // record.synced, record.sync_failed
	RecordType string    `json:"record_type"`
	RecordID   string    `json:"record_id"`
	Operation  string    `json:"operation"` // insert, update, delete
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// MessageHeaders mirrors the event fields consumers filter on, so routing
// decisions never need the payload.
type MessageHeaders struct {
	EventType   string
	RecordType  string
	Operation   string
	TraceParent string
	TraceState  string
}

// Header is one Kafka header key-value pair.
type Header struct {
	Key   string
	Value []byte
}

// ToKafkaHeaders renders the non-empty fields as wire headers.
func (h *MessageHeaders) ToKafkaHeaders() []Header {
	headers := make([]Header, 0, 5)
	add := func(key, value string) {
		if value != "" {
			headers = append(headers, Header{Key: key, Value: []byte(value)})
		}
	}

	add("event_type", h.EventType)
	add("record_type", h.RecordType)
	add("operation", h.Operation)
	add("traceparent", h.TraceParent)
	add("tracestate", h.TraceState)
	return headers
}

// ExtractHeaders reads the known wire headers back into a MessageHeaders.
// Unrecognized keys are ignored.
func ExtractHeaders(headers []Header) MessageHeaders {
	var mh MessageHeaders
	byKey := map[string]*string{
		"event_type":  &mh.EventType,
		"record_type": &mh.RecordType,
		"operation":   &mh.Operation,
		"traceparent": &mh.TraceParent,
		"tracestate":  &mh.TraceState,
	}

	for _, h := range headers {
		if dest, ok := byKey[h.Key]; ok {
			*dest = string(h.Value)
		}
	}
	return mh
}
