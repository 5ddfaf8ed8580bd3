package annotations

import "errors"

var (
	// ErrNotRegistered is returned when an operation references a record type
	// that was never registered.
	ErrNotRegistered = errors.New("record type is not registered")

	// ErrAlreadyRegistered is returned when a registration key is reused.
	ErrAlreadyRegistered = errors.New("record type key is already registered")

	// ErrNoGraphConfig is returned when a graph operation is invoked on a
	// record type without a graph node config.
	ErrNoGraphConfig = errors.New("record type has no graph node config")

	// ErrNoSearchConfig is returned when a search operation is invoked on a
	// record type without a search index config.
	ErrNoSearchConfig = errors.New("record type has no search index config")

	// ErrNoLoader is returned when an outbox dispatch needs to load a record
	// but the record type registered no loader.
	ErrNoLoader = errors.New("record type has no loader")

	// ErrRecordNotFound is returned by explicit sync when the loader finds
	// no record for the id.
	ErrRecordNotFound = errors.New("record not found")
)
