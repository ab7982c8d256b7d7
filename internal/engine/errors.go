package engine

import "errors"

// Sentinel errors returned by the ingestion path and engine construction.
var (
	// ErrEmptyDocument is returned when a document yields no usable units
	// after chunking and sanitization. The indices are left untouched.
	ErrEmptyDocument = errors.New("engine: document produced no indexable units")

	// ErrIndexWrite wraps any failure while writing units to the vector
	// store. The write may be partially applied; the caller should retry
	// the whole document.
	ErrIndexWrite = errors.New("engine: index write failed")

	errMissingBusinessID = errors.New("engine: business id is required")
	errMissingEmbedder   = errors.New("engine: embedder is required")
	errMissingStore      = errors.New("engine: vector store is required")
	errMissingGenerator  = errors.New("engine: generator is required")
)
