package ingest

import "errors"

// Ingestion errors.
var (
	ErrUnknownTopic   = errors.New("ingest: not a sensor topic")
	ErrQueueFull      = errors.New("ingest: device queue full, event dropped")
	ErrNotRunning     = errors.New("ingest: pipeline not running")
	ErrAlreadyRunning = errors.New("ingest: pipeline already started")
)
