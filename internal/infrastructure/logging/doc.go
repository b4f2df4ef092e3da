// Package logging provides structured logging for the room coordinator.
//
// This package wraps Go's standard log/slog package so that every component
// logs with the same default fields (service, version) and level filter.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("dispatch").Warn("device unreachable", "device_id", id)
//
// Domain packages never import this package; they declare a small Logger
// interface that *Logger satisfies.
//
// Never log broker passwords or database tokens.
package logging
