// Package logging provides structured logging for the Signal K MQTT bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the bridge.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Dropped messages (malformed deltas, foreign system ids, unparseable
// keepalives) are logged at debug level, so run with level "debug" when
// diagnosing why a consumer sees nothing.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("bridge started", "system_id", "230099999")
//
// Never log the broker credentials or the Signal K token.
package logging
