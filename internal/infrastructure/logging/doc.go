// Package logging provides structured logging for the signal chain controller.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for unattended runs (machine-parsable)
//   - Coloured text output via tint when sitting at the bench
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//	  no_color: false    # text format only
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("reference frequency set", "hz", 137.0)
//	logger.Warn("overload advisory", "predicted_v", 1.0, "threshold_v", 0.8)
package logging
