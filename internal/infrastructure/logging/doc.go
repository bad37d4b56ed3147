// Package logging provides structured logging for the tenant gateway.
//
// It wraps log/slog so every entry carries the service name and build
// version, and so components can derive child loggers with
// With("component", ...).
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
//	logger.Info("starting service", "port", 8080)
//	logger.Error("store unreachable", "error", err)
//
// # Security
//
// Never log passwords, credential hashes, salts or session tokens. Log the
// token id (jti) or the user id instead. The one exception is the generated
// bootstrap admin password, logged once at warn level on first boot.
package logging
