// Package logging provides structured logging utilities for meetmate.
//
// All packages log through log/slog. This package keeps attribute names
// consistent and makes sure chat user ids and OAuth tokens never reach the
// log output in clear text.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "reminder.sweep")
//	logger.Info("sweep finished", logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("turn started", logging.UserHash(userID))
package logging
