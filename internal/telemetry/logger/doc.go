// Package logger provides structured logging for memkv.
//
// It wraps the standard library log/slog:
//
//   - logger.go: Logger interface, JSON/text handlers and the global level
//   - context.go: Context-aware logging with connection and request IDs
//   - redact.go: Sensitive data redaction
//   - filter.go: per-component filtering of non-error output
//
// Components obtain their logger through Named, which adds a
// component attribute. Command values are never logged.
package logger
