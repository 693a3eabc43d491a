// Package logging provides a minimal logging interface and adapters.
//
// The Logger interface defines the structured logging methods (Debug, Info,
// Warn, Error) the runner, agents, flows and the config loader use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - ContextLogger, an slog-backed logger with contextual helpers
//   - ZapAdapter for applications standardized on go.uber.org/zap
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(rootAgent, func(o *runner.Options) { o.Logger = logger })
package logging
