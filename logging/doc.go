// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer StructuredLogger with contextual
// helpers (plan, step, component) and domain specific logging helpers for
// agent calls, step transitions and plan executions.
package logging
