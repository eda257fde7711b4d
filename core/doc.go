// Package core provides the foundational domain types and interfaces used by
// PlanMesh. It defines the core abstractions for:
//
//   - Plans (dependency DAGs of agent-executable steps derived from an objective)
//   - Steps (single agent-executed units of work with an explicit state machine)
//   - Events (immutable status / progress records streamed to observers)
//   - Executors (the opaque agent-call boundary, sync and streaming)
//   - The pluggable document store used to persist plans and messages
//
// The package intentionally keeps implementation concerns (persistence,
// scheduling, concrete patterns, the coordinator) out of scope, exposing small
// interfaces to enable custom backends and extensions.
package core
