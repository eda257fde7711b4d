// Package pattern implements the orchestration policies layered on the
// dependency scheduler. Each pattern answers two questions for the
// coordinator: which ready steps to admit now, and how context propagates to
// a step (and, for Concurrent, how results aggregate once all steps are
// terminal).
//
// Patterns are stateful per plan run and are only ever called from the
// coordinator's single-writer loop, so they need no internal locking. They
// read the Snapshot but never mutate step state themselves.
//
// Four policies are provided:
//
//   - Sequential: one step at a time in fixed plan order
//   - Concurrent: all ready steps up to max_concurrent, with configurable
//     result aggregation (merge / first / all)
//   - Handoff: a chain of dynamically materialized steps, each successor
//     named by the previous agent and validated against an allow-list
//   - GroupChat: a managed conversation where a round-robin or priority
//     manager selects the next speaking agent each round
package pattern
