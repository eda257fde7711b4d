// Package coordinator drives plans end to end. One coordinator hosts many
// plans; each executing plan is owned by a single-writer run loop that seeds
// the ready set, dispatches admitted steps to their capability executors,
// applies completion callbacks, persists every transition and emits status
// events to subscribers.
//
// Concurrency model: the run loop is the only writer of plan and step state.
// Dispatch is non-blocking (one goroutine per in-flight step reporting back
// over a completion channel); approval, rejection and cancellation arrive as
// commands the loop applies between completions. External readers take
// snapshots under a read lock. Cancellation is cooperative via the context
// threaded into every executor call, bounded by a configurable grace period
// after which unresponsive steps are marked failed with a timeout error.
package coordinator
