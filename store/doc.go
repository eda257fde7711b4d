// Package store contains concrete DocumentStore implementations. The store
// interface resides in the core package. Import
// github.com/hupe1980/planmesh/core and depend on core.DocumentStore in your
// code; select an implementation (like the in-memory store below, or the
// SQLite store in the sqlite subpackage) at wiring time.
//
// Rationale: keeps domain contracts centralized while allowing pluggable
// backends (document databases, object stores, etc.) to be added without
// introducing dependency cycles.
package store
