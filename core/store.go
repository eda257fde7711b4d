package core

import (
	"context"
	"encoding/json"
)

// Document kinds persisted by the coordinator. One document per plan
// (embedding its steps) and one per message, both indexed by session id.
const (
	DocKindPlan    = "plan"
	DocKindMessage = "message"
)

// DocumentStore is the persistence boundary: a durable document store keyed
// by (sessionID, kind, id) with no internal logic. A step or plan transition
// is reported committed only after the corresponding Upsert succeeds.
type DocumentStore interface {
	// Upsert stores value (JSON-serialized) under the given key, replacing
	// any previous document.
	Upsert(ctx context.Context, sessionID, kind, id string, value any) error

	// Get unmarshals the document for the given key into out. Returns
	// ErrDocumentNotFound when the key is unknown.
	Get(ctx context.Context, sessionID, kind, id string, out any) error

	// QueryBySession lists all documents of a kind within a session in
	// insertion order.
	QueryBySession(ctx context.Context, sessionID, kind string) ([]json.RawMessage, error)

	// DeleteSession removes every document belonging to the session. Entities
	// persist until this explicit deletion (retained for replay / audit).
	DeleteSession(ctx context.Context, sessionID string) error
}
