package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/hupe1980/planmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var _ core.DocumentStore = (*Store)(nil)

type testDoc struct {
	Name string `json:"name"`
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "planmesh.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "sess-1", "plan", "p1", testDoc{Name: "first"}))

	var out testDoc
	require.NoError(t, s.Get(ctx, "sess-1", "plan", "p1", &out))
	assert.Equal(t, "first", out.Name)

	require.NoError(t, s.Upsert(ctx, "sess-1", "plan", "p1", testDoc{Name: "second"}))
	require.NoError(t, s.Get(ctx, "sess-1", "plan", "p1", &out))
	assert.Equal(t, "second", out.Name)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	s := openTestStore(t)
	var out testDoc
	err := s.Get(context.Background(), "sess-1", "plan", "ghost", &out)
	assert.ErrorIs(t, err, core.ErrDocumentNotFound)
}

func TestSQLiteStore_QueryBySession_InsertionOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "sess-1", "message", "m1", testDoc{Name: "one"}))
	require.NoError(t, s.Upsert(ctx, "sess-1", "message", "m2", testDoc{Name: "two"}))
	require.NoError(t, s.Upsert(ctx, "sess-1", "message", "m1", testDoc{Name: "one-updated"}))

	raws, err := s.QueryBySession(ctx, "sess-1", "message")
	require.NoError(t, err)
	require.Len(t, raws, 2)

	var first, second testDoc
	require.NoError(t, json.Unmarshal(raws[0], &first))
	require.NoError(t, json.Unmarshal(raws[1], &second))
	assert.Equal(t, "one-updated", first.Name, "update must not change insertion order")
	assert.Equal(t, "two", second.Name)
}

func TestSQLiteStore_DeleteSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "sess-1", "plan", "p1", testDoc{Name: "keep"}))
	require.NoError(t, s.Upsert(ctx, "sess-2", "plan", "p2", testDoc{Name: "drop"}))

	require.NoError(t, s.DeleteSession(ctx, "sess-2"))

	var out testDoc
	assert.NoError(t, s.Get(ctx, "sess-1", "plan", "p1", &out))
	assert.ErrorIs(t, s.Get(ctx, "sess-2", "plan", "p2", &out), core.ErrDocumentNotFound)
}
