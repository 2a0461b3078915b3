package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to open test store")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltLoadMissing(t *testing.T) {
	s := newTestBoltStore(t)

	_, err := s.Load(context.Background(), "orders")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestBoltSaveOverwrites(t *testing.T) {
	s := newTestBoltStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "newsletter", []byte(`[]`)))
	require.NoError(t, s.Save(ctx, "newsletter", []byte(`[{"email":"a@b.com"}]`)))

	doc, err := s.Load(ctx, "newsletter")
	require.NoError(t, err)
	assert.Equal(t, `[{"email":"a@b.com"}]`, string(doc))
}

func TestBoltNames(t *testing.T) {
	s := newTestBoltStore(t)
	ctx := context.Background()

	for _, name := range []string{"products", "orders", "contacts"} {
		require.NoError(t, s.Save(ctx, name, []byte(`[]`)))
	}

	names, err := s.Names(ctx)
	require.NoError(t, err)
	// bolt iterates keys in byte order
	assert.Equal(t, []string{"contacts", "orders", "products"}, names)
}

func TestBoltSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "orders", []byte(`[{"orderId":"UC-1-abc"}]`)))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path)
	require.NoError(t, err)
	defer s.Close()

	doc, err := s.Load(ctx, "orders")
	require.NoError(t, err)
	assert.Contains(t, string(doc), "UC-1-abc")
}
