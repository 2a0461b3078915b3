package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	_, err := NewFileStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileStoreLoadMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load(context.Background(), "orders")
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestFileStoreSaveAndNames(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "orders", []byte(`[]`)))
	require.NoError(t, s.Save(ctx, "contacts", []byte(`[{"id":1}]`)))
	require.NoError(t, s.Save(ctx, "orders", []byte(`[{"id":2}]`)))

	doc, err := s.Load(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":2}]`, string(doc))

	names, err := s.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"contacts", "orders"}, names)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}
}

func TestFileStoreRejectsPathNames(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, s.Save(context.Background(), "../escape", []byte(`[]`)))
	_, err = s.Load(context.Background(), "a/b")
	assert.Error(t, err)
}

func TestCollectionOnFileStoreIsPrettyPrinted(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	c := NewCollection[record](s, "records", logger)
	_, err = c.Append(context.Background(), func([]record) (record, error) {
		return record{ID: 1, Name: "pretty"}, nil
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "records.json"))
	require.NoError(t, err)
	assert.Equal(t, "[\n  {\n    \"id\": 1,\n    \"name\": \"pretty\"\n  }\n]", string(raw))
}
