package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
	"github.com/StevenACZ/peso-tracker-backend/internal/models"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestLocalWriteReadRoundTrip(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	data := []byte("jpeg bytes")
	relPath, err := store.Write(ctx, "42", "7", 1690000000, models.SizeFull, data)
	require.NoError(t, err)
	assert.Equal(t, "42/7/1690000000_full.jpg", relPath)

	got, err := store.Read(ctx, relPath)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// No leftover temp file from the write-then-rename step.
	entries, err := os.ReadDir(filepath.Join(store.root, "42", "7"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalReadMissing(t *testing.T) {
	store := newTestLocalStore(t)

	_, err := store.Read(context.Background(), "42/7/1_full.jpg")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestLocalReadRejectsTraversal(t *testing.T) {
	store := newTestLocalStore(t)

	outside := filepath.Join(filepath.Dir(store.root), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	for _, p := range []string{
		"../secret.txt",
		"42/../secret.txt",
		"/etc/passwd",
		"42/7/../../secret.txt",
	} {
		_, err := store.Read(context.Background(), p)
		assert.ErrorIs(t, err, errs.ErrInvalidInput, p)
	}
}

func TestLocalReadDirectoryIsNotFound(t *testing.T) {
	store := newTestLocalStore(t)
	require.NoError(t, os.MkdirAll(filepath.Join(store.root, "42", "7", "dir.jpg"), 0o755))

	_, err := store.Read(context.Background(), "42/7/dir.jpg")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestLocalDeleteAll(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	labels := []models.SizeLabel{models.SizeThumbnail, models.SizeMedium, models.SizeFull}
	paths := make([]string, 0, len(labels))
	for _, label := range labels {
		relPath, err := store.Write(ctx, "42", "7", 1690000000, label, []byte("x"))
		require.NoError(t, err)
		paths = append(paths, relPath)
	}

	store.DeleteAll(ctx, "42", "7")

	for _, relPath := range paths {
		_, err := store.Read(ctx, relPath)
		assert.ErrorIs(t, err, errs.ErrNotFound, relPath)
	}

	_, err := os.Stat(filepath.Join(store.root, "42", "7"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalDeleteAllLeavesOtherRecords(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	kept, err := store.Write(ctx, "42", "8", 1, models.SizeFull, []byte("keep"))
	require.NoError(t, err)
	_, err = store.Write(ctx, "42", "7", 1, models.SizeFull, []byte("drop"))
	require.NoError(t, err)

	store.DeleteAll(ctx, "42", "7")

	got, err := store.Read(ctx, kept)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), got)
}

func TestLocalDeleteAllRefusesUnsafeSegments(t *testing.T) {
	store := newTestLocalStore(t)

	outside := filepath.Join(filepath.Dir(store.root), "outside")
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outside, "f.txt"), []byte("x"), 0o644))

	store.DeleteAll(context.Background(), "..", "outside")

	_, err := os.Stat(filepath.Join(outside, "f.txt"))
	assert.NoError(t, err)
}

func TestLocalDeleteOwner(t *testing.T) {
	store := newTestLocalStore(t)
	ctx := context.Background()

	_, err := store.Write(ctx, "42", "7", 1, models.SizeFull, []byte("a"))
	require.NoError(t, err)
	_, err = store.Write(ctx, "42", "8", 1, models.SizeFull, []byte("b"))
	require.NoError(t, err)

	store.DeleteOwner(ctx, "42")

	_, err = os.Stat(filepath.Join(store.root, "42"))
	assert.True(t, os.IsNotExist(err))
}
