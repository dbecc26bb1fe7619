package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArtifact struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestArchive_SaveAndLoadJSON(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	a := New(storage)

	in := sampleArtifact{Name: "run-1", Count: 42}
	require.NoError(t, a.SaveJSON(context.Background(), "run-1.json", in))

	var out sampleArtifact
	require.NoError(t, a.LoadJSON(context.Background(), "run-1.json", &out))
	assert.Equal(t, in, out)
}

func TestArchive_LoadJSON_MissingArtifact(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	a := New(storage)

	var out sampleArtifact
	assert.Error(t, a.LoadJSON(context.Background(), "absent.json", &out))
}

func TestArchive_ListFiltersByPrefix(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)
	a := New(storage)

	ctx := context.Background()
	require.NoError(t, a.SaveJSON(ctx, "bench-a.json", sampleArtifact{}))
	require.NoError(t, a.SaveJSON(ctx, "bench-b.json", sampleArtifact{}))
	require.NoError(t, a.SaveJSON(ctx, "other.json", sampleArtifact{}))

	names, err := a.List(ctx, "bench-")
	require.NoError(t, err)
	assert.Len(t, names, 2)
	for _, n := range names {
		assert.True(t, strings.HasPrefix(n, "bench-"))
	}
}

func TestArchive_Delete(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(dir)
	require.NoError(t, err)
	a := New(storage)

	ctx := context.Background()
	require.NoError(t, a.SaveJSON(ctx, "doomed.json", sampleArtifact{}))
	require.NoError(t, a.Delete(ctx, "doomed.json"))

	_, statErr := os.Stat(filepath.Join(dir, "doomed.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileStorage_SaveLoadRoundTrip(t *testing.T) {
	storage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, storage.Save(ctx, "raw.txt", strings.NewReader("payload")))

	reader, err := storage.Load(ctx, "raw.txt")
	require.NoError(t, err)
	defer reader.Close()

	buf := make([]byte, 16)
	n, _ := reader.Read(buf)
	assert.Equal(t, "payload", string(buf[:n]))
}
