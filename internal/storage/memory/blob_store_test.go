package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore("")
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "grid-debug/run/original.png", "image/png", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://grid-debug/run/original.png", uri)

	payload[0] = 'C'
	obj, ok := store.Get("grid-debug/run/original.png")
	require.True(t, ok)
	require.Equal(t, "content", string(obj.Data))
	require.Equal(t, "image/png", obj.ContentType)

	obj.Data[0] = 'X'
	again, _ := store.Get("grid-debug/run/original.png")
	require.Equal(t, "content", string(again.Data))
}

func TestBlobStorePrefixAndKeys(t *testing.T) {
	t.Parallel()

	store := NewBlobStore("/debug/")
	_, err := store.PutObject(context.Background(), "b.png", "image/png", bytes.NewReader([]byte("b")))
	require.NoError(t, err)
	uri, err := store.PutObject(context.Background(), "/a.png", "image/png", bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	require.Equal(t, "memory://debug/a.png", uri)
	require.Equal(t, []string{"debug/a.png", "debug/b.png"}, store.Keys())

	_, ok := store.Get("missing")
	require.False(t, ok)

	_, err = store.PutObject(context.Background(), " ", "image/png", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestBoundedBlobStoreEvictsOldest(t *testing.T) {
	t.Parallel()

	store := NewBoundedBlobStore("debug", 2)
	for _, name := range []string{"a.png", "b.png", "a.png", "c.png"} {
		_, err := store.PutObject(context.Background(), name, "image/png", bytes.NewReader([]byte(name)))
		require.NoError(t, err)
	}

	require.Equal(t, []string{"debug/b.png", "debug/c.png"}, store.Keys())
	_, ok := store.Get("debug/a.png")
	require.False(t, ok)
}
