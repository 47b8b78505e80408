package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectStoresCopy(t *testing.T) {
	store := NewBlobStore()
	data := []byte(`{"url":"https://example.com"}`)

	uri, err := store.PutObject(context.Background(), "scans/s1/context.json", "application/json", data)
	require.NoError(t, err)
	require.Equal(t, "memory://scans/s1/context.json", uri)

	data[0] = 'X'
	got, ok := store.Get("scans/s1/context.json")
	require.True(t, ok)
	require.Equal(t, byte('{'), got[0])
	require.Equal(t, 1, store.Len())
}

func TestPutObjectRequiresPath(t *testing.T) {
	store := NewBlobStore()
	_, err := store.PutObject(context.Background(), "", "", nil)
	require.Error(t, err)
}
