package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("http://blobs.local")

	url, err := s.Put(ctx, "alice/1-abcdef.png", []byte{1, 2, 3}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://blobs.local/alice/1-abcdef.png", url)

	data, err := s.Get(ctx, "alice/1-abcdef.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	ct, ok := s.ContentType("alice/1-abcdef.png")
	assert.True(t, ok)
	assert.Equal(t, "image/png", ct)

	require.NoError(t, s.Delete(ctx, "alice/1-abcdef.png"))
	require.NoError(t, s.Delete(ctx, "alice/1-abcdef.png"))

	_, err = s.Get(ctx, "alice/1-abcdef.png")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMinioStoreURL(t *testing.T) {
	s, err := NewMinioStore(MinioConfig{
		Endpoint: "localhost:9000",
		Access:   "minioadmin",
		Secret:   "minioadmin",
		Bucket:   "photoflow-photos",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000/photoflow-photos/alice/1-abc.jpg", s.URL("alice/1-abc.jpg"))

	_, err = NewMinioStore(MinioConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}
