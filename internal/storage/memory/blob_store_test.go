package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "pages/2024-03-05/run.html", "text/html", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://pages/2024-03-05/run.html", uri)

	payload[0] = 'C'
	stored, ok := store.Object("pages/2024-03-05/run.html")
	require.True(t, ok)
	assert.Equal(t, "content", string(stored), "expected stored copy to be immutable")
	assert.Equal(t, []string{"pages/2024-03-05/run.html"}, store.Paths())
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), " ", "text/html", bytes.NewReader(nil))
	require.Error(t, err)
}
