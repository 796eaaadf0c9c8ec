package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/media/")
	require.NoError(t, err)
	ctx := context.Background()

	key := NewKey("voice_notes", "voice_", ".WEBM")
	assert.True(t, strings.HasPrefix(key, "voice_notes/voice_"))
	assert.True(t, strings.HasSuffix(key, ".webm"))

	require.NoError(t, store.Save(ctx, key, "audio/webm", strings.NewReader("abc"), 3))
	assert.Equal(t, "/media/"+key, store.URL(key))

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Open(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)

	for _, key := range []string{"../etc/passwd", "/abs", "a//b", ""} {
		err := store.Save(context.Background(), key, "text/plain", strings.NewReader("x"), 1)
		assert.Error(t, err, key)
	}
}
