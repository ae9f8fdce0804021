package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPutGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("artifacts")

	require.NoError(t, m.Put(ctx, "tid/audio.mp3", strings.NewReader("mp3-bytes")))
	rc, err := m.Get(ctx, "tid/audio.mp3")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "mp3-bytes", string(data))

	require.NoError(t, m.Delete(ctx, "tid/audio.mp3"))
	_, err = m.Get(ctx, "tid/audio.mp3")
	assert.Error(t, err)
	// deleting again is not an error
	assert.NoError(t, m.Delete(ctx, "tid/audio.mp3"))
}

func TestMemoryBucketOverride(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("artifacts")

	require.NoError(t, m.Put(ctx, "raw/track_0.webm", strings.NewReader("a"), WithBucket("recordings")))
	_, err := m.Get(ctx, "raw/track_0.webm")
	assert.Error(t, err, "default bucket must not see the override bucket's object")

	rc, err := m.Get(ctx, "raw/track_0.webm", WithBucket("recordings"))
	require.NoError(t, err)
	rc.Close()
}

func TestMemoryListByPrefix(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("artifacts")
	require.NoError(t, m.Put(ctx, "tid/tracks/padded_0.webm", strings.NewReader("x")))
	require.NoError(t, m.Put(ctx, "tid/tracks/padded_1.webm", strings.NewReader("y")))
	require.NoError(t, m.Put(ctx, "other/audio.mp3", strings.NewReader("z")))

	infos, err := m.List(ctx, "tid/tracks/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "tid/tracks/padded_0.webm", infos[0].Key)
	assert.Equal(t, "tid/tracks/padded_1.webm", infos[1].Key)
}
