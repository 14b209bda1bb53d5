package homesections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsfeld/reelcache/internal/domain"
)

func TestLibraryStore_MemoryOnlyRoundTripsMovies(t *testing.T) {
	store, err := NewLibraryStore("", "")
	require.NoError(t, err)

	_, ok := store.GetMovies("lib-1")
	assert.False(t, ok, "nothing saved yet")

	movies := []*domain.MediaItem{{ID: "m1", Title: "Alpha"}}
	require.NoError(t, store.SaveMovies("lib-1", movies, 1))

	got, ok := store.GetMovies("lib-1")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "Alpha", got[0].Title)
}

func TestLibraryStore_DiskPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewLibraryStore(dir, "http://plex.local:32400")
	require.NoError(t, err)
	require.NoError(t, store.SaveMovies("lib-1", []*domain.MediaItem{{ID: "m1", Title: "Alpha"}}, 1))
	require.NoError(t, store.Close())

	reopened, err := NewLibraryStore(dir, "http://plex.local:32400")
	require.NoError(t, err)
	defer reopened.Close()

	got, ok := reopened.GetMovies("lib-1")
	require.True(t, ok, "a fresh store must find the previously saved movies on disk")
	require.Len(t, got, 1)
	assert.Equal(t, "Alpha", got[0].Title)
}
