package synccoord

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsfeld/reelcache/internal/domain"
	"github.com/arsfeld/reelcache/internal/homesections"
	"github.com/arsfeld/reelcache/internal/mediabackend"
)

// fakeBackend only implements the methods GatherLibraryMovies exercises;
// every other embedded method panics if reached, which would signal a bug.
type fakeBackend struct {
	mediabackend.MediaBackend
	movies []*domain.MediaItem
	err    error

	markers           []domain.Marker
	markersErr        error
	fetchMarkersCalls int
}

func (b *fakeBackend) GetMovies(ctx context.Context, libID string, offset, limit int) ([]*domain.MediaItem, int, error) {
	if b.err != nil {
		return nil, 0, b.err
	}
	end := offset + limit
	if end > len(b.movies) {
		end = len(b.movies)
	}
	if offset >= end {
		return nil, len(b.movies), nil
	}
	return b.movies[offset:end], len(b.movies), nil
}

func (b *fakeBackend) FetchMarkers(ctx context.Context, itemID string) ([]domain.Marker, error) {
	b.fetchMarkersCalls++
	return b.markers, b.markersErr
}

// fakeMarkerRepo only implements the methods Markers exercises; anything
// else panics if reached.
type fakeMarkerRepo struct {
	domain.Repository
	stored      []domain.Marker
	hasStored   bool
	saveCalls   int
	lastSavedID string
}

func (r *fakeMarkerRepo) GetMarkers(ctx context.Context, mediaID string) ([]domain.Marker, bool, error) {
	return r.stored, r.hasStored, nil
}

func (r *fakeMarkerRepo) SaveMarkers(ctx context.Context, mediaID string, markers []domain.Marker) error {
	r.saveCalls++
	r.lastSavedID = mediaID
	r.stored = markers
	r.hasStored = true
	return nil
}

func movieItem(title string) *domain.MediaItem {
	return &domain.MediaItem{ID: title, Title: title}
}

func TestGatherLibraryMovies_ReturnsEveryPage(t *testing.T) {
	backend := &fakeBackend{movies: []*domain.MediaItem{
		movieItem("Alpha"), movieItem("Bravo"), movieItem("Charlie"),
	}}
	c := New(nil, backend, nil)

	movies, err := c.GatherLibraryMovies(context.Background(), "lib-1", nil)
	require.NoError(t, err)
	assert.Len(t, movies, 3)
}

func TestGatherLibraryMovies_FallsBackToDiskCacheOnBackendError(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	store, err := homesections.NewLibraryStore("", "")
	require.NoError(t, err)

	cached := []*domain.MediaItem{movieItem("Cached Movie")}
	require.NoError(t, store.SaveMovies("lib-1", cached, 0))

	c := New(nil, backend, nil).WithDiskCache(store)

	movies, err := c.GatherLibraryMovies(context.Background(), "lib-1", nil)
	require.NoError(t, err, "a disk-cache hit must suppress the backend error")
	require.Len(t, movies, 1)
	assert.Equal(t, "Cached Movie", movies[0].Title)
}

func TestGatherLibraryMovies_PropagatesErrorWithNoDiskCache(t *testing.T) {
	backend := &fakeBackend{err: errors.New("connection refused")}
	c := New(nil, backend, nil)

	_, err := c.GatherLibraryMovies(context.Background(), "lib-1", nil)
	assert.Error(t, err)
}

func TestSearchCached_FindsGatheredTitleByFuzzyQuery(t *testing.T) {
	backend := &fakeBackend{movies: []*domain.MediaItem{
		movieItem("Mr. Robot"), movieItem("The Office"),
	}}
	c := New(nil, backend, nil)

	_, err := c.GatherLibraryMovies(context.Background(), "lib-1", nil)
	require.NoError(t, err)

	results := c.SearchCached("robot mr")
	require.Len(t, results, 1)
	assert.Equal(t, "Mr. Robot", results[0].Title)
}

func TestSearchCached_EmptyBeforeAnyGather(t *testing.T) {
	c := New(nil, &fakeBackend{}, nil)
	assert.Empty(t, c.SearchCached("anything"))
}

func TestMarkers_FetchesFromBackendAndPersistsOnFirstRequest(t *testing.T) {
	backend := &fakeBackend{markers: []domain.Marker{{MediaID: "m1", Kind: domain.MarkerIntro, StartMS: 0, EndMS: 60_000}}}
	repo := &fakeMarkerRepo{}
	c := New(repo, backend, nil)

	markers, err := c.Markers(context.Background(), "m1")
	require.NoError(t, err)
	assert.Len(t, markers, 1)
	assert.Equal(t, 1, backend.fetchMarkersCalls)
	assert.Equal(t, 1, repo.saveCalls, "a backend fetch must be persisted")
	assert.Equal(t, "m1", repo.lastSavedID)
}

func TestMarkers_UsesRepositoryBeforeBackendOnSubsequentRequest(t *testing.T) {
	backend := &fakeBackend{markers: []domain.Marker{{MediaID: "m1", Kind: domain.MarkerIntro, StartMS: 0, EndMS: 60_000}}}
	repo := &fakeMarkerRepo{
		stored:    []domain.Marker{{MediaID: "m1", Kind: domain.MarkerCredits, StartMS: 5_000_000, EndMS: 5_060_000}},
		hasStored: true,
	}
	c := New(repo, backend, nil)

	markers, err := c.Markers(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, domain.MarkerCredits, markers[0].Kind, "a stored marker must short-circuit the backend fetch")
	assert.Equal(t, 0, backend.fetchMarkersCalls)
}

func TestMarkers_CachesInMemoryAfterFirstRequest(t *testing.T) {
	backend := &fakeBackend{markers: []domain.Marker{{MediaID: "m1", Kind: domain.MarkerIntro, StartMS: 0, EndMS: 60_000}}}
	repo := &fakeMarkerRepo{}
	c := New(repo, backend, nil)

	_, err := c.Markers(context.Background(), "m1")
	require.NoError(t, err)
	_, err = c.Markers(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, 1, backend.fetchMarkersCalls, "the second request must hit the in-memory cache, not the backend again")
}
