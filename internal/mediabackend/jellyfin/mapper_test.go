package jellyfin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsfeld/reelcache/internal/domain"
)

func TestMapMovies_SkipsNonMovieTypesAndFallsBackSortTitle(t *testing.T) {
	items := []Item{
		{ID: "1", Name: "Arrival", Type: "Movie", ProductionYear: 2016, RunTimeTicks: 90_000_0000},
		{ID: "2", Name: "Some Series", Type: "Series"},
	}

	movies := MapMovies(items, "http://jellyfin:8096")

	require.Len(t, movies, 1)
	assert.Equal(t, "1", movies[0].ID)
	assert.Equal(t, "Arrival", movies[0].SortTitle, "an empty SortName must fall back to Name")
	assert.Equal(t, domain.MediaTypeMovie, movies[0].Type)
	assert.Equal(t, 9*time.Second, movies[0].Duration, "RunTimeTicks are 100-nanosecond units")
}

func TestMapMovies_CarriesWatchProgressFromUserData(t *testing.T) {
	items := []Item{{
		ID: "1", Name: "Arrival", Type: "Movie",
		UserData: &UserData{Played: true, PlaybackPositionTicks: 300_000_0000},
	}}

	movies := MapMovies(items, "http://jellyfin:8096")

	require.Len(t, movies, 1)
	assert.True(t, movies[0].IsPlayed)
	assert.Equal(t, 30*time.Second, movies[0].ViewOffset)
}

func TestMapMovies_ParsesDateCreatedIntoAddedAt(t *testing.T) {
	items := []Item{{
		ID: "1", Name: "Arrival", Type: "Movie",
		DateCreated: "2024-03-15T10:00:00Z",
	}}

	movies := MapMovies(items, "http://jellyfin:8096")

	require.Len(t, movies, 1)
	want, _ := time.Parse(time.RFC3339, "2024-03-15T10:00:00Z")
	assert.Equal(t, want.Unix(), movies[0].AddedAt)
	assert.Equal(t, movies[0].AddedAt, movies[0].UpdatedAt)
}
