package plex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsfeld/reelcache/internal/domain"
)

func TestMapMovies_SkipsNonMovieTypesAndFallsBackSortTitle(t *testing.T) {
	metadata := []Metadata{
		{RatingKey: "1", Title: "Arrival", Type: "movie", Year: 2016},
		{RatingKey: "2", Title: "Some Show", Type: "show"},
	}

	movies := MapMovies(metadata, "http://plex:32400")

	require.Len(t, movies, 1)
	assert.Equal(t, "1", movies[0].ID)
	assert.Equal(t, "Arrival", movies[0].SortTitle, "an empty TitleSort must fall back to Title")
	assert.Equal(t, domain.MediaTypeMovie, movies[0].Type)
}

func TestMapMovies_BuildsMediaURLFromFirstPart(t *testing.T) {
	metadata := []Metadata{{
		RatingKey: "1", Title: "Arrival", Type: "movie",
		Media: []Media{{Part: []Part{{Key: "/library/parts/1/file.mkv"}}}},
	}}

	movies := MapMovies(metadata, "http://plex:32400")

	require.NotEmpty(t, movies)
	assert.Contains(t, movies[0].MediaURL, "/library/parts/1/file.mkv")
}

func TestMapMarkers_SkipsUnknownMarkerTypes(t *testing.T) {
	m := Metadata{
		Marker: []MarkerEntry{
			{Type: "intro", StartTime: 0, EndTime: 60000},
			{Type: "credits", StartTime: 5_400_000, EndTime: 5_460_000},
			{Type: "commercial", StartTime: 1000, EndTime: 2000},
		},
	}

	markers := MapMarkers(m, "item-1")

	require.Len(t, markers, 2)
	assert.Equal(t, domain.MarkerIntro, markers[0].Kind)
	assert.Equal(t, domain.MarkerCredits, markers[1].Kind)
}
