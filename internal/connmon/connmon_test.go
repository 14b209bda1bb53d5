package connmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arsfeld/reelcache/internal/domain"
)

func TestProbeOne_PicksFirstReachableCandidateInOrder(t *testing.T) {
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer local.Close()

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer remote.Close()

	src := Source{
		ID: "plex-home",
		Candidates: []Candidate{
			{URL: local.URL, Type: domain.ConnectionLocal},
			{URL: remote.URL, Type: domain.ConnectionRemote},
		},
	}

	m := New([]Source{src}, time.Hour, nil)

	ch := make(chan domain.ConnectionChanged, 1)
	m.Subscribe(ch)

	m.probeOne(context.Background(), src)

	select {
	case evt := <-ch:
		assert.Equal(t, domain.ConnectionLocal, evt.Current)
		assert.Equal(t, local.URL, evt.URL)
	case <-time.After(time.Second):
		t.Fatal("expected a ConnectionChanged event")
	}

	last, ok := m.LastKnown("plex-home")
	require.True(t, ok)
	assert.Equal(t, domain.ConnectionLocal, last.Current)
}

func TestProbeOne_FallsBackToNextCandidateWhenFirstUnreachable(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer remote.Close()

	src := Source{
		ID: "plex-home",
		Candidates: []Candidate{
			{URL: "http://127.0.0.1:1", Type: domain.ConnectionLocal}, // nothing listens here
			{URL: remote.URL, Type: domain.ConnectionRemote},
		},
	}

	m := New([]Source{src}, time.Hour, nil)
	ch := make(chan domain.ConnectionChanged, 1)
	m.Subscribe(ch)

	m.probeOne(context.Background(), src)

	select {
	case evt := <-ch:
		assert.Equal(t, domain.ConnectionRemote, evt.Current)
	case <-time.After(time.Second):
		t.Fatal("expected a ConnectionChanged event")
	}
}

func TestProbeOne_NoChangeDoesNotRepublish(t *testing.T) {
	local := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer local.Close()

	src := Source{
		ID:         "jellyfin-home",
		Candidates: []Candidate{{URL: local.URL, Type: domain.ConnectionLocal}},
	}

	m := New([]Source{src}, time.Hour, nil)
	ch := make(chan domain.ConnectionChanged, 2)
	m.Subscribe(ch)

	m.probeOne(context.Background(), src)
	m.probeOne(context.Background(), src)

	require.Len(t, ch, 1) // second probe saw no change, so nothing published again
}

func TestProbeOne_AllUnreachableLeavesLastKnownUnset(t *testing.T) {
	src := Source{
		ID:         "offline-source",
		Candidates: []Candidate{{URL: "http://127.0.0.1:1", Type: domain.ConnectionLocal}},
	}

	m := New([]Source{src}, time.Hour, nil)
	m.probeOne(context.Background(), src)

	_, ok := m.LastKnown("offline-source")
	assert.False(t, ok)
}
