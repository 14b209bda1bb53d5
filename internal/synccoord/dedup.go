package synccoord

import (
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/arsfeld/reelcache/internal/domain"
)

// titleIndex implements fuzzy.Source over a slice of lowercased titles so
// sahilm/fuzzy can search it without per-call allocation.
type titleIndex []string

func (idx titleIndex) String(i int) string { return idx[i] }
func (idx titleIndex) Len() int            { return len(idx) }

// dedupThreshold is the minimum sahilm/fuzzy score two titles must share to
// be considered the same title reported by two different sources.
const dedupThreshold = 50

// DedupeByTitle collapses items whose titles fuzzy-match an already-seen
// title, keeping the first occurrence. This is used when reconciling a
// library across multiple media server sources that may title the same
// item slightly differently (e.g. trailing year, punctuation).
func DedupeByTitle(items []domain.MediaItem) []domain.MediaItem {
	if len(items) == 0 {
		return items
	}

	var kept []domain.MediaItem
	var keptTitles titleIndex

	for _, item := range items {
		title := strings.ToLower(strings.TrimSpace(item.Title))
		if title == "" {
			kept = append(kept, item)
			continue
		}

		if len(keptTitles) > 0 {
			matches := fuzzy.Find(title, keptTitles)
			if len(matches) > 0 && matches[0].Score >= dedupThreshold {
				continue // near-duplicate of an already-kept item
			}
		}

		kept = append(kept, item)
		keptTitles = append(keptTitles, title)
	}

	return kept
}
