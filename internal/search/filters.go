package search

import (
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// FilterFunc reports whether a document passes one filter. aliases are
// the document's other sightings.
type FilterFunc func(doc *store.Document, aliases []store.SourceRef) bool

// buildFilters creates one check per set filter.
func buildFilters(f Filters) []FilterFunc {
	var filters []FilterFunc
	if f.Channel != "" {
		filters = append(filters, channelFilter(f.Channel))
	}
	if f.MediaKind != "" {
		kind := f.MediaKind
		filters = append(filters, func(doc *store.Document, _ []store.SourceRef) bool {
			return doc.MediaKind == kind
		})
	}
	if !f.Before.IsZero() {
		before := f.Before
		filters = append(filters, func(doc *store.Document, _ []store.SourceRef) bool {
			return doc.CreatedAt.Before(before)
		})
	}
	if !f.After.IsZero() {
		after := f.After
		filters = append(filters, func(doc *store.Document, _ []store.SourceRef) bool {
			return doc.CreatedAt.After(after)
		})
	}
	return filters
}

// channelFilter matches the canonical channel or any alias channel: the
// content is available wherever it was sighted.
func channelFilter(channel string) FilterFunc {
	return func(doc *store.Document, aliases []store.SourceRef) bool {
		if doc.SourceRef.ChannelID == channel {
			return true
		}
		for _, a := range aliases {
			if a.ChannelID == channel {
				return true
			}
		}
		return false
	}
}

// matchesAllFilters checks if a document passes all filters (AND logic).
func matchesAllFilters(doc *store.Document, aliases []store.SourceRef, filters []FilterFunc) bool {
	for _, f := range filters {
		if !f(doc, aliases) {
			return false
		}
	}
	return true
}
