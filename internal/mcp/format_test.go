package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anupammaurya6767/shadowfinder/internal/search"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

func TestFormatSearchResults_Empty(t *testing.T) {
	assert.Equal(t, `No results found for "gentoo"`, FormatSearchResults("gentoo", &search.Result{}))
	assert.Equal(t, `No results found for "x"`, FormatSearchResults("x", nil))
}

func TestFormatSearchResults_Page(t *testing.T) {
	out := FormatSearchResults("debian", sampleResult())

	assert.Contains(t, out, "## Search Results for \"debian\"")
	assert.Contains(t, out, "Showing 1 of 2 matches")
	assert.Contains(t, out, "### 1. Debian netinst")
	assert.Contains(t, out, "**Source:** `linuxchan/12`")
	assert.Contains(t, out, "**Also at:** `mirror/3`")
	assert.Contains(t, out, "**Kind:** file (650.0 MB)")
	assert.Contains(t, out, "**Posted:** 2026-04-02 08:00")
	assert.Contains(t, out, "cursor `next`")
}

func TestFormatSearchResults_Degraded(t *testing.T) {
	res := &search.Result{
		Hits:     []search.Hit{{MediaKind: store.MediaText}},
		Total:    1,
		Degraded: true,
	}
	out := FormatSearchResults("x", res)

	assert.Contains(t, out, "Showing 1 of 1 match\n")
	assert.Contains(t, out, "timed out")
	assert.Contains(t, out, "(untitled)")
	assert.NotContains(t, out, "cursor")
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "10 B", humanSize(10))
	assert.Equal(t, "2.0 KB", humanSize(2048))
	assert.Equal(t, "1.5 GB", humanSize(3*512*1024*1024))
}
