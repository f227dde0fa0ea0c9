// Package store holds the inverted index and document table, plus the
// recovery snapshot they are rebuilt from.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DocID identifies a document. Assigned on first insert, increasing.
type DocID uint64

// String renders the id in base 10.
func (id DocID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseDocID parses the base 10 form produced by String.
func ParseDocID(s string) (DocID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse doc id %q: %w", s, err)
	}
	return DocID(n), nil
}

// Fingerprint is the SHA-256 content identity used for deduplication.
type Fingerprint [sha256.Size]byte

// String returns the hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// IsZero reports whether f is unset.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// ParseFingerprint decodes the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var fp Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("parse fingerprint: %w", err)
	}
	if len(b) != len(fp) {
		return fp, fmt.Errorf("parse fingerprint: want %d bytes, got %d", len(fp), len(b))
	}
	copy(fp[:], b)
	return fp, nil
}

// MediaKind classifies the content behind a document.
type MediaKind string

const (
	MediaText  MediaKind = "text"
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
	MediaFile  MediaKind = "file"
	MediaOther MediaKind = "other"
)

// MediaKinds lists every kind in display order.
var MediaKinds = []MediaKind{MediaText, MediaImage, MediaVideo, MediaAudio, MediaFile, MediaOther}

// ParseMediaKind maps kind names, including the messaging network's own
// names (photo, document, voice, ...), onto a MediaKind.
// Unknown names map to MediaOther.
func ParseMediaKind(s string) MediaKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "message":
		return MediaText
	case "image", "photo", "sticker":
		return MediaImage
	case "video", "video_note", "animation", "gif":
		return MediaVideo
	case "audio", "voice", "music":
		return MediaAudio
	case "file", "document":
		return MediaFile
	default:
		return MediaOther
	}
}

// Valid reports whether k is one of the known kinds.
func (k MediaKind) Valid() bool {
	for _, known := range MediaKinds {
		if k == known {
			return true
		}
	}
	return false
}

// SourceRef locates one sighting of content: a channel and an item in it.
type SourceRef struct {
	ChannelID string `json:"channel_id"`
	ItemID    string `json:"item_id"`
}

// String renders the ref as channel/item.
func (r SourceRef) String() string {
	return r.ChannelID + "/" + r.ItemID
}

// ParseSourceRef parses the channel/item form. The item is everything after
// the last slash so channel ids may not contain one.
func ParseSourceRef(s string) (SourceRef, error) {
	i := strings.LastIndexByte(s, '/')
	if i <= 0 || i == len(s)-1 {
		return SourceRef{}, fmt.Errorf("parse source ref %q: want channel/item", s)
	}
	return SourceRef{ChannelID: s[:i], ItemID: s[i+1:]}, nil
}

// Document is the canonical record for one piece of content.
// Canonical fields come from the first sighting. Later sightings of the
// same fingerprint are kept in AliasRefs.
type Document struct {
	ID          DocID
	SourceRef   SourceRef
	Title       string
	TitleTokens []string
	Fingerprint Fingerprint
	MediaKind   MediaKind
	SizeBytes   int64
	CreatedAt   time.Time
	AliasRefs   []SourceRef
	Tombstoned  bool
}

// RecencyScore is monotonic non-decreasing in CreatedAt: fractional days
// since the Unix epoch.
func (d *Document) RecencyScore() float64 {
	return RecencyScore(d.CreatedAt)
}

// RecencyScore converts a timestamp to days since the Unix epoch.
func RecencyScore(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(24*time.Hour)
}

// Clone returns a deep copy so callers cannot mutate store state.
func (d *Document) Clone() *Document {
	c := *d
	c.TitleTokens = append([]string(nil), d.TitleTokens...)
	c.AliasRefs = append([]SourceRef(nil), d.AliasRefs...)
	return &c
}

// Channels returns the canonical channel and every alias channel, deduplicated.
func (d *Document) Channels() []string {
	seen := map[string]bool{d.SourceRef.ChannelID: true}
	out := []string{d.SourceRef.ChannelID}
	for _, a := range d.AliasRefs {
		if !seen[a.ChannelID] {
			seen[a.ChannelID] = true
			out = append(out, a.ChannelID)
		}
	}
	return out
}

// Posting is one document's entry in a token's posting list.
type Posting struct {
	DocID        DocID
	RecencyScore float64
	// Frequency is the number of times the token occurs in the title.
	Frequency int
}

// before reports whether p sorts ahead of q in a posting list:
// recency descending, then id ascending.
func (p Posting) before(q Posting) bool {
	if p.RecencyScore != q.RecencyScore {
		return p.RecencyScore > q.RecencyScore
	}
	return p.DocID < q.DocID
}

// Stats summarizes the store.
type Stats struct {
	Documents    int               `json:"documents"`
	Live         int               `json:"live"`
	Tombstoned   int               `json:"tombstoned"`
	Aliases      int               `json:"aliases"`
	Tokens       int               `json:"tokens"`
	Postings     int               `json:"postings"`
	DeadPostings int               `json:"dead_postings"`
	ByKind       map[MediaKind]int `json:"by_kind"`
}

// TombstoneRatio is tombstoned/total documents, 0 for an empty store.
func (s Stats) TombstoneRatio() float64 {
	if s.Documents == 0 {
		return 0
	}
	return float64(s.Tombstoned) / float64(s.Documents)
}
