// Package normalize turns inbound content events into candidate documents:
// lowercased title tokens and a stable content fingerprint.
package normalize

import (
	"crypto/sha256"
	"strconv"
	"time"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// Candidate is a normalized event, ready for deduplication.
type Candidate struct {
	Source store.SourceRef
	// Title is the raw caption, or a generated name for untitled files.
	Title       string
	Tokens      []string
	Fingerprint store.Fingerprint
	MediaKind   store.MediaKind
	SizeBytes   int64
	CreatedAt   time.Time
	Removed     bool
}

// Document converts the candidate into a document for insertion.
func (c *Candidate) Document() *store.Document {
	return &store.Document{
		SourceRef:   c.Source,
		Title:       c.Title,
		TitleTokens: c.Tokens,
		Fingerprint: c.Fingerprint,
		MediaKind:   c.MediaKind,
		SizeBytes:   c.SizeBytes,
		CreatedAt:   c.CreatedAt,
	}
}

// Normalizer converts events into candidates.
type Normalizer struct {
	now func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets the clock used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize validates ev and produces a candidate.
//
// The fingerprint is the SHA-256 of the stable file id when the event has
// one, otherwise of (normalized title, size, media kind). An event with
// neither a title nor a file id is rejected with a MalformedInput error,
// except removals, which can still be resolved by source ref.
func (n *Normalizer) Normalize(ev Event) (*Candidate, error) {
	if ev.Source.ChannelID == "" || ev.Source.ItemID == "" {
		return nil, sferrors.MalformedInput("event has no channel id or item id").
			WithDetail("source", ev.Source.String())
	}
	if ev.Content == nil {
		ev.Content = Text{}
	}

	c := &Candidate{
		Source:    ev.Source,
		MediaKind: ev.Content.Kind(),
		CreatedAt: ev.Timestamp.UTC(),
		Removed:   ev.Removed,
	}
	if !c.MediaKind.Valid() {
		c.MediaKind = store.MediaOther
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = n.now().UTC()
	}

	var fileID string
	switch content := ev.Content.(type) {
	case Text:
		c.Title = content.Body
		c.SizeBytes = int64(len(content.Body))
	case Media:
		c.Title = content.Caption
		c.SizeBytes = content.SizeBytes
		fileID = content.FileID
	}
	if c.SizeBytes < 0 {
		return nil, sferrors.MalformedInput("size_bytes must not be negative").
			WithDetail("source", ev.Source.String())
	}

	c.Tokens = Tokenize(c.Title)
	if len(c.Tokens) == 0 && fileID == "" {
		if ev.Removed {
			return c, nil
		}
		return nil, sferrors.MalformedInput("event has no usable title and no file id").
			WithDetail("source", ev.Source.String())
	}

	if len(c.Tokens) == 0 {
		// Untitled files get a searchable name such as photo_123.
		c.Title = fallbackName(c.MediaKind, ev.Source.ItemID)
		c.Tokens = Tokenize(c.Title)
	}

	c.Fingerprint = Fingerprint(fileID, c.Tokens, c.SizeBytes, c.MediaKind)
	return c, nil
}

// Fingerprint computes the content identity. A stable file id wins;
// without one the normalized title, size and kind are hashed.
func Fingerprint(fileID string, tokens []string, size int64, kind store.MediaKind) store.Fingerprint {
	h := sha256.New()
	if fileID != "" {
		h.Write([]byte("file\x00"))
		h.Write([]byte(fileID))
	} else {
		h.Write([]byte("meta\x00"))
		h.Write([]byte(NormalizedTitle(tokens)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(size, 10)))
		h.Write([]byte{0})
		h.Write([]byte(kind))
	}
	var fp store.Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

func fallbackName(kind store.MediaKind, item string) string {
	prefix := string(kind)
	if kind == store.MediaImage {
		prefix = "photo"
	}
	return prefix + "_" + item
}
