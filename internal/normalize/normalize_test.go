package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(WithClock(func() time.Time { return fixedNow }))
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercases", "Solo Leveling", []string{"solo", "leveling"}},
		{"punctuation splits", "solo-leveling,ch.1", []string{"solo", "leveling", "ch", "1"}},
		{"apostrophe joins", "Don't stop", []string{"dont", "stop"}},
		{"keeps stop words", "the end of it", []string{"the", "end", "of", "it"}},
		{"collapses whitespace", "  a \t b\n", []string{"a", "b"}},
		{"unicode letters", "Café Ñandú", []string{"café", "ñandú"}},
		{"empty", "!!! ...", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestNormalize_TextEvent(t *testing.T) {
	n := newTestNormalizer()
	ts := time.Unix(200, 0).UTC()

	c, err := n.Normalize(Event{
		Source:    store.SourceRef{ChannelID: "c1", ItemID: "2"},
		Content:   Text{Body: "Solo Leveling: Chapter 2"},
		Timestamp: ts,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"solo", "leveling", "chapter", "2"}, c.Tokens)
	assert.Equal(t, store.MediaText, c.MediaKind)
	assert.Equal(t, ts, c.CreatedAt)
	assert.False(t, c.Fingerprint.IsZero())
}

func TestNormalize_FileIDWinsForFingerprint(t *testing.T) {
	n := newTestNormalizer()

	a, err := n.Normalize(Event{
		Source:  store.SourceRef{ChannelID: "c1", ItemID: "1"},
		Content: Media{MediaKind: store.MediaVideo, Caption: "episode one", FileID: "F1", SizeBytes: 10},
	})
	require.NoError(t, err)
	b, err := n.Normalize(Event{
		Source:  store.SourceRef{ChannelID: "c2", ItemID: "9"},
		Content: Media{MediaKind: store.MediaVideo, Caption: "totally different", FileID: "F1", SizeBytes: 99},
	})
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestNormalize_MetadataFingerprint(t *testing.T) {
	n := newTestNormalizer()
	ev := func(caption string, size int64, kind store.MediaKind) Event {
		return Event{
			Source:  store.SourceRef{ChannelID: "c1", ItemID: "1"},
			Content: Media{MediaKind: kind, Caption: caption, SizeBytes: size},
		}
	}

	base, err := n.Normalize(ev("Episode One", 10, store.MediaVideo))
	require.NoError(t, err)
	same, err := n.Normalize(ev("episode   ONE!", 10, store.MediaVideo))
	require.NoError(t, err)
	otherSize, err := n.Normalize(ev("Episode One", 11, store.MediaVideo))
	require.NoError(t, err)
	otherKind, err := n.Normalize(ev("Episode One", 10, store.MediaAudio))
	require.NoError(t, err)

	assert.Equal(t, base.Fingerprint, same.Fingerprint, "normalized titles match")
	assert.NotEqual(t, base.Fingerprint, otherSize.Fingerprint)
	assert.NotEqual(t, base.Fingerprint, otherKind.Fingerprint)
}

func TestNormalize_Malformed(t *testing.T) {
	n := newTestNormalizer()
	tests := []struct {
		name string
		ev   Event
	}{
		{"no title no file id", Event{Source: store.SourceRef{ChannelID: "c", ItemID: "1"}, Content: Media{MediaKind: store.MediaVideo, Caption: "  ?? "}}},
		{"empty text", Event{Source: store.SourceRef{ChannelID: "c", ItemID: "1"}, Content: Text{}}},
		{"missing channel", Event{Source: store.SourceRef{ItemID: "1"}, Content: Text{Body: "hi"}}},
		{"missing item", Event{Source: store.SourceRef{ChannelID: "c"}, Content: Text{Body: "hi"}}},
		{"negative size", Event{Source: store.SourceRef{ChannelID: "c", ItemID: "1"}, Content: Media{MediaKind: store.MediaFile, FileID: "x", SizeBytes: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.ev)
			require.Error(t, err)
			assert.True(t, errors.Is(err, sferrors.ErrMalformedInput))
		})
	}
}

func TestNormalize_UntitledFileGetsFallbackName(t *testing.T) {
	n := newTestNormalizer()

	c, err := n.Normalize(Event{
		Source:  store.SourceRef{ChannelID: "c1", ItemID: "42"},
		Content: Media{MediaKind: store.MediaImage, FileID: "F"},
	})

	require.NoError(t, err)
	assert.Equal(t, "photo_42", c.Title)
	assert.Equal(t, []string{"photo", "42"}, c.Tokens)
}

func TestNormalize_RemovalNeedsOnlySourceRef(t *testing.T) {
	n := newTestNormalizer()

	c, err := n.Normalize(Event{
		Source:  store.SourceRef{ChannelID: "c1", ItemID: "7"},
		Removed: true,
	})

	require.NoError(t, err)
	assert.True(t, c.Removed)
	assert.True(t, c.Fingerprint.IsZero())
}

func TestNormalize_DefaultsTimestampToClock(t *testing.T) {
	n := newTestNormalizer()

	c, err := n.Normalize(Event{
		Source:  store.SourceRef{ChannelID: "c1", ItemID: "1"},
		Content: Text{Body: "hello"},
	})

	require.NoError(t, err)
	assert.Equal(t, fixedNow, c.CreatedAt)
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"channel_id":"-100123","item_id":55,"caption":"Solo Leveling","file_id":"AgAD","media_kind":"video","size_bytes":1024,"timestamp":200}`))
	require.NoError(t, err)

	assert.Equal(t, store.SourceRef{ChannelID: "-100123", ItemID: "55"}, ev.Source)
	assert.Equal(t, time.Unix(200, 0).UTC(), ev.Timestamp)
	media, ok := ev.Content.(Media)
	require.True(t, ok)
	assert.Equal(t, store.MediaVideo, media.MediaKind)
	assert.Equal(t, "AgAD", media.FileID)
	assert.Equal(t, int64(1024), media.SizeBytes)
}

func TestDecodeEvent_TextAndRFC3339(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"channel_id":"c","item_id":"a1","title":"hello","timestamp":"2026-01-02T03:04:05Z","removed":true}`))
	require.NoError(t, err)

	assert.Equal(t, Text{Body: "hello"}, ev.Content)
	assert.Equal(t, fixedNow, ev.Timestamp)
	assert.True(t, ev.Removed)
}

func TestDecodeEvent_Invalid(t *testing.T) {
	_, err := DecodeEvent([]byte(`not json`))
	assert.Equal(t, sferrors.ErrCodeEventDecode, sferrors.GetCode(err))

	for _, in := range []string{
		`{"channel_id":"c","item_id":{"x":1}}`,
		`{"channel_id":"c","item_id":"1","timestamp":"yesterday"}`,
	} {
		_, err := DecodeEvent([]byte(in))
		assert.ErrorIs(t, err, sferrors.ErrMalformedInput, in)
	}
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	in := Event{
		Source:    store.SourceRef{ChannelID: "c1", ItemID: "3"},
		Content:   Media{MediaKind: store.MediaAudio, Caption: "track", FileID: "F3", SizeBytes: 7},
		Timestamp: fixedNow,
	}

	data, err := in.MarshalJSON()
	require.NoError(t, err)
	out, err := DecodeEvent(data)
	require.NoError(t, err)

	assert.Equal(t, in, out)
}
