package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// Content is the payload of an event. Each variant carries only the
// fields that make sense for its media kind.
type Content interface {
	Kind() store.MediaKind
}

// Text is a plain message with no attachment.
type Text struct {
	Body string
}

// Kind implements Content.
func (Text) Kind() store.MediaKind { return store.MediaText }

// Media is an attachment: image, video, audio, file or other.
type Media struct {
	MediaKind store.MediaKind
	Caption   string
	// FileID is the network's stable identifier for the file bytes, if any.
	FileID    string
	SizeBytes int64
}

// Kind implements Content.
func (m Media) Kind() store.MediaKind { return m.MediaKind }

// Event is one content change observed in a channel.
type Event struct {
	Source    store.SourceRef
	Content   Content
	Timestamp time.Time
	// Removed marks the item as deleted at the source.
	Removed bool
}

// wireEvent is the JSON form, one object per line in event files.
type wireEvent struct {
	ChannelID string          `json:"channel_id"`
	ItemID    json.RawMessage `json:"item_id"`
	Caption   string          `json:"caption,omitempty"`
	Title     string          `json:"title,omitempty"`
	FileID    string          `json:"file_id,omitempty"`
	MediaKind string          `json:"media_kind,omitempty"`
	SizeBytes int64           `json:"size_bytes,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Removed   bool            `json:"removed,omitempty"`
}

// DecodeEvent parses the JSON wire form. item_id may be a string or a
// number; timestamp may be RFC3339 or Unix seconds. Invalid JSON is an
// EventDecode error; well-formed JSON with bad field types is MalformedInput.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, sferrors.New(sferrors.ErrCodeEventDecode, "decode event", err)
	}

	item, err := decodeItemID(w.ItemID)
	if err != nil {
		return Event{}, err
	}
	ts, err := decodeTimestamp(w.Timestamp)
	if err != nil {
		return Event{}, err
	}

	caption := w.Caption
	if caption == "" {
		caption = w.Title
	}

	ev := Event{
		Source:    store.SourceRef{ChannelID: strings.TrimSpace(w.ChannelID), ItemID: item},
		Timestamp: ts,
		Removed:   w.Removed,
	}
	kind := store.ParseMediaKind(w.MediaKind)
	if w.MediaKind == "" && w.FileID == "" {
		kind = store.MediaText
	}
	if kind == store.MediaText {
		ev.Content = Text{Body: caption}
	} else {
		ev.Content = Media{MediaKind: kind, Caption: caption, FileID: w.FileID, SizeBytes: w.SizeBytes}
	}
	return ev, nil
}

// MarshalJSON encodes the wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	item, _ := json.Marshal(e.Source.ItemID)
	var ts json.RawMessage
	if !e.Timestamp.IsZero() {
		ts, _ = json.Marshal(e.Timestamp.UTC().Format(time.RFC3339Nano))
	}
	w := wireEvent{
		ChannelID: e.Source.ChannelID,
		ItemID:    item,
		Timestamp: ts,
		Removed:   e.Removed,
	}
	switch c := e.Content.(type) {
	case Text:
		w.MediaKind = string(store.MediaText)
		w.Caption = c.Body
	case Media:
		w.MediaKind = string(c.MediaKind)
		w.Caption = c.Caption
		w.FileID = c.FileID
		w.SizeBytes = c.SizeBytes
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form.
func (e *Event) UnmarshalJSON(data []byte) error {
	ev, err := DecodeEvent(data)
	if err != nil {
		return err
	}
	*e = ev
	return nil
}

func decodeItemID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", sferrors.MalformedInput(fmt.Sprintf("item_id must be a string or number, got %s", raw))
}

func decodeTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, sferrors.New(sferrors.ErrCodeMalformedInput, "timestamp must be RFC3339", err)
		}
		return t.UTC(), nil
	}
	var secs float64
	if err := json.Unmarshal(raw, &secs); err == nil {
		return time.Unix(0, int64(secs*float64(time.Second))).UTC(), nil
	}
	return time.Time{}, sferrors.MalformedInput(fmt.Sprintf("timestamp must be RFC3339 or Unix seconds, got %s", raw))
}
