package search

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"math"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

const (
	cursorVersion = 1
	bindingLen    = 8
	macLen        = 16
	payloadLen    = 1 + bindingLen + 8 + 8
)

// position is a point in ranked order: the last hit of a page.
type position struct {
	score float64
	id    store.DocID
}

// precedes reports whether p ranks ahead of (score, id).
func (p position) precedes(score float64, id store.DocID) bool {
	return ranksBefore(p.score, p.id, score, id)
}

// ranksBefore orders by score descending, then id ascending.
func ranksBefore(aScore float64, aID store.DocID, bScore float64, bID store.DocID) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

// cursorCodec signs cursors so that only this engine's cursors for the
// same query shape decode.
type cursorCodec struct {
	key []byte
}

func newCursorCodec(key []byte) *cursorCodec {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("search: read random cursor key: " + err.Error())
		}
	}
	return &cursorCodec{key: key}
}

func binding(shape string) []byte {
	sum := sha256.Sum256([]byte(shape))
	return sum[:bindingLen]
}

func (c *cursorCodec) mac(payload []byte) []byte {
	m := hmac.New(sha256.New, c.key)
	m.Write(payload)
	return m.Sum(nil)[:macLen]
}

// encode returns the opaque cursor for pos within the query shape.
func (c *cursorCodec) encode(shape string, pos position) string {
	buf := make([]byte, payloadLen, payloadLen+macLen)
	buf[0] = cursorVersion
	copy(buf[1:], binding(shape))
	binary.BigEndian.PutUint64(buf[1+bindingLen:], math.Float64bits(pos.score))
	binary.BigEndian.PutUint64(buf[1+bindingLen+8:], uint64(pos.id))
	buf = append(buf, c.mac(buf)...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// decode verifies a cursor and returns its position. Malformed, forged
// and foreign-query cursors all fail with an InvalidCursor error.
func (c *cursorCodec) decode(shape, cursor string) (position, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return position{}, sferrors.InvalidCursor("cursor is not valid base64", err)
	}
	if len(raw) != payloadLen+macLen {
		return position{}, sferrors.InvalidCursor("cursor has the wrong length", nil)
	}
	payload, sig := raw[:payloadLen], raw[payloadLen:]
	if !hmac.Equal(sig, c.mac(payload)) {
		return position{}, sferrors.InvalidCursor("cursor was not issued by this server", nil)
	}
	if payload[0] != cursorVersion {
		return position{}, sferrors.InvalidCursor("unsupported cursor version", nil)
	}
	if !hmac.Equal(payload[1:1+bindingLen], binding(shape)) {
		return position{}, sferrors.InvalidCursor("cursor belongs to a different query", nil)
	}
	score := math.Float64frombits(binary.BigEndian.Uint64(payload[1+bindingLen:]))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return position{}, sferrors.InvalidCursor("cursor score out of range", nil)
	}
	id := store.DocID(binary.BigEndian.Uint64(payload[1+bindingLen+8:]))
	return position{score: score, id: id}, nil
}
