package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/normalize"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// Plan is a parsed query: distinct terms and resolved filters.
type Plan struct {
	Terms   []string
	Filters Filters
}

// IsEmpty reports whether the plan has neither terms nor filters.
func (p Plan) IsEmpty() bool {
	return len(p.Terms) == 0 && p.Filters.IsZero()
}

// Parse splits text into terms and inline filters.
//
// Tokens of the form key:value with key channel, type, before or after
// become filters. Other key:value tokens, where key is all letters, are
// ignored. The remaining text is tokenized like titles and duplicates are
// dropped. When that text is shorter than minLen runes it contributes no
// terms at all, so a short query without filters is too broad. Individual
// short terms are kept: every title token must stay searchable.
func Parse(text string, minLen int) (Plan, error) {
	var (
		plan  Plan
		words []string
	)
	for _, field := range strings.Fields(text) {
		key, value, ok := splitFilter(field)
		if !ok {
			words = append(words, field)
			continue
		}
		if err := plan.Filters.set(key, value); err != nil {
			return Plan{}, err
		}
	}

	tokens := normalize.Tokenize(strings.Join(words, " "))
	if utf8.RuneCountInString(strings.Join(tokens, " ")) < minLen {
		return plan, nil
	}
	seen := make(map[string]bool)
	for _, term := range tokens {
		if seen[term] {
			continue
		}
		seen[term] = true
		plan.Terms = append(plan.Terms, term)
	}
	return plan, nil
}

func splitFilter(field string) (key, value string, ok bool) {
	i := strings.IndexByte(field, ':')
	if i <= 0 || i == len(field)-1 {
		return "", "", false
	}
	key = strings.ToLower(field[:i])
	for _, r := range key {
		if !unicode.IsLetter(r) {
			return "", "", false
		}
	}
	return key, field[i+1:], true
}

func (f *Filters) set(key, value string) error {
	switch key {
	case "channel", "chan":
		f.Channel = value
	case "type", "kind":
		kind := store.ParseMediaKind(value)
		if kind == store.MediaOther && !strings.EqualFold(value, string(store.MediaOther)) {
			return invalidFilter(key, value, "unknown media type")
		}
		f.MediaKind = kind
	case "before":
		t, err := ParseTime(value)
		if err != nil {
			return invalidFilter(key, value, err.Error())
		}
		f.Before = t
	case "after":
		t, err := ParseTime(value)
		if err != nil {
			return invalidFilter(key, value, err.Error())
		}
		f.After = t
	}
	// Unknown keys are ignored so older servers accept newer clients.
	return nil
}

func invalidFilter(key, value, reason string) error {
	return sferrors.Newf(sferrors.ErrCodeInvalidQuery, "invalid %s filter %q: %s", key, value, reason).
		WithSuggestion("dates accept RFC3339, YYYY-MM-DD or Unix seconds; types are text, image, video, audio, file, other")
}

// ParseTime accepts RFC3339, YYYY-MM-DD (UTC midnight) or Unix seconds.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// shape is the structural identity of a plan: sorted terms and filters.
// Cursors are bound to it, so term order does not matter but every filter does.
func (p Plan) shape() string {
	terms := append([]string(nil), p.Terms...)
	sort.Strings(terms)
	var b strings.Builder
	b.WriteString(strings.Join(terms, " "))
	b.WriteString("\x00ch=")
	b.WriteString(p.Filters.Channel)
	b.WriteString("\x00type=")
	b.WriteString(string(p.Filters.MediaKind))
	b.WriteString("\x00before=")
	b.WriteString(timeKey(p.Filters.Before))
	b.WriteString("\x00after=")
	b.WriteString(timeKey(p.Filters.After))
	return b.String()
}

func timeKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixNano(), 10)
}

// cacheKey identifies a page: plan shape, cursor and page size.
func (p Plan) cacheKey(cursor string, pageSize int) string {
	h := sha256.New()
	h.Write([]byte(p.shape()))
	h.Write([]byte{0})
	h.Write([]byte(cursor))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(pageSize)))
	return hex.EncodeToString(h.Sum(nil))
}
