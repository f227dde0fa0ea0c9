package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanPosting indicates a posting for a document the
	// table does not know.
	InconsistencyOrphanPosting InconsistencyType = iota
	// InconsistencyMissingPosting indicates a live document whose title
	// token has no posting for it.
	InconsistencyMissingPosting
	// InconsistencyOrphanFingerprint indicates a fingerprint mapped to a
	// missing document or to one with a different fingerprint.
	InconsistencyOrphanFingerprint
	// InconsistencyMissingFingerprint indicates a document whose
	// fingerprint is not registered with the deduplicator.
	InconsistencyMissingFingerprint
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanPosting:
		return "orphan_posting"
	case InconsistencyMissingPosting:
		return "missing_posting"
	case InconsistencyOrphanFingerprint:
		return "orphan_fingerprint"
	case InconsistencyMissingFingerprint:
		return "missing_fingerprint"
	default:
		return "unknown"
	}
}

// Inconsistency represents one detected issue.
type Inconsistency struct {
	Type    InconsistencyType
	DocID   store.DocID
	Token   string
	Details string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of documents verified.
	Checked int
	// Inconsistencies contains all detected issues.
	Inconsistencies []Inconsistency
	// Duration is how long the check took.
	Duration time.Duration
}

// FingerprintSource exposes the deduplicator's fingerprint map.
type FingerprintSource interface {
	Export() map[store.Fingerprint]store.DocID
}

// ConsistencyChecker validates that the posting lists, the document table
// and the fingerprint map agree.
type ConsistencyChecker struct {
	store        *store.Store
	fingerprints FingerprintSource
}

// NewConsistencyChecker creates a checker. fps may be nil to skip
// fingerprint checks.
func NewConsistencyChecker(st *store.Store, fps FingerprintSource) *ConsistencyChecker {
	return &ConsistencyChecker{store: st, fingerprints: fps}
}

// Check verifies every live document token against the posting lists and
// every posting against the document table, on one consistent view.
// Cost is linear in the number of postings.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	view := c.store.View()
	var issues []Inconsistency

	indexed := make(map[string]map[store.DocID]bool)
	var ctxErr error
	view.ForEachToken(func(token string, postings []store.Posting) bool {
		if ctxErr = ctx.Err(); ctxErr != nil {
			return false
		}
		ids := make(map[store.DocID]bool, len(postings))
		for _, p := range postings {
			ids[p.DocID] = true
			if _, ok := view.Get(p.DocID); !ok {
				issues = append(issues, Inconsistency{
					Type:    InconsistencyOrphanPosting,
					DocID:   p.DocID,
					Token:   token,
					Details: fmt.Sprintf("posting for %q references unknown document", token),
				})
			}
		}
		indexed[token] = ids
		return true
	})
	if ctxErr != nil {
		return nil, ctxErr
	}

	checked := 0
	byFingerprint := make(map[store.Fingerprint]store.DocID)
	view.ForEachDocument(func(doc *store.Document) bool {
		checked++
		if !doc.Fingerprint.IsZero() {
			byFingerprint[doc.Fingerprint] = doc.ID
		}
		if doc.Tombstoned {
			return true
		}
		for _, token := range doc.TitleTokens {
			if token == "" || indexed[token][doc.ID] {
				continue
			}
			issues = append(issues, Inconsistency{
				Type:    InconsistencyMissingPosting,
				DocID:   doc.ID,
				Token:   token,
				Details: fmt.Sprintf("title token %q not indexed", token),
			})
		}
		return true
	})

	if c.fingerprints != nil {
		known := c.fingerprints.Export()
		for fp, id := range known {
			if owner, ok := byFingerprint[fp]; !ok || owner != id {
				issues = append(issues, Inconsistency{
					Type:    InconsistencyOrphanFingerprint,
					DocID:   id,
					Details: fmt.Sprintf("fingerprint %s does not match document", fp),
				})
			}
		}
		for fp, id := range byFingerprint {
			if _, ok := known[fp]; !ok {
				issues = append(issues, Inconsistency{
					Type:    InconsistencyMissingFingerprint,
					DocID:   id,
					Details: fmt.Sprintf("fingerprint %s not registered", fp),
				})
			}
		}
	}

	return &CheckResult{
		Checked:         checked,
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// QuickCheck performs a lightweight consistency check.
// It only compares the number of live postings with the number of distinct
// title tokens over live documents.
// Returns true if counts are consistent.
func (c *ConsistencyChecker) QuickCheck(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	view := c.store.View()
	stats := view.Stats()

	expected := 0
	view.ForEachLive(func(_ store.DocID, doc *store.Document) bool {
		seen := make(map[string]bool, len(doc.TitleTokens))
		for _, t := range doc.TitleTokens {
			if t != "" && !seen[t] {
				seen[t] = true
				expected++
			}
		}
		return true
	})

	livePostings := stats.Postings - stats.DeadPostings
	consistent := livePostings == expected
	if !consistent {
		slog.Debug("index counts mismatch",
			slog.Int("live_postings", livePostings),
			slog.Int("expected", expected))
	}
	return consistent, nil
}
