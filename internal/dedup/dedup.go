// Package dedup decides whether a normalized candidate is new content, a
// repost of content already indexed, or the removal of indexed content.
package dedup

import (
	"sync"

	"github.com/anupammaurya6767/shadowfinder/internal/normalize"
	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

// Action is the outcome of resolving a candidate.
type Action int

const (
	// ActionInsert means the content has not been seen: create a document.
	ActionInsert Action = iota
	// ActionMerge means the fingerprint is known: record the sighting as an alias.
	ActionMerge
	// ActionTombstone means a removal event matched an indexed document.
	ActionTombstone
	// ActionIgnore means a removal event matched nothing.
	ActionIgnore
)

// String returns the action name used in logs and stats.
func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionMerge:
		return "merge"
	case ActionTombstone:
		return "tombstone"
	case ActionIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Decision is the resolved write for one candidate. ExistingID is set for
// merges and tombstones.
type Decision struct {
	Action     Action
	Candidate  *normalize.Candidate
	ExistingID store.DocID
	SourceRef  store.SourceRef
}

// Deduplicator owns the fingerprint map and the sighting index.
// It is mutated only on the write path; the mutex lets status readers
// take counts concurrently.
type Deduplicator struct {
	mu           sync.RWMutex
	fingerprints map[store.Fingerprint]store.DocID
	sightings    map[store.SourceRef]store.DocID
}

// New returns an empty Deduplicator.
func New() *Deduplicator {
	return &Deduplicator{
		fingerprints: make(map[store.Fingerprint]store.DocID),
		sightings:    make(map[store.SourceRef]store.DocID),
	}
}

// Resolve decides what to do with c. It does not modify any state: the
// caller applies the decision to the store and then calls Register or
// AddSighting.
//
// Tombstoned documents stay in the map, so reposts of removed content
// merge into the removed document instead of resurrecting it.
func (d *Deduplicator) Resolve(c *normalize.Candidate) Decision {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if c.Removed {
		if !c.Fingerprint.IsZero() {
			if id, ok := d.fingerprints[c.Fingerprint]; ok {
				return Decision{Action: ActionTombstone, Candidate: c, ExistingID: id, SourceRef: c.Source}
			}
		}
		if id, ok := d.sightings[c.Source]; ok {
			return Decision{Action: ActionTombstone, Candidate: c, ExistingID: id, SourceRef: c.Source}
		}
		return Decision{Action: ActionIgnore, Candidate: c, SourceRef: c.Source}
	}

	if id, ok := d.fingerprints[c.Fingerprint]; ok {
		return Decision{Action: ActionMerge, Candidate: c, ExistingID: id, SourceRef: c.Source}
	}
	return Decision{Action: ActionInsert, Candidate: c, SourceRef: c.Source}
}

// Register records a newly inserted document.
func (d *Deduplicator) Register(fp store.Fingerprint, id store.DocID, ref store.SourceRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fingerprints[fp] = id
	d.sightings[ref] = id
}

// AddSighting records another source ref for an existing document.
func (d *Deduplicator) AddSighting(ref store.SourceRef, id store.DocID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sightings[ref] = id
}

// Lookup returns the document registered for fp.
func (d *Deduplicator) Lookup(fp store.Fingerprint) (store.DocID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.fingerprints[fp]
	return id, ok
}

// Restore replaces the state with a recovered fingerprint map. Sightings
// are rebuilt from the documents' source and alias refs.
func (d *Deduplicator) Restore(fingerprints map[store.Fingerprint]store.DocID, docs []*store.Document) {
	fps := make(map[store.Fingerprint]store.DocID, len(fingerprints))
	for fp, id := range fingerprints {
		fps[fp] = id
	}
	sightings := make(map[store.SourceRef]store.DocID, len(docs))
	for _, doc := range docs {
		if _, ok := fps[doc.Fingerprint]; !ok && !doc.Fingerprint.IsZero() {
			fps[doc.Fingerprint] = doc.ID
		}
		sightings[doc.SourceRef] = doc.ID
		for _, ref := range doc.AliasRefs {
			sightings[ref] = doc.ID
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.fingerprints = fps
	d.sightings = sightings
}

// Export returns a copy of the fingerprint map for snapshots.
func (d *Deduplicator) Export() map[store.Fingerprint]store.DocID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[store.Fingerprint]store.DocID, len(d.fingerprints))
	for fp, id := range d.fingerprints {
		out[fp] = id
	}
	return out
}

// Len returns the number of known fingerprints.
func (d *Deduplicator) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.fingerprints)
}
