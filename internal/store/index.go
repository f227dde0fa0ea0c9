package store

import (
	"sort"
	"sync"
	"sync/atomic"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
)

// Store is the inverted index plus document table.
//
// Writes are serialized by a mutex that readers never take. Every write is
// stamped with the next sequence number and becomes visible only when the
// published watermark reaches it, so a document and all of its postings
// appear to readers as one unit. Compaction and rebuilds construct a fresh
// state and swap it in; readers holding the old state keep a consistent view.
type Store struct {
	mu     sync.Mutex
	cur    atomic.Pointer[state]
	seq    atomic.Uint64
	frozen atomic.Bool
}

type state struct {
	docs     atomic.Pointer[[]*entry] // index is DocID-1, nil for gaps
	postings sync.Map                 // token -> *postingList
}

type entry struct {
	doc          *Document // immutable once published, aliases excepted
	seq          uint64
	tombstoneSeq atomic.Uint64
	aliases      atomic.Pointer[[]SourceRef]
}

// postingList is kept in reverse retrieval order (oldest first) so the
// common case, a newer document, is an append. Readers walk it backwards.
type postingList struct {
	items atomic.Pointer[[]stamped]
}

type stamped struct {
	Posting
	seq uint64
}

// New returns an empty store.
func New() *Store {
	s := &Store{}
	s.cur.Store(newState())
	return s
}

func newState() *state {
	st := &state{}
	empty := make([]*entry, 0, 64)
	st.docs.Store(&empty)
	return st
}

// Freeze refuses writes with a TransientStoreError until Thaw.
func (s *Store) Freeze() { s.frozen.Store(true) }

// Thaw re-enables writes.
func (s *Store) Thaw() { s.frozen.Store(false) }

// Frozen reports whether writes are currently refused.
func (s *Store) Frozen() bool { return s.frozen.Load() }

func (s *Store) checkWritable() error {
	if s.frozen.Load() {
		return sferrors.TransientStore("index is being rebuilt", nil)
	}
	return nil
}

// Insert adds doc to the document table and to the posting list of every
// token in doc.TitleTokens. A zero doc.ID is assigned the next id; a
// non-zero id (snapshot restore) must be above every existing id.
// Returns the document id.
func (s *Store) Insert(doc *Document) (DocID, error) {
	if err := s.checkWritable(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(s.cur.Load(), doc)
}

func (s *Store) insertLocked(st *state, doc *Document) (DocID, error) {
	docs := *st.docs.Load()
	next := DocID(len(docs) + 1)
	switch {
	case doc.ID == 0:
		doc.ID = next
	case doc.ID < next:
		return 0, sferrors.Newf(sferrors.ErrCodeInternal, "insert: id %d already assigned", doc.ID)
	}
	for DocID(len(docs)+1) < doc.ID {
		docs = append(docs, nil)
	}

	seq := s.seq.Load() + 1
	e := &entry{doc: doc.Clone(), seq: seq}
	e.doc.AliasRefs = nil
	aliases := append([]SourceRef(nil), doc.AliasRefs...)
	e.aliases.Store(&aliases)
	if doc.Tombstoned {
		e.tombstoneSeq.Store(seq)
	}

	// Documents restored already tombstoned get no postings.
	if !doc.Tombstoned {
		recency := doc.RecencyScore()
		for token, freq := range termFrequencies(doc.TitleTokens) {
			st.addPosting(token, stamped{
				Posting: Posting{DocID: doc.ID, RecencyScore: recency, Frequency: freq},
				seq:     seq,
			})
		}
	}

	docs = append(docs, e)
	st.docs.Store(&docs)
	s.seq.Store(seq)
	return doc.ID, nil
}

func (st *state) addPosting(token string, p stamped) {
	v, loaded := st.postings.Load(token)
	if !loaded {
		pl := &postingList{}
		items := []stamped{p}
		pl.items.Store(&items)
		st.postings.Store(token, pl)
		return
	}

	pl := v.(*postingList)
	items := *pl.items.Load()
	n := len(items)
	if n == 0 || p.Posting.before(items[n-1].Posting) {
		// Appending writes past every published length, so readers are unaffected.
		items = append(items, p)
		pl.items.Store(&items)
		return
	}

	// Out of order (an older item arrived late): copy on write.
	i := sort.Search(n, func(i int) bool { return items[i].Posting.before(p.Posting) })
	fresh := make([]stamped, 0, n+1)
	fresh = append(fresh, items[:i]...)
	fresh = append(fresh, p)
	fresh = append(fresh, items[i:]...)
	pl.items.Store(&fresh)
}

// Tombstone hides a document from queries. Postings are left in place and
// filtered at read time.
func (s *Store) Tombstone(id DocID) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.cur.Load().entry(id)
	if e == nil {
		return sferrors.Newf(sferrors.ErrCodeDocNotFound, "tombstone: document %d not found", id)
	}
	if e.tombstoneSeq.Load() != 0 {
		return nil
	}
	seq := s.seq.Load() + 1
	e.tombstoneSeq.Store(seq)
	s.seq.Store(seq)
	return nil
}

// AddAlias records another sighting of an existing document.
// Posting lists are not touched. Duplicate refs are ignored.
func (s *Store) AddAlias(id DocID, ref SourceRef) (bool, error) {
	if err := s.checkWritable(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.cur.Load().entry(id)
	if e == nil {
		return false, sferrors.Newf(sferrors.ErrCodeDocNotFound, "alias: document %d not found", id)
	}
	if e.doc.SourceRef == ref {
		return false, nil
	}
	old := *e.aliases.Load()
	for _, a := range old {
		if a == ref {
			return false, nil
		}
	}
	aliases := make([]SourceRef, 0, len(old)+1)
	aliases = append(aliases, old...)
	aliases = append(aliases, ref)
	e.aliases.Store(&aliases)
	return true, nil
}

func (st *state) entry(id DocID) *entry {
	docs := *st.docs.Load()
	if id == 0 || int(id) > len(docs) {
		return nil
	}
	return docs[id-1]
}

// Compact rebuilds posting lists without tombstoned documents and swaps them
// in. The document table, tombstones included, is carried over unchanged.
// Returns the number of postings removed.
func (s *Store) Compact() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cur.Load()
	fresh := newState()
	docs := append([]*entry(nil), *old.docs.Load()...)
	fresh.docs.Store(&docs)

	removed := 0
	old.postings.Range(func(k, v any) bool {
		items := *v.(*postingList).items.Load()
		kept := make([]stamped, 0, len(items))
		for _, p := range items {
			if e := old.entry(p.DocID); e != nil && e.tombstoneSeq.Load() == 0 {
				kept = append(kept, p)
			}
		}
		removed += len(items) - len(kept)
		if len(kept) > 0 {
			pl := &postingList{}
			pl.items.Store(&kept)
			fresh.postings.Store(k, pl)
		}
		return true
	})

	s.cur.Store(fresh)
	return removed
}

// Reset replaces the whole store content with docs, which must be ordered by
// id. Used to rebuild from a snapshot. Readers keep their old view.
func (s *Store) Reset(docs []*Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := newState()
	for _, d := range docs {
		if _, err := s.insertLocked(fresh, d); err != nil {
			return err
		}
	}
	s.cur.Store(fresh)
	// Publish the swap itself so views taken after it see every entry.
	s.seq.Add(1)
	return nil
}

// Seq returns the published watermark. It changes on every write.
func (s *Store) Seq() uint64 {
	return s.seq.Load()
}

// View returns a consistent read-only view of the current contents.
func (s *Store) View() *View {
	// State before watermark: any compaction we observe happened before
	// the watermark we read.
	st := s.cur.Load()
	return &View{st: st, watermark: s.seq.Load(), docs: *st.docs.Load()}
}

// Lookup returns the postings for token in retrieval order.
func (s *Store) Lookup(token string) []Posting {
	return s.View().Lookup(token)
}

// Get returns a copy of a published document.
func (s *Store) Get(id DocID) (*Document, bool) {
	return s.View().Get(id)
}

// Stats summarizes the current contents.
func (s *Store) Stats() Stats {
	return s.View().Stats()
}

func termFrequencies(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		if t != "" {
			freq[t]++
		}
	}
	return freq
}
