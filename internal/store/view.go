package store

// View is a consistent snapshot of the store for one reader. Everything
// written after the view was taken is invisible to it.
type View struct {
	st        *state
	watermark uint64
	docs      []*entry
}

func (v *View) visible(e *entry) bool {
	return e != nil && e.seq <= v.watermark
}

func (v *View) tombstoned(e *entry) bool {
	ts := e.tombstoneSeq.Load()
	return ts != 0 && ts <= v.watermark
}

func (v *View) entry(id DocID) *entry {
	if id == 0 || int(id) > len(v.docs) {
		return nil
	}
	if e := v.docs[id-1]; v.visible(e) {
		return e
	}
	return nil
}

// Watermark returns the sequence number this view was taken at.
func (v *View) Watermark() uint64 {
	return v.watermark
}

// Lookup returns the postings of token in retrieval order (recency
// descending, id ascending). Postings of tombstoned documents are included.
func (v *View) Lookup(token string) []Posting {
	raw, ok := v.st.postings.Load(token)
	if !ok {
		return nil
	}
	items := *raw.(*postingList).items.Load()
	out := make([]Posting, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].seq <= v.watermark {
			out = append(out, items[i].Posting)
		}
	}
	return out
}

// PostingCount returns the length of token's posting list without copying it.
func (v *View) PostingCount(token string) int {
	raw, ok := v.st.postings.Load(token)
	if !ok {
		return 0
	}
	items := *raw.(*postingList).items.Load()
	n := 0
	for _, p := range items {
		if p.seq <= v.watermark {
			n++
		}
	}
	return n
}

// Get returns a copy of the document, with Tombstoned set as of this view.
func (v *View) Get(id DocID) (*Document, bool) {
	e := v.entry(id)
	if e == nil {
		return nil, false
	}
	return v.materialize(e), true
}

// IsLive reports whether id is present and not tombstoned.
func (v *View) IsLive(id DocID) bool {
	e := v.entry(id)
	return e != nil && !v.tombstoned(e)
}

func (v *View) materialize(e *entry) *Document {
	d := e.doc.Clone()
	d.AliasRefs = append([]SourceRef(nil), (*e.aliases.Load())...)
	d.Tombstoned = v.tombstoned(e)
	return d
}

// Peek returns the stored document without copying. Callers must not
// modify it. AliasRefs and Tombstoned are not populated.
func (v *View) Peek(id DocID) (*Document, bool) {
	e := v.entry(id)
	if e == nil || v.tombstoned(e) {
		return nil, false
	}
	return e.doc, true
}

// Aliases returns the alias refs of a visible document without copying.
// Callers must not modify the slice.
func (v *View) Aliases(id DocID) []SourceRef {
	e := v.entry(id)
	if e == nil {
		return nil
	}
	return *e.aliases.Load()
}

// ForEachDocument calls fn for every visible document in id order, stopping
// when fn returns false.
func (v *View) ForEachDocument(fn func(*Document) bool) {
	for _, e := range v.docs {
		if !v.visible(e) {
			continue
		}
		if !fn(v.materialize(e)) {
			return
		}
	}
}

// ForEachLive calls fn with the id and stored document of every live
// document, newest first, without copying. Callers must not modify it.
func (v *View) ForEachLive(fn func(DocID, *Document) bool) {
	for i := len(v.docs) - 1; i >= 0; i-- {
		e := v.docs[i]
		if !v.visible(e) || v.tombstoned(e) {
			continue
		}
		if !fn(e.doc.ID, e.doc) {
			return
		}
	}
}

// ForEachToken calls fn with every token and its postings.
func (v *View) ForEachToken(fn func(token string, postings []Posting) bool) {
	v.st.postings.Range(func(k, _ any) bool {
		token := k.(string)
		postings := v.Lookup(token)
		if len(postings) == 0 {
			return true
		}
		return fn(token, postings)
	})
}

// Stats summarizes the view.
func (v *View) Stats() Stats {
	stats := Stats{ByKind: make(map[MediaKind]int)}
	for _, e := range v.docs {
		if !v.visible(e) {
			continue
		}
		stats.Documents++
		stats.Aliases += len(*e.aliases.Load())
		if v.tombstoned(e) {
			stats.Tombstoned++
			continue
		}
		stats.Live++
		stats.ByKind[e.doc.MediaKind]++
	}
	v.ForEachToken(func(_ string, postings []Posting) bool {
		stats.Tokens++
		stats.Postings += len(postings)
		for _, p := range postings {
			if !v.IsLive(p.DocID) {
				stats.DeadPostings++
			}
		}
		return true
	})
	return stats
}
