package search

import (
	"container/heap"
	"sort"

	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

type scored struct {
	doc        *store.Document
	score      float64
	matchCount int
}

// topK keeps the k best-ranked candidates. The worst is at the root.
type topK struct {
	k     int
	items []scored
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make([]scored, 0, k)}
}

func (t *topK) Len() int { return len(t.items) }
func (t *topK) Less(i, j int) bool {
	a, b := t.items[i], t.items[j]
	return ranksBefore(b.score, b.doc.ID, a.score, a.doc.ID)
}
func (t *topK) Swap(i, j int) { t.items[i], t.items[j] = t.items[j], t.items[i] }
func (t *topK) Push(x any)    { t.items = append(t.items, x.(scored)) }
func (t *topK) Pop() any {
	n := len(t.items)
	x := t.items[n-1]
	t.items = t.items[:n-1]
	return x
}

// offer adds s if it ranks among the best k seen so far.
func (t *topK) offer(s scored) {
	if len(t.items) < t.k {
		heap.Push(t, s)
		return
	}
	worst := t.items[0]
	if ranksBefore(s.score, s.doc.ID, worst.score, worst.doc.ID) {
		t.items[0] = s
		heap.Fix(t, 0)
	}
}

// sorted returns the kept candidates best first.
func (t *topK) sorted() []scored {
	out := append([]scored(nil), t.items...)
	sort.Slice(out, func(i, j int) bool {
		return ranksBefore(out[i].score, out[i].doc.ID, out[j].score, out[j].doc.ID)
	})
	return out
}
