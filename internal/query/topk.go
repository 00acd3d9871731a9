package query

import "container/heap"

// TopK selects the limit best hits, ordered by descending score with
// ties broken by ascending short-id, using a bounded min-heap so
// selection costs O(n log limit) instead of a full sort. A
// non-positive limit (or one at least len(hits)) orders and returns
// every hit.
func TopK(hits []Hit, limit int) []Hit {
	if limit <= 0 || limit > len(hits) {
		limit = len(hits)
	}
	h := make(hitHeap, 0, limit+1)
	heap.Init(&h)
	for _, hit := range hits {
		heap.Push(&h, hit)
		if h.Len() > limit {
			heap.Pop(&h)
		}
	}
	out := make([]Hit, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(Hit)
	}
	return out
}

// hitHeap keeps the weakest hit at the root: lowest score first,
// highest short-id first among equals, so popping evicts the hit that
// would sort last.
type hitHeap []Hit

func (h hitHeap) Len() int { return len(h) }

func (h hitHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].ShortID > h[j].ShortID
}

func (h hitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x any) { *h = append(*h, x.(Hit)) }

func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
