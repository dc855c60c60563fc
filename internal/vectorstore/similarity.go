package vectorstore

import (
	"container/heap"
	"math"
)

// Norm is the L2 norm of v.
func Norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// Cosine computes dot(a,b) / (aNorm * |b|). aNorm is the precomputed norm of a.
// Vectors of different length score 0.
func Cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) || aNorm == 0 {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// IDScore is a candidate tracked during a brute-force scan.
type IDScore struct {
	ID    string
	Score float32
}

// TopK keeps the k highest scores seen with a min-heap.
type TopK struct {
	k int
	h idScoreHeap
}

func NewTopK(k int) *TopK {
	return &TopK{k: k}
}

func (t *TopK) Offer(id string, score float32) {
	if t.k <= 0 {
		return
	}
	if t.h.Len() < t.k {
		heap.Push(&t.h, IDScore{ID: id, Score: score})
		return
	}
	if score > t.h[0].Score {
		t.h[0] = IDScore{ID: id, Score: score}
		heap.Fix(&t.h, 0)
	}
}

func (t *TopK) Len() int {
	return t.h.Len()
}

// Results drains the heap in descending score order.
func (t *TopK) Results() []IDScore {
	out := make([]IDScore, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(IDScore)
	}
	return out
}

type idScoreHeap []IDScore

func (h idScoreHeap) Len() int            { return len(h) }
func (h idScoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x interface{}) { *h = append(*h, x.(IDScore)) }
func (h *idScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
