package engine

import "container/heap"

// pendingItem is one entry in the engine's priority heap: a service ID
// waiting to be dispatched, ordered by priority key with insertion order
// as the tie-break.
type pendingItem struct {
	serviceID string
	priority  float64
	seq       int
}

// pendingQueue implements container/heap.Interface as a min-heap over
// priority (smaller key = dispatched first, since priority key is
// 1/priority — see models.Service.PriorityKey), with seq breaking ties in
// insertion order.
type pendingQueue []*pendingItem

func (q pendingQueue) Len() int { return len(q) }

func (q pendingQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q pendingQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *pendingQueue) Push(x any) {
	*q = append(*q, x.(*pendingItem))
}

func (q *pendingQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

var _ heap.Interface = (*pendingQueue)(nil)
