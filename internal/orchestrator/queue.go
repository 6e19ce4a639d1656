package orchestrator

import "container/heap"

// readyItem is one step waiting to be dispatched, ordered by its declared
// Order so that when more than one step becomes eligible at once the
// lowest-Order (earliest in the plan's topological order) runs first.
type readyItem struct {
	step  *Step
	index int
}

// readyHeap implements container/heap.Interface, adapted from the
// teacher's taskHeap priority-queue shape (orchestrator/queue/queue.go),
// generalized from task priority to step Order.
type readyHeap []*readyItem

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool { return h[i].step.Order < h[j].step.Order }

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *readyHeap) Push(x any) {
	item := x.(*readyItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// readyQueue is a min-heap of eligible steps ordered by Step.Order, used
// by ExecutePlan to pick which newly-eligible steps to launch next when
// several become ready in the same scheduling pass.
type readyQueue struct {
	h readyHeap
}

func newReadyQueue() *readyQueue {
	q := &readyQueue{h: make(readyHeap, 0)}
	heap.Init(&q.h)
	return q
}

func (q *readyQueue) push(s *Step) {
	heap.Push(&q.h, &readyItem{step: s})
}

// pop removes and returns the lowest-Order step, or nil if empty.
func (q *readyQueue) pop() *Step {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*readyItem).step
}

func (q *readyQueue) len() int { return q.h.Len() }
