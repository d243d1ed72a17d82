package scheduler

import "github.com/avelis/crank/task"

// queued pairs an item with its enqueue sequence number so that equal
// priorities dequeue in FIFO order.
type queued struct {
	item *task.Item
	seq  uint64
}

// itemHeap orders by priority descending, then sequence ascending. It
// implements container/heap.Interface; all access happens under the
// scheduler mutex.
type itemHeap []*queued

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].item.Priority() != h[j].item.Priority() {
		return h[i].item.Priority() > h[j].item.Priority()
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) {
	*h = append(*h, x.(*queued))
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	q := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return q
}
