package coordinator

import (
	"container/heap"
	"sync"
)

// embedOutcome is delivered on a task's done channel exactly once.
type embedOutcome struct {
	vector []float32
	err    error
}

// embedTask is one queued embedding request.
type embedTask struct {
	query    string
	key      string
	priority int
	seq      uint64
	done     chan embedOutcome
}

// taskHeap orders tasks by descending priority, then ascending sequence so
// requests of equal priority leave in arrival order.
type taskHeap []*embedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*embedTask)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return task
}

// embedQueue feeds the single dispatcher goroutine. Exactly one task is
// handed out at a time; the dispatcher delivers its outcome before taking
// the next, so the worker never sees two embedding requests in flight.
type embedQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   taskHeap
	seq    uint64
	closed bool
}

func newEmbedQueue() *embedQueue {
	q := &embedQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Submit enqueues a task. It returns false when the queue is closed.
func (q *embedQueue) Submit(task *embedTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.seq++
	task.seq = q.seq
	heap.Push(&q.heap, task)
	q.cond.Signal()
	return true
}

// Next blocks until a task is available or the queue closes. It returns nil
// after close.
func (q *embedQueue) Next() *embedTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.heap) == 0 {
		return nil
	}
	return heap.Pop(&q.heap).(*embedTask)
}

// Close rejects future submissions and returns every task still queued so
// the caller can fail them.
func (q *embedQueue) Close() []*embedTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	pending := make([]*embedTask, 0, len(q.heap))
	for len(q.heap) > 0 {
		pending = append(pending, heap.Pop(&q.heap).(*embedTask))
	}
	q.cond.Broadcast()
	return pending
}

// Len reports the number of queued tasks.
func (q *embedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
