package hermitio

import (
	"sync"

	"github.com/eapache/queue"
)

// Queue is the unbounded FIFO of runnables ready to be polled. Any goroutine
// may Push; only the executor's run loop Pops.
type Queue struct {
	mu sync.Mutex
	q  *queue.Queue
}

func NewQueue() *Queue {
	return &Queue{
		q: queue.New(),
	}
}

func (q *Queue) Push(r *Runnable) {
	q.mu.Lock()
	q.q.Add(r)
	q.mu.Unlock()
}

func (q *Queue) Pop() (*Runnable, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.q.Length() == 0 {
		return nil, false
	}
	return q.q.Remove().(*Runnable), true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.q.Length()
}
