package memory

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/sahinrasit/AGENT-SDK-OPENAI-sub001/pkg/errors"
)

type hook struct {
	name string
	fn   func() error
}

/*
hookQueue runs post-commit work off the append path. A full queue drops the
hook; every hook it does accept is guaranteed to run before close returns.
*/
type hookQueue struct {
	mu      sync.RWMutex
	closed  bool
	tasks   chan hook
	pending sync.WaitGroup
	workers sync.WaitGroup
}

func newHookQueue(workers, size int) *hookQueue {
	if workers <= 0 {
		workers = 1
	}

	q := &hookQueue{tasks: make(chan hook, size)}

	for i := 0; i < workers; i++ {
		q.workers.Add(1)
		go q.work()
	}

	return q
}

func (q *hookQueue) submit(name string, fn func() error) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}

	q.pending.Add(1)

	select {
	case q.tasks <- hook{name: name, fn: fn}:
		return true
	default:
		q.pending.Done()
		log.Warn("hook queue full, dropping", "hook", name)
		return false
	}
}

func (q *hookQueue) work() {
	defer q.workers.Done()

	for h := range q.tasks {
		q.run(h)
	}
}

func (q *hookQueue) run(h hook) {
	defer q.pending.Done()

	defer func() {
		if r := recover(); r != nil {
			log.Error("hook panicked", "hook", h.name, "error", errors.BestEffort(fmt.Errorf("%v", r), "%s", h.name))
		}
	}()

	if err := h.fn(); err != nil {
		log.Warn("hook failed", "hook", h.name, "error", errors.BestEffort(err, "%s", h.name))
	}
}

// wait blocks until every accepted hook has finished.
func (q *hookQueue) wait() {
	q.pending.Wait()
}

func (q *hookQueue) close() {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return
	}

	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.workers.Wait()
}
