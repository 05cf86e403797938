package vulkan

import "sync"

type pendingRelease struct {
	tag     uint64
	destroy func()
}

// releaseQueue delays destruction until no frame in flight can still
// reference a resource. A resource released after n BeginFrame calls may
// be used by frames up to n-1, and the fence waited before BeginFrame n+1
// covers frame n-1.
type releaseQueue struct {
	mu      sync.Mutex
	pending []pendingRelease
}

func (q *releaseQueue) push(tag uint64, destroy func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, pendingRelease{tag: tag, destroy: destroy})
}

// collect runs every release that is safe at BeginFrame number frame,
// counted from 0, in push order. It returns how many ran.
func (q *releaseQueue) collect(frame uint64) int {
	q.mu.Lock()
	var ready []pendingRelease
	kept := q.pending[:0]
	for _, p := range q.pending {
		if frame >= p.tag+1 {
			ready = append(ready, p)
		} else {
			kept = append(kept, p)
		}
	}
	q.pending = kept
	q.mu.Unlock()

	for _, p := range ready {
		p.destroy()
	}
	return len(ready)
}

// flush runs everything. The device must be idle.
func (q *releaseQueue) flush() int {
	q.mu.Lock()
	ready := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, p := range ready {
		p.destroy()
	}
	return len(ready)
}

func (q *releaseQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
