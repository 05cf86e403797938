package assets

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// Preloader runs asset loads on a shared worker pool.
type Preloader struct {
	pool worker.DynamicWorkerPool
}

func NewPreloader(workers int) *Preloader {
	if workers <= 0 {
		workers = 1
	}
	return &Preloader{
		pool: worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
	}
}

// PreloadAll calls fn for every key on the pool and waits for all of them.
// Results keep the order of keys. On failure the first error by key order
// is returned together with the results that did load.
func PreloadAll[T any](p *Preloader, keys []string, fn func(string) (T, error)) ([]T, error) {
	results := make([]T, len(keys))
	errs := make([]error, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		id, k := i, key
		p.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				results[id], errs[id] = fn(k)
				return nil, errs[id]
			},
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
