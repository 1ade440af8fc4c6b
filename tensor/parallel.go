package tensor

import (
	"runtime"
	"sync"
)

var (
	workerMu sync.RWMutex
	workers  = runtime.NumCPU()
)

// SetWorkers bounds the number of goroutines ForEach may use. Values below
// one fall back to serial execution.
func SetWorkers(n int) {
	workerMu.Lock()
	defer workerMu.Unlock()
	if n < 1 {
		n = 1
	}
	workers = n
}

// Workers returns the current worker bound.
func Workers() int {
	workerMu.RLock()
	defer workerMu.RUnlock()
	return workers
}

// ForEach runs fn for every index in [0, n), spreading the calls over the
// configured worker count. fn must not touch state shared across indexes.
func ForEach(n int, fn func(i int)) {
	w := Workers()
	if w <= 1 || n <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	var wg sync.WaitGroup
	sem := make(chan struct{}, w)
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i)
		}(i)
	}
	wg.Wait()
}
