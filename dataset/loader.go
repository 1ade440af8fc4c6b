package dataset

import (
	"fmt"
	"io"
	"math/rand"
	"sync"

	"github.com/neurlang/sound2image/tensor"
)

// Batch is one assembled mini-batch. Frames is (B, 3, H, W); Mel stacks
// log-mel and instantaneous frequency into (B, 2, frames, bins). Either can
// be nil when the underlying modality was not requested.
type Batch struct {
	Indexes []int
	Frames  *tensor.Tensor
	Mel     *tensor.Tensor
	Audio   []*tensor.Tensor
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int { return len(b.Indexes) }

// Loader draws shuffled mini-batches from a Dataset. Batch assembly runs on a
// bounded worker pool for read-ahead; workers only produce finished batches,
// and batch order within an epoch is not guaranteed.
type Loader struct {
	ds        *Dataset
	batchSize int
	shuffle   bool
	workers   int
	rng       *rand.Rand
}

// NewLoader builds a loader. The worker count is bounded by half the batch
// size, with at least one worker.
func NewLoader(ds *Dataset, batchSize int, shuffle bool, seed int64) *Loader {
	workers := batchSize / 2
	if workers < 1 {
		workers = 1
	}
	return &Loader{
		ds:        ds,
		batchSize: batchSize,
		shuffle:   shuffle,
		workers:   workers,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Batches returns the number of batches per epoch (the trailing partial batch
// included).
func (l *Loader) Batches() int {
	n := l.ds.Len()
	return (n + l.batchSize - 1) / l.batchSize
}

type result struct {
	batch *Batch
	err   error
}

// Epoch is one pass over the dataset. Next blocks for the next finished
// batch and returns io.EOF once the pass is exhausted. A load failure is
// fatal to the epoch.
type Epoch struct {
	out  chan result
	done chan struct{}
	stop sync.Once
	fail error
}

// Epoch starts a new pass over the dataset.
func (l *Loader) Epoch() *Epoch {
	indexes := make([]int, l.ds.Len())
	for i := range indexes {
		indexes[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(indexes), func(i, j int) {
			indexes[i], indexes[j] = indexes[j], indexes[i]
		})
	}

	work := make(chan []int, l.Batches())
	for start := 0; start < len(indexes); start += l.batchSize {
		end := start + l.batchSize
		if end > len(indexes) {
			end = len(indexes)
		}
		work <- indexes[start:end]
	}
	close(work)

	e := &Epoch{
		out:  make(chan result, l.workers),
		done: make(chan struct{}),
	}
	var wg sync.WaitGroup
	for w := 0; w < l.workers; w++ {
		wg.Add(1)
		rng := rand.New(rand.NewSource(l.rng.Int63()))
		go func(rng *rand.Rand) {
			defer wg.Done()
			for idxs := range work {
				b, err := l.assemble(idxs, rng)
				// once the epoch failed the consumer stops draining,
				// so never block on a send it will not receive
				select {
				case e.out <- result{batch: b, err: err}:
				case <-e.done:
					return
				}
				if err != nil {
					return
				}
			}
		}(rng)
	}
	go func() {
		wg.Wait()
		close(e.out)
	}()
	return e
}

// Next returns the next finished batch, io.EOF at the end of the epoch, or
// the first load error.
func (e *Epoch) Next() (*Batch, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	r, ok := <-e.out
	if !ok {
		return nil, io.EOF
	}
	if r.err != nil {
		e.fail = r.err
		e.stop.Do(func() { close(e.done) })
		return nil, r.err
	}
	return r.batch, nil
}

func (l *Loader) assemble(indexes []int, rng *rand.Rand) (*Batch, error) {
	b := &Batch{Indexes: append([]int(nil), indexes...)}
	for i, idx := range indexes {
		s, err := l.ds.Get(idx, rng)
		if err != nil {
			return nil, err
		}
		if s.Frame != nil {
			if b.Frames == nil {
				b.Frames = tensor.New(append([]int{len(indexes)}, s.Frame.Shape...)...)
			}
			copy(b.Frames.Data[i*s.Frame.Numel():], s.Frame.Data)
		}
		if s.LogMel != nil && s.IF != nil {
			if b.Mel == nil {
				b.Mel = tensor.New(len(indexes), 2, s.LogMel.Shape[0], s.LogMel.Shape[1])
			}
			n := s.LogMel.Numel()
			copy(b.Mel.Data[i*2*n:], s.LogMel.Data)
			copy(b.Mel.Data[i*2*n+n:], s.IF.Data)
		}
		if s.Audio != nil {
			if b.Audio == nil {
				b.Audio = make([]*tensor.Tensor, len(indexes))
			}
			b.Audio[i] = s.Audio
		}
	}
	return b, nil
}

// Cycle turns a Loader into a lazy infinite batch sequence by starting a
// fresh epoch whenever the current one is exhausted. It has a single owner
// and must not be shared across goroutines.
type Cycle struct {
	loader *Loader
	epoch  *Epoch
}

// NewCycle wraps a loader into an endless batch sequence.
func NewCycle(l *Loader) *Cycle { return &Cycle{loader: l} }

// Next returns the next batch, transparently restarting the underlying
// loader at epoch boundaries. It fails only on a fatal load error or an
// empty dataset.
func (c *Cycle) Next() (*Batch, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if c.epoch == nil {
			c.epoch = c.loader.Epoch()
		}
		b, err := c.epoch.Next()
		if err == io.EOF {
			c.epoch = nil
			continue
		}
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, fmt.Errorf("dataset: cycle over empty dataset %s", c.loader.ds.Dir())
}
