package dataset

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Config controls how a Loader batches its samples.
type Config struct {
	BatchSize int
	// Shuffle draws a new permutation on every pass; otherwise listing order is kept.
	Shuffle bool
	// Workers is the number of goroutines collating batches ahead of the consumer.
	Workers int
	Seed    int64
}

// Collator turns a group of samples into a minibatch.
type Collator[B any] interface {
	Collate(samples []Sample) (B, error)
}

// CollateFunc adapts a function to Collator.
type CollateFunc[B any] func(samples []Sample) (B, error)

func (f CollateFunc[B]) Collate(samples []Sample) (B, error) {
	return f(samples)
}

// Loader yields fixed-size minibatches over a sample list, one pass at a time.
type Loader[B any] struct {
	samples []Sample
	collate Collator[B]
	cfg     Config
	passes  int64
}

func NewLoader[B any](samples []Sample, collate Collator[B], cfg Config) *Loader[B] {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Loader[B]{samples: samples, collate: collate, cfg: cfg}
}

func (l *Loader[B]) Len() int {
	return len(l.samples)
}

// NumBatches is the number of minibatches in a pass; the last one may be short.
func (l *Loader[B]) NumBatches() int {
	return (len(l.samples) + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// plan splits the samples of pass number pass into batches.
func (l *Loader[B]) plan(pass int64) [][]Sample {
	order := make([]Sample, len(l.samples))
	if l.cfg.Shuffle {
		r := rand.New(rand.NewSource(l.cfg.Seed + pass))
		for i, j := range r.Perm(len(l.samples)) {
			order[i] = l.samples[j]
		}
	} else {
		copy(order, l.samples)
	}

	batches := make([][]Sample, 0, l.NumBatches())
	for start := 0; start < len(order); start += l.cfg.BatchSize {
		end := start + l.cfg.BatchSize
		if end > len(order) {
			end = len(order)
		}
		batches = append(batches, order[start:end])
	}
	return batches
}

// Iterate starts a new pass. Batches are collated in the background by
// Config.Workers goroutines and delivered in plan order.
func (l *Loader[B]) Iterate(ctx context.Context) *Iterator[B] {
	plan := l.plan(l.passes)
	l.passes++

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	it := &Iterator[B]{
		parent: parent,
		cancel: cancel,
		g:      g,
		done:   gctx.Done(),
		slots:  make([]chan B, len(plan)),
		tokens: make(chan struct{}, l.cfg.Workers),
	}
	for i := range it.slots {
		it.slots[i] = make(chan B, 1)
	}

	jobs := make(chan int)
	g.Go(func() error {
		defer close(jobs)
		for i := range plan {
			select {
			case it.tokens <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < l.cfg.Workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				b, err := l.collate.Collate(plan[i])
				if err != nil {
					return errors.Wrapf(err, "collating batch %d", i)
				}
				it.slots[i] <- b
			}
			return nil
		})
	}
	return it
}

// Iterator walks one pass of a Loader:
//
//	it := loader.Iterate(ctx)
//	defer it.Close()
//	for it.Scan() {
//		b := it.Minibatch()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator[B any] struct {
	parent context.Context
	cancel context.CancelFunc
	g      *errgroup.Group
	done   <-chan struct{}
	slots  []chan B
	tokens chan struct{}

	next   int
	cur    B
	err    error
	closed bool
}

// Scan advances to the next batch, blocking until it is collated.
func (it *Iterator[B]) Scan() bool {
	if it.closed || it.err != nil {
		return false
	}
	if it.next == len(it.slots) {
		it.finish()
		return false
	}

	select {
	case b := <-it.slots[it.next]:
		it.cur = b
		it.next++
		<-it.tokens
		return true
	case <-it.done:
		it.finish()
		return false
	}
}

// Minibatch returns the batch loaded by the last successful Scan.
func (it *Iterator[B]) Minibatch() B {
	return it.cur
}

// Err returns the first collation or context error of the pass.
func (it *Iterator[B]) Err() error {
	return it.err
}

// Close stops the background workers. It is safe to call more than once.
func (it *Iterator[B]) Close() {
	if it.closed {
		return
	}
	it.cancel()
	_ = it.g.Wait()
	it.closed = true
}

// finish ends the pass. A pass that stops short of its last batch always
// reports an error, even when every worker had already returned.
func (it *Iterator[B]) finish() {
	err := it.g.Wait()
	it.cancel()
	it.closed = true
	if it.next == len(it.slots) {
		return
	}
	if err == nil {
		err = context.Cause(it.parent)
	}
	if err == nil {
		err = errors.Errorf("pass stopped after %d of %d batches", it.next, len(it.slots))
	}
	it.err = err
}
