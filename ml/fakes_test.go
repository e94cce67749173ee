package ml

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"dogcat/dataset"
)

// calls records the order of framework operations across fakes.
type calls []string

func (c *calls) add(s string) {
	if c != nil {
		*c = append(*c, s)
	}
}

type fakeBatch struct {
	labels   []int
	released bool
}

func (b *fakeBatch) Len() int { return len(b.labels) }
func (b *fakeBatch) Release() { b.released = true }

type fakeOutput struct{ correct int }

func (o fakeOutput) Correct() int { return o.correct }

// fakeNet always predicts class predict. With script set, each eval pass
// instead scores script[pass] percent of every batch correct.
type fakeNet struct {
	predict    int
	script     []float64
	training   bool
	evalPasses int
	forwards   int
	calls      *calls
}

func (n *fakeNet) Arch() string { return "fake" }

func (n *fakeNet) Train(on bool) {
	n.training = on
	if !on {
		n.evalPasses++
	}
}

func (n *fakeNet) Forward(b Batch) Output {
	n.forwards++
	n.calls.add("forward")
	fb := b.(*fakeBatch)
	if !n.training && n.script != nil {
		acc := n.script[n.evalPasses-1]
		return fakeOutput{correct: int(math.Round(acc * float64(fb.Len()) / 100))}
	}
	correct := 0
	for _, l := range fb.labels {
		if l == n.predict {
			correct++
		}
	}
	return fakeOutput{correct: correct}
}

type fakeCriterion struct {
	value     float64
	backwards int
	calls     *calls
}

func (c *fakeCriterion) Loss(out Output) Loss { return fakeLoss{c} }

type fakeLoss struct{ c *fakeCriterion }

func (l fakeLoss) Value() float64 { return l.c.value }
func (l fakeLoss) Backward() {
	l.c.backwards++
	l.c.calls.add("backward")
}

type fakeOptimizer struct {
	lr     float64
	hp     SGDParams
	steps  int
	closed bool
	calls  *calls
}

func (o *fakeOptimizer) ZeroGrad()   { o.calls.add("zero") }
func (o *fakeOptimizer) Step()       { o.steps++; o.calls.add("step") }
func (o *fakeOptimizer) LR() float64 { return o.lr }
func (o *fakeOptimizer) Close()      { o.closed = true }

type optimizerLog struct {
	built []*fakeOptimizer
	calls *calls
}

func (l *optimizerLog) factory() OptimizerFactory {
	return func(net Network, hp SGDParams) Optimizer {
		o := &fakeOptimizer{lr: hp.LR, hp: hp, calls: l.calls}
		l.built = append(l.built, o)
		return o
	}
}

func (l *optimizerLog) rates() []float64 {
	var out []float64
	for _, o := range l.built {
		out = append(out, o.lr)
	}
	return out
}

type fakeStore struct {
	dir     bool
	saves   []Record
	rec     Record
	net     Network
	saveErr error
	loadErr error
}

func (s *fakeStore) Exists() bool { return s.dir }

func (s *fakeStore) Save(net Network, acc float64, epoch int) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.dir = true
	s.net = net
	s.rec = Record{Arch: net.Arch(), Acc: acc, Epoch: epoch}
	s.saves = append(s.saves, s.rec)
	return nil
}

func (s *fakeStore) Load() (Network, Record, error) {
	if s.loadErr != nil {
		return nil, Record{}, s.loadErr
	}
	return s.net, s.rec, nil
}

type fakeBuilder struct {
	fresh      []string
	pretrained []string
	err        error
}

func (b *fakeBuilder) Fresh(arch string) (Network, error) {
	b.fresh = append(b.fresh, arch)
	if b.err != nil {
		return nil, b.err
	}
	return &fakeNet{}, nil
}

func (b *fakeBuilder) Pretrained(ctx context.Context, arch string) (Network, error) {
	b.pretrained = append(b.pretrained, arch)
	if b.err != nil {
		return nil, b.err
	}
	return &fakeNet{}, nil
}

var errBoom = errors.New("boom")

// loaderSource feeds fake batches through the real dataset loader.
type loaderSource struct {
	l *dataset.Loader[*fakeBatch]
}

func newSource(perClass []int, batchSize int, shuffle bool) loaderSource {
	var samples []dataset.Sample
	for label, n := range perClass {
		for i := 0; i < n; i++ {
			samples = append(samples, dataset.Sample{Label: label})
		}
	}
	collate := dataset.CollateFunc[*fakeBatch](func(s []dataset.Sample) (*fakeBatch, error) {
		b := &fakeBatch{}
		for _, smp := range s {
			b.labels = append(b.labels, smp.Label)
		}
		return b, nil
	})
	cfg := dataset.Config{BatchSize: batchSize, Shuffle: shuffle, Workers: 2, Seed: 1}
	return loaderSource{l: dataset.NewLoader[*fakeBatch](samples, collate, cfg)}
}

func (s loaderSource) Len() int        { return s.l.Len() }
func (s loaderSource) NumBatches() int { return s.l.NumBatches() }
func (s loaderSource) Pass(ctx context.Context) BatchIterator {
	return loaderIter{s.l.Iterate(ctx)}
}

type loaderIter struct {
	*dataset.Iterator[*fakeBatch]
}

func (it loaderIter) Minibatch() Batch { return it.Iterator.Minibatch() }
