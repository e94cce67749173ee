package ml

import "context"

// Batch is one collated minibatch. Release is called once the loop is done
// with it so the backing framework can reclaim memory.
type Batch interface {
	Len() int
	Release()
}

// Output is a network's prediction for the batch it was computed from.
type Output interface {
	// Correct counts the samples whose top-scoring class matches the label.
	Correct() int
}

// Loss is a scalar criterion value that can be back-propagated.
type Loss interface {
	Value() float64
	Backward()
}

// Criterion scores an Output against the labels of its batch.
type Criterion interface {
	Loss(out Output) Loss
}

// Network is the classifier being trained.
type Network interface {
	Arch() string
	// Train switches between training mode (dropout, batch-norm updates) and eval mode.
	Train(on bool)
	Forward(b Batch) Output
}

// Optimizer updates the parameters it was built over.
type Optimizer interface {
	ZeroGrad()
	Step()
	LR() float64
	Close()
}

// SGDParams are the hyper-parameters an optimizer is built with.
type SGDParams struct {
	LR          float64
	Momentum    float64
	WeightDecay float64
}

// OptimizerFactory builds an optimizer over the network's current parameters.
type OptimizerFactory func(net Network, hp SGDParams) Optimizer

// BatchIterator walks one pass over a dataset.
type BatchIterator interface {
	Scan() bool
	Minibatch() Batch
	Err() error
	Close()
}

// Source hands out one iterator per pass.
type Source interface {
	Len() int
	NumBatches() int
	Pass(ctx context.Context) BatchIterator
}
