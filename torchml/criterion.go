package torchml

import (
	torch "github.com/wangkuiyi/gotorch"
	F "github.com/wangkuiyi/gotorch/nn/functional"

	"dogcat/ml"
)

// CrossEntropy is the mean cross-entropy loss over a minibatch.
type CrossEntropy struct{}

func (CrossEntropy) Loss(out ml.Output) ml.Loss {
	o := out.(*Output)
	return Loss{t: F.CrossEntropy(o.Logits, o.Labels, torch.Tensor{}, -100, "mean")}
}

// Loss wraps a scalar loss tensor.
type Loss struct {
	t torch.Tensor
}

func (l Loss) Value() float64 { return float64(l.t.Item().(float32)) }

func (l Loss) Backward() { l.t.Backward() }
