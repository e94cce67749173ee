package torchml

import (
	torch "github.com/wangkuiyi/gotorch"

	"dogcat/ml"
)

// SGD builds momentum SGD over the current parameters of a *Network.
func SGD(net ml.Network, hp ml.SGDParams) ml.Optimizer {
	opt := torch.SGD(hp.LR, hp.Momentum, 0, hp.WeightDecay, false)
	opt.AddParameters(net.(*Network).Parameters())
	return &optimizer{opt: opt, lr: hp.LR}
}

type optimizer struct {
	opt torch.Optimizer
	lr  float64
}

func (o *optimizer) ZeroGrad()   { o.opt.ZeroGrad() }
func (o *optimizer) Step()       { o.opt.Step() }
func (o *optimizer) LR() float64 { return o.lr }
func (o *optimizer) Close()      { o.opt.Close() }

var _ ml.OptimizerFactory = SGD
