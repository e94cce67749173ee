package ml

import (
	"github.com/go-logr/logr"

	"dogcat/util"
)

// StepResult is what one minibatch contributes to the running metrics.
type StepResult struct {
	Loss    float64
	Correct int
	Total   int
}

// Controller owns the criterion and the optimizer of a training run. The
// optimizer is rebuilt, not mutated, whenever the scheduled rate changes.
type Controller struct {
	net       Network
	criterion Criterion
	build     OptimizerFactory
	hp        SGDParams
	opt       Optimizer
	log       logr.Logger
}

func NewController(net Network, criterion Criterion, build OptimizerFactory, hp SGDParams, log logr.Logger) *Controller {
	return &Controller{net: net, criterion: criterion, build: build, hp: hp, log: log}
}

// Prepare derives the rate for epoch and reconstructs the optimizer over the
// current parameters if the rate differs from the live one. It returns the
// rate in effect and whether a new optimizer was built.
func (c *Controller) Prepare(epoch int) (float64, bool) {
	lr := Schedule(epoch, c.hp.LR)
	if c.opt != nil && c.opt.LR() == lr {
		return lr, false
	}
	if c.opt != nil {
		c.opt.Close()
	}
	hp := c.hp
	hp.LR = lr
	c.opt = c.build(c.net, hp)
	c.log.V(util.DEBUG).Info("Built optimizer", "epoch", epoch, "lr", lr,
		"momentum", hp.Momentum, "weightDecay", hp.WeightDecay)
	return lr, true
}

// TrainStep runs one parameter update on b.
func (c *Controller) TrainStep(b Batch) StepResult {
	c.opt.ZeroGrad()
	out := c.net.Forward(b)
	loss := c.criterion.Loss(out)
	loss.Backward()
	c.opt.Step()
	return StepResult{Loss: loss.Value(), Correct: out.Correct(), Total: b.Len()}
}

// EvalStep scores b without touching the parameters.
func (c *Controller) EvalStep(b Batch) StepResult {
	out := c.net.Forward(b)
	loss := c.criterion.Loss(out)
	return StepResult{Loss: loss.Value(), Correct: out.Correct(), Total: b.Len()}
}

func (c *Controller) Close() {
	if c.opt != nil {
		c.opt.Close()
		c.opt = nil
	}
}
