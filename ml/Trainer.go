package ml

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"dogcat/util"
)

// Trainer runs the epoch loop: a training pass, then a validation pass whose
// accuracy is handed to the checkpoint manager.
type Trainer struct {
	Net     Network
	Ctrl    *Controller
	Train   Source
	Val     Source
	Ckpt    *CheckpointManager
	Report  *Reporter
	Metrics *Metrics
	Plot    *util.PlotLogger
	Log     logr.Logger
}

// Run trains epochs epochs starting at start, carrying best across them, and
// returns the best result at the end.
func (t *Trainer) Run(ctx context.Context, start, epochs int, best Best) (Best, error) {
	t.Metrics.BestAccuracy.Set(best.Acc)
	for epoch := start; epoch < start+epochs; epoch++ {
		lr, rebuilt := t.Ctrl.Prepare(epoch)
		if rebuilt {
			t.Metrics.OptimizerRebuilds.Inc()
		}
		t.Metrics.Epoch.Set(float64(epoch))
		t.Metrics.LearningRate.Set(lr)
		t.Report.Epoch(epoch, lr)

		if _, err := t.TrainEpoch(ctx, epoch, lr); err != nil {
			return best, err
		}
		run, err := t.Validate(ctx, epoch, lr)
		if err != nil {
			return best, err
		}

		var saved bool
		best, saved, err = t.Ckpt.Observe(best, run.Accuracy(), epoch, t.Net)
		if err != nil {
			return best, err
		}
		if saved {
			t.Report.Saving()
		}
		t.Report.Best(best)

		if err := t.Metrics.Flush(); err != nil {
			t.Log.Error(err, "Could not write metrics", "epoch", epoch)
		}
	}
	return best, nil
}

// TrainEpoch runs one parameter-updating pass over the training set. lr is
// the rate the controller was prepared with, recorded alongside the results.
func (t *Trainer) TrainEpoch(ctx context.Context, epoch int, lr float64) (Running, error) {
	t.Net.Train(true)
	return t.pass(ctx, epoch, lr, PhaseTrain, t.Train, t.Ctrl.TrainStep)
}

// Validate scores the validation set with the network in eval mode.
func (t *Trainer) Validate(ctx context.Context, epoch int, lr float64) (Running, error) {
	t.Net.Train(false)
	return t.pass(ctx, epoch, lr, PhaseVal, t.Val, t.Ctrl.EvalStep)
}

func (t *Trainer) pass(ctx context.Context, epoch int, lr float64, phase Phase, src Source, step func(Batch) StepResult) (Running, error) {
	var run Running
	it := src.Pass(ctx)
	defer it.Close()

	progress := t.Report.Start(phase, src.NumBatches())
	for it.Scan() {
		b := it.Minibatch()
		run.Add(step(b))
		b.Release()
		progress.Update(run.Batches, run)
		t.Log.V(util.TRACE).Info("Batch done", "phase", phase, "epoch", epoch,
			"batch", run.Batches, "loss", run.AvgLoss(), "acc", run.Accuracy())
	}
	if err := it.Err(); err != nil {
		return run, errors.Wrapf(err, "%s pass of epoch %d", phase, epoch)
	}

	t.Report.Summary(phase, epoch, run)
	t.Metrics.ObservePhase(phase, run)
	t.Plot.Record(epoch, string(phase), run.AvgLoss(), run.Accuracy(), lr)
	return run, nil
}
