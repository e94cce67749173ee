package ml

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	testclock "k8s.io/utils/clock/testing"

	"dogcat/util"
)

const baseLR = 0.1

type harness struct {
	trainer *Trainer
	net     *fakeNet
	store   *fakeStore
	opts    *optimizerLog
	metrics *Metrics
	out     *bytes.Buffer
}

func newHarness(net *fakeNet, train, val Source) *harness {
	log := util.NewTestLogger(ginkgo.GinkgoWriter)
	h := &harness{
		net:     net,
		store:   &fakeStore{},
		opts:    &optimizerLog{},
		metrics: NewMetrics(""),
		out:     &bytes.Buffer{},
	}
	ctrl := NewController(net, &fakeCriterion{value: 0.5}, h.opts.factory(),
		SGDParams{LR: baseLR, Momentum: 0.9, WeightDecay: 5e-4}, log)
	ginkgo.DeferCleanup(ctrl.Close)
	h.trainer = &Trainer{
		Net:     net,
		Ctrl:    ctrl,
		Train:   train,
		Val:     val,
		Ckpt:    NewCheckpointManager(h.store, h.metrics, log),
		Report:  NewReporter(h.out, testclock.NewFakePassiveClock(time.Unix(0, 0))),
		Metrics: h.metrics,
		Plot:    util.NewPlotLogger(ginkgo.GinkgoWriter),
		Log:     log,
	}
	return h
}

var _ = ginkgo.Describe("Trainer", func() {
	ctx := context.Background()

	ginkgo.Describe("a training epoch", func() {
		ginkgo.It("covers 128 images in exactly 2 batches of 64", func() {
			h := newHarness(&fakeNet{}, newSource([]int{64, 64}, 64, true), newSource([]int{1, 1}, 64, false))
			h.trainer.Ctrl.Prepare(0)

			run, err := h.trainer.TrainEpoch(ctx, 0, baseLR)
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Batches).To(Equal(2))
			Expect(run.Total).To(Equal(128))
			Expect(run.Correct).To(Equal(64))
			Expect(h.opts.built[0].steps).To(Equal(2))
			Expect(h.net.training).To(BeTrue())
		})
	})

	ginkgo.Describe("validation", func() {
		ginkgo.It("reports 100*correct/total over every validation sample", func() {
			h := newHarness(&fakeNet{predict: 0}, newSource([]int{2, 2}, 64, true), newSource([]int{30, 10}, 16, false))

			run, err := h.trainer.Validate(ctx, 0, baseLR)
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Total).To(Equal(40))
			Expect(run.Batches).To(Equal(3))
			Expect(run.Accuracy()).To(Equal(75.0))
			Expect(h.net.training).To(BeFalse())
			Expect(h.opts.built).To(BeEmpty(), "validation never builds or steps an optimizer")
		})

		ginkgo.It("is idempotent without intervening training", func() {
			h := newHarness(&fakeNet{predict: 1}, newSource([]int{2, 2}, 64, true), newSource([]int{13, 29}, 8, false))

			first, err := h.trainer.Validate(ctx, 3, baseLR)
			Expect(err).NotTo(HaveOccurred())
			second, err := h.trainer.Validate(ctx, 3, baseLR)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Accuracy()).To(Equal(first.Accuracy()))
			Expect(second).To(Equal(first))
		})
	})

	ginkgo.Describe("checkpointing across epochs", func() {
		val := func() Source { return newSource([]int{10, 10}, 20, false) }
		train := func() Source { return newSource([]int{4, 4}, 4, true) }

		ginkgo.It("writes once when two validations tie at 80%", func() {
			h := newHarness(&fakeNet{script: []float64{80, 80}}, train(), val())

			best, err := h.trainer.Run(ctx, 0, 2, Best{})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.store.saves).To(Equal([]Record{{Arch: "fake", Acc: 80, Epoch: 0}}))
			Expect(best).To(Equal(Best{Acc: 80, Epoch: 0}))
			Expect(testutil.ToFloat64(h.metrics.CheckpointSaves)).To(Equal(1.0))
		})

		ginkgo.It("writes twice for 70, 85, 60 and keeps 85 as best", func() {
			h := newHarness(&fakeNet{script: []float64{70, 85, 60}}, train(), val())

			best, err := h.trainer.Run(ctx, 0, 3, Best{})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.store.saves).To(Equal([]Record{
				{Arch: "fake", Acc: 70, Epoch: 0},
				{Arch: "fake", Acc: 85, Epoch: 1},
			}))
			Expect(best).To(Equal(Best{Acc: 85, Epoch: 1}))
			Expect(testutil.ToFloat64(h.metrics.BestAccuracy)).To(Equal(85.0))

			out := h.out.String()
			Expect(out).To(ContainSubstring("Saving.."))
			Expect(out).To(ContainSubstring("best epoch: 1 acc: 85.000"))
			Expect(out).To(ContainSubstring("val epoch: 2 Loss: 0.500 Acc: 60.000 12 20"))
		})

		ginkgo.It("never lets the stored accuracy decrease", func() {
			h := newHarness(&fakeNet{script: []float64{50, 65, 65, 40, 90, 85}}, train(), val())

			_, err := h.trainer.Run(ctx, 0, 6, Best{})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.store.saves).To(HaveLen(3))
			for i := 1; i < len(h.store.saves); i++ {
				Expect(h.store.saves[i].Acc).To(BeNumerically(">", h.store.saves[i-1].Acc))
			}
		})

		ginkgo.It("stops when the checkpoint cannot be written", func() {
			h := newHarness(&fakeNet{script: []float64{70, 85}}, train(), val())
			h.store.saveErr = errBoom

			best, err := h.trainer.Run(ctx, 0, 2, Best{})
			Expect(errors.Is(err, errBoom)).To(BeTrue())
			Expect(best).To(Equal(Best{}))
		})
	})

	ginkgo.Describe("the learning-rate schedule", func() {
		ginkgo.It("rebuilds the optimizer only when crossing absolute tier boundaries", func() {
			h := newHarness(&fakeNet{}, newSource([]int{1, 1}, 2, true), newSource([]int{1, 1}, 2, false))

			_, err := h.trainer.Run(ctx, 18, 24, Best{})
			Expect(err).NotTo(HaveOccurred())
			Expect(h.opts.rates()).To(Equal([]float64{baseLR, baseLR / 10, baseLR / 100}))
			Expect(h.opts.built[0].closed).To(BeTrue())
			Expect(h.opts.built[1].closed).To(BeTrue())
			Expect(testutil.ToFloat64(h.metrics.OptimizerRebuilds)).To(Equal(3.0))
			Expect(testutil.ToFloat64(h.metrics.Epoch)).To(Equal(41.0))
		})
	})

	ginkgo.Describe("the plot log", func() {
		ginkgo.It("records each phase with the rate its epoch ran at", func() {
			h := newHarness(&fakeNet{}, newSource([]int{1, 1}, 2, true), newSource([]int{1, 1}, 2, false))
			var plot bytes.Buffer
			h.trainer.Plot = util.NewPlotLogger(&plot)

			_, err := h.trainer.Run(ctx, 19, 2, Best{})
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Split(strings.TrimSpace(plot.String()), "\n")).To(Equal([]string{
				"19 train 0.500000 50.000 0.1",
				"19 val 0.500000 50.000 0.1",
				"20 train 0.500000 50.000 0.01",
				"20 val 0.500000 50.000 0.01",
			}))
		})
	})

	ginkgo.Describe("resuming", func() {
		ginkgo.It("restores best state and restarts at the saved epoch", func() {
			net := &fakeNet{script: []float64{85, 90}}
			store := &fakeStore{dir: true, net: net, rec: Record{Arch: "fake", Acc: 85, Epoch: 7}}

			handle, err := Resume(store).Provide(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(handle.Best).To(Equal(Best{Acc: 85, Epoch: 7}))
			Expect(handle.StartEpoch).To(Equal(7))

			h := newHarness(net, newSource([]int{2, 2}, 4, true), newSource([]int{10, 10}, 20, false))
			h.store = store
			h.trainer.Ckpt = NewCheckpointManager(store, h.metrics, h.trainer.Log)

			best, err := h.trainer.Run(ctx, handle.StartEpoch, 2, handle.Best)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.saves).To(Equal([]Record{{Arch: "fake", Acc: 90, Epoch: 8}}), "the tie at epoch 7 is not saved")
			Expect(best).To(Equal(Best{Acc: 90, Epoch: 8}))
		})
	})

	ginkgo.Describe("cancellation", func() {
		ginkgo.It("returns the context error", func() {
			h := newHarness(&fakeNet{}, newSource([]int{64, 64}, 1, true), newSource([]int{1, 1}, 1, false))
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := h.trainer.Run(cctx, 0, 1, Best{})
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(h.store.saves).To(BeEmpty())
		})
	})
})
