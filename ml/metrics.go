package ml

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks training progress on a private registry. With a textfile
// path set, Flush writes the registry in the node-exporter textfile format.
type Metrics struct {
	Registry *prometheus.Registry

	Epoch             prometheus.Gauge
	LearningRate      prometheus.Gauge
	BestAccuracy      prometheus.Gauge
	PhaseLoss         *prometheus.GaugeVec
	PhaseAccuracy     *prometheus.GaugeVec
	Samples           *prometheus.CounterVec
	CheckpointSaves   prometheus.Counter
	OptimizerRebuilds prometheus.Counter

	textfile string
}

func NewMetrics(textfile string) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dogcat_epoch",
			Help: "Epoch currently being trained.",
		}),
		LearningRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dogcat_learning_rate",
			Help: "Learning rate of the live optimizer.",
		}),
		BestAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dogcat_best_accuracy_percent",
			Help: "Best validation accuracy seen so far.",
		}),
		PhaseLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dogcat_phase_loss",
			Help: "Mean minibatch loss of the last completed phase.",
		}, []string{"phase"}),
		PhaseAccuracy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dogcat_phase_accuracy_percent",
			Help: "Accuracy of the last completed phase.",
		}, []string{"phase"}),
		Samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dogcat_samples_total",
			Help: "Samples processed.",
		}, []string{"phase"}),
		CheckpointSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dogcat_checkpoint_saves_total",
			Help: "Checkpoint records written.",
		}),
		OptimizerRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dogcat_optimizer_rebuilds_total",
			Help: "Optimizers constructed for a new learning-rate tier.",
		}),
		textfile: textfile,
	}
	m.Registry.MustRegister(m.Epoch, m.LearningRate, m.BestAccuracy, m.PhaseLoss,
		m.PhaseAccuracy, m.Samples, m.CheckpointSaves, m.OptimizerRebuilds)
	return m
}

// ObservePhase records the summary of a finished phase.
func (m *Metrics) ObservePhase(phase Phase, r Running) {
	m.PhaseLoss.WithLabelValues(string(phase)).Set(r.AvgLoss())
	m.PhaseAccuracy.WithLabelValues(string(phase)).Set(r.Accuracy())
	m.Samples.WithLabelValues(string(phase)).Add(float64(r.Total))
}

// Flush writes the textfile, if one is configured.
func (m *Metrics) Flush() error {
	if m.textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.textfile, m.Registry); err != nil {
		return errors.Wrap(err, "writing metrics textfile")
	}
	return nil
}
