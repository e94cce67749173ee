package ml

import (
	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

// ErrNoCheckpoint is returned when a resume is requested but nothing was saved.
var ErrNoCheckpoint = errors.New("no checkpoint directory found")

// Best is the best validation result seen so far, threaded through the loop.
type Best struct {
	Acc   float64
	Epoch int
}

// Record is the metadata stored next to the model state in a checkpoint.
type Record struct {
	Arch  string
	Acc   float64
	Epoch int
}

// Store persists the single best-model checkpoint.
type Store interface {
	// Exists reports whether the checkpoint directory is present.
	Exists() bool
	// Save overwrites the checkpoint with net's state.
	Save(net Network, acc float64, epoch int) error
	Load() (Network, Record, error)
}

// CheckpointManager saves the network whenever validation accuracy strictly improves.
type CheckpointManager struct {
	store   Store
	metrics *Metrics
	log     logr.Logger
}

func NewCheckpointManager(store Store, metrics *Metrics, log logr.Logger) *CheckpointManager {
	return &CheckpointManager{store: store, metrics: metrics, log: log}
}

// Observe compares acc against best. On strict improvement the checkpoint is
// overwritten and the new best returned with saved set; ties keep the old record.
func (m *CheckpointManager) Observe(best Best, acc float64, epoch int, net Network) (Best, bool, error) {
	// A NaN accuracy never improves.
	if !(acc > best.Acc) {
		return best, false, nil
	}
	if err := m.store.Save(net, acc, epoch); err != nil {
		return best, false, errors.Wrapf(err, "saving checkpoint for epoch %d", epoch)
	}
	m.log.Info("Saved checkpoint", "epoch", epoch, "acc", acc, "previousAcc", best.Acc)
	if m.metrics != nil {
		m.metrics.CheckpointSaves.Inc()
		m.metrics.BestAccuracy.Set(acc)
	}
	return Best{Acc: acc, Epoch: epoch}, true, nil
}
