package torchml

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	torch "github.com/wangkuiyi/gotorch"

	"dogcat/ml"
)

// record is the gob layout of a checkpoint file.
type record struct {
	Arch  string
	State map[string]torch.Tensor
	Acc   float64
	Epoch int
}

// Store keeps the best checkpoint in a single gob file, overwritten on every save.
type Store struct {
	Path   string
	Device torch.Device
}

func NewStore(path string, device torch.Device) *Store {
	return &Store{Path: path, Device: device}
}

// Exists reports whether the checkpoint directory is present.
func (s *Store) Exists() bool {
	fi, err := os.Stat(filepath.Dir(s.Path))
	return err == nil && fi.IsDir()
}

func (s *Store) Save(net ml.Network, acc float64, epoch int) error {
	n := net.(*Network)
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return errors.Wrap(err, "creating checkpoint directory")
	}

	tmp := s.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "cannot create file to save model")
	}
	state, restore := n.StateDict()
	err = gob.NewEncoder(f).Encode(record{Arch: n.Arch(), State: state, Acc: acc, Epoch: epoch})
	restore()
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "encoding %s", s.Path)
	}
	return errors.Wrap(os.Rename(tmp, s.Path), "replacing checkpoint")
}

// Load rebuilds the saved architecture and restores its state onto the device.
func (s *Store) Load() (ml.Network, ml.Record, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, ml.Record{}, errors.Wrap(err, "opening checkpoint")
	}
	defer f.Close()

	var rec record
	if err := gob.NewDecoder(f).Decode(&rec); err != nil {
		return nil, ml.Record{}, errors.Wrapf(err, "decoding %s", s.Path)
	}
	r, err := newResnet(rec.Arch)
	if err != nil {
		return nil, ml.Record{}, err
	}
	resetHead(r)
	if err := r.SetStateDict(rec.State); err != nil {
		return nil, ml.Record{}, errors.Wrap(err, "restoring checkpoint state")
	}
	return newNetwork(rec.Arch, r, s.Device), ml.Record{Arch: rec.Arch, Acc: rec.Acc, Epoch: rec.Epoch}, nil
}
