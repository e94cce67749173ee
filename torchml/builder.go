package torchml

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	torch "github.com/wangkuiyi/gotorch"

	"dogcat/ml"
	"dogcat/util"
)

// Builder constructs ResNets on a device, fetching pretrained ImageNet
// weights as <BaseURL>/<arch>.gob into ModelDir.
type Builder struct {
	Device   torch.Device
	BaseURL  string
	ModelDir string
	Fetcher  *util.Fetcher
	Log      logr.Logger
}

func (b *Builder) Fresh(arch string) (ml.Network, error) {
	r, err := newResnet(arch)
	if err != nil {
		return nil, err
	}
	resetHead(r)
	b.Log.Info("Built fresh network", "arch", arch)
	return newNetwork(arch, r, b.Device), nil
}

func (b *Builder) Pretrained(ctx context.Context, arch string) (ml.Network, error) {
	r, err := newResnet(arch)
	if err != nil {
		return nil, err
	}
	url := strings.TrimSuffix(b.BaseURL, "/") + "/" + arch + ".gob"
	path, err := b.Fetcher.Fetch(ctx, url, filepath.Join(b.ModelDir, arch+".gob"))
	if err != nil {
		return nil, err
	}
	state, err := loadStateDict(path)
	if err != nil {
		return nil, err
	}
	if err := r.SetStateDict(state); err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	resetHead(r)
	b.Log.Info("Loaded pretrained network", "arch", arch, "path", path)
	return newNetwork(arch, r, b.Device), nil
}

func loadStateDict(path string) (map[string]torch.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	states := make(map[string]torch.Tensor)
	if err := gob.NewDecoder(f).Decode(&states); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return states, nil
}
