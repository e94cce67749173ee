package torchml

import (
	"context"

	"github.com/pkg/errors"
	torch "github.com/wangkuiyi/gotorch"
	"github.com/wangkuiyi/gotorch/vision/transforms"
	"gocv.io/x/gocv"

	"dogcat/dataset"
	"dogcat/ml"
)

// Batch is a stacked image tensor [N,3,224,224] with its int64 labels [N].
type Batch struct {
	Images torch.Tensor
	Labels torch.Tensor
	n      int
}

func (b *Batch) Len() int { return b.n }

// Release lets libtorch free the tensors of batches that are no longer referenced.
func (b *Batch) Release() { torch.GC() }

// Collator decodes image files and runs them through a transform pipeline.
type Collator struct {
	trans *transforms.ComposeTransformer
}

func NewCollator(trans *transforms.ComposeTransformer) *Collator {
	return &Collator{trans: trans}
}

func (c *Collator) Collate(samples []dataset.Sample) (*Batch, error) {
	images := make([]torch.Tensor, 0, len(samples))
	labels := make([]int64, 0, len(samples))
	for _, s := range samples {
		t, err := c.load(s.Path)
		if err != nil {
			return nil, err
		}
		images = append(images, t)
		labels = append(labels, int64(s.Label))
	}
	return &Batch{
		Images: torch.Stack(images, 0),
		Labels: torch.NewTensor(labels),
		n:      len(samples),
	}, nil
}

func (c *Collator) load(path string) (torch.Tensor, error) {
	bgr := gocv.IMRead(path, gocv.IMReadColor)
	defer bgr.Close()
	if bgr.Empty() {
		return torch.Tensor{}, errors.Errorf("cannot decode image %s", path)
	}
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(bgr, &rgb, gocv.ColorBGRToRGB)
	return c.trans.Run(rgb).(torch.Tensor), nil
}

// Source adapts a dataset loader of Batches to ml.Source.
type Source struct {
	*dataset.Loader[*Batch]
}

// NewSource loads samples through trans in batches described by cfg.
func NewSource(samples []dataset.Sample, trans *transforms.ComposeTransformer, cfg dataset.Config) *Source {
	return &Source{dataset.NewLoader[*Batch](samples, NewCollator(trans), cfg)}
}

func (s *Source) Pass(ctx context.Context) ml.BatchIterator {
	return iterator{s.Iterate(ctx)}
}

type iterator struct {
	*dataset.Iterator[*Batch]
}

func (it iterator) Minibatch() ml.Batch { return it.Iterator.Minibatch() }
