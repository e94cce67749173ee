package ml

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
)

// Handle is the network a run starts from, with the state it resumes at.
type Handle struct {
	Net        Network
	Best       Best
	StartEpoch int
}

// Provider produces the starting Handle of a run.
type Provider interface {
	Name() string
	Provide(ctx context.Context) (Handle, error)
}

// Builder constructs networks of a named architecture with a two-class head.
type Builder interface {
	// Fresh returns a randomly initialized network.
	Fresh(arch string) (Network, error)
	// Pretrained returns a network loaded from downloaded pretrained weights,
	// whose final linear layer has been replaced by a fresh two-output one.
	Pretrained(ctx context.Context, arch string) (Network, error)
}

// Mode carries the flags that pick a Provider.
type Mode struct {
	Pretrained bool
	Resume     bool
}

// Select picks the provider for mode. Pretrained wins over resume.
func Select(mode Mode, b Builder, s Store, arch string, log logr.Logger) Provider {
	switch {
	case mode.Pretrained:
		if mode.Resume {
			log.Info("Both pretrained and resume are set; using pretrained weights and ignoring the checkpoint")
		}
		return Pretrained(b, arch)
	case mode.Resume:
		return Resume(s)
	default:
		return Fresh(b, arch)
	}
}

type pretrainedProvider struct {
	b    Builder
	arch string
}

// Pretrained fine-tunes a downloaded network from epoch 0.
func Pretrained(b Builder, arch string) Provider {
	return &pretrainedProvider{b: b, arch: arch}
}

func (p *pretrainedProvider) Name() string { return "pretrained" }

func (p *pretrainedProvider) Provide(ctx context.Context) (Handle, error) {
	net, err := p.b.Pretrained(ctx, p.arch)
	if err != nil {
		return Handle{}, errors.Wrapf(err, "loading pretrained %s", p.arch)
	}
	return Handle{Net: net}, nil
}

type resumeProvider struct {
	s Store
}

// Resume restarts from the saved checkpoint. The run restarts at the saved
// epoch itself, which is trained again.
func Resume(s Store) Provider {
	return &resumeProvider{s: s}
}

func (p *resumeProvider) Name() string { return "resume" }

func (p *resumeProvider) Provide(ctx context.Context) (Handle, error) {
	if !p.s.Exists() {
		return Handle{}, ErrNoCheckpoint
	}
	net, rec, err := p.s.Load()
	if err != nil {
		return Handle{}, errors.Wrap(err, "loading checkpoint")
	}
	return Handle{
		Net:        net,
		Best:       Best{Acc: rec.Acc, Epoch: rec.Epoch},
		StartEpoch: rec.Epoch,
	}, nil
}

type freshProvider struct {
	b    Builder
	arch string
}

// Fresh trains a randomly initialized network from epoch 0.
func Fresh(b Builder, arch string) Provider {
	return &freshProvider{b: b, arch: arch}
}

func (p *freshProvider) Name() string { return "fresh" }

func (p *freshProvider) Provide(ctx context.Context) (Handle, error) {
	net, err := p.b.Fresh(p.arch)
	if err != nil {
		return Handle{}, errors.Wrapf(err, "building %s", p.arch)
	}
	return Handle{Net: net}, nil
}
