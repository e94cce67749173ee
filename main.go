package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	torch "github.com/wangkuiyi/gotorch"
	"github.com/wangkuiyi/gotorch/nn/initializer"
	"k8s.io/utils/clock"

	"dogcat/config"
	"dogcat/dataset"
	"dogcat/ml"
	"dogcat/torchml"
	"dogcat/util"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.PrintConfig {
		out, err := cfg.YAML()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	log, err := util.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Error(err, "Training failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logr.Logger) error {
	initializer.ManualSeed(cfg.Seed)
	defer torch.FinishGC()
	device := torchml.SelectDevice(log)

	fs := afero.NewOsFs()
	trainSet, err := dataset.ScanFolder(fs, cfg.TrainDir)
	if err != nil {
		return err
	}
	valSet, err := dataset.ScanFolder(fs, cfg.ValDir)
	if err != nil {
		return err
	}
	if !trainSet.SameClasses(valSet) {
		return errors.Errorf("train classes %v and val classes %v differ", trainSet.Classes, valSet.Classes)
	}
	log.Info("Scanned datasets", "classes", trainSet.Classes,
		"train", trainSet.Distribution(), "val", valSet.Distribution())

	train := torchml.NewSource(trainSet.Samples, torchml.TrainTransform(), dataset.Config{
		BatchSize: cfg.BatchSize, Shuffle: true, Workers: cfg.Workers, Seed: cfg.Seed,
	})
	val := torchml.NewSource(valSet.Samples, torchml.ValTransform(), dataset.Config{
		BatchSize: cfg.BatchSize, Workers: cfg.Workers,
	})

	builder := &torchml.Builder{
		Device:   device,
		BaseURL:  cfg.PretrainedURL,
		ModelDir: cfg.ModelDir,
		Fetcher: &util.Fetcher{
			Client:  &http.Client{Timeout: 10 * time.Minute},
			Retries: uint64(cfg.DownloadRetries),
			Log:     log.WithName("download"),
		},
		Log: log,
	}
	store := torchml.NewStore(cfg.Checkpoint, device)

	provider := ml.Select(ml.Mode{Pretrained: cfg.Pretrained, Resume: cfg.Resume}, builder, store, cfg.Arch, log)
	log.Info("Preparing model", "provider", provider.Name(), "arch", cfg.Arch)
	h, err := provider.Provide(ctx)
	if err != nil {
		return err
	}

	plot, err := util.OpenPlotLogger(cfg.PlotLog)
	if err != nil {
		return err
	}
	defer plot.Close()

	metrics := ml.NewMetrics(cfg.MetricsFile)
	ctrl := ml.NewController(h.Net, torchml.CrossEntropy{}, torchml.SGD,
		ml.SGDParams{LR: cfg.LR, Momentum: 0.9, WeightDecay: 5e-4}, log)
	defer ctrl.Close()

	t := &ml.Trainer{
		Net:     h.Net,
		Ctrl:    ctrl,
		Train:   train,
		Val:     val,
		Ckpt:    ml.NewCheckpointManager(store, metrics, log),
		Report:  ml.NewReporter(os.Stdout, clock.RealClock{}),
		Metrics: metrics,
		Plot:    plot,
		Log:     log,
	}
	log.Info("Starting training", "start", h.StartEpoch, "epochs", cfg.Epochs,
		"bestAcc", h.Best.Acc, "bestEpoch", h.Best.Epoch,
		"trainBatches", train.NumBatches(), "valBatches", val.NumBatches())
	best, err := t.Run(ctx, h.StartEpoch, cfg.Epochs, h.Best)
	if err != nil {
		return err
	}
	log.Info("Training finished", "bestAcc", best.Acc, "bestEpoch", best.Epoch)
	return nil
}
