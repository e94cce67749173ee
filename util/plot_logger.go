package util

import (
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
)

// PlotLogger appends one whitespace-separated line per training phase so that
// loss and accuracy curves can be plotted after (or during) a run.
type PlotLogger struct {
	logger *log.Logger
	closer io.Closer
}

// OpenPlotLogger appends to fname, writing a header when the file is new.
// An empty fname yields a logger that discards everything.
func OpenPlotLogger(fname string) (*PlotLogger, error) {
	if fname == "" {
		return NewPlotLogger(io.Discard), nil
	}

	_, statErr := os.Stat(fname)
	file, err := os.OpenFile(fname, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening plot log")
	}
	pl := NewPlotLogger(file)
	pl.closer = file
	if os.IsNotExist(statErr) {
		pl.logger.Println("epoch phase loss acc lr")
	}
	return pl, nil
}

// NewPlotLogger writes plot lines to w.
func NewPlotLogger(w io.Writer) *PlotLogger {
	return &PlotLogger{logger: log.New(w, "", 0)}
}

// Record logs the summary of one phase of one epoch.
func (pl *PlotLogger) Record(epoch int, phase string, loss, acc, lr float64) {
	pl.logger.Printf("%d %s %.6f %.3f %g", epoch, phase, loss, acc, lr)
}

func (pl *PlotLogger) Close() error {
	if pl.closer == nil {
		return nil
	}
	return pl.closer.Close()
}
