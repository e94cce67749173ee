package ml

import (
	"fmt"
	"io"
	"strings"
	"time"

	"k8s.io/utils/clock"
)

// Phase names the half of an epoch being run.
type Phase string

const (
	PhaseTrain Phase = "train"
	PhaseVal   Phase = "val"
)

// Running accumulates per-batch results over one phase.
type Running struct {
	Loss    float64
	Correct int
	Total   int
	Batches int
}

func (r *Running) Add(s StepResult) {
	r.Loss += s.Loss
	r.Correct += s.Correct
	r.Total += s.Total
	r.Batches++
}

// AvgLoss is the mean minibatch loss so far.
func (r Running) AvgLoss() float64 {
	if r.Batches == 0 {
		return 0
	}
	return r.Loss / float64(r.Batches)
}

// Accuracy is 100 * correct / total, or 0 before any sample is seen.
func (r Running) Accuracy() float64 {
	if r.Total == 0 {
		return 0
	}
	return 100 * float64(r.Correct) / float64(r.Total)
}

const barWidth = 30

// Reporter prints the plain-text console output of a run.
type Reporter struct {
	out   io.Writer
	clock clock.PassiveClock
}

func NewReporter(out io.Writer, clk clock.PassiveClock) *Reporter {
	return &Reporter{out: out, clock: clk}
}

func (r *Reporter) Epoch(epoch int, lr float64) {
	fmt.Fprintf(r.out, "\nEpoch: %d (lr %g)\n", epoch, lr)
}

// Start begins progress reporting for a phase of total batches.
func (r *Reporter) Start(phase Phase, total int) *Progress {
	return &Progress{r: r, phase: phase, total: total, start: r.clock.Now()}
}

// Summary prints the end-of-phase accuracy line.
func (r *Reporter) Summary(phase Phase, epoch int, run Running) {
	fmt.Fprintf(r.out, "%s epoch: %d Loss: %.3f Acc: %.3f %d %d\n",
		phase, epoch, run.AvgLoss(), run.Accuracy(), run.Correct, run.Total)
}

func (r *Reporter) Saving() {
	fmt.Fprintln(r.out, "Saving..")
}

func (r *Reporter) Best(b Best) {
	fmt.Fprintf(r.out, "best epoch: %d acc: %.3f\n", b.Epoch, b.Acc)
}

// Progress draws one line per batch of a phase.
type Progress struct {
	r     *Reporter
	phase Phase
	total int
	start time.Time
}

// Update reports the running metrics after batch number done (1-based).
func (p *Progress) Update(done int, run Running) {
	filled := barWidth
	if p.total > 0 && done < p.total {
		filled = barWidth * done / p.total
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(".", barWidth-filled)
	elapsed := p.r.clock.Since(p.start)

	fmt.Fprintf(p.r.out, " [%s] %d/%d | Tot: %s | Loss: %.3f | Acc: %.3f%% (%d/%d)\n",
		bar, done, p.total, formatDuration(elapsed), run.AvgLoss(), run.Accuracy(), run.Correct, run.Total)
}

// formatDuration renders d as MM:SS, or HH:MM:SS past the hour.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
