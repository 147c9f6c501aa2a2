// Package progress draws the stderr progress indicators of the CLI.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Tracker wraps a progress bar counting loaded entries or marked symbols.
type Tracker struct {
	bar   *progressbar.ProgressBar
	label string
	out   io.Writer
}

// Option configures a Tracker.
type Option func(*config)

type config struct {
	out io.Writer
}

// WithWriter draws the tracker on w instead of stderr.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.out = w }
}

// Silent draws nothing. Counting still works.
func Silent() Option { return WithWriter(io.Discard) }

func configure(opts []Option) config {
	c := config{out: os.Stderr}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// NewSpinner creates a spinner for work with no known total, such as the
// mark queue which grows while it drains.
func NewSpinner(label string, opts ...Option) *Tracker {
	c := configure(opts)
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return &Tracker{bar: bar, label: label, out: c.out}
}

// Tick increments the count by one. Safe for concurrent use.
func (t *Tracker) Tick() {
	_ = t.bar.Add(1)
}

// Count returns the number of ticks so far.
func (t *Tracker) Count() int {
	return int(t.bar.State().CurrentNum)
}

// FinishSuccess clears the bar.
func (t *Tracker) FinishSuccess() {
	_ = t.bar.Finish()
	_ = t.bar.Clear()
}

// FinishSkipped clears the bar and prints why the step was skipped.
func (t *Tracker) FinishSkipped(reason string) {
	t.FinishSuccess()
	fmt.Fprintf(t.out, "  %s skipped (%s)\n", t.label, reason)
}

// FinishError clears the bar and prints the error.
func (t *Tracker) FinishError(err error) {
	t.FinishSuccess()
	fmt.Fprintf(t.out, "  %s error: %v\n", t.label, err)
}
