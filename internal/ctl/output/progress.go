package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress counts finished items on a bar drawn to stderr. In quiet mode it
// only counts, so callers need not check.
type Progress struct {
	bar     *progressbar.ProgressBar
	quiet   bool
	out     io.Writer
	label   string
	started time.Time
	done    int
}

type ProgressOption func(*Progress)

func ProgressWithQuiet(quiet bool) ProgressOption {
	return func(p *Progress) {
		p.quiet = quiet
	}
}

func ProgressWithOutput(out io.Writer) ProgressOption {
	return func(p *Progress) {
		p.out = out
	}
}

func NewProgress(total int, label string, opts ...ProgressOption) *Progress {
	p := &Progress{out: os.Stderr, label: label, started: time.Now()}
	for _, opt := range opts {
		opt(p)
	}
	if !p.quiet {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(label),
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetWidth(24),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.out) }),
		)
	}
	return p
}

func (p *Progress) Increment() {
	p.done++
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// Step increments the bar and shows label as the item just finished.
func (p *Progress) Step(label string) {
	if p.bar != nil {
		p.bar.Describe(p.label + " " + label)
	}
	p.Increment()
}

func (p *Progress) Done() int {
	return p.done
}

func (p *Progress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func (p *Progress) Duration() time.Duration {
	return time.Since(p.started)
}
