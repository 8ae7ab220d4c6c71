// Package output renders pipelinectl results for humans or, with --json, for
// scripts.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Printer writes status lines to out and failures to errOut. In JSON mode
// only JSON is written, so stdout stays machine readable.
type Printer struct {
	out     io.Writer
	errOut  io.Writer
	json    bool
	quiet   bool
	noColor bool
}

type Option func(*Printer)

func WithJSON(enabled bool) Option {
	return func(p *Printer) { p.json = enabled }
}

func WithQuiet(enabled bool) Option {
	return func(p *Printer) { p.quiet = enabled }
}

func WithNoColor(enabled bool) Option {
	return func(p *Printer) { p.noColor = enabled }
}

func WithOutput(w io.Writer) Option {
	return func(p *Printer) { p.out = w }
}

func WithErrOutput(w io.Writer) Option {
	return func(p *Printer) { p.errOut = w }
}

func New(opts ...Option) *Printer {
	p := &Printer{out: os.Stdout, errOut: os.Stderr}
	for _, opt := range opts {
		opt(p)
	}
	if p.noColor {
		color.NoColor = true
	}
	return p
}

func (p *Printer) Out() io.Writer {
	return p.out
}

// silent reports whether human-readable status lines are suppressed.
func (p *Printer) silent() bool {
	return p.quiet || p.json
}

func (p *Printer) line(w io.Writer, icon, format string, args []any) {
	fmt.Fprintf(w, "%s %s\n", icon, fmt.Sprintf(format, args...))
}

func (p *Printer) Success(format string, args ...any) {
	if !p.silent() {
		p.line(p.out, color.GreenString("✓"), format, args)
	}
}

func (p *Printer) Info(format string, args ...any) {
	if !p.silent() {
		p.line(p.out, color.CyanString("→"), format, args)
	}
}

func (p *Printer) Warn(format string, args ...any) {
	if !p.silent() {
		p.line(p.out, color.YellowString("!"), format, args)
	}
}

// Error goes to errOut and is printed in quiet mode too.
func (p *Printer) Error(format string, args ...any) {
	if !p.json {
		p.line(p.errOut, color.RedString("✗"), format, args)
	}
}

// KeyValue prints an indented detail under the preceding status line.
func (p *Printer) KeyValue(key, value string) {
	if !p.silent() {
		fmt.Fprintf(p.out, "    %s %s\n", color.HiBlackString(key+":"), value)
	}
}

func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Summary closes a batch command with its success count.
func (p *Printer) Summary(succeeded, failed int) {
	if p.silent() {
		return
	}
	total := succeeded + failed
	fmt.Fprintln(p.out)
	if failed > 0 {
		fmt.Fprintln(p.out, color.YellowString("%d/%d completed (%d failed)", succeeded, total, failed))
		return
	}
	fmt.Fprintln(p.out, color.GreenString("%d/%d completed successfully", succeeded, total))
}
