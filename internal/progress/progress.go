// Package progress renders per-entry progress of a relocation pass on a
// terminal.
package progress

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Bar counts processed entries. A nil *Bar is valid and does nothing, so
// callers never need to check whether progress is enabled.
type Bar struct {
	bar *progressbar.ProgressBar
}

// New returns a bar for total entries writing to out, or nil when out is not
// a terminal.
func New(out io.Writer, total int, description string) *Bar {
	f, ok := out.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return nil
	}
	return NewWithWriter(out, total, description)
}

// NewWithWriter returns a bar rendering to out regardless of whether it is a
// terminal.
func NewWithWriter(out io.Writer, total int, description string) *Bar {
	return &Bar{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(0),
		progressbar.OptionClearOnFinish(),
	)}
}

func (b *Bar) Add(n int) {
	if b == nil {
		return
	}
	_ = b.bar.Add(n)
}

func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}
