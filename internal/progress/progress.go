// Package progress renders transfer progress on the terminal. With a real
// TTY it draws a byte-counting progress bar; piped output degrades to plain
// one-line-per-file text so logs stay readable.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Reporter is the interface transfer commands report through.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Fail(message string)
}

// Console implements Reporter on a terminal.
type Console struct {
	out        io.Writer
	isTerminal bool
	bar        *progressbar.ProgressBar
	desc       string
}

// NewConsole creates a console reporter writing to stderr. Stdout stays
// reserved for command output.
func NewConsole() *Console {
	return &Console{
		out:        os.Stderr,
		isTerminal: term.IsTerminal(int(os.Stderr.Fd())),
	}
}

// Start begins a new progress bar for one file.
func (c *Console) Start(total int64, description string) {
	c.desc = description
	if !c.isTerminal {
		fmt.Fprintf(c.out, "%s ...\n", description)
		return
	}
	c.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(c.out, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update moves the bar to the current byte position.
func (c *Console) Update(current int64) {
	if c.bar != nil {
		_ = c.bar.Set64(current)
	}
}

// Finish completes the bar.
func (c *Console) Finish() {
	if c.bar != nil {
		_ = c.bar.Finish()
		c.bar = nil
		return
	}
	if !c.isTerminal {
		fmt.Fprintf(c.out, "%s done\n", c.desc)
	}
}

// Fail abandons the bar and prints the failure.
func (c *Console) Fail(message string) {
	if c.bar != nil {
		_ = c.bar.Clear()
		c.bar = nil
	}
	fmt.Fprintf(c.out, "%s failed: %s\n", c.desc, message)
}

// Message prints a transient status line without disturbing an active bar.
func (c *Console) Message(msg string) {
	if c.bar != nil {
		_ = c.bar.Clear()
	}
	fmt.Fprintln(c.out, msg)
}
