// Package progress renders enrichment progress on a terminal.
package progress

import (
	"io"
	"os"

	"gopkg.in/cheggaaa/pb.v1"
)

// Bar implements ports.Progress with a pb progress bar.
type Bar struct {
	out io.Writer
	bar *pb.ProgressBar
}

// NewBar creates a bar writing to out, or stderr when out is nil.
func NewBar(out io.Writer) *Bar {
	if out == nil {
		out = os.Stderr
	}
	return &Bar{out: out}
}

// Start begins a new bar for total items.
func (b *Bar) Start(total int) {
	b.bar = pb.New(total)
	b.bar.Output = b.out
	b.bar.Start()
}

// Increment advances the bar by one.
func (b *Bar) Increment() {
	if b.bar != nil {
		b.bar.Increment()
	}
}

// Finish stops the bar and prints msg.
func (b *Bar) Finish(msg string) {
	if b.bar == nil {
		return
	}
	b.bar.FinishPrint(msg)
}

// Current returns the number of completed items.
func (b *Bar) Current() int64 {
	if b.bar == nil {
		return 0
	}
	return b.bar.Get()
}
