package types

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gosuri/uilive"
)

// progressLine is the latest status of one experiment of a parallel run.
type progressLine struct {
	mu       sync.Mutex
	text     string
	finished bool
}

func (l *progressLine) set(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.finished {
		l.text = s
	}
}

// finish freezes the line, later updates are dropped
func (l *progressLine) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.finished = true
}

func (l *progressLine) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	state := "running"
	if l.finished {
		state = "done"
	}
	return fmt.Sprintf("[%-7s] %s", state, l.text)
}

// progressBoard redraws one terminal row per experiment while they run
// concurrently. Rows after the first go through uilive bypass writers so
// the whole block is rewritten in place.
type progressBoard struct {
	lines    []*progressLine
	live     *uilive.Writer
	rows     []io.Writer
	interval time.Duration

	stop    chan struct{}
	stopped chan struct{}
}

func newProgressBoard(out io.Writer, n int, interval time.Duration) *progressBoard {
	live := uilive.New()
	live.Out = out
	b := &progressBoard{
		lines:    make([]*progressLine, n),
		live:     live,
		rows:     []io.Writer{live},
		interval: interval,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for i := range b.lines {
		b.lines[i] = &progressLine{}
		if i > 0 {
			b.rows = append(b.rows, live.Newline())
		}
	}
	return b
}

func (b *progressBoard) start() {
	b.live.Start()
	go func() {
		defer close(b.stopped)
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-b.stop:
				return
			case <-ticker.C:
				b.redraw()
			}
		}
	}()
}

// close draws the final state of every experiment and releases the terminal
func (b *progressBoard) close() {
	close(b.stop)
	<-b.stopped
	b.redraw()
	b.live.Stop()
}

func (b *progressBoard) redraw() {
	for i, l := range b.lines {
		fmt.Fprintln(b.rows[i], l.String())
	}
	b.live.Flush()
}
