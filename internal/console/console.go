// Package console implements dispatch.Thread on a terminal or any writer.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/apexion-ai/threadbot/internal/dispatch"
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Printer serialises output from many threads onto one writer.
type Printer struct {
	w  io.Writer
	mu sync.Mutex // threads are dispatched from parallel goroutines

	name    *color.Color
	info    *color.Color
	warning *color.Color
	failure *color.Color
}

// NewPrinter writes to w, with ANSI colours when colorize is set.
func NewPrinter(w io.Writer, colorize bool) *Printer {
	p := &Printer{
		w:       w,
		name:    color.New(color.FgCyan, color.Bold),
		info:    color.New(color.FgGreen),
		warning: color.New(color.FgYellow),
		failure: color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.name, p.info, p.warning, p.failure} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Thread returns a thread labelled id. botName prefixes reply lines.
func (p *Printer) Thread(id, botName string) *Thread {
	return &Thread{printer: p, id: id, botName: botName}
}

func (p *Printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

// Thread prints replies and notices; it keeps no history.
type Thread struct {
	printer *Printer
	id      string
	botName string

	mu     sync.Mutex
	seq    int
	closed bool
}

func (t *Thread) ID() string { return t.id }

func (t *Thread) Send(_ context.Context, text string) (dispatch.Sent, error) {
	if err := t.checkOpen(); err != nil {
		return dispatch.Sent{}, err
	}
	p := t.printer
	p.printf("[%s] %s %s\n", t.id, p.name.Sprint(t.botName+":"), text)
	return dispatch.Sent{ID: t.next()}, nil
}

func (t *Thread) Notify(_ context.Context, n dispatch.Notice) (dispatch.Sent, error) {
	if err := t.checkOpen(); err != nil {
		return dispatch.Sent{}, err
	}
	p := t.printer
	c := p.info
	switch n.Severity {
	case dispatch.SeverityWarning:
		c = p.warning
	case dispatch.SeverityError:
		c = p.failure
	}
	// Strip markdown emphasis; terminals have colour instead.
	p.printf("[%s] %s\n", t.id, c.Sprint(strings.ReplaceAll(n.Text, "**", "")))
	return dispatch.Sent{ID: t.next()}, nil
}

func (t *Thread) Close(_ context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.printer.printf("[%s] %s\n", t.id, t.printer.failure.Sprint("thread closed: conversation too long"))
	return nil
}

// Closed reports whether Close was called.
func (t *Thread) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Thread) checkOpen() error {
	if t.Closed() {
		return fmt.Errorf("thread %s is closed", t.id)
	}
	return nil
}

func (t *Thread) next() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	return fmt.Sprintf("%s-%d", t.id, t.seq)
}
