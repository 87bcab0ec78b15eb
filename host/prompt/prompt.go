// Package prompt reads command lines for the interactive host tools. On a
// terminal it switches stdin to raw mode and edits lines with x/term, so
// console output arriving in the background does not garble the line being
// typed. Otherwise it reads plain lines.
package prompt

import (
	"bufio"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// Prompt is a line reader that is also a safe io.Writer for output
type Prompt struct {
	term    *term.Terminal
	scanner *bufio.Scanner

	mu  sync.Mutex // guards out when not on a terminal
	out io.Writer

	fd       int
	oldState *term.State
}

// Open reads from stdin and writes to stdout, using line editing when stdin
// is a terminal. Call Close to restore the terminal.
func Open(prefix string) (*Prompt, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return New(os.Stdin, os.Stdout), nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	p := NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, prefix)
	p.fd = fd
	p.oldState = oldState
	return p, nil
}

// New reads plain newline-terminated lines from in
func New(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{
		scanner: bufio.NewScanner(in),
		out:     out,
	}
}

// NewTerminal edits lines on rw, which must already be in raw mode
func NewTerminal(rw io.ReadWriter, prefix string) *Prompt {
	return &Prompt{
		term: term.NewTerminal(rw, prefix),
	}
}

// ReadLine returns the next line without its terminator. It returns io.EOF
// at end of input or on Ctrl-D.
func (p *Prompt) ReadLine() (string, error) {
	if p.term != nil {
		return p.term.ReadLine()
	}

	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scanner.Text(), nil
}

// Write prints output above the line being edited
func (p *Prompt) Write(b []byte) (int, error) {
	if p.term != nil {
		return p.term.Write(b)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

// Println writes s and a newline
func (p *Prompt) Println(s string) {
	io.WriteString(p, s+"\n")
}

// Close restores the terminal state
func (p *Prompt) Close() error {
	if p.oldState == nil {
		return nil
	}
	err := term.Restore(p.fd, p.oldState)
	p.oldState = nil
	return err
}
