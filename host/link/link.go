// Package link talks to the TWI console over a serial port. It turns the
// console's text replies back into ids, byte slices and errors, and exposes
// the remote bus as a drivers.I2C.
package link

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"nbtwi/core"

	"tinygo.org/x/drivers"
)

var (
	ErrTimeout  = errors.New("link: timeout waiting for console")
	ErrClosed   = errors.New("link: closed")
	ErrProtocol = errors.New("link: unexpected console reply")
	ErrNotOwned = errors.New("link: request was not submitted on this link")
)

// DefaultTimeout bounds every wait for the console
const DefaultTimeout = 2 * time.Second

// LineHandler observes every line received from the console
type LineHandler func(line string)

// RemoteError is a failure reported by the console. Is matches the driver's
// sentinel errors by message, so errors.Is(err, core.ErrAddressNack) works
// across the link.
type RemoteError struct {
	Msg string
}

func (e *RemoteError) Error() string {
	return e.Msg
}

func (e *RemoteError) Is(target error) bool {
	return target != nil && strings.HasPrefix(e.Msg, target.Error())
}

// Result is the outcome of one console request
type Result struct {
	ID   uint16
	Data []byte // bytes read, nil for writes
	Err  error
}

// Link is a console client. Replies to commands and "done" reports arrive on
// the same stream; a background reader separates them.
type Link struct {
	port io.ReadWriteCloser

	// Timeout bounds Submit, Command and Wait
	Timeout time.Duration

	writeMutex sync.Mutex
	cmdMutex   sync.Mutex // one command awaits its reply at a time

	mu         sync.Mutex
	submitting bool
	waiters    map[uint16]chan *Result
	handler    LineHandler

	replyChan chan string

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

var _ drivers.I2C = (*Link)(nil)

// New starts a link over port
func New(port io.ReadWriteCloser) *Link {
	l := &Link{
		port:      port,
		Timeout:   DefaultTimeout,
		waiters:   make(map[uint16]chan *Result),
		replyChan: make(chan string, 16),
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}

	go l.readLoop()

	return l
}

// SetLineHandler installs a callback that sees every received line
func (l *Link) SetLineHandler(handler LineHandler) {
	l.mu.Lock()
	l.handler = handler
	l.mu.Unlock()
}

// Send writes one command line without waiting for a reply
func (l *Link) Send(line string) error {
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	select {
	case <-l.stopChan:
		return ErrClosed
	default:
	}

	msg := line + "\n"
	n, err := io.WriteString(l.port, msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	return nil
}

// Command sends a line and returns the first reply line. "err" replies are
// returned as *RemoteError. Use it for commands that reply with one line.
func (l *Link) Command(line string) (string, error) {
	l.cmdMutex.Lock()
	defer l.cmdMutex.Unlock()

	reply, err := l.exchange(line)
	if err != nil {
		return "", err
	}
	if msg, ok := strings.CutPrefix(reply, "err "); ok {
		return "", &RemoteError{Msg: msg}
	}
	return reply, nil
}

// Submit sends a write, read or regread command and returns the request id
// the console assigned. Collect the outcome with Wait. A non-zero id with an
// error means only part of the request was queued; it still has to be
// waited for.
func (l *Link) Submit(line string) (uint16, error) {
	l.cmdMutex.Lock()
	defer l.cmdMutex.Unlock()

	l.mu.Lock()
	l.submitting = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.submitting = false
		l.mu.Unlock()
	}()

	reply, err := l.exchange(line)
	if err != nil {
		return 0, err
	}

	if msg, ok := strings.CutPrefix(reply, "err "); ok {
		return 0, &RemoteError{Msg: msg}
	}
	rest, ok := strings.CutPrefix(reply, "queued ")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrProtocol, reply)
	}
	rest, partial, isPartial := strings.Cut(rest, " err ")
	id, err := strconv.ParseUint(rest, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrProtocol, reply)
	}
	if isPartial {
		// Part of the request is on the bus and will still be reported
		return uint16(id), &RemoteError{Msg: partial}
	}
	return uint16(id), nil
}

// Wait blocks until the console reports request id finished
func (l *Link) Wait(id uint16) (*Result, error) {
	l.mu.Lock()
	ch, ok := l.waiters[id]
	l.mu.Unlock()
	if !ok {
		return nil, ErrNotOwned
	}

	defer func() {
		l.mu.Lock()
		delete(l.waiters, id)
		l.mu.Unlock()
	}()

	select {
	case res := <-ch:
		return res, nil

	case <-time.After(l.Timeout):
		return nil, fmt.Errorf("%w: request %d", ErrTimeout, id)

	case <-l.stopChan:
		return nil, ErrClosed
	}
}

// Tx runs a write, a read, or a register read on the remote bus
func (l *Link) Tx(addr uint16, w, r []byte) error {
	if addr > uint16(core.MaxAddress) {
		return core.ErrInvalidAddress
	}

	var line string
	switch {
	case len(w) == 0 && len(r) == 0:
		return nil
	case len(r) == 0:
		line = "write " + hexArg(uint8(addr)) + " " + hexArgs(w)
	case len(w) == 0:
		line = "read " + hexArg(uint8(addr)) + " " + strconv.Itoa(len(r))
	default:
		line = "regread " + hexArg(uint8(addr)) + " " + strconv.Itoa(len(r)) + " " + hexArgs(w)
	}
	id, err := l.Submit(line)
	if err != nil {
		if id != 0 {
			l.Wait(id) // let the queued write finish before reporting
		}
		return err
	}
	res, err := l.Wait(id)
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}

	if len(res.Data) != len(r) {
		return fmt.Errorf("%w: read %d bytes, want %d", ErrProtocol, len(res.Data), len(r))
	}
	copy(r, res.Data)
	return nil
}

// Close stops the reader and closes the port
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.stopChan)
		err = l.port.Close()
		<-l.doneChan
	})
	return err
}

// exchange sends line and waits for the next reply. Caller holds cmdMutex.
func (l *Link) exchange(line string) (string, error) {
	// Replies nobody asked for (typed by hand or left over) are stale
	for len(l.replyChan) > 0 {
		<-l.replyChan
	}

	if err := l.Send(line); err != nil {
		return "", err
	}

	select {
	case reply := <-l.replyChan:
		return reply, nil

	case <-time.After(l.Timeout):
		return "", fmt.Errorf("%w: %q", ErrTimeout, line)

	case <-l.stopChan:
		return "", ErrClosed
	}
}

// readLoop splits the stream into lines and dispatches them
func (l *Link) readLoop() {
	defer close(l.doneChan)

	buffer := make([]byte, 256)
	var line []byte

	for {
		select {
		case <-l.stopChan:
			return
		default:
		}

		n, err := l.port.Read(buffer)
		for _, b := range buffer[:n] {
			switch b {
			case '\n':
				l.dispatch(strings.TrimRight(string(line), "\r"))
				line = line[:0]
			default:
				line = append(line, b)
			}
		}

		if err != nil {
			// tarm/serial reports a read timeout as io.EOF
			if err == io.EOF {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return
		}
	}
}

// dispatch routes one received line
func (l *Link) dispatch(line string) {
	if line == "" {
		return
	}

	l.mu.Lock()
	handler := l.handler
	l.mu.Unlock()
	if handler != nil {
		handler(line)
	}

	if strings.HasPrefix(line, "done ") {
		res, err := parseDone(line)
		if err != nil {
			return
		}
		l.mu.Lock()
		if ch, ok := l.waiters[res.ID]; ok {
			select {
			case ch <- res:
			default:
			}
		}
		l.mu.Unlock()
		return
	}

	// Register the waiter before Submit returns so an early "done" is kept
	if rest, ok := strings.CutPrefix(line, "queued "); ok {
		rest, _, _ = strings.Cut(rest, " err ")
		if id, err := strconv.ParseUint(rest, 10, 16); err == nil {
			l.mu.Lock()
			if l.submitting {
				l.waiters[uint16(id)] = make(chan *Result, 1)
			}
			l.mu.Unlock()
		}
	}

	select {
	case l.replyChan <- line:
	default:
		// Reply channel full, drop oldest
		select {
		case <-l.replyChan:
		default:
		}
		l.replyChan <- line
	}
}

// parseDone decodes "done <id> ok [hex...]" and "done <id> err <reason>"
func parseDone(line string) (*Result, error) {
	parts := strings.SplitN(line, " ", 4)
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: %q", ErrProtocol, line)
	}

	id, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrProtocol, line)
	}
	res := &Result{ID: uint16(id)}

	switch parts[2] {
	case "ok":
		if len(parts) == 4 {
			for _, field := range strings.Fields(parts[3]) {
				b, err := strconv.ParseUint(field, 16, 8)
				if err != nil {
					return nil, fmt.Errorf("%w: %q", ErrProtocol, line)
				}
				res.Data = append(res.Data, uint8(b))
			}
		}
	case "err":
		msg := ""
		if len(parts) == 4 {
			msg = parts[3]
		}
		res.Err = &RemoteError{Msg: msg}
	default:
		return nil, fmt.Errorf("%w: %q", ErrProtocol, line)
	}

	return res, nil
}

func hexArg(b uint8) string {
	return "0x" + strconv.FormatUint(uint64(b), 16)
}

func hexArgs(data []byte) string {
	args := make([]string, len(data))
	for i, b := range data {
		args[i] = hexArg(b)
	}
	return strings.Join(args, " ")
}
