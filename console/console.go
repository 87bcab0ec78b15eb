// Package console is a line-oriented command shell over the TWI driver. It
// runs the same on a firmware UART and against the desktop simulator: bytes
// go in through Feed or whole lines through Exec, replies go out through an
// io.Writer, and Poll reports instructions that have finished.
package console

import (
	"errors"
	"io"
	"strconv"
	"sync/atomic"

	"nbtwi/core"

	"github.com/google/shlex"
)

const (
	MaxLine     = 96 // Longest accepted command line
	MaxTransfer = 32 // Largest read or write accepted from the console
)

var (
	ErrUsage       = errors.New("usage")
	ErrLineTooLong = errors.New("line too long")
	ErrUnknownID   = errors.New("unknown id")
	ErrInFlight    = errors.New("instruction in flight")
	ErrFinished    = errors.New("already finished")
)

// request tracks the instructions submitted for one command
type request struct {
	id    uint16
	insts []*core.Instruction
	buf   []byte // read destination, nil for plain writes

	want int    // instructions still expected to finish
	done uint32 // atomic; bumped from the event context
}

func (r *request) complete(inst *core.Instruction, err error) {
	atomic.AddUint32(&r.done, 1)
}

// Console is one command shell bound to a controller.
type Console struct {
	ctrl     *core.Controller
	out      io.Writer
	registry *CommandRegistry

	line    []byte
	nextID  uint16
	pending []*request
}

// New creates a console with the built-in commands registered.
func New(ctrl *core.Controller, out io.Writer) *Console {
	c := &Console{
		ctrl:     ctrl,
		out:      out,
		registry: NewCommandRegistry(),
		line:     make([]byte, 0, MaxLine),
	}
	registerBuiltins(c.registry)
	return c
}

// Registry returns the command registry so callers can add commands.
func (c *Console) Registry() *CommandRegistry {
	return c.registry
}

// Controller returns the controller the console drives.
func (c *Console) Controller() *core.Controller {
	return c.ctrl
}

// Println writes one reply line.
func (c *Console) Println(s string) {
	io.WriteString(c.out, s+"\n")
}

// Feed accepts one input byte, running the line on CR or LF.
func (c *Console) Feed(b byte) {
	switch b {
	case '\r', '\n':
		if len(c.line) == 0 {
			return
		}
		line := string(c.line)
		c.line = c.line[:0]
		c.Exec(line)

	case 0x08, 0x7F: // backspace, delete
		if len(c.line) > 0 {
			c.line = c.line[:len(c.line)-1]
		}

	default:
		if len(c.line) >= MaxLine {
			c.line = c.line[:0]
			c.Println("err " + ErrLineTooLong.Error())
			return
		}
		c.line = append(c.line, b)
	}
}

// Exec runs one command line. Errors are also reported as an "err" line.
func (c *Console) Exec(line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		c.Println("err " + err.Error())
		return err
	}
	if len(args) == 0 {
		return nil
	}

	if err := c.registry.Dispatch(c, args[0], args[1:]); err != nil {
		if err == ErrUsage {
			if cmd, ok := c.registry.Lookup(args[0]); ok {
				c.Println("err usage: " + cmd.Name + " " + cmd.Usage)
				return err
			}
		}
		c.Println("err " + err.Error())
		return err
	}
	return nil
}

// Poll prints a "done" line for every request whose instructions have all
// finished. Call it from the main loop.
func (c *Console) Poll() {
	kept := c.pending[:0]
	for _, req := range c.pending {
		if int(atomic.LoadUint32(&req.done)) < req.want {
			kept = append(kept, req)
			continue
		}
		c.report(req)
	}
	for i := len(kept); i < len(c.pending); i++ {
		c.pending[i] = nil
	}
	c.pending = kept
}

// Pending returns the number of requests not yet reported.
func (c *Console) Pending() int {
	return len(c.pending)
}

func (c *Console) report(req *request) {
	id := strconv.Itoa(int(req.id))

	for _, inst := range req.insts {
		if err := inst.Result(); err != nil {
			c.Println("done " + id + " err " + err.Error())
			return
		}
	}

	if req.buf != nil {
		c.Println("done " + id + " ok " + core.HexBytes(req.buf))
		return
	}
	c.Println("done " + id + " ok")
}

// submit queues a write of w (if any) followed by a read into r (if any) as
// one request and returns its id. When the read cannot be queued behind a
// write that has already reached the bus, the request stays pending for the
// write alone and its id is returned along with the error.
func (c *Console) submit(addr core.I2CAddress, w, r []byte) (uint16, error) {
	q := c.ctrl.Queue()
	if q == nil {
		return 0, core.ErrNoQueue
	}

	c.nextID++
	req := &request{id: c.nextID}

	if len(w) > 0 {
		inst, err := q.EnqueueFunc(addr, core.Write, w, req.complete)
		if err != nil {
			return 0, err
		}
		req.insts = append(req.insts, inst)
	}
	if len(r) > 0 {
		inst, err := q.EnqueueFunc(addr, core.Read, r, req.complete)
		if err != nil {
			if removed, werr := q.WithdrawAll(req.insts); werr == nil && removed == len(req.insts) {
				return 0, err
			}
			req.want = len(req.insts)
			c.pending = append(c.pending, req)
			return req.id, err
		}
		req.insts = append(req.insts, inst)
		req.buf = r
	}

	req.want = len(req.insts)
	c.pending = append(c.pending, req)

	return req.id, nil
}

// drop withdraws a pending request. A request with an instruction on the bus
// is left untouched.
func (c *Console) drop(id uint16) error {
	q := c.ctrl.Queue()
	if q == nil {
		return core.ErrNoQueue
	}

	for i, req := range c.pending {
		if req.id != id {
			continue
		}

		removed, err := q.WithdrawAll(req.insts)
		switch {
		case err != nil:
			return ErrInFlight
		case removed == 0:
			return ErrFinished
		}
		c.pending = append(c.pending[:i], c.pending[i+1:]...)
		return nil
	}

	return ErrUnknownID
}

// requestID finds the request that owns inst
func (c *Console) requestID(inst *core.Instruction) (uint16, bool) {
	for _, req := range c.pending {
		for _, it := range req.insts {
			if it == inst {
				return req.id, true
			}
		}
	}
	return 0, false
}
