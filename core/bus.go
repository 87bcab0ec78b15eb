package core

import (
	"tinygo.org/x/drivers"
)

// Bus adapts the queued controller to the blocking drivers.I2C interface so
// TinyGo device drivers can run their setup sequences over it. Tx queues the
// write and the read as two transactions and spins the main loop until both
// have left the queue; use it for init code, not from the control loop.
type Bus struct {
	ctrl  *Controller
	yield func()
}

var _ drivers.I2C = (*Bus)(nil)

// NewBus wraps a controller. yield is called while waiting; it should run
// whatever else the main loop services (console, simulator steps). It may be nil.
func NewBus(ctrl *Controller, yield func()) *Bus {
	return &Bus{ctrl: ctrl, yield: yield}
}

// Tx writes w to addr, then reads len(r) bytes into r. Either may be empty.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if addr > uint16(MaxAddress) {
		return ErrInvalidAddress
	}

	q := b.ctrl.Queue()
	if q == nil {
		return ErrNoQueue
	}

	var wr, rd *Instruction
	var err error

	if len(w) > 0 {
		if wr, err = b.enqueue(q, I2CAddress(addr), Write, w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		if rd, err = b.enqueue(q, I2CAddress(addr), Read, r); err != nil {
			b.wait(q, wr)
			return err
		}
	}

	b.wait(q, wr)
	if wr != nil {
		if err := wr.Result(); err != nil {
			b.wait(q, rd)
			return err
		}
	}

	b.wait(q, rd)
	if rd != nil {
		return rd.Result()
	}

	return nil
}

// enqueue retries while the queue is full
func (b *Bus) enqueue(q *Queue, addr I2CAddress, dir Direction, buf []byte) (*Instruction, error) {
	for {
		inst, err := q.Enqueue(addr, dir, buf)
		if err != ErrAllocation {
			return inst, err
		}
		b.step()
	}
}

// wait services the main loop until inst has left the queue
func (b *Bus) wait(q *Queue, inst *Instruction) {
	for q.Contains(inst) {
		b.step()
	}
}

func (b *Bus) step() {
	b.ctrl.PollAdmission()
	if b.yield != nil {
		b.yield()
	}
}
