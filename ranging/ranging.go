// Package ranging polls a VL6180X rangefinder in continuous mode without
// ever waiting on the bus. Task queues a few instructions, returns, and picks
// the results up on a later call once they have left the queue.
package ranging

import (
	"nbtwi/core"
)

const (
	Address = 0x29

	regInterruptConfig = 0x0014
	regInterruptClear  = 0x0015
	regRangeStart      = 0x0018
	regInterPeriod     = 0x001B
	regInterruptStatus = 0x004F
	regRangeValue      = 0x0062

	rangeReady      = 0x04
	startContinuous = 0x03
	clearAll        = 0x07
)

type state uint8

const (
	stateIdle state = iota
	statePollStatus
	stateReadRange
)

// Ranger runs the ranging cycle: poll the interrupt status, and when a
// sample is ready read it and clear the interrupt.
type Ranger struct {
	q    *core.Queue
	addr core.I2CAddress

	state   state
	waitFor *core.Instruction
	readOp  *core.Instruction

	status [1]byte
	value  [1]byte

	// StallPolls restarts continuous ranging after this many status polls
	// without a sample. Zero disables restarts.
	StallPolls int
	stalled    int

	last     uint8
	samples  uint32
	errors   uint32
	restarts uint32
}

// New creates a ranger that queues on q.
func New(q *core.Queue) *Ranger {
	return &Ranger{q: q, addr: Address, StallPolls: 200}
}

// Start queues the continuous-mode configuration. It reports false if the
// queue refused an instruction, after taking back the part it had queued;
// call it again later.
func (r *Ranger) Start() bool {
	var queued []*core.Instruction
	for _, cmd := range [][]byte{
		{0x00, regInterPeriod, 0x00},       // back-to-back measurements
		{0x00, regInterruptConfig, 0x04},   // interrupt on new sample
		{0x00, regRangeStart, startContinuous},
	} {
		inst, err := r.q.Enqueue(r.addr, core.Write, cmd)
		if err != nil {
			r.q.WithdrawAll(queued)
			return false
		}
		queued = append(queued, inst)
	}
	return true
}

// Task advances the cycle by at most one step. Call it every main-loop
// iteration.
func (r *Ranger) Task() {
	if r.waitFor != nil && r.q.Contains(r.waitFor) {
		return
	}

	switch r.state {
	case stateIdle:
		r.pollStatus()

	case statePollStatus:
		if r.readOp.Result() != nil {
			r.errors++
			r.state = stateIdle
			return
		}
		if r.status[0]&rangeReady == 0 {
			r.stall()
			r.state = stateIdle
			return
		}
		r.stalled = 0
		r.readRange()

	case stateReadRange:
		if r.readOp.Result() != nil {
			r.errors++
		} else {
			r.last = r.value[0]
			r.samples++
		}
		r.state = stateIdle
	}
}

func (r *Ranger) pollStatus() {
	read, ok := r.readRegister(regInterruptStatus, r.status[:])
	if !ok {
		return
	}

	r.readOp = read
	r.waitFor = read
	r.state = statePollStatus
}

func (r *Ranger) readRange() {
	read, ok := r.readRegister(regRangeValue, r.value[:])
	if !ok {
		return
	}
	ack, err := r.q.Enqueue(r.addr, core.Write, []byte{0x00, regInterruptClear, clearAll})
	if err != nil {
		// The sample is still picked up; the interrupt is cleared next cycle
		ack = read
	}

	r.readOp = read
	r.waitFor = ack
	r.state = stateReadRange
}

// stall counts a poll without a sample and restarts ranging when it stalls
func (r *Ranger) stall() {
	if r.StallPolls == 0 {
		return
	}

	r.stalled++
	if r.stalled < r.StallPolls {
		return
	}
	if r.enqueue(core.Write, []byte{0x00, regRangeStart, startContinuous}) {
		r.stalled = 0
		r.restarts++
		core.DebugAsync("ranging: no sample, restarted continuous mode")
	}
}

func (r *Ranger) enqueue(dir core.Direction, buf []byte) bool {
	_, err := r.q.Enqueue(r.addr, dir, buf)
	return err == nil
}

// readRegister queues the index write and the read that follows it. If the
// read is refused the index write is taken back, so retries do not pile up.
func (r *Ranger) readRegister(reg uint8, buf []byte) (*core.Instruction, bool) {
	index, err := r.q.Enqueue(r.addr, core.Write, []byte{0x00, reg})
	if err != nil {
		return nil, false
	}
	read, err := r.q.Enqueue(r.addr, core.Read, buf)
	if err != nil {
		// A head write cannot be taken back; it finishes on its own
		r.q.Remove(index)
		return nil, false
	}
	return read, true
}

// Last returns the most recent range in millimetres.
func (r *Ranger) Last() uint8 {
	return r.last
}

// Samples returns how many ranges have been read.
func (r *Ranger) Samples() uint32 {
	return r.samples
}

// Errors returns how many cycles were abandoned on a bus error.
func (r *Ranger) Errors() uint32 {
	return r.errors
}

// Restarts returns how many times a stalled sensor was restarted.
func (r *Ranger) Restarts() uint32 {
	return r.restarts
}
