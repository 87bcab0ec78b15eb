// Interrupt-driven TWI (I2C) master
// One hardware event advances the head instruction of the bound queue by
// exactly one protocol step; nothing here waits on the bus.
package core

import "sync/atomic"

// Config holds the clock settings applied by Init.
type Config struct {
	CPUFrequency uint32 // core clock feeding the TWI bit-rate generator, Hz
	BusFrequency uint32 // desired SCL frequency, Hz
}

// Stats counts how instructions ended.
type Stats struct {
	Completed       uint32
	AddressNacks    uint32
	DataNacks       uint32
	ArbitrationLost uint32
	Unexpected      uint32
	Spurious        uint32
}

// Controller is the bus controller context: the registers it drives, the
// queue it consumes and the progress of the transaction in flight.
type Controller struct {
	regs  TWIRegisters
	queue *Queue

	busy   uint32 // atomic; polled context reads it, event context clears it
	cursor int    // event context only

	// Latched at the first event of a transaction; event context only
	current  *Instruction
	currentQ *Queue

	onStatus CompletionFunc
	stats    Stats
}

// NewController creates a controller bound to a register set. It starts idle.
func NewController(regs TWIRegisters) *Controller {
	return &Controller{regs: regs}
}

// Init programs the bit-rate generator and enables the peripheral with its
// event interrupt.
func (c *Controller) Init(cfg Config) error {
	twbr, ps, err := BitRate(cfg.CPUFrequency, cfg.BusFrequency)
	if err != nil {
		return err
	}

	c.regs.SetBitRate(twbr, ps)
	c.regs.SetControl(controlBase)
	c.cursor = 0
	c.current, c.currentQ = nil, nil
	atomic.StoreUint32(&c.busy, 0)

	return nil
}

// Bind selects the queue the controller consumes.
func (c *Controller) Bind(q *Queue) {
	state := disableInterrupts()
	c.queue = q
	restoreInterrupts(state)
}

// Queue returns the bound queue.
func (c *Controller) Queue() *Queue {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	return c.queue
}

// SetStatusHandler installs a controller-wide observer called for every
// instruction that ends, in the event context.
func (c *Controller) SetStatusHandler(fn CompletionFunc) {
	state := disableInterrupts()
	c.onStatus = fn
	restoreInterrupts(state)
}

// Busy reports whether a transaction is in progress.
func (c *Controller) Busy() bool {
	return atomic.LoadUint32(&c.busy) != 0
}

// Cursor returns the number of bytes transferred in the current instruction.
// Only meaningful from the event context or while the bus is quiescent.
func (c *Controller) Cursor() int {
	return c.cursor
}

// Stats returns a copy of the completion counters.
func (c *Controller) Stats() Stats {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	return c.stats
}

// PollAdmission starts the next transaction when the bus is idle and work is
// queued. It is called every main-loop iteration, performs at most one
// register write and returns whether it issued a start condition.
func (c *Controller) PollAdmission() bool {
	if c.Busy() {
		return false
	}

	q := c.Queue()
	if q == nil || q.Size() == 0 {
		return false
	}

	atomic.StoreUint32(&c.busy, 1)
	c.regs.SetControl(controlStart)
	RecordBusEvent(EvtAdmit, StatusNoInfo, 0, 0)

	return true
}

// RequeueHead rotates the head instruction to the back of the queue, for
// round-robin retry. Refused while a transaction is in flight.
func (c *Controller) RequeueHead() bool {
	if c.Busy() {
		return false
	}

	q := c.Queue()
	if q == nil || q.Size() < 2 {
		return false
	}
	q.RequeueHeadToBack()

	return true
}

// OnBusEvent is the event-context entry point: it reads the status register
// and advances the state machine one step. Targets call it from the TWI
// interrupt vector.
func (c *Controller) OnBusEvent() {
	c.HandleStatus(c.regs.Status())
}

// HandleStatus advances the state machine for one status code.
func (c *Controller) HandleStatus(status Status) {
	inst, q := c.current, c.currentQ
	if inst == nil {
		q = c.Queue()
		if q != nil {
			inst = q.claimHead()
		}
		c.current, c.currentQ = inst, q
	}

	if inst == nil {
		// Nothing to continue: release the bus
		c.regs.SetControl(controlStop)
		c.cursor = 0
		atomic.StoreUint32(&c.busy, 0)
		state := disableInterrupts()
		c.stats.Spurious++
		restoreInterrupts(state)
		RecordBusEvent(EvtSpurious, status, 0, 0)
		return
	}

	switch status {
	case StatusStart, StatusRepeatedStart:
		c.transmit(inst.addressByte())
		RecordBusEvent(EvtAddress, status, inst.addr, c.cursor)

	case StatusAddrWriteAck:
		c.transmit(inst.data[0])
		c.cursor = 1
		RecordBusEvent(EvtTransmit, status, inst.addr, c.cursor)

	case StatusAddrWriteNack, StatusAddrReadNack:
		c.finish(q, inst, status, ErrAddressNack)
		return

	case StatusDataSentAck:
		if c.cursor == inst.length {
			c.finish(q, inst, status, nil)
			return
		}
		c.transmit(inst.data[c.cursor])
		c.cursor++
		RecordBusEvent(EvtTransmit, status, inst.addr, c.cursor)

	case StatusDataSentNack:
		c.finish(q, inst, status, ErrDataNack)
		return

	case StatusAddrReadAck:
		// The ACK for byte cursor must be chosen before it is clocked in
		c.setAck(c.cursor != inst.length-1)
		RecordBusEvent(EvtAckMode, status, inst.addr, c.cursor)

	case StatusDataRecvAck:
		if c.cursor >= inst.length {
			c.finish(q, inst, status, ErrUnexpectedStatus)
			return
		}
		inst.data[c.cursor] = c.regs.Data()
		c.cursor++
		c.setAck(c.cursor != inst.length-1)
		RecordBusEvent(EvtReceive, status, inst.addr, c.cursor)

	case StatusDataRecvNack:
		if c.cursor >= inst.length {
			c.finish(q, inst, status, ErrUnexpectedStatus)
			return
		}
		inst.data[c.cursor] = c.regs.Data()
		c.cursor++
		RecordBusEvent(EvtReceive, status, inst.addr, c.cursor)
		c.finish(q, inst, status, nil)
		return

	case StatusArbitrationLost:
		c.finish(q, inst, status, ErrArbitrationLost)
		return

	default:
		c.finish(q, inst, status, ErrUnexpectedStatus)
		return
	}

	atomic.StoreUint32(&c.busy, 1)
}

// transmit loads the data register and clears the interrupt flag
func (c *Controller) transmit(b uint8) {
	c.regs.SetData(b)
	c.regs.SetControl(controlTransmit)
}

// setAck selects whether the next received byte is acknowledged
func (c *Controller) setAck(ack bool) {
	if ack {
		c.regs.SetControl(controlAckEnable)
	} else {
		c.regs.SetControl(controlAckDisable)
	}
}

// finish terminates the latched instruction: stop condition, completion
// callbacks, queue advance, controller back to idle. q is the queue inst was
// latched from, so a Bind or a rotation during the transaction cannot
// redirect the advance. Nothing here allocates, since it runs inside the interrupt handler
// on hardware.
func (c *Controller) finish(q *Queue, inst *Instruction, status Status, cause error) {
	c.regs.SetControl(controlStop)

	inst.status = status
	inst.transferred = c.cursor
	inst.result = cause

	var err error
	if cause != nil {
		inst.fault = BusError{Status: status, Address: inst.addr, Cursor: c.cursor, Err: cause}
		err = &inst.fault
		RecordBusEvent(EvtAbort, status, inst.addr, c.cursor)
		debugAbort(status, inst.addr, c.cursor)
	} else {
		RecordBusEvent(EvtComplete, status, inst.addr, c.cursor)
	}
	c.tally(cause)

	// Callbacks run while inst is still the head so a producer that sees
	// Contains == false also sees their effects.
	if inst.done != nil {
		inst.done(inst, err)
	}
	if c.onStatus != nil {
		c.onStatus(inst, err)
	}

	q.finish(inst)
	c.current, c.currentQ = nil, nil
	c.cursor = 0
	atomic.StoreUint32(&c.busy, 0)
}

// tally counts a finished instruction
func (c *Controller) tally(cause error) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	switch cause {
	case nil:
		c.stats.Completed++
	case ErrAddressNack:
		c.stats.AddressNacks++
	case ErrDataNack:
		c.stats.DataNacks++
	case ErrArbitrationLost:
		c.stats.ArbitrationLost++
	default:
		c.stats.Unexpected++
	}
}
