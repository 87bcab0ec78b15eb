// Package twisim models an AVR-style master TWI peripheral and the devices on
// its bus, timed on an akita discrete-event engine. It lets the core driver
// run unchanged on a desktop: the TWI implements core.TWIRegisters and raises
// its interrupt by calling back into the controller.
package twisim

import (
	"nbtwi/core"

	"github.com/sarchlab/akita/v4/sim"
)

type phase uint8

const (
	phaseIdle     phase = iota // bus free
	phaseStarted               // START sent, SLA+R/W expected
	phaseTransmit              // addressed for write
	phaseReceive               // addressed for read
	phaseHeld                  // NACK or loss seen, waiting for STOP or START
)

// Bit times per bus operation
const (
	startBits = 1
	byteBits  = 9
)

// Counters accumulates bus activity.
type Counters struct {
	Starts          int
	Stops           int
	BytesWritten    int
	BytesRead       int
	Nacks           int
	Collisions      int
	ArbitrationLost int
}

// Tracer receives one line per completed bus operation.
type Tracer func(now sim.VTimeInSec, line string)

// TWI is a simulated master-mode two-wire interface.
type TWI struct {
	engine sim.Engine
	cpu    uint32
	irq    func()

	twbr uint8
	ps   core.Prescaler

	control core.Control
	status  core.Status
	data    uint8
	flag    bool // TWINT
	active  bool // operation in flight

	phase   phase
	target  Device
	devices map[core.I2CAddress]Device

	loseNext bool
	trace    Tracer
	counters Counters
}

// completion finishes an operation after its bit time elapses
type completion struct {
	*sim.EventBase
	status  core.Status
	data    uint8
	setData bool
	line    string
}

// NewTWI creates a peripheral clocked at cpuHz that schedules its operations
// on engine.
func NewTWI(engine sim.Engine, cpuHz uint32) *TWI {
	return &TWI{
		engine:  engine,
		cpu:     cpuHz,
		status:  core.StatusNoInfo,
		devices: make(map[core.I2CAddress]Device),
	}
}

// SetInterruptHandler installs the TWI vector. It runs whenever an operation
// completes while the interrupt is enabled.
func (t *TWI) SetInterruptHandler(fn func()) {
	t.irq = fn
}

// SetTracer installs a bus trace sink.
func (t *TWI) SetTracer(fn Tracer) {
	t.trace = fn
}

// Attach connects a device at addr, replacing any device already there.
func (t *TWI) Attach(addr core.I2CAddress, dev Device) {
	t.devices[addr] = dev
}

// Detach disconnects the device at addr; it then NACKs like an empty slot.
func (t *TWI) Detach(addr core.I2CAddress) {
	delete(t.devices, addr)
}

// LoseArbitration makes the next address or data byte end with arbitration lost.
func (t *TWI) LoseArbitration() {
	t.loseNext = true
}

// Counters returns the activity counters.
func (t *TWI) Counters() Counters {
	return t.counters
}

// SCLFrequency returns the programmed bus clock in Hz.
func (t *TWI) SCLFrequency() uint32 {
	return core.SCLFrequency(t.cpu, t.twbr, t.ps)
}

// Pending reports whether an operation is in flight.
func (t *TWI) Pending() bool {
	return t.active
}

// Status returns the status register. It reads no-info while TWINT is clear.
func (t *TWI) Status() core.Status {
	if !t.flag {
		return core.StatusNoInfo
	}
	return t.status
}

// Data returns the data register.
func (t *TWI) Data() uint8 {
	return t.data
}

// SetData loads the data register. Writes while an operation is in flight
// set the write-collision flag and are discarded.
func (t *TWI) SetData(b uint8) {
	if t.active {
		t.counters.Collisions++
		return
	}
	t.data = b
}

// SetBitRate programs the bit-rate generator.
func (t *TWI) SetBitRate(twbr uint8, ps core.Prescaler) {
	t.twbr = twbr
	t.ps = ps
}

// SetControl writes the control register. Writing TWINT clears the flag and
// starts the operation selected by TWSTA, TWSTO and the bus phase.
func (t *TWI) SetControl(c core.Control) {
	t.control = c &^ core.ControlInterruptFlag

	if !c.Has(core.ControlEnable) {
		t.reset()
		return
	}
	if !c.Has(core.ControlInterruptFlag) || t.active {
		return
	}
	t.flag = false

	if c.Has(core.ControlStop) {
		t.stop()
		if !c.Has(core.ControlStart) {
			return
		}
	}

	if c.Has(core.ControlStart) {
		t.start()
		return
	}

	switch t.phase {
	case phaseStarted:
		t.address()
	case phaseTransmit:
		t.transmit()
	case phaseReceive:
		t.receive(c.Has(core.ControlAck))
	}
}

// Handle completes the operation carried by a completion event.
func (t *TWI) Handle(e sim.Event) error {
	evt := e.(completion)

	t.active = false
	t.status = evt.status
	if evt.setData {
		t.data = evt.data
	}
	t.flag = true

	if t.trace != nil {
		t.trace(e.Time(), evt.line)
	}

	if t.control.Has(core.ControlInterruptEnable) && t.irq != nil {
		t.irq()
	}

	return nil
}

func (t *TWI) reset() {
	t.endTarget()
	t.phase = phaseIdle
	t.flag = false
	t.status = core.StatusNoInfo
}

func (t *TWI) stop() {
	t.endTarget()
	t.phase = phaseIdle
	t.counters.Stops++
	if t.trace != nil {
		t.trace(t.engine.CurrentTime(), "P")
	}
}

func (t *TWI) start() {
	status := core.StatusStart
	if t.phase != phaseIdle {
		status = core.StatusRepeatedStart
		t.endTarget()
	}

	t.phase = phaseStarted
	t.counters.Starts++
	t.schedule(startBits, completion{status: status, line: "S"})
}

func (t *TWI) address() {
	sla := t.data
	addr := core.I2CAddress(sla >> 1)
	read := sla&1 == 1
	line := "0x" + hex(uint8(addr)) + " " + core.Direction(sla&1).String()

	if t.loseNext {
		t.lose(line)
		return
	}

	dev, ok := t.devices[addr]
	if !ok || !dev.Begin(read) {
		t.phase = phaseHeld
		t.counters.Nacks++
		status := core.StatusAddrWriteNack
		if read {
			status = core.StatusAddrReadNack
		}
		t.schedule(byteBits, completion{status: status, line: line + " NACK"})
		return
	}

	t.target = dev
	if read {
		t.phase = phaseReceive
		t.schedule(byteBits, completion{status: core.StatusAddrReadAck, line: line + " ACK"})
	} else {
		t.phase = phaseTransmit
		t.schedule(byteBits, completion{status: core.StatusAddrWriteAck, line: line + " ACK"})
	}
}

func (t *TWI) transmit() {
	b := t.data
	line := "W 0x" + hex(b)

	if t.loseNext {
		t.lose(line)
		return
	}

	t.counters.BytesWritten++
	if !t.target.Receive(b) {
		t.phase = phaseHeld
		t.counters.Nacks++
		t.schedule(byteBits, completion{status: core.StatusDataSentNack, line: line + " NACK"})
		return
	}
	t.schedule(byteBits, completion{status: core.StatusDataSentAck, line: line + " ACK"})
}

func (t *TWI) receive(ack bool) {
	b := t.target.Transmit()
	t.counters.BytesRead++

	evt := completion{data: b, setData: true, line: "R 0x" + hex(b)}
	if ack {
		evt.status = core.StatusDataRecvAck
		evt.line += " ACK"
	} else {
		// The master stops clocking after a NACKed byte
		evt.status = core.StatusDataRecvNack
		evt.line += " NACK"
		t.phase = phaseHeld
	}
	t.schedule(byteBits, evt)
}

// lose releases the bus as if another master won it
func (t *TWI) lose(line string) {
	t.loseNext = false
	t.endTarget()
	t.phase = phaseIdle
	t.counters.ArbitrationLost++
	t.schedule(byteBits, completion{status: core.StatusArbitrationLost, line: line + " LOST"})
}

func (t *TWI) endTarget() {
	if t.target != nil {
		t.target.End()
		t.target = nil
	}
}

// schedule raises the completion after bits SCL periods
func (t *TWI) schedule(bits int, evt completion) {
	scl := t.SCLFrequency()
	if scl == 0 {
		scl = t.cpu / 16
	}

	freq := sim.Freq(scl) * sim.Hz
	evt.EventBase = sim.NewEventBase(t.engine.CurrentTime()+sim.VTimeInSec(bits)*freq.Period(), t)

	t.active = true
	t.engine.Schedule(evt)
}

func hex(b uint8) string {
	return core.HexBytes([]byte{b})
}
