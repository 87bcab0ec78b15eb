package twisim

import (
	"tinygo.org/x/drivers/tester"
)

// Device is a peripheral on the simulated bus. The TWI calls it as the
// master clocks each phase of a transaction.
type Device interface {
	// Begin is called when the device is addressed and reports whether it
	// acknowledges.
	Begin(read bool) bool

	// Receive takes a byte written by the master and reports whether it is
	// acknowledged.
	Receive(b byte) bool

	// Transmit returns the next byte clocked out to the master.
	Transmit() byte

	// End closes the transaction (STOP, repeated START or arbitration loss).
	End()
}

// RegisterDevice is a register-file peripheral: the first PointerWidth bytes
// of a write transaction set the register pointer (big-endian), further bytes
// are stored and auto-increment it, and reads return registers from the
// pointer on.
type RegisterDevice struct {
	PointerWidth int
	Registers    map[uint16]uint8
	ReadOnly     map[uint16]bool

	// NackAfter NACKs the data byte that would exceed this many bytes in one
	// write transaction. Zero disables it.
	NackAfter int

	// OnWrite observes every stored register write.
	OnWrite func(reg uint16, value uint8)

	pointer  uint16
	received int
}

// NewRegisterDevice creates an empty register file with the given pointer
// width in bytes (1 or 2).
func NewRegisterDevice(pointerWidth int) *RegisterDevice {
	if pointerWidth != 2 {
		pointerWidth = 1
	}
	return &RegisterDevice{
		PointerWidth: pointerWidth,
		Registers:    make(map[uint16]uint8),
		ReadOnly:     make(map[uint16]bool),
	}
}

// Pointer returns the current register pointer.
func (d *RegisterDevice) Pointer() uint16 {
	return d.pointer
}

func (d *RegisterDevice) Begin(read bool) bool {
	d.received = 0
	return true
}

func (d *RegisterDevice) Receive(b byte) bool {
	if d.NackAfter > 0 && d.received >= d.NackAfter {
		return false
	}
	d.received++

	if d.received <= d.PointerWidth {
		if d.received == 1 {
			d.pointer = 0
		}
		d.pointer = d.pointer<<8 | uint16(b)
		return true
	}

	reg := d.pointer
	d.pointer++
	if d.ReadOnly[reg] {
		return true
	}
	d.Registers[reg] = b
	if d.OnWrite != nil {
		d.OnWrite(reg, b)
	}
	return true
}

func (d *RegisterDevice) Transmit() byte {
	b := d.Registers[d.pointer]
	d.pointer++
	return b
}

func (d *RegisterDevice) End() {
	d.received = 0
}

// VL6180X register map subset used by the ranging loop
const (
	VL6180XAddress          = 0x29
	VL6180XChipID           = 0xB4
	vl6180xWhoAmI           = 0x0000
	vl6180xInterruptClear   = 0x0015
	vl6180xFreshOutOfReset  = 0x0016
	vl6180xRangeStart       = 0x0018
	vl6180xRangeStatus      = 0x004D
	vl6180xInterruptStatus  = 0x004F
	vl6180xRangeValue       = 0x0062
	vl6180xRangeReady       = 0x04
	vl6180xRangeStatusReady = 0x01
)

// VL6180X is a time-of-flight rangefinder model. Starting a range
// measurement latches Range into the result register and raises the
// range-ready interrupt status; clearing the interrupt drops it. In
// continuous mode the next sample is ready as soon as the interrupt clears.
type VL6180X struct {
	*RegisterDevice
	Range uint8

	continuous bool
}

// NewVL6180X creates a rangefinder fresh out of reset reporting rangeMM.
func NewVL6180X(rangeMM uint8) *VL6180X {
	v := &VL6180X{
		RegisterDevice: NewRegisterDevice(2),
		Range:          rangeMM,
	}

	v.Registers[vl6180xWhoAmI] = VL6180XChipID
	v.Registers[vl6180xFreshOutOfReset] = 0x01
	v.Registers[vl6180xRangeStatus] = vl6180xRangeStatusReady
	v.ReadOnly[vl6180xWhoAmI] = true
	v.OnWrite = v.written

	return v
}

// Configured reports whether the driver cleared the fresh-out-of-reset flag.
func (v *VL6180X) Configured() bool {
	return v.Registers[vl6180xFreshOutOfReset]&0x01 == 0
}

// Continuous reports whether continuous ranging is running.
func (v *VL6180X) Continuous() bool {
	return v.continuous
}

func (v *VL6180X) written(reg uint16, value uint8) {
	switch reg {
	case vl6180xRangeStart:
		switch {
		case value&0x03 == 0x03:
			v.continuous = true
			v.sample()
		case value&0x01 != 0 && v.continuous:
			v.continuous = false
		case value&0x01 != 0:
			v.sample()
		}
	case vl6180xInterruptClear:
		v.Registers[vl6180xInterruptStatus] &^= value & 0x07
		if v.continuous && value&vl6180xRangeReady != 0 {
			v.sample()
		}
	}
}

func (v *VL6180X) sample() {
	v.Registers[vl6180xRangeValue] = v.Range
	v.Registers[vl6180xInterruptStatus] |= vl6180xRangeReady
}

// TesterDevice adapts a tinygo tester mock to the simulated bus. A write
// transaction of one byte selects a register; longer ones are forwarded as a
// register write. Reads fetch Width bytes per register from the selected
// register on, advancing one register per fetch.
type TesterDevice struct {
	dev   tester.I2CDevice
	Width int

	written []byte
	reg     uint8
	window  []byte
	read    bool
}

// NewTesterDevice wraps dev. width is the register size in bytes: 1 for
// tester.I2CDevice8, 2 for tester.I2CDevice16.
func NewTesterDevice(dev tester.I2CDevice, width int) *TesterDevice {
	if width < 1 {
		width = 1
	}
	return &TesterDevice{dev: dev, Width: width}
}

// Addr returns the mock's address.
func (d *TesterDevice) Addr() uint8 {
	return d.dev.Addr()
}

func (d *TesterDevice) Begin(read bool) bool {
	d.read = read
	d.written = d.written[:0]
	d.window = nil
	return true
}

func (d *TesterDevice) Receive(b byte) bool {
	d.written = append(d.written, b)
	return true
}

func (d *TesterDevice) Transmit() byte {
	if len(d.window) == 0 {
		d.window = make([]byte, d.Width)
		if err := d.dev.Tx([]byte{d.reg}, d.window); err != nil {
			d.window = nil
			return 0xFF
		}
		d.reg++
	}

	b := d.window[0]
	d.window = d.window[1:]
	return b
}

func (d *TesterDevice) End() {
	if d.read {
		return
	}

	switch len(d.written) {
	case 0:
	case 1:
		d.reg = d.written[0]
	default:
		d.reg = d.written[0]
		d.dev.Tx(d.written, nil)
	}
	d.written = d.written[:0]
}
