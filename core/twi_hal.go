package core

// Control is a value for the TWI control register. The bit positions match
// the AVR TWCR layout so targets can write it unchanged.
type Control uint8

const (
	ControlInterruptEnable Control = 1 << 0 // TWIE: raise the TWI vector when the flag is set
	ControlEnable          Control = 1 << 2 // TWEN: peripheral owns SDA/SCL
	ControlWriteCollision  Control = 1 << 3 // TWWC (read-only on hardware)
	ControlStop            Control = 1 << 4 // TWSTO: transmit STOP
	ControlStart           Control = 1 << 5 // TWSTA: transmit START
	ControlAck             Control = 1 << 6 // TWEA: ACK received bytes
	ControlInterruptFlag   Control = 1 << 7 // TWINT: writing one clears the flag and starts the next operation
)

// Has reports whether all bits of f are set in c.
func (c Control) Has(f Control) bool {
	return c&f == f
}

// Canonical control words issued by the driver
const (
	controlBase       = ControlInterruptFlag | ControlEnable | ControlInterruptEnable
	controlStart      = controlBase | ControlAck | ControlStart
	controlStop       = controlBase | ControlAck | ControlStop
	controlAckEnable  = controlBase | ControlAck
	controlAckDisable = controlBase
	controlTransmit   = controlBase
)

// Prescaler is the TWI bit-rate prescaler (TWPS bits).
type Prescaler uint8

const (
	Prescaler1 Prescaler = iota
	Prescaler4
	Prescaler16
	Prescaler64
)

// Factor returns the division factor, 4^TWPS.
func (p Prescaler) Factor() uint32 {
	return 1 << (2 * uint32(p&0x03))
}

// TWIRegisters is the register-level interface of a master-mode two-wire
// peripheral. Targets bind it to hardware; the simulator models it.
type TWIRegisters interface {
	// Status returns the status register with the prescaler bits masked off.
	Status() Status

	// SetControl writes the control register.
	SetControl(c Control)

	// Data reads the data register (the last received byte).
	Data() uint8

	// SetData loads the data register with the next byte to transmit.
	SetData(b uint8)

	// SetBitRate programs the bit-rate divisor and prescaler.
	SetBitRate(twbr uint8, ps Prescaler)
}
