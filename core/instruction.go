package core

// I2CAddress is a 7-bit I2C device address.
type I2CAddress uint8

// MaxAddress is the highest 7-bit peripheral address.
const MaxAddress I2CAddress = 0x7F

// Direction selects the transfer direction of an instruction. Its value is
// the R/W bit appended to the address byte on the wire.
type Direction uint8

const (
	Write Direction = 0
	Read  Direction = 1
)

func (d Direction) String() string {
	if d == Read {
		return "read"
	}
	return "write"
}

// Ownership records who owns an instruction's data region.
type Ownership uint8

const (
	// Owned data is a private copy held by the queue (writes).
	Owned Ownership = iota
	// Borrowed data is the caller's buffer, filled in place (reads).
	Borrowed
)

// CompletionFunc observes the end of an instruction. err is nil on success,
// otherwise a *BusError wrapping one of the protocol sentinels
// (ErrAddressNack, ErrDataNack, ErrArbitrationLost, ErrUnexpectedStatus).
// The *BusError belongs to the instruction; it stays valid after the call but
// is only meaningful once the instruction has left the queue. It runs in the event context,
// before the instruction leaves the queue, and must neither block nor
// allocate.
type CompletionFunc func(inst *Instruction, err error)

// Instruction is one queued bus transaction.
type Instruction struct {
	addr   I2CAddress
	dir    Direction
	own    Ownership
	data   []byte
	length int
	done   CompletionFunc

	// Outcome, written by the state machine before the instruction leaves the queue
	status      Status
	transferred int
	result      error
	fault       BusError // filled in place so the event context does not allocate

	next *Instruction // queue-owned link
}

// newInstruction builds an instruction, copying the buffer for writes
func newInstruction(addr I2CAddress, dir Direction, buf []byte, done CompletionFunc) (*Instruction, error) {
	if addr > MaxAddress {
		return nil, ErrInvalidAddress
	}
	if len(buf) == 0 {
		return nil, ErrEmptyTransfer
	}

	inst := &Instruction{
		addr:   addr,
		dir:    dir,
		length: len(buf),
		done:   done,
	}

	if dir == Write {
		inst.own = Owned
		inst.data = make([]byte, len(buf))
		copy(inst.data, buf)
	} else {
		inst.own = Borrowed
		inst.data = buf
	}

	return inst, nil
}

// Address returns the target address.
func (i *Instruction) Address() I2CAddress {
	return i.addr
}

// Direction returns the transfer direction.
func (i *Instruction) Direction() Direction {
	return i.dir
}

// Ownership reports whether the data region is a queue copy or the caller's buffer.
func (i *Instruction) Ownership() Ownership {
	return i.own
}

// Len returns the transfer length in bytes.
func (i *Instruction) Len() int {
	return i.length
}

// Data returns the data region. For a write that has left the queue the
// private copy has been released and Data returns nil.
func (i *Instruction) Data() []byte {
	return i.data
}

// Transferred returns how many bytes moved before the instruction ended.
func (i *Instruction) Transferred() int {
	return i.transferred
}

// Result returns nil if the instruction completed, or a *BusError describing
// why it was abandoned. Valid once the instruction has left the queue.
func (i *Instruction) Result() error {
	if i.result == nil {
		return nil
	}
	return &i.fault
}

// addressByte is SLA+R/W as loaded into the data register
func (i *Instruction) addressByte() uint8 {
	return uint8(i.addr)<<1 | uint8(i.dir)
}

// release drops the queue's reference to its data region
func (i *Instruction) release() {
	i.next = nil
	if i.own == Owned {
		i.data = nil
	}
}
