package core

import "errors"

var (
	// ErrAllocation is returned by Enqueue when the queue cannot take another
	// instruction. The caller retries later or drops the request.
	ErrAllocation = errors.New("twi: instruction queue full")

	ErrInvalidAddress = errors.New("twi: address out of 7-bit range")
	ErrEmptyTransfer  = errors.New("twi: zero-length transfer")

	// ErrInvalidRemoval rejects removal of the head instruction, which may be
	// mid-transaction.
	ErrInvalidRemoval = errors.New("twi: cannot remove head instruction")
	ErrNotQueued      = errors.New("twi: instruction not queued")
	ErrNoQueue        = errors.New("twi: no queue bound")

	ErrAddressNack      = errors.New("twi: address not acknowledged")
	ErrDataNack         = errors.New("twi: data not acknowledged")
	ErrArbitrationLost  = errors.New("twi: arbitration lost")
	ErrUnexpectedStatus = errors.New("twi: unexpected status")

	ErrBitRate = errors.New("twi: bus frequency not reachable")
)

// BusError describes why an instruction was abandoned.
type BusError struct {
	Status  Status
	Address I2CAddress
	Cursor  int // bytes transferred before the failure
	Err     error
}

func (e *BusError) Error() string {
	return e.Err.Error() + " (status " + e.Status.String() + ", addr 0x" + hex8(uint8(e.Address)) +
		", after " + itoa(e.Cursor) + " bytes)"
}

func (e *BusError) Unwrap() error {
	return e.Err
}
