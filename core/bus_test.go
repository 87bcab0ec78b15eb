package core

import (
	"errors"
	"testing"
)

func newLoopbackBus(t *testing.T, limit int) (*Bus, *loopbackTWI, *Controller) {
	t.Helper()

	hw := newLoopbackTWI()
	ctrl := NewController(hw)
	if err := ctrl.Init(Config{CPUFrequency: 16000000, BusFrequency: 400000}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	ctrl.Bind(NewQueue(limit))

	bus := NewBus(ctrl, func() { hw.service(ctrl) })
	return bus, hw, ctrl
}

func TestBusWriteThenRead(t *testing.T) {
	bus, hw, ctrl := newLoopbackBus(t, 0)

	r := make([]byte, 3)
	if err := bus.Tx(0x29, []byte{0x00, 0x00}, r); err != nil {
		t.Fatalf("Tx failed: %v", err)
	}

	written := hw.bytesWritten()
	if len(written) != 2 || written[0] != 0x00 || written[1] != 0x00 {
		t.Errorf("Expected register pointer 00 00 on the wire, got %x", written)
	}
	if r[0] != 0 || r[1] != 1 || r[2] != 2 {
		t.Errorf("Expected 00 01 02, got %x", r)
	}
	if ctrl.Stats().Completed != 2 {
		t.Errorf("Expected 2 completed instructions, got %d", ctrl.Stats().Completed)
	}
	if ctrl.Queue().Size() != 0 {
		t.Errorf("Expected empty queue, got size %d", ctrl.Queue().Size())
	}
}

func TestBusQueueFull(t *testing.T) {
	bus, _, ctrl := newLoopbackBus(t, 1)

	r := make([]byte, 1)
	if err := bus.Tx(0x29, []byte{0x01}, r); err != nil {
		t.Fatalf("Tx failed with a one-slot queue: %v", err)
	}
	if ctrl.Stats().Completed != 2 {
		t.Errorf("Expected 2 completed instructions, got %d", ctrl.Stats().Completed)
	}
}

func TestBusAddressNack(t *testing.T) {
	bus, hw, ctrl := newLoopbackBus(t, 0)
	hw.nack[0x40] = true

	err := bus.Tx(0x40, []byte{0x01}, make([]byte, 1))
	if !errors.Is(err, ErrAddressNack) {
		t.Fatalf("Expected ErrAddressNack, got %v", err)
	}

	var busErr *BusError
	if !errors.As(err, &busErr) || busErr.Address != 0x40 {
		t.Errorf("Expected *BusError for 0x40, got %v", err)
	}
	// The read was still attempted and drained
	if ctrl.Queue().Size() != 0 {
		t.Errorf("Expected empty queue, got size %d", ctrl.Queue().Size())
	}
	if ctrl.Stats().AddressNacks != 2 {
		t.Errorf("Expected 2 address NACKs, got %d", ctrl.Stats().AddressNacks)
	}
}

func TestBusInvalid(t *testing.T) {
	bus, _, _ := newLoopbackBus(t, 0)

	if err := bus.Tx(0x80, []byte{1}, nil); err != ErrInvalidAddress {
		t.Errorf("Expected ErrInvalidAddress, got %v", err)
	}
	if err := bus.Tx(0x29, nil, nil); err != nil {
		t.Errorf("Empty Tx should succeed, got %v", err)
	}

	unbound := NewBus(NewController(newLoopbackTWI()), nil)
	if err := unbound.Tx(0x29, []byte{1}, nil); err != ErrNoQueue {
		t.Errorf("Expected ErrNoQueue, got %v", err)
	}
}
