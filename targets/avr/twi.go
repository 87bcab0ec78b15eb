//go:build avr

package main

import (
	"device/avr"
	"runtime/interrupt"

	"nbtwi/core"
)

const (
	twsrStatusMask    = 0xF8 // TWS7..TWS3
	twsrPrescalerMask = 0x03 // TWPS1..TWPS0
)

// AVRTWI binds core.TWIRegisters to the on-chip TWI peripheral
type AVRTWI struct{}

func (AVRTWI) Status() core.Status {
	return core.Status(avr.TWSR.Get() & twsrStatusMask)
}

func (AVRTWI) SetControl(c core.Control) {
	avr.TWCR.Set(uint8(c))
}

func (AVRTWI) Data() uint8 {
	return avr.TWDR.Get()
}

func (AVRTWI) SetData(b uint8) {
	avr.TWDR.Set(b)
}

func (AVRTWI) SetBitRate(twbr uint8, ps core.Prescaler) {
	avr.TWSR.ReplaceBits(uint8(ps), twsrPrescalerMask, 0)
	avr.TWBR.Set(twbr)
}

// controller is reached from the TWI vector, which cannot capture state
var controller *core.Controller

// initTWI creates the controller, programs the bit rate and installs the
// TWI vector. Interrupts must be enabled globally for events to arrive.
func initTWI(cfg core.Config) (*core.Controller, error) {
	controller = core.NewController(AVRTWI{})
	if err := controller.Init(cfg); err != nil {
		return nil, err
	}

	interrupt.New(avr.IRQ_TWI, func(interrupt.Interrupt) {
		controller.OnBusEvent()
	})

	return controller, nil
}
