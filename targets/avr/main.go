//go:build avr

// Firmware for AVR boards with a TWI peripheral (tested layout: Arduino Mega
// 2560, tinygo flash -target=arduino-mega2560 ./targets/avr). It ranges a
// VL6180X on the TWI bus and serves the TWI console on the default UART.
package main

import (
	"machine"
	"runtime"
	"time"

	"nbtwi/console"
	"nbtwi/core"
	"nbtwi/ranging"

	"tinygo.org/x/drivers/vl6180x"
)

const (
	consoleBaud = 115200
	queueLimit  = 8
	busHz       = 400000

	// WHO_AM_I attempts before giving up on the rangefinder
	probeAttempts = 50
)

var (
	con  *console.Console
	boot time.Time
)

func main() {
	boot = time.Now()

	machine.Serial.Configure(machine.UARTConfig{BaudRate: consoleBaud})
	core.SetDebugWriter(func(s string) {
		machine.Serial.Write([]byte(s + "\r\n"))
	})
	core.InitAsyncDebug()

	ctrl, err := initTWI(core.Config{
		CPUFrequency: machine.CPUFrequency(),
		BusFrequency: busHz,
	})
	if err != nil {
		println("twi init failed:", err.Error())
		for {
			time.Sleep(time.Second)
		}
	}

	queue := core.NewQueue(queueLimit)
	ctrl.Bind(queue)
	con = console.New(ctrl, machine.Serial)

	// Blocking setup runs before the control loop, with the console live
	bus := core.NewBus(ctrl, service)
	sensor := vl6180x.New(bus)

	var ranger *ranging.Ranger
	if probe(sensor) && sensor.Configure(true) {
		ranger = ranging.New(queue)
		if !ranger.Start() {
			core.DebugPrintln("ranging: configuration refused by the queue")
			ranger = nil
		}
	} else {
		con.Println("vl6180x not found, console only")
	}

	for {
		ctrl.PollAdmission()
		service()
		if ranger != nil {
			ranger.Task()
		}
		// Lets the debug worker drain abort reports
		runtime.Gosched()
	}
}

// probe retries WHO_AM_I while the sensor boots
func probe(sensor vl6180x.Device) bool {
	for i := 0; i < probeAttempts; i++ {
		if sensor.Connected() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// service runs the non-bus parts of the main loop: publish the clock, feed
// the console and report finished console requests
func service() {
	core.SetTime(uint32(time.Since(boot).Microseconds()))

	for machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		con.Feed(b)
	}
	con.Poll()
}
