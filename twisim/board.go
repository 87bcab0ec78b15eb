package twisim

import (
	"nbtwi/core"

	"github.com/sarchlab/akita/v4/sim"
)

// Board is a simulated microcontroller: a TWI wired to a core.Controller and
// its queue, plus a main loop that ticks every LoopPeriod and runs admission
// followed by the registered tasks.
type Board struct {
	Engine *sim.SerialEngine
	TWI    *TWI
	Ctrl   *core.Controller
	Queue  *core.Queue

	period sim.VTimeInSec
	tasks  []func()

	stopAt   sim.VTimeInSec
	nextTick sim.VTimeInSec
	ticking  bool
}

// tick is one main-loop iteration
type tick struct {
	*sim.EventBase
}

// NewBoard builds a board from cfg and attaches its devices.
func NewBoard(cfg *Config) (*Board, error) {
	engine := sim.NewSerialEngine()
	twi := NewTWI(engine, cfg.CPUFrequency)
	ctrl := core.NewController(twi)

	if err := ctrl.Init(core.Config{
		CPUFrequency: cfg.CPUFrequency,
		BusFrequency: cfg.BusFrequency,
	}); err != nil {
		return nil, err
	}

	q := core.NewQueue(cfg.QueueLimit)
	ctrl.Bind(q)
	twi.SetInterruptHandler(ctrl.OnBusEvent)

	b := &Board{
		Engine: engine,
		TWI:    twi,
		Ctrl:   ctrl,
		Queue:  q,
		period: sim.VTimeInSec(cfg.LoopPeriodUS) * 1e-6,
	}

	for _, dc := range cfg.Devices {
		dev, err := dc.Build()
		if err != nil {
			return nil, err
		}
		twi.Attach(core.I2CAddress(dc.Address), dev)
	}

	return b, nil
}

// AddTask registers fn to run every main-loop iteration after admission.
func (b *Board) AddTask(fn func()) {
	b.tasks = append(b.tasks, fn)
}

// Attach connects a device to the bus.
func (b *Board) Attach(addr core.I2CAddress, dev Device) {
	b.TWI.Attach(addr, dev)
}

// Now returns the simulated time.
func (b *Board) Now() sim.VTimeInSec {
	return b.Engine.CurrentTime()
}

// LoopPeriod returns the main-loop period.
func (b *Board) LoopPeriod() sim.VTimeInSec {
	return b.period
}

// Run advances the simulation by d. Ticks stop at the deadline; a bus
// operation in flight at that point still completes.
func (b *Board) Run(d sim.VTimeInSec) error {
	b.stopAt = b.Now() + d

	if !b.ticking {
		at := b.nextTick
		if at < b.Now() {
			at = b.Now()
		}
		if at <= b.stopAt {
			b.ticking = true
			b.Engine.Schedule(tick{sim.NewEventBase(at, b)})
		}
	}

	return b.Engine.Run()
}

// Step runs one main-loop period. It is the yield function for core.Bus.
func (b *Board) Step() {
	b.Run(b.period)
}

// Delay runs the board for ms milliseconds of simulated time.
func (b *Board) Delay(ms int) {
	b.Run(sim.VTimeInSec(ms) / 1000)
}

// Idle reports whether the queue is empty and the bus quiet.
func (b *Board) Idle() bool {
	return b.Queue.Size() == 0 && !b.Ctrl.Busy() && !b.TWI.Pending()
}

// RunUntilIdle steps until Idle or until limit has elapsed, and reports
// whether the board went idle.
func (b *Board) RunUntilIdle(limit sim.VTimeInSec) bool {
	deadline := b.Now() + limit
	for !b.Idle() {
		if b.Now() >= deadline {
			return false
		}
		b.Step()
	}
	return true
}

// Bus returns a blocking drivers.I2C view of the board. Do not use it from
// a task: it runs the engine itself.
func (b *Board) Bus() *core.Bus {
	return core.NewBus(b.Ctrl, b.Step)
}

// Handle runs one main-loop iteration.
func (b *Board) Handle(e sim.Event) error {
	now := e.Time()
	core.SetTime(uint32(float64(now) * core.TimerFreq))

	b.Ctrl.PollAdmission()
	for _, task := range b.tasks {
		task()
	}

	next := now + b.period
	if next <= b.stopAt {
		b.Engine.Schedule(tick{sim.NewEventBase(next, b)})
		return nil
	}

	b.nextTick = next
	b.ticking = false
	return nil
}
