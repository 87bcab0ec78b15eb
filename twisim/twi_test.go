package twisim

import (
	"testing"

	"nbtwi/core"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type traceLine struct {
	at   sim.VTimeInSec
	line string
}

func newTracedBoard(t *testing.T) (*Board, *RegisterDevice, *[]traceLine) {
	t.Helper()

	board, err := NewBoard(&Config{
		CPUFrequency: 16000000,
		BusFrequency: 400000,
		LoopPeriodUS: 1000,
	})
	require.NoError(t, err)

	dev := NewRegisterDevice(1)
	board.Attach(0x50, dev)

	var lines []traceLine
	board.TWI.SetTracer(func(now sim.VTimeInSec, line string) {
		lines = append(lines, traceLine{now, line})
	})

	return board, dev, &lines
}

func traceText(lines []traceLine) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.line
	}
	return out
}

func TestTWIWriteTransaction(t *testing.T) {
	board, dev, lines := newTracedBoard(t)

	inst, err := board.Queue.Enqueue(0x50, core.Write, []byte{0x00, 0x10, 0xAA})
	require.NoError(t, err)

	require.NoError(t, board.Run(500e-6))

	assert.False(t, board.Queue.Contains(inst))
	assert.NoError(t, inst.Result())
	assert.Equal(t, []string{
		"S",
		"0x50 write ACK",
		"W 0x00 ACK",
		"W 0x10 ACK",
		"W 0xaa ACK",
		"P",
	}, traceText(*lines))

	assert.Equal(t, uint8(0x10), dev.Registers[0x00])
	assert.Equal(t, uint8(0xAA), dev.Registers[0x01])

	// 1 start bit plus four 9-bit frames at 2.5 us per bit
	stop := (*lines)[len(*lines)-1].at
	assert.InDelta(t, 92.5e-6, float64(stop), 1e-9)
	assert.Equal(t, uint32(400000), board.TWI.SCLFrequency())
}

func TestTWIRegisterRead(t *testing.T) {
	board, dev, lines := newTracedBoard(t)
	dev.Registers[0x10] = 0x11
	dev.Registers[0x11] = 0x22

	_, err := board.Queue.Enqueue(0x50, core.Write, []byte{0x10})
	require.NoError(t, err)
	buf := make([]byte, 2)
	rd, err := board.Queue.Enqueue(0x50, core.Read, buf)
	require.NoError(t, err)

	require.True(t, board.RunUntilIdle(10e-3))

	assert.NoError(t, rd.Result())
	assert.Equal(t, []byte{0x11, 0x22}, buf)
	assert.Contains(t, traceText(*lines), "R 0x11 ACK")
	assert.Contains(t, traceText(*lines), "R 0x22 NACK")
	assert.Equal(t, uint16(0x12), dev.Pointer())

	counters := board.TWI.Counters()
	assert.Equal(t, 2, counters.Starts)
	assert.Equal(t, 2, counters.Stops)
	assert.Equal(t, 1, counters.BytesWritten)
	assert.Equal(t, 2, counters.BytesRead)
}

func TestTWIAbsentDeviceNacks(t *testing.T) {
	board, _, _ := newTracedBoard(t)

	inst, err := board.Queue.Enqueue(0x51, core.Write, []byte{0x01})
	require.NoError(t, err)

	require.True(t, board.RunUntilIdle(10e-3))

	assert.ErrorIs(t, inst.Result(), core.ErrAddressNack)
	assert.Equal(t, uint32(1), board.Ctrl.Stats().AddressNacks)
	assert.Equal(t, 1, board.TWI.Counters().Nacks)
}

func TestTWIDataNack(t *testing.T) {
	board, dev, _ := newTracedBoard(t)
	dev.NackAfter = 2

	inst, err := board.Queue.Enqueue(0x50, core.Write, []byte{0x00, 0x01, 0x02, 0x03})
	require.NoError(t, err)
	next, err := board.Queue.Enqueue(0x50, core.Write, []byte{0x05, 0x55})
	require.NoError(t, err)

	require.True(t, board.RunUntilIdle(10e-3))

	assert.ErrorIs(t, inst.Result(), core.ErrDataNack)
	assert.Equal(t, uint8(0x01), dev.Registers[0x00])
	assert.NotContains(t, dev.Registers, uint16(0x01))

	// The queue moves on to the next instruction
	assert.NoError(t, next.Result())
	assert.Equal(t, uint8(0x55), dev.Registers[0x05])
}

func TestTWIArbitrationLoss(t *testing.T) {
	board, dev, _ := newTracedBoard(t)

	board.TWI.LoseArbitration()
	lost, err := board.Queue.Enqueue(0x50, core.Write, []byte{0x00, 0x01})
	require.NoError(t, err)
	ok, err := board.Queue.Enqueue(0x50, core.Write, []byte{0x00, 0x02})
	require.NoError(t, err)

	require.True(t, board.RunUntilIdle(10e-3))

	assert.ErrorIs(t, lost.Result(), core.ErrArbitrationLost)
	assert.NoError(t, ok.Result())
	assert.Equal(t, uint8(0x02), dev.Registers[0x00])
	assert.Equal(t, 1, board.TWI.Counters().ArbitrationLost)
	assert.Equal(t, uint32(1), board.Ctrl.Stats().ArbitrationLost)
}

func TestTWIRegisterSemantics(t *testing.T) {
	engine := sim.NewSerialEngine()
	twi := NewTWI(engine, 16000000)
	twi.SetBitRate(12, core.Prescaler1)

	assert.Equal(t, core.StatusNoInfo, twi.Status())

	enable := core.ControlEnable | core.ControlInterruptFlag
	twi.SetControl(enable | core.ControlStart)
	assert.True(t, twi.Pending())

	// Data writes while busy collide
	twi.SetData(0xA0)
	assert.Equal(t, 1, twi.Counters().Collisions)

	require.NoError(t, engine.Run())
	assert.False(t, twi.Pending())
	assert.Equal(t, core.StatusStart, twi.Status())

	// A second START while owning the bus is a repeated start
	twi.SetControl(enable | core.ControlStart)
	require.NoError(t, engine.Run())
	assert.Equal(t, core.StatusRepeatedStart, twi.Status())

	// Disabling the peripheral releases the bus
	twi.SetControl(0)
	assert.Equal(t, core.StatusNoInfo, twi.Status())
}

func TestTWIInterruptDisabled(t *testing.T) {
	engine := sim.NewSerialEngine()
	twi := NewTWI(engine, 16000000)

	fired := 0
	twi.SetInterruptHandler(func() { fired++ })

	twi.SetControl(core.ControlEnable | core.ControlInterruptFlag | core.ControlStart)
	require.NoError(t, engine.Run())
	assert.Equal(t, 0, fired)

	twi.SetControl(core.ControlEnable | core.ControlInterruptEnable | core.ControlInterruptFlag | core.ControlStop)
	twi.SetControl(core.ControlEnable | core.ControlInterruptEnable | core.ControlInterruptFlag | core.ControlStart)
	require.NoError(t, engine.Run())
	assert.Equal(t, 1, fired)
}
