package twisim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{"devices": [{"kind": "vl6180x"}, {"address": 80}]}`))
	require.NoError(t, err)

	assert.Equal(t, uint32(16000000), cfg.CPUFrequency)
	assert.Equal(t, uint32(400000), cfg.BusFrequency)
	assert.Equal(t, uint32(50), cfg.LoopPeriodUS)
	require.Len(t, cfg.Devices, 2)
	assert.Equal(t, uint8(VL6180XAddress), cfg.Devices[0].Address)
	assert.Equal(t, "register", cfg.Devices[1].Kind)
	assert.Equal(t, 1, cfg.Devices[1].PointerWidth)
}

func TestLoadConfigDevices(t *testing.T) {
	cfg, err := LoadConfig([]byte(`{
		"cpu_frequency": 8000000,
		"bus_frequency": 100000,
		"queue_limit": 4,
		"devices": [
			{"address": 80, "kind": "register", "pointer_width": 2,
			 "registers": {"0x0100": 171, "2": 7}, "read_only": [256], "nack_after": 3}
		]
	}`))
	require.NoError(t, err)

	board, err := NewBoard(cfg)
	require.NoError(t, err)

	dev, ok := board.TWI.devices[80].(*RegisterDevice)
	require.True(t, ok)
	assert.Equal(t, 2, dev.PointerWidth)
	assert.Equal(t, 3, dev.NackAfter)
	assert.Equal(t, uint8(171), dev.Registers[0x0100])
	assert.Equal(t, uint8(7), dev.Registers[2])
	assert.True(t, dev.ReadOnly[0x0100])
	assert.Equal(t, uint32(100000), board.TWI.SCLFrequency())

	// Read-only registers ignore writes
	_, err = board.Queue.Enqueue(80, 0, []byte{0x01, 0x00, 0x55})
	require.NoError(t, err)
	require.True(t, board.RunUntilIdle(10e-3))
	assert.Equal(t, uint8(171), dev.Registers[0x0100])
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig([]byte(`{not json`))
	assert.Error(t, err)

	cfg, err := LoadConfig([]byte(`{"devices": [{"kind": "eeprom"}]}`))
	require.NoError(t, err)
	_, err = NewBoard(cfg)
	assert.ErrorIs(t, err, ErrUnknownDevice)

	cfg, err = LoadConfig([]byte(`{"devices": [{"registers": {"zz": 1}}]}`))
	require.NoError(t, err)
	_, err = NewBoard(cfg)
	assert.ErrorIs(t, err, ErrInvalidRegister)

	cfg, err = LoadConfig([]byte(`{"devices": [{"address": 200}]}`))
	require.NoError(t, err)
	_, err = NewBoard(cfg)
	assert.ErrorIs(t, err, ErrDeviceAddress)
}

func TestDefaultConfigBuilds(t *testing.T) {
	board, err := NewBoard(DefaultConfig())
	require.NoError(t, err)

	_, ok := board.TWI.devices[VL6180XAddress].(*VL6180X)
	assert.True(t, ok)
}
