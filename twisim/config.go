package twisim

import (
	"encoding/json"
	"errors"
	"strconv"
)

// Config describes a simulated bench: the clocks, the main loop and the
// devices on the bus.
type Config struct {
	CPUFrequency uint32         `json:"cpu_frequency"`
	BusFrequency uint32         `json:"bus_frequency"`
	LoopPeriodUS uint32         `json:"loop_period_us"`
	QueueLimit   int            `json:"queue_limit"`
	Devices      []DeviceConfig `json:"devices"`
}

// DeviceConfig describes one peripheral.
type DeviceConfig struct {
	Address uint8  `json:"address"`
	Kind    string `json:"kind"` // "register" or "vl6180x"

	// Register devices
	PointerWidth int              `json:"pointer_width"`
	Registers    map[string]uint8 `json:"registers"` // keys are register numbers, "0x" hex or decimal
	ReadOnly     []uint16         `json:"read_only"`
	NackAfter    int              `json:"nack_after"`

	// vl6180x
	Range uint8 `json:"range"`
}

var (
	ErrUnknownDevice   = errors.New("twisim: unknown device kind")
	ErrInvalidRegister = errors.New("twisim: invalid register number")
	ErrDeviceAddress   = errors.New("twisim: device address out of range")
)

// LoadConfig parses a JSON bench description and fills in defaults.
func LoadConfig(jsonData []byte) (*Config, error) {
	var config Config

	err := json.Unmarshal(jsonData, &config)
	if err != nil {
		return nil, err
	}

	applyDefaults(&config)

	return &config, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(config *Config) {
	if config.CPUFrequency == 0 {
		config.CPUFrequency = 16000000 // 16 MHz AVR
	}
	if config.BusFrequency == 0 {
		config.BusFrequency = 400000 // fast mode
	}
	if config.LoopPeriodUS == 0 {
		config.LoopPeriodUS = 50
	}

	for i := range config.Devices {
		dev := &config.Devices[i]
		if dev.Kind == "" {
			dev.Kind = "register"
		}
		if dev.Kind == "vl6180x" && dev.Address == 0 {
			dev.Address = VL6180XAddress
		}
		if dev.PointerWidth == 0 {
			dev.PointerWidth = 1
		}
	}
}

// DefaultConfig returns a 16 MHz board at 400 kHz with a VL6180X reporting
// 100 mm.
func DefaultConfig() *Config {
	return &Config{
		CPUFrequency: 16000000,
		BusFrequency: 400000,
		LoopPeriodUS: 50,
		Devices: []DeviceConfig{
			{Address: VL6180XAddress, Kind: "vl6180x", PointerWidth: 2, Range: 100},
		},
	}
}

// Build creates the device model.
func (dc DeviceConfig) Build() (Device, error) {
	if dc.Address > 0x7F {
		return nil, ErrDeviceAddress
	}

	switch dc.Kind {
	case "vl6180x":
		v := NewVL6180X(dc.Range)
		if err := dc.preload(v.RegisterDevice); err != nil {
			return nil, err
		}
		return v, nil

	case "register":
		d := NewRegisterDevice(dc.PointerWidth)
		d.NackAfter = dc.NackAfter
		if err := dc.preload(d); err != nil {
			return nil, err
		}
		return d, nil

	default:
		return nil, ErrUnknownDevice
	}
}

// preload copies configured register values into d
func (dc DeviceConfig) preload(d *RegisterDevice) error {
	for key, value := range dc.Registers {
		reg, err := strconv.ParseUint(key, 0, 16)
		if err != nil {
			return ErrInvalidRegister
		}
		d.Registers[uint16(reg)] = value
	}
	for _, reg := range dc.ReadOnly {
		d.ReadOnly[reg] = true
	}
	return nil
}
