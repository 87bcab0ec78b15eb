package serial

import (
	"io"
)

// Port is the byte stream between the host tools and a board running the
// TWI console. The native implementation wraps github.com/tarm/serial; tests
// substitute an in-memory pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush pushes out any buffered output
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate of the board's console UART
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultBaud matches the firmware console UART
const DefaultBaud = 115200

// DefaultConfig returns the settings the firmware console expects
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        DefaultBaud,
		ReadTimeout: 100,
	}
}
