package hardware

import (
	"errors"
	"io"
	"time"
)

// ErrLinkClosed is returned by reads and writes on a closed link
var ErrLinkClosed = errors.New("link closed")

// LinkConfig represents serial link configuration
type LinkConfig struct {
	Device      string        // Serial device path (e.g., /dev/ttyUSB0)
	BaudRate    int           // Serial baud rate
	ReadTimeout time.Duration // How long a read waits before returning zero bytes
	Mock        bool          // Use the simulated receiver instead of a serial port
}

// Link is a byte stream to the receiver. Read blocks for at most the
// configured read timeout and returns 0, nil when nothing arrived.
type Link interface {
	io.ReadWriteCloser
}

// Receiver link defaults
const (
	DefaultBaudRate    = 1200
	DefaultReadTimeout = time.Second
)

// OpenLink opens the serial port named in config, or a simulated receiver
// when config.Mock is set.
func OpenLink(config LinkConfig) (Link, error) {
	if config.BaudRate == 0 {
		config.BaudRate = DefaultBaudRate
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultReadTimeout
	}

	if config.Mock {
		return NewMockLink(MockLinkConfig{
			ReadTimeout: config.ReadTimeout,
			Simulate:    true,
		}), nil
	}
	return OpenSerialLink(config)
}
