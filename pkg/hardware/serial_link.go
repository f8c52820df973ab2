package hardware

import (
	"fmt"
	"log"

	"go.bug.st/serial"
)

// SerialLink is a Link backed by a real serial port
type SerialLink struct {
	config LinkConfig
	port   serial.Port
}

// OpenSerialLink opens the serial device at 8N1 with the configured baud rate
func OpenSerialLink(config LinkConfig) (*SerialLink, error) {
	if config.Device == "" {
		return nil, fmt.Errorf("serial device is required")
	}

	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(config.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial device %s: %w", config.Device, err)
	}

	if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", config.Device, err)
	}

	log.Printf("Serial: opened %s at %d baud", config.Device, config.BaudRate)
	return &SerialLink{config: config, port: port}, nil
}

// Read reads available bytes, returning 0, nil on timeout
func (l *SerialLink) Read(p []byte) (int, error) {
	return l.port.Read(p)
}

// Write writes the whole frame
func (l *SerialLink) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := l.port.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, fmt.Errorf("serial write stalled after %d of %d bytes", written, len(p))
		}
	}
	return written, nil
}

// Close closes the serial port
func (l *SerialLink) Close() error {
	return l.port.Close()
}

// Device returns the serial device path
func (l *SerialLink) Device() string {
	return l.config.Device
}

// ListPorts returns the serial ports present on this machine
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	if ports == nil {
		ports = []string{}
	}
	return ports, nil
}
