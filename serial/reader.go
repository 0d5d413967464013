package serial

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// defaultReadTimeout bounds a single poll on a real port. Short
// enough that stall detection stays meaningful, long enough to avoid
// busy-spinning on an idle line.
const defaultReadTimeout = 50 * time.Millisecond

// RealPort implements Port using a physical serial port
type RealPort struct {
	port   serial.Port
	config PortConfig
	isOpen bool
}

// Open opens a serial port with the given configuration
func Open(config PortConfig) (*RealPort, error) {
	mode := &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		StopBits: convertStopBits(config.StopBits),
		Parity:   convertParity(config.Parity),
	}

	port, err := serial.Open(config.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", config.Device, err)
	}

	timeout := config.ReadTimeout
	if timeout == 0 {
		timeout = defaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &RealPort{
		port:   port,
		config: config,
		isOpen: true,
	}, nil
}

// Read polls the port for available bytes. A timeout with no data
// returns (0, nil), matching the Port contract.
func (p *RealPort) Read(buf []byte) (int, error) {
	if !p.isOpen {
		return 0, fmt.Errorf("port is closed")
	}
	return p.port.Read(buf)
}

// Write sends bytes to the device. The acquisition path never
// writes; this exists for tooling that drives a port pair.
func (p *RealPort) Write(buf []byte) (int, error) {
	if !p.isOpen {
		return 0, fmt.Errorf("port is closed")
	}
	return p.port.Write(buf)
}

// Close closes the serial port
func (p *RealPort) Close() error {
	if !p.isOpen {
		return nil
	}
	p.isOpen = false
	return p.port.Close()
}

// ResetBuffers discards pending input and output
func (p *RealPort) ResetBuffers() error {
	if !p.isOpen {
		return fmt.Errorf("port is closed")
	}
	if err := p.port.ResetInputBuffer(); err != nil {
		return err
	}
	return p.port.ResetOutputBuffer()
}

// Device returns the device path
func (p *RealPort) Device() string {
	return p.config.Device
}

// IsOpen returns true if the port is currently open
func (p *RealPort) IsOpen() bool {
	return p.isOpen
}

// ListPorts returns a list of available serial ports
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

func convertStopBits(bits int) serial.StopBits {
	switch bits {
	case 2:
		return serial.TwoStopBits
	default:
		return serial.OneStopBit
	}
}

func convertParity(parity string) serial.Parity {
	switch parity {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	case "mark":
		return serial.MarkParity
	case "space":
		return serial.SpaceParity
	default:
		return serial.NoParity
	}
}

// classifyOpenError maps library errors onto the manager's sentinel
// error taxonomy so callers can present an actionable reason.
func classifyOpenError(err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound:
			return fmt.Errorf("%w: %v", ErrNoDevice, err)
		case serial.PermissionDenied:
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		case serial.PortBusy:
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
	}
	return err
}
