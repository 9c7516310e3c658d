// Package serial writes the text sink lines to a UART, for hosts where the
// readings are consumed by another controller or a terminal on the wire.
package serial

import (
	"fmt"
	"io"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/output"
	bugst "go.bug.st/serial"
)

const DefaultBaudRate = 115200

type SerialOutput struct {
	port io.WriteCloser
}

func NewSerial(cfg config.SerialConfig) (output.Output, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	p, err := bugst.Open(cfg.Port, &bugst.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}
	return &SerialOutput{port: p}, nil
}

// NewPort wraps an already open port.
func NewPort(p io.WriteCloser) output.Output { return &SerialOutput{port: p} }

func (s *SerialOutput) Publish(r output.Reading) error {
	// CRLF so plain terminals on the other end render one reading per line
	if _, err := io.WriteString(s.port, r.Line()+"\r\n"); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

func (s *SerialOutput) Close() error { return s.port.Close() }
