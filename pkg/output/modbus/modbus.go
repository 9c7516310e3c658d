// Package modbus mirrors the tare and the latest weight into holding
// registers of a Modbus TCP server (typically a PLC or an HMI gateway).
//
// Register map, relative to the configured address, each value a big-endian
// signed 32-bit pair:
//
//	address+0..1  tare offset
//	address+2..3  weight
package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/output"
	gomodbus "github.com/goburrow/modbus"
)

const (
	DefaultTimeout = 2 * time.Second
	tareOffset     = 0
	weightOffset   = 2
)

// RegisterWriter is the subset of gomodbus.Client used here.
type RegisterWriter interface {
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

type ModbusOutput struct {
	mu      sync.Mutex
	handler *gomodbus.TCPClientHandler
	client  RegisterWriter
	address uint16
}

func NewModbus(cfg config.ModbusConfig) (output.Output, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus output: endpoint required")
	}
	h := gomodbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = DefaultTimeout
	if cfg.TimeoutMs > 0 {
		h.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	h.SlaveId = cfg.UnitID
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus connect %s: %w", cfg.Endpoint, err)
	}
	return &ModbusOutput{handler: h, client: gomodbus.NewClient(h), address: cfg.Address}, nil
}

func newWithClient(c RegisterWriter, address uint16) *ModbusOutput {
	return &ModbusOutput{client: c, address: address}
}

// Publish writes tare and weight readings; faults are not mirrored, the
// registers keep the last good value.
func (m *ModbusOutput) Publish(r output.Reading) error {
	var off uint16
	switch r.Kind {
	case output.KindTare:
		off = tareOffset
	case output.KindWeight:
		off = weightOffset
	default:
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.client.WriteMultipleRegisters(m.address+off, 2, packInt32(r.Value)); err != nil {
		return fmt.Errorf("modbus write %s: %w", r.Kind, err)
	}
	return nil
}

func (m *ModbusOutput) Close() error {
	if m.handler == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler.Close()
}

func packInt32(v int32) []byte {
	u := uint32(v)
	return []byte{byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
}
