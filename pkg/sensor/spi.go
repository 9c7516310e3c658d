package sensor

import (
	"fmt"
	"io"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/clock"
	"periph.io/x/conn/v3/physic"
)

// Bus speed bounds. Every MOSI bit is one PD_SCK phase, so the upper bound
// keeps phases above the 0.2µs minimum and the lower bound keeps a high phase
// under MaxPulseHigh.
const (
	MinBusSpeed = 20 * physic.KiloHertz
	MaxBusSpeed = 2500 * physic.KiloHertz
)

// Each 0xAA byte on MOSI produces four PD_SCK pulses. DOUT is sampled in the
// low half of every pulse, i.e. on the odd MISO bit positions (mask 0x55).
const (
	pulseByte  = 0xAA
	dataBytes  = dataBits / 4
	sampleMask = 0x55
)

var gainBytes = map[Gain]byte{
	ChannelAGain128: 0x80,
	ChannelBGain32:  0xA0,
	ChannelAGain64:  0xA8,
}

// Bus is the synchronous serial transfer used by BusDriver. periph's
// spi.Conn satisfies it.
type Bus interface {
	Tx(w, r []byte) error
}

// BusDriver talks to the HX711 through an SPI controller: MOSI drives PD_SCK
// and MISO reads DOUT. SCLK and chip select are left unconnected.
type BusDriver struct {
	bus        Bus
	closer     io.Closer
	clock      clock.Clock
	timing     Timing
	resetBytes int
	desync     bool
}

func NewBusDriver(bus Bus, speed physic.Frequency, c clock.Clock, t Timing) (*BusDriver, error) {
	if speed < MinBusSpeed || speed > MaxBusSpeed {
		return nil, fmt.Errorf("hx711: bus speed %s outside [%s, %s]", speed, MinBusSpeed, MaxBusSpeed)
	}
	// enough consecutive high bits on MOSI to cover PowerDownHold
	bits := int64(PowerDownHold) * int64(speed/physic.Hertz) / int64(time.Second)
	return &BusDriver{
		bus:        bus,
		clock:      c,
		timing:     t.withDefaults(),
		resetBytes: int(bits/8) + 1,
	}, nil
}

func (d *BusDriver) Exchange(g Gain, readyTimeout time.Duration) (RawSample, error) {
	if d.desync {
		return 0, ErrProtocolTimeout
	}
	gb, ok := gainBytes[g]
	if !ok {
		return 0, fmt.Errorf("hx711: invalid gain %v", g)
	}

	status := make([]byte, 1)
	err := waitReady(d.clock, d.timing, readyTimeout, func() (bool, error) {
		if err := d.bus.Tx([]byte{0x00}, status); err != nil {
			return false, fmt.Errorf("hx711: readiness check: %w", err)
		}
		return status[0] == 0x00, nil
	})
	if err != nil {
		return 0, err
	}

	w := make([]byte, dataBytes+1)
	for i := 0; i < dataBytes; i++ {
		w[i] = pulseByte
	}
	w[dataBytes] = gb
	r := make([]byte, len(w))
	if err := d.bus.Tx(w, r); err != nil {
		d.desync = true
		return 0, fmt.Errorf("%w: %v", ErrProtocolTimeout, err)
	}
	return SignExtend(decodeBus(r[:dataBytes])), nil
}

// decodeBus assembles the 24-bit code from the MISO bytes, big-endian.
func decodeBus(r []byte) uint32 {
	var code uint32
	for _, b := range r {
		b &= sampleMask
		for shift := 6; shift >= 0; shift -= 2 {
			code = code<<1 | uint32(b>>shift)&1
		}
	}
	return code
}

// Reset holds MOSI high for at least PowerDownHold, then lets it fall.
func (d *BusDriver) Reset() error {
	w := make([]byte, d.resetBytes+1)
	for i := 0; i < d.resetBytes; i++ {
		w[i] = 0xFF
	}
	if err := d.bus.Tx(w, make([]byte, len(w))); err != nil {
		return fmt.Errorf("hx711: power cycle: %w", err)
	}
	d.desync = false
	return nil
}

func (d *BusDriver) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}
