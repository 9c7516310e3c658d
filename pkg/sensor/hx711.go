package sensor

import (
	"errors"
	"fmt"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/clock"
	"periph.io/x/conn/v3/gpio"
)

// LineDriver talks to the HX711 over two GPIO lines: PD_SCK driven by the
// host and DOUT read back. DOUT going low means a conversion is ready; each
// rising edge of PD_SCK shifts out the next bit, MSB first.
type LineDriver struct {
	sck    gpio.PinOut
	dout   gpio.PinIn
	clock  clock.Clock
	timing Timing
	desync bool
}

func NewLineDriver(sck gpio.PinOut, dout gpio.PinIn, c clock.Clock, t Timing) (*LineDriver, error) {
	if sck == nil || dout == nil {
		return nil, errors.New("hx711: clock and data pins are required")
	}
	if err := dout.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("hx711: configure %s: %w", dout, err)
	}
	// PD_SCK low keeps the chip powered up.
	if err := sck.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("hx711: configure %s: %w", sck, err)
	}
	return &LineDriver{sck: sck, dout: dout, clock: c, timing: t.withDefaults()}, nil
}

func (d *LineDriver) Exchange(g Gain, readyTimeout time.Duration) (RawSample, error) {
	if d.desync {
		return 0, ErrProtocolTimeout
	}
	err := waitReady(d.clock, d.timing, readyTimeout, func() (bool, error) {
		return d.dout.Read() == gpio.Low, nil
	})
	if err != nil {
		return 0, err
	}

	var code uint32
	for i := 0; i < dataBits; i++ {
		bit, err := d.pulse()
		if err != nil {
			return 0, err
		}
		code = code<<1 | bit
	}
	for i := 0; i < g.Pulses(); i++ {
		if _, err := d.pulse(); err != nil {
			return 0, err
		}
	}
	return SignExtend(code), nil
}

// pulse raises PD_SCK, samples DOUT while high and lowers it again. A high
// phase longer than MaxPulseHigh or a failed line write desynchronises the
// driver.
func (d *LineDriver) pulse() (uint32, error) {
	if err := d.sck.Out(gpio.High); err != nil {
		d.desync = true
		return 0, fmt.Errorf("%w: clock high: %v", ErrProtocolTimeout, err)
	}
	start := d.clock.Now()
	d.clock.Sleep(d.timing.PulseWidth)
	var bit uint32
	if d.dout.Read() == gpio.High {
		bit = 1
	}
	if err := d.sck.Out(gpio.Low); err != nil {
		d.desync = true
		return 0, fmt.Errorf("%w: clock low: %v", ErrProtocolTimeout, err)
	}
	if held := d.clock.Now().Sub(start); held > MaxPulseHigh {
		d.desync = true
		return 0, fmt.Errorf("%w: clock held high for %v", ErrProtocolTimeout, held)
	}
	d.clock.Sleep(d.timing.PulseWidth)
	return bit, nil
}

func (d *LineDriver) Reset() error {
	if err := d.sck.Out(gpio.High); err != nil {
		return fmt.Errorf("hx711: power down: %w", err)
	}
	d.clock.Sleep(PowerDownHold)
	if err := d.sck.Out(gpio.Low); err != nil {
		return fmt.Errorf("hx711: power up: %w", err)
	}
	d.desync = false
	return nil
}

func (d *LineDriver) Close() error { return nil }
