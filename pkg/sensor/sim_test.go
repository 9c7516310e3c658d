package sensor

import (
	"sync"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/clock"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// simChip models the HX711 side of the line pair: it shifts out queued codes
// MSB first on rising PD_SCK edges, counts the extra gain pulses and powers
// down when PD_SCK stays high longer than MaxPulseHigh.
type simChip struct {
	mu     sync.Mutex
	clk    clock.Clock
	codes  []uint32
	pulses int
	sck    bool
	highAt time.Time
	level  gpio.Level
	gains  []int
	resets int
}

func newSimChip(clk clock.Clock, codes ...uint32) *simChip {
	return &simChip{clk: clk, codes: codes, level: gpio.High}
}

func (c *simChip) setSCK(l gpio.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	if l == gpio.High {
		if !c.sck {
			c.sck = true
			c.highAt = now
			c.rise()
		}
		return
	}
	if c.sck {
		c.sck = false
		if now.Sub(c.highAt) > MaxPulseHigh {
			c.pulses = 0
			c.resets++
		}
	}
}

func (c *simChip) rise() {
	if c.pulses == 0 && len(c.codes) == 0 {
		return
	}
	if c.pulses < dataBits {
		c.level = gpio.Level(c.codes[0]>>(dataBits-1-c.pulses)&1 == 1)
	} else {
		c.level = gpio.High
	}
	c.pulses++
}

func (c *simChip) dout() gpio.Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sck {
		return c.level
	}
	if c.pulses > dataBits {
		c.gains = append(c.gains, c.pulses-dataBits)
		c.codes = c.codes[1:]
		c.pulses = 0
	}
	if c.pulses == 0 && len(c.codes) > 0 {
		return gpio.Low
	}
	return gpio.High
}

func (c *simChip) gainPulses() []int {
	c.dout()
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.gains...)
}

type simSCK struct {
	gpiotest.Pin
	chip *simChip
}

func (p *simSCK) Out(l gpio.Level) error {
	p.chip.setSCK(l)
	return nil
}

type simDOUT struct {
	gpiotest.Pin
	chip *simChip
}

func (p *simDOUT) In(gpio.Pull, gpio.Edge) error { return nil }

func (p *simDOUT) Read() gpio.Level { return p.chip.dout() }

func newSimLines(chip *simChip) (*simSCK, *simDOUT) {
	return &simSCK{chip: chip}, &simDOUT{chip: chip}
}
