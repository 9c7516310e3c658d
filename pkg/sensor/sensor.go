package sensor

import (
	"errors"
	"fmt"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/clock"
	"github.com/ericogr/hx711-to-mqtt/pkg/config"
)

const (
	// MaxPulseHigh is the longest the clock line may stay high before the
	// HX711 enters power-down.
	MaxPulseHigh = 60 * time.Microsecond
	// PowerDownHold keeps the clock high long enough to force a power-down.
	PowerDownHold = 100 * time.Microsecond

	DefaultPulseWidth   = time.Microsecond
	DefaultPollInterval = time.Millisecond

	dataBits = 24
)

var (
	// ErrNotReady reports that DOUT did not go low within the readiness timeout.
	ErrNotReady = errors.New("hx711: sensor not ready")
	// ErrProtocolTimeout reports that the clock timing contract was broken
	// mid-transaction. The chip is in an unknown state and the driver refuses
	// further exchanges until Reset is called.
	ErrProtocolTimeout = errors.New("hx711: protocol timeout")
)

// RawSample is a sign-extended 24-bit conversion result.
type RawSample int32

const (
	MinRawSample RawSample = -1 << (dataBits - 1)
	MaxRawSample RawSample = 1<<(dataBits-1) - 1
)

// SignExtend converts a 24-bit two's-complement code to a RawSample.
// Bits above bit 23 are ignored.
func SignExtend(code uint32) RawSample {
	return RawSample(int32(code<<8) >> 8)
}

// Gain selects the input channel and amplification of the next conversion.
// Its value is the number of extra clock pulses issued after the data bits.
// The HX711 has no channel A gain 32 path; channel A runs at 128 or 64.
type Gain uint8

const (
	ChannelAGain128 Gain = iota + 1
	ChannelBGain32
	ChannelAGain64
)

func (g Gain) Pulses() int { return int(g) }

func (g Gain) String() string {
	switch g {
	case ChannelAGain128:
		return "A128"
	case ChannelBGain32:
		return "B32"
	case ChannelAGain64:
		return "A64"
	}
	return fmt.Sprintf("Gain(%d)", uint8(g))
}

func ParseGain(s string) (Gain, error) {
	switch config.GainName(s) {
	case "A128":
		return ChannelAGain128, nil
	case "B32":
		return ChannelBGain32, nil
	case "A64":
		return ChannelAGain64, nil
	}
	return 0, fmt.Errorf("invalid gain %q", s)
}

// Driver performs one blocking 24-bit conversion per Exchange call.
type Driver interface {
	// Exchange waits up to readyTimeout for DOUT to signal readiness, clocks
	// out one sample and programs g for the following conversion.
	Exchange(g Gain, readyTimeout time.Duration) (RawSample, error)
	// Reset power-cycles the chip and clears a protocol desynchronisation.
	// The chip comes back on channel A, gain 128.
	Reset() error
	Close() error
}

// Timing holds the protocol delays shared by both driver variants.
type Timing struct {
	PollInterval time.Duration
	PulseWidth   time.Duration
}

func (t Timing) withDefaults() Timing {
	if t.PollInterval <= 0 {
		t.PollInterval = DefaultPollInterval
	}
	if t.PulseWidth <= 0 {
		t.PulseWidth = DefaultPulseWidth
	}
	return t
}

// waitReady polls ready until it reports true or timeout elapses on c.
// The last poll happens exactly at the deadline.
func waitReady(c clock.Clock, t Timing, timeout time.Duration, ready func() (bool, error)) error {
	deadline := c.Now().Add(timeout)
	for {
		ok, err := ready()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		now := c.Now()
		if !now.Before(deadline) {
			return ErrNotReady
		}
		wait := t.PollInterval
		if rem := deadline.Sub(now); rem < wait {
			wait = rem
		}
		c.Sleep(wait)
	}
}
