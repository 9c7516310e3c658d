package sensor

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/physic"
)

// encodeBus lays a 24-bit code out as the MISO bytes seen during a
// transaction, with DOUT sampled in the low half of every pulse. The trailing
// gain byte reads back as DOUT high.
func encodeBus(code uint32) []byte {
	out := make([]byte, dataBytes+1)
	for i := 0; i < dataBits; i++ {
		if code>>(dataBits-1-i)&1 == 1 {
			out[i/4] |= 1 << (6 - 2*(i%4))
		}
	}
	out[dataBytes] = 0xFF
	return out
}

func transaction(gain byte, code uint32) conntest.IO {
	w := append(bytes.Repeat([]byte{pulseByte}, dataBytes), gain)
	return conntest.IO{W: w, R: encodeBus(code)}
}

var (
	statusBusy  = conntest.IO{W: []byte{0x00}, R: []byte{0xFF}}
	statusReady = conntest.IO{W: []byte{0x00}, R: []byte{0x00}}
)

func TestDecodeBus(t *testing.T) {
	for _, code := range []uint32{0x000000, 0x7FFFFF, 0x800000, 0x123456, 0xFFFFFF} {
		r := encodeBus(code)
		// pulse-phase bits on MISO are noise and must be ignored
		for i := 0; i < dataBytes; i++ {
			r[i] |= 0xAA
		}
		if got := decodeBus(r[:dataBytes]); got != code {
			t.Fatalf("decodeBus(encodeBus(%#06x)) = %#06x", code, got)
		}
	}
}

func TestBusDriverExchange(t *testing.T) {
	clk := clock.NewFake(epoch)
	bus := &conntest.Playback{
		Ops: []conntest.IO{
			statusBusy,
			statusBusy,
			statusReady,
			transaction(0x80, 0x0003E8),
			statusReady,
			transaction(0xA0, 0x800000),
			statusReady,
			transaction(0xA8, 0x7FFFFF),
		},
		DontPanic: true,
	}
	d, err := NewBusDriver(bus, physic.MegaHertz, clk, Timing{})
	require.NoError(t, err)

	got, err := d.Exchange(ChannelAGain128, time.Second)
	require.NoError(t, err)
	assert.Equal(t, RawSample(1000), got)
	assert.Equal(t, 2*DefaultPollInterval, clk.Slept(), "two busy status reads")

	got, err = d.Exchange(ChannelBGain32, time.Second)
	require.NoError(t, err)
	assert.Equal(t, RawSample(-8388608), got)

	got, err = d.Exchange(ChannelAGain64, time.Second)
	require.NoError(t, err)
	assert.Equal(t, RawSample(8388607), got)

	require.NoError(t, bus.Close())
}

func TestBusDriverReadyTimeout(t *testing.T) {
	clk := clock.NewFake(epoch)
	ops := make([]conntest.IO, 0, 6)
	for i := 0; i < 6; i++ {
		ops = append(ops, statusBusy)
	}
	bus := &conntest.Playback{Ops: ops, DontPanic: true}
	d, err := NewBusDriver(bus, physic.MegaHertz, clk, Timing{PollInterval: time.Millisecond})
	require.NoError(t, err)

	start := clk.Now()
	_, err = d.Exchange(ChannelAGain128, 5*time.Millisecond)
	require.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 5*time.Millisecond, clk.Now().Sub(start))
}

type failingBus struct {
	calls int
	reset []byte
}

func (b *failingBus) Tx(w, r []byte) error {
	b.calls++
	switch {
	case len(w) == 1:
		r[0] = 0x00
		return nil
	case w[0] == 0xFF:
		b.reset = append([]byte(nil), w...)
		return nil
	}
	return errors.New("transfer aborted")
}

func TestBusDriverDesyncUntilReset(t *testing.T) {
	clk := clock.NewFake(epoch)
	bus := &failingBus{}
	d, err := NewBusDriver(bus, physic.MegaHertz, clk, Timing{})
	require.NoError(t, err)

	_, err = d.Exchange(ChannelAGain128, time.Second)
	require.ErrorIs(t, err, ErrProtocolTimeout)
	calls := bus.calls
	_, err = d.Exchange(ChannelAGain128, time.Second)
	require.ErrorIs(t, err, ErrProtocolTimeout)
	assert.Equal(t, calls, bus.calls, "no bus traffic while desynchronised")

	require.NoError(t, d.Reset())
	// 100µs at 1MHz is 100 high bits: 13 bytes of 0xFF plus a trailing low byte
	require.Len(t, bus.reset, 14)
	assert.Equal(t, byte(0x00), bus.reset[13])
	assert.False(t, d.desync)
}

func TestBusDriverRejectsSpeed(t *testing.T) {
	clk := clock.NewFake(epoch)
	for _, f := range []physic.Frequency{10 * physic.KiloHertz, 10 * physic.MegaHertz} {
		_, err := NewBusDriver(&failingBus{}, f, clk, Timing{})
		assert.Error(t, err, "speed %s", f)
	}
	_, err := NewBusDriver(&failingBus{}, MinBusSpeed, clk, Timing{})
	assert.NoError(t, err)
}
