package acquire

import (
	"errors"
	"testing"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/clock"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// step is one scripted Exchange outcome.
type step struct {
	v   sensor.RawSample
	err error
}

type scriptDriver struct {
	steps    []step
	calls    int
	gains    []sensor.Gain
	timeouts []time.Duration
	resets   int
}

func samples(vs ...sensor.RawSample) []step {
	out := make([]step, len(vs))
	for i, v := range vs {
		out[i] = step{v: v}
	}
	return out
}

func (d *scriptDriver) Exchange(g sensor.Gain, readyTimeout time.Duration) (sensor.RawSample, error) {
	d.gains = append(d.gains, g)
	d.timeouts = append(d.timeouts, readyTimeout)
	if d.calls >= len(d.steps) {
		return 0, sensor.ErrNotReady
	}
	s := d.steps[d.calls]
	d.calls++
	return s.v, s.err
}

func (d *scriptDriver) Reset() error { d.resets++; return nil }
func (d *scriptDriver) Close() error { return nil }

var epoch = time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)

func testConfig() Config {
	return Config{
		Gain:             sensor.ChannelAGain128,
		SampleCount:      8,
		ReadyTimeout:     500 * time.Millisecond,
		RetryCount:       2,
		InterSampleDelay: 10 * time.Millisecond,
		ReportInterval:   time.Second,
	}
}

func newReader(t *testing.T, d sensor.Driver, cfg Config) (*Reader, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(epoch)
	r, err := NewReader(d, cfg, clk)
	require.NoError(t, err)
	return r, clk
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	cfg.SampleCount = 0
	require.ErrorIs(t, cfg.Validate(), ErrInsufficientSamples)
	_, err := NewReader(&scriptDriver{}, cfg, clock.NewFake(epoch))
	require.ErrorIs(t, err, ErrInsufficientSamples)

	cfg = testConfig()
	cfg.Gain = 0
	assert.Error(t, cfg.Validate())
	cfg = testConfig()
	cfg.RetryCount = -1
	assert.Error(t, cfg.Validate())
	cfg = testConfig()
	cfg.ReadyTimeout = 0
	assert.Error(t, cfg.Validate(), "zero ready timeout is rejected like ready_timeout_ms")
	assert.NoError(t, testConfig().Validate())
}

func TestReadOneRetriesNotReady(t *testing.T) {
	d := &scriptDriver{steps: []step{{err: sensor.ErrNotReady}, {err: sensor.ErrNotReady}, {v: 42}}}
	r, clk := newReader(t, d, testConfig())

	got, err := r.ReadOne()
	require.NoError(t, err)
	assert.Equal(t, sensor.RawSample(42), got)
	assert.Equal(t, 3, d.calls)
	assert.Zero(t, clk.Slept(), "retries add no delay")
}

func TestReadOneExhaustsRetries(t *testing.T) {
	d := &scriptDriver{}
	r, _ := newReader(t, d, testConfig())

	_, err := r.ReadOne()
	require.ErrorIs(t, err, ErrAcquisitionFailed)
	assert.ErrorIs(t, err, sensor.ErrNotReady)
	assert.Equal(t, 3, len(d.gains), "one attempt plus two retries")
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}, d.timeouts)
}

func TestReadOneReadyTimeoutOnLines(t *testing.T) {
	for _, timeout := range []time.Duration{500 * time.Millisecond, 10 * time.Millisecond} {
		clk := clock.NewFake(epoch)
		sck, dout := &gpiotest.Pin{N: "SCK"}, &gpiotest.Pin{N: "DOUT"}
		drv, err := sensor.NewLineDriver(sck, dout, clk, sensor.Timing{PollInterval: time.Millisecond})
		require.NoError(t, err)
		// conversion never completes
		require.NoError(t, dout.Out(gpio.High))

		cfg := testConfig()
		cfg.ReadyTimeout = timeout
		cfg.RetryCount = 0
		r, err := NewReader(drv, cfg, clk)
		require.NoError(t, err)

		start := clk.Now()
		_, err = r.ReadOne()
		require.ErrorIs(t, err, ErrAcquisitionFailed)
		assert.ErrorIs(t, err, sensor.ErrNotReady)
		assert.Equal(t, timeout, clk.Now().Sub(start))
	}
}

func TestReadOneZeroRetries(t *testing.T) {
	cfg := testConfig()
	cfg.RetryCount = 0
	d := &scriptDriver{steps: []step{{err: sensor.ErrNotReady}, {v: 1}}}
	r, _ := newReader(t, d, cfg)

	_, err := r.ReadOne()
	require.ErrorIs(t, err, ErrAcquisitionFailed)
	assert.Equal(t, 1, d.calls)
}

func TestReadOneSurfacesProtocolTimeout(t *testing.T) {
	d := &scriptDriver{steps: []step{{err: sensor.ErrProtocolTimeout}, {v: 1}}}
	r, _ := newReader(t, d, testConfig())

	_, err := r.ReadOne()
	require.ErrorIs(t, err, sensor.ErrProtocolTimeout)
	assert.False(t, errors.Is(err, ErrAcquisitionFailed))
	assert.Equal(t, 1, d.calls, "not retried")
}

func TestReadNSpacingAndSingleUse(t *testing.T) {
	d := &scriptDriver{steps: samples(1, 2, 3, 4)}
	r, clk := newReader(t, d, testConfig())

	seq := r.ReadN(3)
	assert.Zero(t, d.calls, "lazy until ranged")
	var got []sensor.RawSample
	for s, err := range seq {
		require.NoError(t, err)
		got = append(got, s)
	}
	assert.Equal(t, []sensor.RawSample{1, 2, 3}, got)
	assert.Equal(t, 20*time.Millisecond, clk.Slept())

	for _, err := range seq {
		assert.ErrorIs(t, err, ErrSequenceConsumed)
	}
	assert.Equal(t, 3, d.calls)
}

func TestReadNStopsOnError(t *testing.T) {
	d := &scriptDriver{steps: []step{{v: 1}, {err: sensor.ErrProtocolTimeout}, {v: 3}}}
	r, _ := newReader(t, d, testConfig())

	n := 0
	var last error
	for _, err := range r.ReadN(3) {
		n++
		last = err
	}
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, last, sensor.ErrProtocolTimeout)
}

func TestPrimeAndReset(t *testing.T) {
	d := &scriptDriver{steps: samples(7, 8)}
	r, _ := newReader(t, d, testConfig())
	require.NoError(t, r.Prime())
	assert.Zero(t, d.calls, "A128 is the power-on default")

	cfg := testConfig()
	cfg.Gain = sensor.ChannelBGain32
	r, _ = newReader(t, d, cfg)
	require.NoError(t, r.Reset())
	assert.Equal(t, 1, d.resets)
	assert.Equal(t, 1, d.calls)
	assert.Equal(t, sensor.ChannelBGain32, d.gains[0])
}
