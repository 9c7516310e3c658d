// Package acquire turns driver conversions into averaged samples: a
// retrying reader, the averager and the one-shot tare calibration.
package acquire

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/clock"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
)

var (
	// ErrAcquisitionFailed is returned once the readiness retries are used up.
	ErrAcquisitionFailed = errors.New("acquisition failed")
	// ErrInsufficientSamples is returned when averaging zero samples.
	ErrInsufficientSamples = errors.New("insufficient samples")
	// ErrSequenceConsumed is yielded when a ReadN sequence is ranged twice.
	ErrSequenceConsumed = errors.New("sample sequence already consumed")
)

// Config is the acquisition configuration, immutable after startup.
type Config struct {
	Gain             sensor.Gain
	SampleCount      int
	ReadyTimeout     time.Duration
	RetryCount       int
	InterSampleDelay time.Duration
	ReportInterval   time.Duration
}

// Validate rejects configurations that could only fail at runtime.
func (c Config) Validate() error {
	if c.SampleCount <= 0 {
		return fmt.Errorf("%w: sample count must be > 0, got %d", ErrInsufficientSamples, c.SampleCount)
	}
	if c.Gain < sensor.ChannelAGain128 || c.Gain > sensor.ChannelAGain64 {
		return fmt.Errorf("invalid gain %v", c.Gain)
	}
	if c.RetryCount < 0 {
		return errors.New("retry count must be >= 0")
	}
	if c.ReadyTimeout <= 0 {
		return errors.New("ready timeout must be > 0")
	}
	if c.InterSampleDelay < 0 || c.ReportInterval < 0 {
		return errors.New("durations must be >= 0")
	}
	return nil
}

// Reader owns the driver for the lifetime of the process; nothing else may
// talk to it, so reads never overlap.
type Reader struct {
	drv   sensor.Driver
	cfg   Config
	clock clock.Clock
}

func NewReader(drv sensor.Driver, cfg Config, c clock.Clock) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reader{drv: drv, cfg: cfg, clock: c}, nil
}

func (r *Reader) Config() Config { return r.cfg }

// ReadOne performs one conversion, waiting up to ReadyTimeout per attempt. A
// readiness timeout is retried up to RetryCount times without delay; a
// protocol timeout is returned at once.
func (r *Reader) ReadOne() (sensor.RawSample, error) {
	var err error
	for attempt := 0; attempt <= r.cfg.RetryCount; attempt++ {
		var s sensor.RawSample
		s, err = r.drv.Exchange(r.cfg.Gain, r.cfg.ReadyTimeout)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, sensor.ErrNotReady) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("%w after %d attempts: %w", ErrAcquisitionFailed, r.cfg.RetryCount+1, err)
}

// ReadN returns a lazy sequence of exactly n samples, spaced by
// InterSampleDelay. The first error ends the sequence. The sequence can be
// ranged over once.
func (r *Reader) ReadN(n int) iter.Seq2[sensor.RawSample, error] {
	used := false
	return func(yield func(sensor.RawSample, error) bool) {
		if used {
			yield(0, ErrSequenceConsumed)
			return
		}
		used = true
		for i := 0; i < n; i++ {
			if i > 0 {
				r.clock.Sleep(r.cfg.InterSampleDelay)
			}
			s, err := r.ReadOne()
			if !yield(s, err) || err != nil {
				return
			}
		}
	}
}

// Prime runs one throwaway conversion so the configured gain is in effect
// for the next sample. The chip powers up on channel A gain 128, so nothing
// is done for that gain.
func (r *Reader) Prime() error {
	if r.cfg.Gain == sensor.ChannelAGain128 {
		return nil
	}
	_, err := r.ReadOne()
	return err
}

// Reset power-cycles the sensor after a protocol timeout and re-applies the
// configured gain.
func (r *Reader) Reset() error {
	if err := r.drv.Reset(); err != nil {
		return err
	}
	return r.Prime()
}
