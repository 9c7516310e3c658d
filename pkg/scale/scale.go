// Package scale runs the measurement cycle: calibrate the tare once, then
// report tare-relative weights forever.
package scale

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ericogr/hx711-to-mqtt/pkg/acquire"
	"github.com/ericogr/hx711-to-mqtt/pkg/clock"
	"github.com/ericogr/hx711-to-mqtt/pkg/output"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
)

type State int

const (
	Calibrating State = iota
	Measuring
)

func (s State) String() string {
	if s == Measuring {
		return "measuring"
	}
	return "calibrating"
}

// CalibrationPolicy decides what happens when taring fails.
type CalibrationPolicy int

const (
	// AbortOnCalibrationFailure reports the failure and stops.
	AbortOnCalibrationFailure CalibrationPolicy = iota
	// RetryCalibration reports the failure and tries again after one report
	// interval, indefinitely.
	RetryCalibration
)

// FailurePolicy decides what happens when a measuring cycle fails.
type FailurePolicy int

const (
	// SkipFailedCycle emits nothing for the cycle and measures again on the
	// next one.
	SkipFailedCycle FailurePolicy = iota
	// RestartOnFailure reports the failure and stops with ErrRestart, leaving
	// the restart to the process supervisor.
	RestartOnFailure
)

var (
	ErrRestart       = errors.New("measurement failed, restart required")
	ErrNotCalibrated = errors.New("measurement before calibration")
)

type Policy struct {
	Calibration CalibrationPolicy
	Failure     FailurePolicy
}

type Loop struct {
	reader *acquire.Reader
	cal    *acquire.Calibrator
	out    output.Output
	clock  clock.Clock
	policy Policy
	state  State
	primed bool
}

func New(r *acquire.Reader, out output.Output, c clock.Clock, p Policy) *Loop {
	return &Loop{
		reader: r,
		cal:    acquire.NewCalibrator(r),
		out:    out,
		clock:  c,
		policy: p,
		state:  Calibrating,
	}
}

func (l *Loop) State() State { return l.state }

// Run calibrates and then measures until ctx is cancelled or a policy asks
// to stop. It never returns nil.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.reader.Config().ReportInterval
	for l.state == Calibrating {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := l.Calibrate(); err != nil {
			l.fault(err)
			if l.policy.Calibration == AbortOnCalibrationFailure {
				return fmt.Errorf("calibration: %w", err)
			}
			log.Printf("calibration failed, retrying: %v", err)
			l.clock.Sleep(interval)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := l.Measure(); err != nil {
			if l.policy.Failure == RestartOnFailure {
				l.fault(err)
				return fmt.Errorf("%w: %w", ErrRestart, err)
			}
			log.Printf("measurement skipped: %v", err)
		}
		l.clock.Sleep(interval)
	}
}

// Calibrate computes the tare offset and moves the loop to Measuring.
func (l *Loop) Calibrate() (int32, error) {
	if l.state != Calibrating {
		return 0, acquire.ErrAlreadyTared
	}
	if !l.primed {
		if err := l.reader.Prime(); err != nil {
			l.resync(err)
			return 0, fmt.Errorf("apply gain: %w", err)
		}
		l.primed = true
	}
	tare, err := l.cal.Tare()
	if err != nil {
		l.resync(err)
		return 0, err
	}
	l.state = Measuring
	l.publish(output.Reading{Kind: output.KindTare, Value: tare, Raw: tare, Tare: tare, Timestamp: l.clock.Now()})
	return tare, nil
}

// Measure runs one measuring cycle and emits the weight.
func (l *Loop) Measure() (output.Reading, error) {
	tare, ok := l.cal.Offset()
	if !ok {
		return output.Reading{}, ErrNotCalibrated
	}
	avg, err := acquire.Average(l.reader.ReadN(l.reader.Config().SampleCount))
	if err != nil {
		l.resync(err)
		return output.Reading{}, err
	}
	r := output.Reading{
		Kind:      output.KindWeight,
		Value:     avg - tare,
		Raw:       avg,
		Tare:      tare,
		Timestamp: l.clock.Now(),
	}
	l.publish(r)
	return r, nil
}

// resync power-cycles the sensor after a protocol timeout so the next
// attempt starts from a readiness wait.
func (l *Loop) resync(err error) {
	if !errors.Is(err, sensor.ErrProtocolTimeout) {
		return
	}
	if rerr := l.reader.Reset(); rerr != nil {
		log.Printf("sensor reset failed: %v", rerr)
	}
}

func (l *Loop) fault(err error) {
	l.publish(output.Reading{Kind: output.KindFault, Err: err.Error(), Timestamp: l.clock.Now()})
}

// publish failures are logged only; a broken output must not stop the scale.
func (l *Loop) publish(r output.Reading) {
	if err := l.out.Publish(r); err != nil {
		log.Printf("publish %s: %v", r.Kind, err)
	}
}
