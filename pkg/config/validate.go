package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DriverGPIO       = "gpio"
	DriverSPI        = "spi"
	DriverSimulation = "simulation"

	CalibrationAbort = "abort"
	CalibrationRetry = "retry"

	FailureSkip    = "skip"
	FailureRestart = "restart"

	OutputConsole = "console"
	OutputSerial  = "serial"
	OutputMQTT    = "mqtt"
	OutputModbus  = "modbus"
)

var validGains = map[string]bool{"A128": true, "B32": true, "A64": true}

// GainName returns the canonical spelling of a gain setting. Case and
// surrounding spaces are ignored and an empty setting means A128.
func GainName(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "A128"
	}
	return s
}

// Validate checks configuration correctness before the device starts
// calibrating. It does not mutate cfg.
func Validate(cfg Config) error {
	switch cfg.Driver {
	case DriverGPIO:
		if cfg.GPIO.Clock == "" || cfg.GPIO.Data == "" {
			return errors.New("gpio driver requires clock and data pins")
		}
		if cfg.GPIO.Clock == cfg.GPIO.Data {
			return fmt.Errorf("clock and data pins must differ, both are %q", cfg.GPIO.Clock)
		}
	case DriverSPI:
		if cfg.SPI.SpeedHz <= 0 {
			return errors.New("spi speed_hz must be > 0")
		}
	case DriverSimulation:
	default:
		return fmt.Errorf("unknown driver %q", cfg.Driver)
	}

	if !validGains[GainName(cfg.Gain)] {
		return fmt.Errorf("unknown gain %q (want A128, B32 or A64)", cfg.Gain)
	}
	if cfg.SampleCount <= 0 {
		return fmt.Errorf("sample_count must be > 0, got %d", cfg.SampleCount)
	}
	if cfg.ReadyTimeoutMs <= 0 {
		return errors.New("ready_timeout_ms must be > 0")
	}
	if cfg.RetryCount < 0 {
		return errors.New("retry_count must be >= 0")
	}
	if cfg.InterSampleDelayMs < 0 {
		return errors.New("inter_sample_delay_ms must be >= 0")
	}
	if cfg.ReportIntervalMs < 0 {
		return errors.New("report_interval_ms must be >= 0")
	}

	switch cfg.CalibrationPolicy {
	case CalibrationAbort, CalibrationRetry:
	default:
		return fmt.Errorf("unknown calibration_policy %q", cfg.CalibrationPolicy)
	}
	switch cfg.FailurePolicy {
	case FailureSkip, FailureRestart:
	default:
		return fmt.Errorf("unknown failure_policy %q", cfg.FailurePolicy)
	}

	if len(cfg.Outputs) == 0 {
		return errors.New("at least one output is required")
	}
	for i, o := range cfg.Outputs {
		switch o.Type {
		case OutputConsole:
		case OutputSerial:
			if o.Serial == nil || o.Serial.Port == "" {
				return fmt.Errorf("output %d: serial requires a port", i)
			}
		case OutputMQTT:
			if o.MQTT == nil || o.MQTT.Server == "" {
				return fmt.Errorf("output %d: mqtt requires a server", i)
			}
		case OutputModbus:
			if o.Modbus == nil || o.Modbus.Endpoint == "" {
				return fmt.Errorf("output %d: modbus requires an endpoint", i)
			}
		default:
			return fmt.Errorf("output %d: unknown type %q", i, o.Type)
		}
	}
	return nil
}
