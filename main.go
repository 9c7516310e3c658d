package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/acquire"
	"github.com/ericogr/hx711-to-mqtt/pkg/clock"
	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/output"
	"github.com/ericogr/hx711-to-mqtt/pkg/output/console"
	"github.com/ericogr/hx711-to-mqtt/pkg/output/modbus"
	"github.com/ericogr/hx711-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/hx711-to-mqtt/pkg/output/serial"
	"github.com/ericogr/hx711-to-mqtt/pkg/scale"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
)

func main() {
	log.Println("starting...")

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	acq, err := acquireConfig(cfg)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	outputs, err := initOutputs(cfg)
	if err != nil {
		log.Fatalf("outputs: %v", err)
	}
	defer outputs.Close()

	clk := clock.System()
	drv, err := sensor.New(cfg, clk)
	if err != nil {
		log.Fatalf("sensor: %v", err)
	}
	defer drv.Close()

	reader, err := acquire.NewReader(drv, acq, clk)
	if err != nil {
		log.Fatalf("acquisition: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := scale.New(reader, outputs, clk, policyFromConfig(cfg))
	log.Printf("driver=%s gain=%s samples=%d interval=%v", cfg.Driver, acq.Gain, acq.SampleCount, acq.ReportInterval)
	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Println("stopped")
		return
	}
	// deferred closes do not run after os.Exit
	outputs.Close()
	drv.Close()
	log.Printf("halted: %v", err)
	os.Exit(1)
}

func acquireConfig(cfg config.Config) (acquire.Config, error) {
	gain, err := sensor.ParseGain(cfg.Gain)
	if err != nil {
		return acquire.Config{}, err
	}
	acq := acquire.Config{
		Gain:             gain,
		SampleCount:      cfg.SampleCount,
		ReadyTimeout:     time.Duration(cfg.ReadyTimeoutMs) * time.Millisecond,
		RetryCount:       cfg.RetryCount,
		InterSampleDelay: time.Duration(cfg.InterSampleDelayMs) * time.Millisecond,
		ReportInterval:   time.Duration(cfg.ReportIntervalMs) * time.Millisecond,
	}
	return acq, acq.Validate()
}

func policyFromConfig(cfg config.Config) scale.Policy {
	var p scale.Policy
	if cfg.CalibrationPolicy == config.CalibrationRetry {
		p.Calibration = scale.RetryCalibration
	}
	if cfg.FailurePolicy == config.FailureRestart {
		p.Failure = scale.RestartOnFailure
	}
	return p
}

func initOutputs(cfg config.Config) (output.Multi, error) {
	outs := make(output.Multi, 0, len(cfg.Outputs))
	for _, oc := range cfg.Outputs {
		var o output.Output
		var err error
		switch oc.Type {
		case config.OutputConsole:
			o = console.NewConsole()
		case config.OutputSerial:
			o, err = serial.NewSerial(*oc.Serial)
		case config.OutputMQTT:
			o, err = mqtt.NewMQTT(*oc.MQTT)
		case config.OutputModbus:
			o, err = modbus.NewModbus(*oc.Modbus)
		default:
			err = fmt.Errorf("unknown output type %q", oc.Type)
		}
		if err != nil {
			outs.Close()
			return nil, fmt.Errorf("%s: %w", oc.Type, err)
		}
		outs = append(outs, o)
	}
	return outs, nil
}
