package sensor

import (
	"fmt"

	"github.com/ericogr/hx711-to-mqtt/pkg/clock"
	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// New builds the single driver selected by cfg.Driver. It takes the pins or
// the SPI port for the lifetime of the process.
func New(cfg config.Config, c clock.Clock) (Driver, error) {
	t := Timing{PollInterval: DefaultPollInterval, PulseWidth: DefaultPulseWidth}
	switch cfg.Driver {
	case config.DriverSimulation:
		return NewSimulated(cfg.Simulation), nil
	case config.DriverGPIO:
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host init: %w", err)
		}
		sck := gpioreg.ByName(cfg.GPIO.Clock)
		if sck == nil {
			return nil, fmt.Errorf("unknown clock pin %q", cfg.GPIO.Clock)
		}
		dout := gpioreg.ByName(cfg.GPIO.Data)
		if dout == nil {
			return nil, fmt.Errorf("unknown data pin %q", cfg.GPIO.Data)
		}
		return NewLineDriver(sck, dout, c, t)
	case config.DriverSPI:
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("host init: %w", err)
		}
		port, err := spireg.Open(cfg.SPI.Port)
		if err != nil {
			return nil, fmt.Errorf("open spi: %w", err)
		}
		speed := physic.Frequency(cfg.SPI.SpeedHz) * physic.Hertz
		conn, err := port.Connect(speed, spi.Mode1, 8)
		if err != nil {
			port.Close()
			return nil, fmt.Errorf("connect spi: %w", err)
		}
		d, err := NewBusDriver(conn, speed, c, t)
		if err != nil {
			port.Close()
			return nil, err
		}
		d.closer = port
		return d, nil
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}
