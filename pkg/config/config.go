package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type GPIOConfig struct {
	Clock string `json:"clock" yaml:"clock"`
	Data  string `json:"data" yaml:"data"`
}

type SPIConfig struct {
	Port    string `json:"port" yaml:"port"`
	SpeedHz int    `json:"speed_hz" yaml:"speed_hz"`
}

type SimulationConfig struct {
	Baseline int32 `json:"baseline" yaml:"baseline"`
	Load     int32 `json:"load" yaml:"load"`
	// LoadAfter is the number of conversions before Load is applied.
	LoadAfter int     `json:"load_after" yaml:"load_after"`
	Noise     int32   `json:"noise" yaml:"noise"`
	Seed      int64   `json:"seed" yaml:"seed"`
	Script    []int32 `json:"script,omitempty" yaml:"script,omitempty"`
}

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty" yaml:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty" yaml:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty" yaml:"discovery_unique_id,omitempty"`
}

type SerialConfig struct {
	Port     string `json:"port" yaml:"port"`
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
}

type ModbusConfig struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	UnitID    uint8  `json:"unit_id" yaml:"unit_id"`
	Address   uint16 `json:"address" yaml:"address"`
	TimeoutMs int    `json:"timeout_ms" yaml:"timeout_ms"`
}

type OutputConfig struct {
	Type   string        `json:"type" yaml:"type"`
	MQTT   *MQTTConfig   `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	Serial *SerialConfig `json:"serial,omitempty" yaml:"serial,omitempty"`
	Modbus *ModbusConfig `json:"modbus,omitempty" yaml:"modbus,omitempty"`
}

// Config is fixed before calibration starts and never changed afterwards.
type Config struct {
	Driver     string           `json:"driver" yaml:"driver"`
	GPIO       GPIOConfig       `json:"gpio" yaml:"gpio"`
	SPI        SPIConfig        `json:"spi" yaml:"spi"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	Gain               string `json:"gain" yaml:"gain"`
	SampleCount        int    `json:"sample_count" yaml:"sample_count"`
	ReadyTimeoutMs     int    `json:"ready_timeout_ms" yaml:"ready_timeout_ms"`
	RetryCount         int    `json:"retry_count" yaml:"retry_count"`
	InterSampleDelayMs int    `json:"inter_sample_delay_ms" yaml:"inter_sample_delay_ms"`
	ReportIntervalMs   int    `json:"report_interval_ms" yaml:"report_interval_ms"`

	CalibrationPolicy string `json:"calibration_policy" yaml:"calibration_policy"`
	FailurePolicy     string `json:"failure_policy" yaml:"failure_policy"`

	Outputs []OutputConfig `json:"outputs" yaml:"outputs"`
}

func DefaultConfig() Config {
	return Config{
		Driver: DriverGPIO,
		GPIO:   GPIOConfig{Clock: "GPIO5", Data: "GPIO6"},
		SPI:    SPIConfig{Port: "", SpeedHz: 1000000},
		Simulation: SimulationConfig{
			Baseline: 1000,
			Noise:    3,
			Seed:     1,
		},
		Gain:               "A128",
		SampleCount:        8,
		ReadyTimeoutMs:     500,
		RetryCount:         3,
		InterSampleDelayMs: 0,
		ReportIntervalMs:   1000,
		CalibrationPolicy:  CalibrationAbort,
		FailurePolicy:      FailureSkip,
		Outputs:            []OutputConfig{{Type: OutputConsole}},
	}
}

// Load reads a JSON or YAML (by extension) file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFromFlags loads configuration from a JSON/YAML file (optional) and flags.
// Flags override values present in the file.
func LoadFromFlags() (Config, error) {
	return loadFromFlagSet(flag.CommandLine, os.Args[1:])
}

func loadFromFlagSet(fs *flag.FlagSet, args []string) (Config, error) {
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	flagDriver := fs.String("driver", "", "driver: gpio|spi|simulation")
	flagClockPin := fs.String("clock-pin", "", "PD_SCK pin name (e.g. GPIO5)")
	flagDataPin := fs.String("data-pin", "", "DOUT pin name (e.g. GPIO6)")
	flagSPIPort := fs.String("spi-port", "", "SPI port name (empty = first available)")
	flagSPISpeed := fs.Int("spi-speed", -1, "SPI clock in Hz")
	flagGain := fs.String("gain", "", "gain/channel: A128|B32|A64")
	flagSamples := fs.Int("samples", -1, "samples averaged per reading")
	flagTimeout := fs.Int("ready-timeout-ms", -1, "readiness timeout in ms")
	flagRetries := fs.Int("retries", -1, "retries after a readiness timeout")
	flagDelay := fs.Int("sample-delay-ms", -1, "delay between samples in ms")
	flagInterval := fs.Int("interval-ms", -1, "report interval in ms")
	flagCalPolicy := fs.String("calibration-policy", "", "on tare failure: abort|retry")
	flagFailPolicy := fs.String("failure-policy", "", "on measurement failure: skip|restart")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,serial,mqtt,modbus)")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagSerialPort := fs.String("serial-port", "", "serial port for the text output")
	flagModbus := fs.String("modbus-endpoint", "", "Modbus TCP endpoint host:port")
	flagScript := fs.String("sim-script", "", "Comma-separated raw codes replayed by the simulation driver")

	if err := fs.Parse(args); err != nil {
		return DefaultConfig(), err
	}

	cfg := DefaultConfig()
	if *cfgPath != "" {
		var err error
		if cfg, err = Load(*cfgPath); err != nil {
			return cfg, err
		}
	}

	setString(&cfg.Driver, *flagDriver)
	setString(&cfg.GPIO.Clock, *flagClockPin)
	setString(&cfg.GPIO.Data, *flagDataPin)
	setString(&cfg.SPI.Port, *flagSPIPort)
	setInt(&cfg.SPI.SpeedHz, *flagSPISpeed)
	setString(&cfg.Gain, *flagGain)
	setInt(&cfg.SampleCount, *flagSamples)
	setInt(&cfg.ReadyTimeoutMs, *flagTimeout)
	setInt(&cfg.RetryCount, *flagRetries)
	setInt(&cfg.InterSampleDelayMs, *flagDelay)
	setInt(&cfg.ReportIntervalMs, *flagInterval)
	setString(&cfg.CalibrationPolicy, *flagCalPolicy)
	setString(&cfg.FailurePolicy, *flagFailPolicy)
	if *flagScript != "" {
		script, err := ParseScript(*flagScript)
		if err != nil {
			return cfg, err
		}
		cfg.Simulation.Script = script
	}

	if *flagOutputs != "" {
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	for i := range cfg.Outputs {
		o := &cfg.Outputs[i]
		switch o.Type {
		case OutputMQTT:
			if *flagMQTTServer != "" || *flagMQTTTopic != "" {
				if o.MQTT == nil {
					o.MQTT = &MQTTConfig{}
				}
				setString(&o.MQTT.Server, *flagMQTTServer)
				setString(&o.MQTT.StateTopic, *flagMQTTTopic)
			}
		case OutputSerial:
			if *flagSerialPort != "" {
				if o.Serial == nil {
					o.Serial = &SerialConfig{}
				}
				o.Serial.Port = *flagSerialPort
			}
		case OutputModbus:
			if *flagModbus != "" {
				if o.Modbus == nil {
					o.Modbus = &ModbusConfig{}
				}
				o.Modbus.Endpoint = *flagModbus
			}
		}
	}
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != -1 {
		*dst = v
	}
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ParseScript parses a comma-separated list of raw codes, used for scripted
// simulation runs.
func ParseScript(s string) ([]int32, error) {
	parts := parseCSV(s)
	out := make([]int32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid sample '%s': %w", p, err)
		}
		out = append(out, int32(v))
	}
	return out, nil
}
