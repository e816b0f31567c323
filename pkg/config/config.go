package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ericogr/vcnl4020-stream/pkg/sensor"
	"gopkg.in/yaml.v3"
)

const (
	SensorReal       = "real"
	SensorSimulation = "simulation"

	OutputConsole = "console"
	OutputFile    = "file"
	OutputMQTT    = "mqtt"
)

type I2CConfig struct {
	Bus     string `json:"bus" yaml:"bus"`
	Address int    `json:"address" yaml:"address"`
}

type MQTTConfig struct {
	Server   string `json:"server" yaml:"server"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	ClientID string `json:"client_id" yaml:"client_id"`
	Topic    string `json:"topic" yaml:"topic"`
	QoS      byte   `json:"qos,omitempty" yaml:"qos,omitempty"`
	Retained bool   `json:"retained,omitempty" yaml:"retained,omitempty"`
}

type OutputConfig struct {
	Type string `json:"type" yaml:"type"`
	// file output
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Append *bool  `json:"append,omitempty" yaml:"append,omitempty"`
	Sync   bool   `json:"sync,omitempty" yaml:"sync,omitempty"`

	MQTT *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

// AppendMode reports whether a file output keeps existing content.
func (o OutputConfig) AppendMode() bool {
	return o.Append == nil || *o.Append
}

type Config struct {
	I2C            I2CConfig      `json:"i2c" yaml:"i2c"`
	SensorType     string         `json:"sensor_type" yaml:"sensor_type"`
	ProximityRate  int            `json:"proximity_rate" yaml:"proximity_rate"`
	LEDCurrentMA   int            `json:"led_current_ma" yaml:"led_current_ma"`
	SamplingPeriod float64        `json:"sampling_period" yaml:"sampling_period"`
	Window         float64        `json:"window" yaml:"window"`
	SpinYieldUs    int            `json:"spin_yield_us" yaml:"spin_yield_us"`
	StartDelayMs   int            `json:"start_delay_ms" yaml:"start_delay_ms"`
	StrictReadback bool           `json:"strict_readback" yaml:"strict_readback"`
	LogLevel       string         `json:"log_level" yaml:"log_level"`
	Outputs        []OutputConfig `json:"outputs" yaml:"outputs"`
}

func DefaultConfig() Config {
	return Config{
		I2C:            I2CConfig{Bus: "1", Address: 0x13},
		SensorType:     SensorReal,
		ProximityRate:  125,
		LEDCurrentMA:   40,
		SamplingPeriod: 1.0 / 60,
		Window:         0.0085,
		SpinYieldUs:    0,
		StartDelayMs:   1000,
		StrictReadback: true,
		LogLevel:       "info",
		Outputs:        []OutputConfig{{Type: OutputConsole}},
	}
}

func (c Config) SpinYield() time.Duration {
	return time.Duration(c.SpinYieldUs) * time.Microsecond
}

func (c Config) StartDelay() time.Duration {
	return time.Duration(c.StartDelayMs) * time.Millisecond
}

// LoadFromFlags loads configuration from the process command line.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from a JSON or YAML file (optional) and flags.
// Flags override values present in the file.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("vcnl4020-stream", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '1' -> /dev/i2c-1)")
	flagI2CAddStr := fs.String("i2c-address", "", "I2C address (decimal or 0x hex)")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagRate := fs.Int("proximity-rate", -1, "VCNL4020 proximity rate (measurements/s): 2,4,8,16,31,62,125,250")
	flagCurrent := fs.Int("led-current", -1, "IR LED current in mA: 0,10,20,30,40")
	flagPeriod := fs.Float64("sampling-period", math.NaN(), "Sampling period in seconds")
	flagWindow := fs.Float64("window", math.NaN(), "Half-width of the on-time window in seconds")
	flagYield := fs.Int("spin-yield-us", -1, "Pause between clock polls in microseconds (0 = yield only)")
	flagDelay := fs.Int("start-delay-ms", -1, "Delay before the first sample in ms")
	flagStrict := fs.String("strict-readback", "", "Fail startup on register read-back mismatch (true|false)")
	flagLogLevel := fs.String("log-level", "", "Log level: debug|info|warn|error")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,file,mqtt)")
	flagOutputFile := fs.String("output-file", "", "Path for the file output")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT topic")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		if err := loadFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if *flagI2CBus != "" {
		cfg.I2C.Bus = *flagI2CBus
	}
	if *flagI2CAddStr != "" {
		v, err := parseIntOrHex(*flagI2CAddStr)
		if err != nil {
			return cfg, fmt.Errorf("i2c-address: %w", err)
		}
		cfg.I2C.Address = v
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagRate != -1 {
		cfg.ProximityRate = *flagRate
	}
	if *flagCurrent != -1 {
		cfg.LEDCurrentMA = *flagCurrent
	}
	if !math.IsNaN(*flagPeriod) {
		cfg.SamplingPeriod = *flagPeriod
	}
	if !math.IsNaN(*flagWindow) {
		cfg.Window = *flagWindow
	}
	if *flagYield != -1 {
		cfg.SpinYieldUs = *flagYield
	}
	if *flagDelay != -1 {
		cfg.StartDelayMs = *flagDelay
	}
	if *flagStrict != "" {
		v, err := strconv.ParseBool(*flagStrict)
		if err != nil {
			return cfg, fmt.Errorf("strict-readback: %w", err)
		}
		cfg.StrictReadback = v
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	if *flagOutputFile != "" {
		applied := false
		for i := range cfg.Outputs {
			if cfg.Outputs[i].Type == OutputFile {
				cfg.Outputs[i].Path = *flagOutputFile
				applied = true
			}
		}
		if !applied {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: OutputFile, Path: *flagOutputFile})
		}
	}
	// map mqtt flags into every mqtt output (create one if missing)
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		apply := func(m *MQTTConfig) {
			if *flagMQTTServer != "" {
				m.Server = *flagMQTTServer
			}
			if *flagMQTTUser != "" {
				m.Username = *flagMQTTUser
			}
			if *flagMQTTPass != "" {
				m.Password = *flagMQTTPass
			}
			if *flagClientID != "" {
				m.ClientID = *flagClientID
			}
			if *flagTopic != "" {
				m.Topic = *flagTopic
			}
		}
		applied := false
		for i := range cfg.Outputs {
			if cfg.Outputs[i].Type == OutputMQTT {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				apply(cfg.Outputs[i].MQTT)
				applied = true
			}
		}
		if !applied {
			mqttOut := OutputConfig{Type: OutputMQTT, MQTT: &MQTTConfig{}}
			apply(mqttOut.MQTT)
			cfg.Outputs = append(cfg.Outputs, mqttOut)
		}
	}
	for i := range cfg.Outputs {
		if cfg.Outputs[i].Type == OutputMQTT && cfg.Outputs[i].MQTT == nil {
			cfg.Outputs[i].MQTT = &MQTTConfig{}
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks every field that the sensor, scheduler and outputs rely on.
func (c Config) Validate() error {
	if c.I2C.Address < 0 || c.I2C.Address > 0x7F {
		return fmt.Errorf("i2c address 0x%X out of range", c.I2C.Address)
	}
	switch c.SensorType {
	case SensorReal, SensorSimulation:
	default:
		return fmt.Errorf("unknown sensor_type %q", c.SensorType)
	}
	if _, err := sensor.RateCode(c.ProximityRate); err != nil {
		return fmt.Errorf("proximity_rate: %w", err)
	}
	if _, err := sensor.CurrentCode(c.LEDCurrentMA); err != nil {
		return fmt.Errorf("led_current_ma: %w", err)
	}
	if !(c.SamplingPeriod > 0) || math.IsInf(c.SamplingPeriod, 0) {
		return errors.New("sampling_period must be > 0")
	}
	if !(c.Window > 0) || c.Window >= c.SamplingPeriod {
		return fmt.Errorf("window must be in (0, sampling_period), got %v", c.Window)
	}
	if c.SpinYieldUs < 0 {
		return errors.New("spin_yield_us must be >= 0")
	}
	if c.StartDelayMs < 0 {
		return errors.New("start_delay_ms must be >= 0")
	}
	if len(c.Outputs) == 0 {
		return errors.New("at least one output is required")
	}
	for i, o := range c.Outputs {
		switch o.Type {
		case OutputConsole, OutputMQTT:
		case OutputFile:
			if o.Path == "" {
				return fmt.Errorf("outputs[%d]: file output needs a path", i)
			}
		default:
			return fmt.Errorf("outputs[%d]: unknown output type %q", i, o.Type)
		}
		if o.MQTT != nil && o.MQTT.QoS > 2 {
			return fmt.Errorf("outputs[%d]: mqtt qos %d must be 0, 1 or 2", i, o.MQTT.QoS)
		}
	}
	return nil
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
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
