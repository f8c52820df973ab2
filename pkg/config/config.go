package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dougsko/rx320d/pkg/rx320"
	"gopkg.in/yaml.v2"
)

// Config represents the rx320d configuration
type Config struct {
	Radio struct {
		Device         string `yaml:"device"`
		BaudRate       int    `yaml:"baud_rate"`
		ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
		PollIntervalMs int    `yaml:"poll_interval_ms"`
		Mock           bool   `yaml:"mock"`
	} `yaml:"radio"`

	Control struct {
		BindAddress string `yaml:"bind_address"`
		Port        int    `yaml:"port"`
	} `yaml:"control"`

	// Init is the sequence sent to the receiver at startup
	Init struct {
		Volume          int  `yaml:"volume"`
		Mode            int  `yaml:"mode"`
		AGC             int  `yaml:"agc"`
		FilterBandwidth int  `yaml:"filter_bandwidth"`
		Frequency       int  `yaml:"frequency"`
		LineVolume      int  `yaml:"line_volume"`
		SpeakerVolume   int  `yaml:"speaker_volume"`
		QueryFirmware   bool `yaml:"query_firmware"`
	} `yaml:"init"`

	Web struct {
		Enabled     bool   `yaml:"enabled"`
		BindAddress string `yaml:"bind_address"`
		Port        int    `yaml:"port"`
	} `yaml:"web"`

	Storage struct {
		DatabasePath string `yaml:"database_path"`
		MaxSamples   int    `yaml:"max_samples"`
	} `yaml:"storage"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		Console    bool   `yaml:"console"`
		Structured bool   `yaml:"structured"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	var config Config

	config.Radio.BaudRate = 1200
	config.Radio.ReadTimeoutMs = 1000
	config.Radio.PollIntervalMs = 200

	config.Control.Port = 4665

	config.Init.Volume = 99
	config.Init.Mode = int(rx320.ModeLSB)
	config.Init.AGC = rx320.AGCMedium
	config.Init.FilterBandwidth = 2100
	config.Init.Frequency = 3630000
	config.Init.LineVolume = 16
	config.Init.SpeakerVolume = 96
	config.Init.QueryFirmware = true

	config.Web.BindAddress = "127.0.0.1"
	config.Web.Port = 8465

	config.Storage.MaxSamples = 10000

	config.Logging.Level = "info"
	config.Logging.Console = true
	config.Logging.MaxSize = 10
	config.Logging.MaxBackups = 3
	config.Logging.MaxAge = 28

	return &config
}

// LoadConfig loads configuration from a YAML file. Keys missing from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults
	if config.Radio.BaudRate == 0 {
		config.Radio.BaudRate = 1200
	}
	if config.Radio.ReadTimeoutMs == 0 {
		config.Radio.ReadTimeoutMs = 1000
	}
	if config.Radio.PollIntervalMs == 0 {
		config.Radio.PollIntervalMs = 200
	}
	if config.Control.Port == 0 {
		config.Control.Port = 4665
	}
	if config.Web.Port == 0 {
		config.Web.Port = 8465
	}
	if config.Storage.MaxSamples == 0 {
		config.Storage.MaxSamples = 10000
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !c.Radio.Mock && c.Radio.Device == "" {
		return fmt.Errorf("radio device is required unless mock is enabled")
	}
	if c.Radio.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Radio.BaudRate)
	}
	if err := validPort("control", c.Control.Port); err != nil {
		return err
	}
	if c.Web.Enabled {
		if err := validPort("web", c.Web.Port); err != nil {
			return err
		}
	}
	if c.PollInterval() < 10*time.Millisecond {
		return fmt.Errorf("poll interval %v is below 10ms", c.PollInterval())
	}
	if c.Radio.ReadTimeoutMs < 0 {
		return fmt.Errorf("invalid read timeout %dms", c.Radio.ReadTimeoutMs)
	}
	if _, ok := rx320.FilterIndex(c.Init.FilterBandwidth); !ok {
		return fmt.Errorf("init filter bandwidth %d Hz is not a receiver filter", c.Init.FilterBandwidth)
	}
	if c.Init.Mode < int(rx320.ModeAM) || c.Init.Mode > int(rx320.ModeCW) {
		return fmt.Errorf("init mode %d must be 0 (AM), 1 (USB), 2 (LSB) or 3 (CW)", c.Init.Mode)
	}
	if c.Init.AGC < rx320.AGCSlow || c.Init.AGC > rx320.AGCFast {
		return fmt.Errorf("init agc %d must be 1 (slow), 2 (medium) or 3 (fast)", c.Init.AGC)
	}
	if c.Storage.MaxSamples < 0 {
		return fmt.Errorf("invalid max samples %d", c.Storage.MaxSamples)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s port %d out of range 1-65535", name, port)
	}
	return nil
}

// PollInterval returns the delay between signal strength queries
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Radio.PollIntervalMs) * time.Millisecond
}

// ReadTimeout returns how long one serial read may block
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Radio.ReadTimeoutMs) * time.Millisecond
}

// ControlAddress returns the host:port the control server listens on
func (c *Config) ControlAddress() string {
	return net.JoinHostPort(c.Control.BindAddress, strconv.Itoa(c.Control.Port))
}

// WebAddress returns the host:port the HTTP API listens on
func (c *Config) WebAddress() string {
	return net.JoinHostPort(c.Web.BindAddress, strconv.Itoa(c.Web.Port))
}
