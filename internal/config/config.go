// Package config loads the e32-hal configuration: built-in defaults, then
// an optional YAML file, then environment overrides, then validation.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"e32-hal/internal/devices"
)

// DefaultPath is read when E32_HAL_CONFIG is unset. It may be missing.
const DefaultPath = "/etc/e32-hal.yaml"

// Config represents the complete configuration for e32-hal
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	GPIO        GPIOConfig        `yaml:"gpio"`
	Radio       RadioConfig       `yaml:"radio"`
	Shell       ShellConfig       `yaml:"shell"`
	Camera      CameraConfig      `yaml:"camera"`
	Listing     ListingConfig     `yaml:"listing"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// SerialConfig locates the module's UART
type SerialConfig struct {
	Port          string `yaml:"port"`
	ReadTimeoutMs int    `yaml:"readTimeoutMs"`
}

// GPIOConfig holds the chip and BCM offsets of M0, M1 and AUX
type GPIOConfig struct {
	Chip   string `yaml:"chip"` // empty: detect
	M0Pin  int    `yaml:"m0Pin"`
	M1Pin  int    `yaml:"m1Pin"`
	AuxPin int    `yaml:"auxPin"`
}

// RadioConfig holds module handshake and startup settings
type RadioConfig struct {
	TxPowerDbm     int `yaml:"txPowerDbm"` // forced at startup, 0 leaves the module alone
	ReadyTimeoutMs int `yaml:"readyTimeoutMs"`
	ReadyPollMs    int `yaml:"readyPollMs"`
	ModeSettleMs   int `yaml:"modeSettleMs"`
}

// ShellConfig bounds the command shell
type ShellConfig struct {
	MaxArgs       int   `yaml:"maxArgs"`
	MaxLineLength int   `yaml:"maxLineLength"`
	ChunkSize     int   `yaml:"chunkSize"`
	MaxBlockBytes int64 `yaml:"maxBlockBytes"`
	IdlePauseMs   int   `yaml:"idlePauseMs"`
}

// CameraConfig holds photo capture settings
type CameraConfig struct {
	Output          string `yaml:"output"`
	Device          string `yaml:"device"`
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	Quality         int    `yaml:"quality"`
	PreferLibcamera bool   `yaml:"preferLibcamera"`
	TimeoutSec      int    `yaml:"timeoutSec"`
}

// ListingConfig holds the directory served by the list command
type ListingConfig struct {
	Dir        string `yaml:"dir"`
	TimeoutSec int    `yaml:"timeoutSec"`
}

// DiagnosticsConfig holds the local HTTP diagnostics server settings
type DiagnosticsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig holds log file rotation settings
type LoggingConfig struct {
	File       string `yaml:"file"` // empty: stderr only
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// ReadTimeout is the per-read serial timeout.
func (c SerialConfig) ReadTimeout() time.Duration { return ms(c.ReadTimeoutMs) }

func (c RadioConfig) ReadyTimeout() time.Duration { return ms(c.ReadyTimeoutMs) }
func (c RadioConfig) ReadyPoll() time.Duration { return ms(c.ReadyPollMs) }
func (c RadioConfig) ModeSettle() time.Duration { return ms(c.ModeSettleMs) }

func (c ShellConfig) IdlePause() time.Duration { return ms(c.IdlePauseMs) }

func (c CameraConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }
func (c ListingConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// Addr is the listen address of the diagnostics server.
func (c DiagnosticsConfig) Addr() string { return c.Host + ":" + strconv.Itoa(c.Port) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Load loads configuration from the file named by E32_HAL_CONFIG, or
// DefaultPath when unset, and applies environment overrides.
func Load() (*Config, error) {
	if path := os.Getenv("E32_HAL_CONFIG"); path != "" {
		return LoadFrom(path, true)
	}
	return LoadFrom(DefaultPath, false)
}

// LoadFrom loads configuration from path. When required is false a missing
// file leaves the defaults in place.
func LoadFrom(path string, required bool) (*Config, error) {
	cfg := Default()

	if err := loadFromFile(cfg, path); err != nil {
		if required || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		log.Printf("config: %s not found, using defaults", path)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if cfg.GPIO.Chip == "" {
		cfg.GPIO.Chip = devices.DetectGPIOChip()
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Default returns the field-unit configuration: E32 on
// /dev/serial0 with M0/M1/AUX on BCM 23/24/25, forced to 21 dBm.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:          "/dev/serial0",
			ReadTimeoutMs: 1000,
		},
		GPIO: GPIOConfig{
			M0Pin:  23,
			M1Pin:  24,
			AuxPin: 25,
		},
		Radio: RadioConfig{
			TxPowerDbm:     21,
			ReadyTimeoutMs: 5000,
			ReadyPollMs:    1,
			ModeSettleMs:   2,
		},
		Shell: ShellConfig{
			MaxArgs:       10,
			MaxLineLength: 2048,
			ChunkSize:     256,
			MaxBlockBytes: 16 << 20,
			IdlePauseMs:   10,
		},
		Camera: CameraConfig{
			Output:     "photo.jpg",
			Width:      320,
			Height:     240,
			Quality:    60,
			TimeoutSec: 30,
		},
		Listing: ListingConfig{
			Dir:        ".",
			TimeoutSec: 10,
		},
		Diagnostics: DiagnosticsConfig{
			Host: "127.0.0.1",
			Port: 6015,
		},
		Logging: LoggingConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) error {
	if port := os.Getenv("E32_SERIAL_PORT"); port != "" {
		cfg.Serial.Port = port
	}
	if chip := os.Getenv("E32_GPIO_CHIP"); chip != "" {
		cfg.GPIO.Chip = chip
	}
	if file := os.Getenv("E32_LOG_FILE"); file != "" {
		cfg.Logging.File = file
	}
	if host := os.Getenv("E32_HAL_HOST"); host != "" {
		cfg.Diagnostics.Host = host
	}
	if port := os.Getenv("E32_HAL_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("E32_HAL_PORT: %w", err)
		}
		cfg.Diagnostics.Port = n
	}
	if v := os.Getenv("E32_DIAGNOSTICS"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("E32_DIAGNOSTICS: %w", err)
		}
		cfg.Diagnostics.Enabled = on
	}
	if v := os.Getenv("E32_TX_POWER_DBM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("E32_TX_POWER_DBM: %w", err)
		}
		cfg.Radio.TxPowerDbm = n
	}
	return nil
}
