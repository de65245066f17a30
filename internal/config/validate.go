package config

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	reGPIOChipName = regexp.MustCompile(`^gpiochip[0-9]+$`)
	reSerialPort   = regexp.MustCompile(`^/dev/(tty[a-zA-Z0-9]+|serial[a-zA-Z0-9/]+)$`)
)

// maxBCMPin is the highest BCM pin on the 40-pin header.
const maxBCMPin = 27

// Validate checks every section and reports all problems at once.
func Validate(cfg *Config) error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(validateSerialPort(cfg.Serial.Port))
	add(positive("serial.readTimeoutMs", cfg.Serial.ReadTimeoutMs))

	add(validateGPIOChipName(cfg.GPIO.Chip))
	add(validatePins(cfg.GPIO))

	add(validateTxPower(cfg.Radio.TxPowerDbm))
	add(positive("radio.readyTimeoutMs", cfg.Radio.ReadyTimeoutMs))
	add(positive("radio.readyPollMs", cfg.Radio.ReadyPollMs))
	if cfg.Radio.ModeSettleMs < 0 {
		add(fmt.Errorf("radio.modeSettleMs must not be negative"))
	}

	add(inRange("shell.maxArgs", cfg.Shell.MaxArgs, 1, 64))
	add(inRange("shell.maxLineLength", cfg.Shell.MaxLineLength, 16, 65536))
	add(inRange("shell.chunkSize", cfg.Shell.ChunkSize, 1, 65536))
	if cfg.Shell.MaxBlockBytes < 1 || cfg.Shell.MaxBlockBytes > 1<<32-1 {
		add(fmt.Errorf("shell.maxBlockBytes out of range (1-4294967295)"))
	}
	add(positive("shell.idlePauseMs", cfg.Shell.IdlePauseMs))

	add(validateResolution(cfg.Camera.Width, cfg.Camera.Height))
	add(inRange("camera.quality", cfg.Camera.Quality, 1, 100))
	if cfg.Camera.Output == "" {
		add(fmt.Errorf("camera.output is required"))
	}
	add(positive("camera.timeoutSec", cfg.Camera.TimeoutSec))
	add(positive("listing.timeoutSec", cfg.Listing.TimeoutSec))

	if cfg.Diagnostics.Enabled {
		add(inRange("diagnostics.port", cfg.Diagnostics.Port, 1, 65535))
	}

	return errors.Join(errs...)
}

// validateSerialPort validates a serial port path, preventing path traversal.
func validateSerialPort(port string) error {
	if port == "" {
		return fmt.Errorf("serial port is required")
	}
	if !reSerialPort.MatchString(port) {
		return fmt.Errorf("invalid serial port path: %s", port)
	}
	return nil
}

// validateGPIOChipName validates a GPIO chip name (e.g., "gpiochip0").
func validateGPIOChipName(chip string) error {
	if chip == "" {
		return fmt.Errorf("GPIO chip name is required")
	}
	if !reGPIOChipName.MatchString(chip) {
		return fmt.Errorf("invalid GPIO chip name: %s", chip)
	}
	return nil
}

func validatePins(g GPIOConfig) error {
	pins := map[string]int{"m0Pin": g.M0Pin, "m1Pin": g.M1Pin, "auxPin": g.AuxPin}
	seen := make(map[int]string, len(pins))
	for _, name := range []string{"m0Pin", "m1Pin", "auxPin"} {
		p := pins[name]
		if p < 0 || p > maxBCMPin {
			return fmt.Errorf("gpio.%s %d out of range (0-%d)", name, p, maxBCMPin)
		}
		if other, dup := seen[p]; dup {
			return fmt.Errorf("gpio.%s and gpio.%s both use pin %d", other, name, p)
		}
		seen[p] = name
	}
	return nil
}

// validateTxPower accepts the four module power levels, or 0 to disable.
func validateTxPower(dBm int) error {
	switch dBm {
	case 0, 21, 24, 27, 30:
		return nil
	}
	return fmt.Errorf("radio.txPowerDbm %d invalid (must be 0, 21, 24, 27 or 30)", dBm)
}

// validateResolution validates camera resolution
func validateResolution(width, height int) error {
	if width < 64 || width > 4056 {
		return fmt.Errorf("camera.width out of range (64-4056)")
	}
	if height < 64 || height > 3040 {
		return fmt.Errorf("camera.height out of range (64-3040)")
	}
	return nil
}

func positive(name string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

func inRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s out of range (%d-%d)", name, lo, hi)
	}
	return nil
}
