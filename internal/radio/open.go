package radio

import (
	"fmt"
	"io"
	"log"
	"time"

	"go.bug.st/serial"

	"e32-hal/internal/devices"
)

// ControlBaud is the only rate the module accepts in configuration mode,
// so the link always runs at it.
const ControlBaud = 9600

// Config locates the module on the host.
type Config struct {
	Port        string        // e.g. "/dev/serial0"
	ReadTimeout time.Duration // per-read serial timeout
	Chip        string        // e.g. "gpiochip0"
	M0Pin       int           // BCM offsets
	M1Pin       int
	AuxPin      int
	Options
}

// DefaultReadTimeout matches a 1 second VTIME on the tty.
const DefaultReadTimeout = time.Second

// gpioChip is the part of devices.GPIOChip the link needs.
type gpioChip interface {
	RequestInput(offset uint32, consumer string) (Line, error)
	RequestOutput(offset uint32, initial uint8, consumer string) (Line, error)
	Close() error
}

type chipAdapter struct{ *devices.GPIOChip }

func (c chipAdapter) RequestInput(offset uint32, consumer string) (Line, error) {
	l, err := c.GPIOChip.RequestInput(offset, consumer)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (c chipAdapter) RequestOutput(offset uint32, initial uint8, consumer string) (Line, error) {
	l, err := c.GPIOChip.RequestOutput(offset, initial, consumer)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// allow tests to override hardware access
var (
	openPort = func(name string, mode *serial.Mode) (Port, error) {
		p, err := serial.Open(name, mode)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	openChip = func(name string) (gpioChip, error) {
		c, err := devices.OpenGPIOChip(name)
		if err != nil {
			return nil, err
		}
		return chipAdapter{c}, nil
	}
)

// Open acquires the serial port and the three control lines. Either every
// resource is acquired or none is held when it returns.
func Open(cfg Config) (link *Link, err error) {
	var held []io.Closer
	defer func() {
		if err == nil {
			return
		}
		for i := len(held) - 1; i >= 0; i-- {
			if cerr := held[i].Close(); cerr != nil {
				log.Printf("radio: rollback close failed: %v", cerr)
			}
		}
	}()

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	port, err := openPort(cfg.Port, &serial.Mode{
		BaudRate: ControlBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("radio: open serial %s: %w", cfg.Port, err)
	}
	held = append(held, port)

	if err = port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		return nil, fmt.Errorf("radio: set read timeout on %s: %w", cfg.Port, err)
	}
	if err = port.ResetInputBuffer(); err != nil {
		return nil, fmt.Errorf("radio: flush %s: %w", cfg.Port, err)
	}

	chip, err := openChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("radio: %w", err)
	}
	held = append(held, chip)

	aux, err := chip.RequestInput(uint32(cfg.AuxPin), "e32_aux")
	if err != nil {
		return nil, fmt.Errorf("radio: AUX: %w", err)
	}
	held = append(held, aux)

	m0, err := chip.RequestOutput(uint32(cfg.M0Pin), 0, "e32_m0")
	if err != nil {
		return nil, fmt.Errorf("radio: M0: %w", err)
	}
	held = append(held, m0)

	m1, err := chip.RequestOutput(uint32(cfg.M1Pin), 0, "e32_m1")
	if err != nil {
		return nil, fmt.Errorf("radio: M1: %w", err)
	}

	link = New(port, m0, m1, aux, cfg.Options)
	link.extra = []io.Closer{chip}
	log.Printf("radio: opened %s at %d baud (%s M0=%d M1=%d AUX=%d)",
		cfg.Port, ControlBaud, cfg.Chip, cfg.M0Pin, cfg.M1Pin, cfg.AuxPin)
	return link, nil
}
