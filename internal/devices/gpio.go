package devices

import (
	"fmt"
	"os"
	"regexp"
	"sync"
	"syscall"
	"unsafe"
)

// GPIO character device handling (gpiochip0 on Pi 4 and earlier, gpiochip4 on Pi 5)

// GPIO ioctl structures and constants
const (
	GPIO_GET_LINEHANDLE_IOCTL        = 0xC16CB403
	GPIOHANDLE_SET_LINE_VALUES_IOCTL = 0xC040B409
	GPIOHANDLE_GET_LINE_VALUES_IOCTL = 0xC040B408

	GPIOHANDLE_REQUEST_INPUT  = 1 << 0
	GPIOHANDLE_REQUEST_OUTPUT = 1 << 1
)

// MaxBCMPin is the highest BCM pin exposed on the 40-pin header.
const MaxBCMPin = 27

// gpioHandleRequest is the ioctl structure for requesting a line handle
type gpioHandleRequest struct {
	lineOffsets   [64]uint32
	flags         uint32
	defaultValues [64]uint8
	consumerLabel [32]byte
	lines         uint32
	fd            int32
}

// gpioHandleData is the ioctl structure for getting/setting line values
type gpioHandleData struct {
	values [64]uint8
}

// reGPIOChipName validates GPIO chip names (e.g., "gpiochip0", "gpiochip4")
var reGPIOChipName = regexp.MustCompile(`^gpiochip[0-9]+$`)

// GPIOChip represents an open GPIO chip device
type GPIOChip struct {
	file *os.File
	path string
}

// OpenGPIOChip opens a GPIO chip by name.
func OpenGPIOChip(chip string) (*GPIOChip, error) {
	if !reGPIOChipName.MatchString(chip) {
		return nil, fmt.Errorf("invalid GPIO chip name: %s", chip)
	}
	path := fmt.Sprintf("/dev/%s", chip)
	file, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chip, err)
	}
	return &GPIOChip{file: file, path: path}, nil
}

// Close closes the GPIO chip. Lines already requested stay valid until
// they are closed themselves.
func (g *GPIOChip) Close() error {
	if g.file == nil {
		return nil
	}
	err := g.file.Close()
	g.file = nil
	return err
}

// GPIOLine represents a requested GPIO line
type GPIOLine struct {
	mu     sync.Mutex
	fd     int
	offset uint32
	output bool
}

// RequestInput requests a line as input.
func (g *GPIOChip) RequestInput(offset uint32, consumer string) (*GPIOLine, error) {
	return g.requestLine(offset, false, 0, consumer)
}

// RequestOutput requests a line as output driven to initial.
func (g *GPIOChip) RequestOutput(offset uint32, initial uint8, consumer string) (*GPIOLine, error) {
	return g.requestLine(offset, true, initial, consumer)
}

func (g *GPIOChip) requestLine(offset uint32, output bool, defaultValue uint8, consumer string) (*GPIOLine, error) {
	if g.file == nil {
		return nil, fmt.Errorf("GPIO chip %s is closed", g.path)
	}
	if offset > MaxBCMPin {
		return nil, fmt.Errorf("GPIO line %d out of range (0-%d)", offset, MaxBCMPin)
	}

	req := gpioHandleRequest{
		lines: 1,
	}
	req.lineOffsets[0] = offset

	if output {
		req.flags = GPIOHANDLE_REQUEST_OUTPUT
		req.defaultValues[0] = defaultValue
	} else {
		req.flags = GPIOHANDLE_REQUEST_INPUT
	}

	copy(req.consumerLabel[:], consumer)

	_, _, errno := syscall.Syscall(
		syscall.SYS_IOCTL,
		g.file.Fd(),
		GPIO_GET_LINEHANDLE_IOCTL,
		uintptr(unsafe.Pointer(&req)),
	)
	if errno != 0 {
		return nil, fmt.Errorf("failed to request GPIO line %d: %v", offset, errno)
	}

	return &GPIOLine{
		fd:     int(req.fd),
		offset: offset,
		output: output,
	}, nil
}

// Offset returns the line offset on its chip.
func (l *GPIOLine) Offset() uint32 { return l.offset }

// GetValue reads the current value of the GPIO line
func (l *GPIOLine) GetValue() (uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fd < 0 {
		return 0, fmt.Errorf("GPIO line %d is released", l.offset)
	}

	data := gpioHandleData{}

	_, _, errno := syscall.Syscall(
		syscall.SYS_IOCTL,
		uintptr(l.fd),
		GPIOHANDLE_GET_LINE_VALUES_IOCTL,
		uintptr(unsafe.Pointer(&data)),
	)
	if errno != 0 {
		return 0, fmt.Errorf("failed to get GPIO %d value: %v", l.offset, errno)
	}

	return data.values[0], nil
}

// SetValue sets the value of the GPIO line (output only)
func (l *GPIOLine) SetValue(value uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.output {
		return fmt.Errorf("cannot set value on input line %d", l.offset)
	}
	if l.fd < 0 {
		return fmt.Errorf("GPIO line %d is released", l.offset)
	}

	data := gpioHandleData{}
	data.values[0] = value

	_, _, errno := syscall.Syscall(
		syscall.SYS_IOCTL,
		uintptr(l.fd),
		GPIOHANDLE_SET_LINE_VALUES_IOCTL,
		uintptr(unsafe.Pointer(&data)),
	)
	if errno != 0 {
		return fmt.Errorf("failed to set GPIO %d value: %v", l.offset, errno)
	}

	return nil
}

// Close releases the GPIO line. Safe to call more than once.
func (l *GPIOLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fd < 0 {
		return nil
	}
	err := syscall.Close(l.fd)
	l.fd = -1
	return err
}

// DetectGPIOChip picks the header GPIO chip: gpiochip4 on Pi 5, gpiochip0 otherwise.
func DetectGPIOChip() string {
	if _, err := os.Stat("/dev/gpiochip4"); err == nil {
		if data, err := os.ReadFile("/proc/cpuinfo"); err == nil && regexp.MustCompile(`Raspberry Pi 5`).Match(data) {
			return "gpiochip4"
		}
	}
	return "gpiochip0"
}
