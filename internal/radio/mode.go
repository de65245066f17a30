package radio

import "fmt"

// Mode is the operating mode selected by the M0/M1 lines.
type Mode int

const (
	// Normal relays serial bytes over the air (M0=0, M1=0).
	Normal Mode = iota
	// WakeUp prefixes transmissions with a wake-up preamble (M0=1, M1=0).
	WakeUp
	// PowerSave keeps the receiver duty-cycled (M0=0, M1=1).
	PowerSave
	// Configuration exposes the parameter register over serial (M0=1, M1=1).
	// The module only accepts 9600 8N1 in this mode.
	Configuration
)

// pins returns the M0 and M1 levels for the mode.
func (m Mode) pins() (m0, m1 uint8, err error) {
	switch m {
	case Normal:
		return 0, 0, nil
	case WakeUp:
		return 1, 0, nil
	case PowerSave:
		return 0, 1, nil
	case Configuration:
		return 1, 1, nil
	}
	return 0, 0, fmt.Errorf("radio: unknown mode %d", int(m))
}

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case WakeUp:
		return "wake-up"
	case PowerSave:
		return "power-save"
	case Configuration:
		return "configuration"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}
