package radio

import (
	"errors"
	"fmt"
)

// Module command bytes, only valid in configuration mode.
var (
	cmdReadConfig = [3]byte{0xC1, 0xC1, 0xC1}
	cmdReset      = [3]byte{0xC4, 0xC4, 0xC4}
)

const (
	cmdWriteConfig byte = 0xC0

	// configReplyLen is the echoed command byte plus the 5 parameter bytes.
	configReplyLen = 6
)

// ConfigBlock is the module's 5-byte parameter register.
type ConfigBlock struct {
	AddressHigh byte
	AddressLow  byte
	Speed       byte
	Channel     byte
	Option      byte
}

// ConfigBlockFromBytes builds a block from its wire order.
func ConfigBlockFromBytes(b [5]byte) ConfigBlock {
	return ConfigBlock{
		AddressHigh: b[0],
		AddressLow:  b[1],
		Speed:       b[2],
		Channel:     b[3],
		Option:      b[4],
	}
}

// Bytes returns the block in wire order.
func (c ConfigBlock) Bytes() [5]byte {
	return [5]byte{c.AddressHigh, c.AddressLow, c.Speed, c.Channel, c.Option}
}

// Hex renders the block as ten lower-case hex digits.
func (c ConfigBlock) Hex() string {
	return fmt.Sprintf("%02x%02x%02x%02x%02x", c.AddressHigh, c.AddressLow, c.Speed, c.Channel, c.Option)
}

// TxPowerDBm decodes the transmit power selected by the option byte.
func (c ConfigBlock) TxPowerDBm() int { return TxPower(c.Option) }

// WithTxPower returns a copy of the block with the power bits replaced.
func (c ConfigBlock) WithTxPower(dBm int) (ConfigBlock, error) {
	bits, err := PowerBits(dBm)
	if err != nil {
		return c, err
	}
	c.Option = c.Option&^powerMask | bits
	return c, nil
}

// ============================================================================
// Transmit power
// ============================================================================

const powerMask = 0x03

// powerTable maps the two option power bits to dBm.
var powerTable = [4]int{30, 27, 24, 21}

// TxPower decodes the low two bits of an option byte.
func TxPower(option byte) int {
	return powerTable[option&powerMask]
}

// PowerBits is the inverse of TxPower.
func PowerBits(dBm int) (byte, error) {
	for bits, p := range powerTable {
		if p == dBm {
			return byte(bits), nil
		}
	}
	return 0, fmt.Errorf("radio: unsupported transmit power %d dBm (want 30, 27, 24 or 21)", dBm)
}

// ============================================================================
// Register access
// ============================================================================

// ReadConfig fetches the parameter register. The link is back in normal
// mode when it returns, whatever the outcome.
func (l *Link) ReadConfig() (ConfigBlock, error) {
	var cfg ConfigBlock
	err := l.inConfigMode("read config", func() error {
		if err := l.WriteBytes(cmdReadConfig[:]); err != nil {
			return err
		}
		reply, err := l.ReadExact(configReplyLen)
		if err != nil {
			if errors.Is(err, ErrShortRead) {
				return &ProtocolError{Op: "read config", Want: configReplyLen, Got: len(reply), Err: err}
			}
			return err
		}
		// reply[0] echoes the command
		cfg = ConfigBlockFromBytes([5]byte(reply[1:configReplyLen]))
		return nil
	})
	return cfg, err
}

// WriteConfig stores a parameter block. The link is back in normal mode
// when it returns, whatever the outcome.
func (l *Link) WriteConfig(cfg ConfigBlock) error {
	return l.inConfigMode("write config", func() error {
		b := cfg.Bytes()
		msg := append([]byte{cmdWriteConfig}, b[:]...)
		if err := l.WriteBytes(msg); err != nil {
			return err
		}
		// the module echoes the stored block; it must not leak into the
		// command stream once we are back in normal mode
		return l.drainInput()
	})
}

// EnsureTxPower reads the register and rewrites it only when the power
// bits differ from dBm. It returns the block now in effect.
func (l *Link) EnsureTxPower(dBm int) (ConfigBlock, error) {
	cur, err := l.ReadConfig()
	if err != nil {
		return cur, err
	}
	want, err := cur.WithTxPower(dBm)
	if err != nil {
		return cur, err
	}
	if want == cur {
		return cur, nil
	}
	if err := l.WriteConfig(want); err != nil {
		return cur, err
	}
	return want, nil
}
