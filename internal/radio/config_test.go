package radio

import (
	"errors"
	"testing"

	"github.com/go-test/deep"
)

func TestTxPowerTable(t *testing.T) {
	want := map[byte]int{0: 30, 1: 27, 2: 24, 3: 21}
	seen := make(map[int]bool)
	for bits, dBm := range want {
		if got := TxPower(bits); got != dBm {
			t.Errorf("TxPower(%d) = %d, want %d", bits, got, dBm)
		}
		back, err := PowerBits(dBm)
		if err != nil || back != bits {
			t.Errorf("PowerBits(%d) = %d, %v; want %d", dBm, back, err, bits)
		}
		seen[dBm] = true
	}
	if len(seen) != 4 {
		t.Errorf("expected four distinct power levels, got %d", len(seen))
	}
}

func TestTxPowerIgnoresUpperOptionBits(t *testing.T) {
	if got := TxPower(0b1111_1100); got != 30 {
		t.Errorf("expected 30 dBm, got %d", got)
	}
	if got := TxPower(0b0100_0111); got != 21 {
		t.Errorf("expected 21 dBm, got %d", got)
	}
}

func TestPowerBitsRejectsUnknownLevel(t *testing.T) {
	if _, err := PowerBits(20); err == nil {
		t.Fatal("expected error for 20 dBm")
	}
}

func TestConfigBlockHex(t *testing.T) {
	c := ConfigBlock{AddressHigh: 0x00, AddressLow: 0x0a, Speed: 0x1a, Channel: 0x17, Option: 0x47}
	if got := c.Hex(); got != "000a1a1747" {
		t.Errorf("expected 000a1a1747, got %s", got)
	}
	if diff := deep.Equal(ConfigBlockFromBytes(c.Bytes()), c); diff != nil {
		t.Errorf("bytes round trip: %v", diff)
	}
}

func TestReadConfig(t *testing.T) {
	l, m := newTestLink([5]byte{0x00, 0x00, 0x1a, 0x17, 0x44})

	cfg, err := l.ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	want := ConfigBlock{Speed: 0x1a, Channel: 0x17, Option: 0x44}
	if diff := deep.Equal(cfg, want); diff != nil {
		t.Errorf("unexpected config: %v", diff)
	}
	if !m.InNormalMode() {
		t.Error("expected normal mode after ReadConfig")
	}
}

func TestReadConfigShortReplyIsProtocolError(t *testing.T) {
	l, m := newTestLink([5]byte{1, 2, 3, 4, 5})
	m.ReplyLimit = 4

	_, err := l.ReadConfig()
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if perr.Want != 6 || perr.Got != 4 {
		t.Errorf("expected want 6 got 4, got want %d got %d", perr.Want, perr.Got)
	}
	if !m.InNormalMode() {
		t.Error("expected normal mode after failed ReadConfig")
	}
}

func TestWriteThenReadConfigRoundTrip(t *testing.T) {
	blocks := []ConfigBlock{
		{},
		{AddressHigh: 0xff, AddressLow: 0xff, Speed: 0xff, Channel: 0xff, Option: 0xff},
		{AddressHigh: 0x12, AddressLow: 0x34, Speed: 0x1a, Channel: 0x06, Option: 0x47},
	}
	for _, want := range blocks {
		l, m := newTestLink([5]byte{9, 9, 9, 9, 9})

		if err := l.WriteConfig(want); err != nil {
			t.Fatalf("WriteConfig(%s): %v", want.Hex(), err)
		}
		got, err := l.ReadConfig()
		if err != nil {
			t.Fatalf("ReadConfig: %v", err)
		}
		if diff := deep.Equal(got, want); diff != nil {
			t.Errorf("round trip of %s: %v", want.Hex(), diff)
		}
		if !m.InNormalMode() {
			t.Error("expected normal mode")
		}
	}
}

func TestWriteConfigDoesNotLeakEcho(t *testing.T) {
	l, m := newTestLink([5]byte{})

	if err := l.WriteConfig(ConfigBlock{Option: 3}); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if _, err := l.ReadLine(64); !errors.Is(err, ErrNoData) {
		t.Errorf("expected no pending input after WriteConfig, got %v", err)
	}
	if len(m.Sent()) != 0 {
		t.Errorf("config bytes must not go on air, got %v", m.Sent())
	}
}

func TestWriteConfigDrainsLateEcho(t *testing.T) {
	l, m := newTestLink([5]byte{})
	// echo that only arrives after the flush
	m.AfterFlush = []byte{0xC0, 0, 0, 0, 0, 3}

	if err := l.WriteConfig(ConfigBlock{Option: 3}); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if got, err := l.ReadAvailable(16); !errors.Is(err, ErrNoData) {
		t.Errorf("expected the late echo drained, got %v, %v", got, err)
	}
}

func TestEnsureTxPower(t *testing.T) {
	l, m := newTestLink([5]byte{0, 0, 0x1a, 0x17, 0x44})

	cfg, err := l.EnsureTxPower(21)
	if err != nil {
		t.Fatalf("EnsureTxPower: %v", err)
	}
	if cfg.Option != 0x47 || cfg.TxPowerDBm() != 21 {
		t.Errorf("expected option 0x47 (21 dBm), got %#x (%d dBm)", cfg.Option, cfg.TxPowerDBm())
	}
	if got := m.Params(); got[4] != 0x47 {
		t.Errorf("expected module option 0x47, got %#x", got[4])
	}

	before := m.ModeChanges()
	if _, err := l.EnsureTxPower(21); err != nil {
		t.Fatalf("EnsureTxPower again: %v", err)
	}
	// read only: into configuration mode and back, two pins each way
	if changes := m.ModeChanges() - before; changes != 4 {
		t.Errorf("expected no rewrite when power already matches, saw %d pin writes", changes)
	}
}
