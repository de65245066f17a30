// Package radiotest emulates an E32 module well enough to drive radio.Link
// in tests: a serial port whose behaviour follows the M0/M1 pins, and an
// AUX line that can be held busy.
package radiotest

import (
	"errors"
	"sync"
	"time"
)

// Module is an in-memory E32. It implements radio.Port; M0, M1 and AUX
// return radio.Line implementations wired to it.
type Module struct {
	mu sync.Mutex

	m0, m1 uint8
	params [5]byte

	inbound []byte // waiting for the host to read
	sent    []byte // transmitted by the host in normal mode
	cmd     []byte // partial configuration-mode command

	resets      int
	modeChanges int
	busy        bool
	closed      map[string]bool

	// ReplyLimit truncates configuration replies when > 0.
	ReplyLimit int
	// MaxWrite caps the bytes accepted per Write call when > 0.
	MaxWrite int
	// WriteErr, when set, fails every Write.
	WriteErr error
	// ReadErr, when set, fails every Read.
	ReadErr error
	// PinErr, when set, fails every M0/M1 SetValue.
	PinErr error
	// AfterFlush is queued once right after the next ResetInputBuffer, like
	// bytes still in flight when the host flushed.
	AfterFlush []byte
}

// NewModule returns a module in normal mode holding params.
func NewModule(params [5]byte) *Module {
	return &Module{params: params, closed: make(map[string]bool)}
}

// ============================================================================
// radio.Port
// ============================================================================

func (m *Module) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	if m.closed["port"] {
		return 0, errors.New("radiotest: port closed")
	}
	// an empty queue behaves like the per-read timeout expiring
	n := copy(p, m.inbound)
	m.inbound = m.inbound[n:]
	return n, nil
}

func (m *Module) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	if m.closed["port"] {
		return 0, errors.New("radiotest: port closed")
	}
	n := len(p)
	if m.MaxWrite > 0 && n > m.MaxWrite {
		n = m.MaxWrite
	}
	switch {
	case m.m0 == 0 && m.m1 == 0:
		m.sent = append(m.sent, p[:n]...)
	case m.m0 == 1 && m.m1 == 1:
		m.cmd = append(m.cmd, p[:n]...)
		m.handleCommand()
	}
	return n, nil
}

func (m *Module) handleCommand() {
	for len(m.cmd) > 0 {
		switch {
		case len(m.cmd) >= 3 && m.cmd[0] == 0xC1 && m.cmd[1] == 0xC1 && m.cmd[2] == 0xC1:
			m.reply(0xC1)
			m.cmd = m.cmd[3:]
		case len(m.cmd) >= 3 && m.cmd[0] == 0xC4 && m.cmd[1] == 0xC4 && m.cmd[2] == 0xC4:
			m.resets++
			m.cmd = m.cmd[3:]
		case len(m.cmd) >= 6 && m.cmd[0] == 0xC0:
			copy(m.params[:], m.cmd[1:6])
			m.reply(0xC0)
			m.cmd = m.cmd[6:]
		case m.cmd[0] != 0xC0 && m.cmd[0] != 0xC1 && m.cmd[0] != 0xC4:
			m.cmd = m.cmd[1:]
		default:
			return // wait for the rest of the command
		}
	}
}

func (m *Module) reply(head byte) {
	r := append([]byte{head}, m.params[:]...)
	if m.ReplyLimit > 0 && m.ReplyLimit < len(r) {
		r = r[:m.ReplyLimit]
	}
	m.inbound = append(m.inbound, r...)
}

func (m *Module) SetReadTimeout(time.Duration) error { return nil }

func (m *Module) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound = append([]byte(nil), m.AfterFlush...)
	m.AfterFlush = nil
	return nil
}

func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed["port"] = true
	return nil
}

// ============================================================================
// Test controls
// ============================================================================

// Feed queues bytes as if they had arrived over the air.
func (m *Module) Feed(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound = append(m.inbound, data...)
}

// Sent returns everything the host transmitted in normal mode.
func (m *Module) Sent() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.sent...)
}

// TakeSent returns and clears the transmitted bytes.
func (m *Module) TakeSent() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sent
	m.sent = nil
	return out
}

// Params returns the stored parameter block.
func (m *Module) Params() [5]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// Resets counts the reset commands received.
func (m *Module) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// ModeChanges counts M0/M1 writes.
func (m *Module) ModeChanges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modeChanges
}

// InNormalMode reports whether both mode pins are low.
func (m *Module) InNormalMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m0 == 0 && m.m1 == 0
}

// SetBusy holds AUX low (busy) or releases it.
func (m *Module) SetBusy(busy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = busy
}

// Closed reports whether the named handle ("port", "m0", "m1", "aux") was closed.
func (m *Module) Closed(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed[name]
}

// ============================================================================
// radio.Line
// ============================================================================

// Pin is one of the module's control lines.
type Pin struct {
	m    *Module
	name string
}

// M0 returns the M0 mode-select line.
func (m *Module) M0() *Pin { return &Pin{m: m, name: "m0"} }

// M1 returns the M1 mode-select line.
func (m *Module) M1() *Pin { return &Pin{m: m, name: "m1"} }

// AUX returns the ready line.
func (m *Module) AUX() *Pin { return &Pin{m: m, name: "aux"} }

func (p *Pin) GetValue() (uint8, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	switch p.name {
	case "m0":
		return p.m.m0, nil
	case "m1":
		return p.m.m1, nil
	}
	if p.m.busy {
		return 0, nil
	}
	return 1, nil
}

func (p *Pin) SetValue(v uint8) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if p.m.PinErr != nil {
		return p.m.PinErr
	}
	switch p.name {
	case "m0":
		p.m.m0 = v
	case "m1":
		p.m.m1 = v
	default:
		return errors.New("radiotest: AUX is an input")
	}
	p.m.modeChanges++
	if p.m.m0 != 1 || p.m.m1 != 1 {
		p.m.cmd = nil
	}
	return nil
}

func (p *Pin) Close() error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	p.m.closed[p.name] = true
	return nil
}
