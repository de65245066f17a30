package radio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ============================================================================
// Hardware seams
// ============================================================================

// Port is the serial side of the module. go.bug.st/serial ports satisfy it.
// A Read that hits the per-read timeout returns 0, nil.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// Line is a single GPIO line handle.
type Line interface {
	GetValue() (uint8, error)
	SetValue(value uint8) error
	Close() error
}

// Options tunes the AUX handshake.
type Options struct {
	// ReadyTimeout bounds every AUX wait. Zero means DefaultReadyTimeout.
	ReadyTimeout time.Duration
	// ReadyPoll is the sleep between AUX samples. Zero means DefaultReadyPoll.
	ReadyPoll time.Duration
	// ModeSettle is an extra pause after AUX reports ready following a
	// mode switch (the datasheet asks for ~2ms).
	ModeSettle time.Duration
}

const (
	DefaultReadyTimeout = 5 * time.Second
	DefaultReadyPoll    = time.Millisecond
)

// ============================================================================
// Link
// ============================================================================

// Link drives an E32-style transceiver: a UART plus M0/M1 mode-select
// outputs and the AUX ready input. A Link is not safe for concurrent use;
// the shell runs one command at a time.
type Link struct {
	port        Port
	m0, m1, aux Line
	extra       []io.Closer // resources the lines were obtained from (GPIO chip)

	mode         Mode
	strayLF      bool // last line was cut after its CR; its LF may follow
	readyTimeout time.Duration
	readyPoll    time.Duration
	modeSettle   time.Duration

	closeOnce sync.Once
	closeErr  error
	closed    bool
}

// New wraps already-acquired handles. The link takes ownership of all of
// them and releases them on Close.
func New(port Port, m0, m1, aux Line, opts Options) *Link {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = DefaultReadyTimeout
	}
	if opts.ReadyPoll <= 0 {
		opts.ReadyPoll = DefaultReadyPoll
	}
	return &Link{
		port:         port,
		m0:           m0,
		m1:           m1,
		aux:          aux,
		mode:         Normal,
		readyTimeout: opts.ReadyTimeout,
		readyPoll:    opts.ReadyPoll,
		modeSettle:   opts.ModeSettle,
	}
}

// Mode returns the last mode that was selected successfully.
func (l *Link) Mode() Mode { return l.mode }

// WaitReady polls AUX until the module reports ready.
func (l *Link) WaitReady() error {
	if l.closed {
		return ErrClosed
	}
	deadline := time.Now().Add(l.readyTimeout)
	for {
		v, err := l.aux.GetValue()
		if err != nil {
			return fmt.Errorf("radio: read AUX: %w", err)
		}
		if v != 0 {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("radio: AUX busy for %s: %w", l.readyTimeout, ErrReadyTimeout)
		}
		time.Sleep(l.readyPoll)
	}
}

// SetMode drives M0/M1 to the requested mode and waits for AUX.
func (l *Link) SetMode(m Mode) error {
	if l.closed {
		return ErrClosed
	}
	m0, m1, err := m.pins()
	if err != nil {
		return err
	}
	if err := l.m0.SetValue(m0); err != nil {
		return fmt.Errorf("radio: set M0 for %s mode: %w", m, err)
	}
	if err := l.m1.SetValue(m1); err != nil {
		return fmt.Errorf("radio: set M1 for %s mode: %w", m, err)
	}
	if err := l.WaitReady(); err != nil {
		return fmt.Errorf("radio: switch to %s mode: %w", m, err)
	}
	if l.modeSettle > 0 {
		time.Sleep(l.modeSettle)
	}
	l.mode = m
	return nil
}

// WriteBytes writes all of data, retrying partial writes, then waits for
// the module to drain it.
func (l *Link) WriteBytes(data []byte) error {
	if err := l.writeAll(data); err != nil {
		return err
	}
	return l.WaitReady()
}

// WriteByteRaw writes one byte without waiting for AUX. The caller is
// responsible for the ready wait.
func (l *Link) WriteByteRaw(b byte) error {
	return l.writeAll([]byte{b})
}

func (l *Link) writeAll(data []byte) error {
	if l.closed {
		return ErrClosed
	}
	for len(data) > 0 {
		n, err := l.port.Write(data)
		if err != nil {
			return fmt.Errorf("radio: serial write: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("radio: serial write: %w", io.ErrShortWrite)
		}
		data = data[n:]
	}
	return nil
}

// ReadLine reads one CR LF terminated line and returns it without the
// terminator.
//
// A timeout before any byte arrives yields ErrNoData. A timeout after some
// bytes arrived returns them as a best-effort unterminated line; a trailing
// CR is dropped and a lone LF arriving next is swallowed. A line
// longer than maxLen is drained up to its terminator and reported as
// ErrLineTooLong.
func (l *Link) ReadLine(maxLen int) ([]byte, error) {
	if l.closed {
		return nil, ErrClosed
	}
	line := make([]byte, 0, 64)
	var b [1]byte
	for {
		n, err := l.port.Read(b[:])
		if err != nil {
			return nil, fmt.Errorf("radio: serial read: %w", err)
		}
		if n == 0 {
			if len(line) == 0 {
				return nil, ErrNoData
			}
			if line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
				l.strayLF = true
			}
			return line, nil
		}
		if l.strayLF {
			l.strayLF = false
			if b[0] == '\n' && len(line) == 0 {
				continue
			}
		}
		if b[0] == '\n' && len(line) > 0 && line[len(line)-1] == '\r' {
			return line[:len(line)-1], nil
		}
		line = append(line, b[0])
		// one extra byte of room for a CR that may start the terminator
		if len(line) > maxLen && !(len(line) == maxLen+1 && b[0] == '\r') {
			if err := l.discardLine(b[0] == '\r'); err != nil {
				return nil, err
			}
			return nil, ErrLineTooLong
		}
	}
}

// discardLine consumes input up to and including the next CR LF, or until
// the port goes quiet.
func (l *Link) discardLine(sawCR bool) error {
	var b [1]byte
	for {
		n, err := l.port.Read(b[:])
		if err != nil {
			return fmt.Errorf("radio: serial read: %w", err)
		}
		if n == 0 {
			return nil
		}
		if sawCR && b[0] == '\n' {
			return nil
		}
		sawCR = b[0] == '\r'
	}
}

// ReadExact reads exactly n bytes. A read that times out with nothing
// returned is a hard failure here; the bytes received so far are returned
// alongside the error.
func (l *Link) ReadExact(n int) ([]byte, error) {
	if l.closed {
		return nil, ErrClosed
	}
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := l.port.Read(buf[got:])
		if err != nil {
			return buf[:got], fmt.Errorf("radio: serial read: %w", err)
		}
		if m == 0 {
			return buf[:got], fmt.Errorf("radio: read %d of %d bytes: %w", got, n, ErrShortRead)
		}
		got += m
	}
	return buf, nil
}

// ReadAvailable performs a single read of up to maxLen bytes.
func (l *Link) ReadAvailable(maxLen int) ([]byte, error) {
	if l.closed {
		return nil, ErrClosed
	}
	buf := make([]byte, maxLen)
	n, err := l.port.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("radio: serial read: %w", err)
	}
	if n == 0 {
		return nil, ErrNoData
	}
	return buf[:n], nil
}

// Reset asks the module to reboot. Normal mode is restored even when the
// reset command could not be sent.
func (l *Link) Reset() error {
	return l.inConfigMode("reset", func() error {
		if err := l.WriteBytes(cmdReset[:]); err != nil {
			return err
		}
		if err := l.WaitReady(); err != nil {
			return err
		}
		// the module may print boot noise while restarting
		return l.drainInput()
	})
}

// inConfigMode runs fn in configuration mode and always tries to return to
// normal mode afterwards.
func (l *Link) inConfigMode(op string, fn func() error) error {
	err := l.SetMode(Configuration)
	if err == nil {
		err = fn()
	}
	if rerr := l.SetMode(Normal); rerr != nil {
		err = errors.Join(err, rerr)
	}
	if err != nil {
		return fmt.Errorf("radio: %s: %w", op, err)
	}
	return nil
}

func (l *Link) flushInput() error {
	if err := l.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("radio: flush input: %w", err)
	}
	return nil
}

// maxDrain bounds the bytes discarded while waiting for the port to go quiet.
const maxDrain = 4096

// drainInput flushes the input buffer, then discards whatever still arrives
// until a read times out empty. Bytes can trail the AUX ready edge.
func (l *Link) drainInput() error {
	if err := l.flushInput(); err != nil {
		return err
	}
	buf := make([]byte, 64)
	for total := 0; total < maxDrain; {
		n, err := l.port.Read(buf)
		if err != nil {
			return fmt.Errorf("radio: drain input: %w", err)
		}
		if n == 0 {
			return nil
		}
		total += n
	}
	return nil
}

// Close releases the mode lines, the AUX line, the GPIO chip and the serial
// port. It is safe to call more than once.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closed = true
		var errs []error
		for _, c := range []io.Closer{l.m0, l.m1, l.aux} {
			if c == nil {
				continue
			}
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, c := range l.extra {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if l.port != nil {
			if err := l.port.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		l.closeErr = errors.Join(errs...)
	})
	return l.closeErr
}
