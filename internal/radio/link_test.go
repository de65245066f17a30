package radio

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"e32-hal/internal/radio/radiotest"
)

func newTestLink(params [5]byte) (*Link, *radiotest.Module) {
	m := radiotest.NewModule(params)
	l := New(m, m.M0(), m.M1(), m.AUX(), Options{
		ReadyTimeout: 50 * time.Millisecond,
		ReadyPoll:    time.Millisecond,
	})
	return l, m
}

func TestSetModeDrivesPins(t *testing.T) {
	l, m := newTestLink([5]byte{})

	if err := l.SetMode(Configuration); err != nil {
		t.Fatalf("SetMode(Configuration): %v", err)
	}
	if m.InNormalMode() {
		t.Fatal("expected module to leave normal mode")
	}
	if l.Mode() != Configuration {
		t.Errorf("expected link mode configuration, got %s", l.Mode())
	}

	if err := l.SetMode(Normal); err != nil {
		t.Fatalf("SetMode(Normal): %v", err)
	}
	if !m.InNormalMode() {
		t.Fatal("expected module back in normal mode")
	}
}

func TestWaitReadyTimesOut(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.SetBusy(true)

	start := time.Now()
	err := l.WaitReady()
	if !errors.Is(err, ErrReadyTimeout) {
		t.Fatalf("expected ErrReadyTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %s, before the ready timeout", elapsed)
	}
}

func TestSetModeReportsBusyModule(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.SetBusy(true)

	if err := l.SetMode(Configuration); !errors.Is(err, ErrReadyTimeout) {
		t.Fatalf("expected ErrReadyTimeout, got %v", err)
	}
	if l.Mode() != Normal {
		t.Errorf("failed switch must not update the link mode, got %s", l.Mode())
	}
}

func TestWriteBytesRetriesPartialWrites(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.MaxWrite = 3

	payload := []byte("hello radio")
	if err := l.WriteBytes(payload); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	if got := m.Sent(); !bytes.Equal(got, payload) {
		t.Errorf("expected %q on air, got %q", payload, got)
	}
}

func TestWriteBytesSurfacesHardErrors(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.WriteErr = errors.New("EIO")

	if err := l.WriteBytes([]byte("x")); err == nil {
		t.Fatal("expected write error")
	}
	if err := l.WriteByteRaw('x'); err == nil {
		t.Fatal("expected raw write error")
	}
}

func TestWriteByteRaw(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.SetBusy(true) // no ready wait expected

	if err := l.WriteByteRaw('A'); err != nil {
		t.Fatalf("WriteByteRaw: %v", err)
	}
	if got := m.Sent(); !bytes.Equal(got, []byte("A")) {
		t.Errorf("expected A, got %q", got)
	}
}

func TestReadLine(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		max     int
		want    string
		wantErr error
	}{
		{name: "terminated", input: "status\r\n", max: 64, want: "status"},
		{name: "empty line", input: "\r\n", max: 64, want: ""},
		{name: "bare LF is content", input: "a\nb\r\n", max: 64, want: "a\nb"},
		{name: "lone CR is content", input: "a\rb\r\n", max: 64, want: "a\rb"},
		{name: "partial after timeout", input: "sta", max: 64, want: "sta"},
		{name: "nothing yet", input: "", max: 64, wantErr: ErrNoData},
		{name: "exactly max", input: "abcd\r\n", max: 4, want: "abcd"},
		{name: "too long", input: "abcde\r\n", max: 4, wantErr: ErrLineTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, m := newTestLink([5]byte{})
			m.Feed([]byte(tt.input))

			got, err := l.ReadLine(tt.max)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v (line %q)", tt.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadLine: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestReadLineDrainsOverlongLine(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.Feed([]byte("list list list\r\nstatus\r\n"))

	if _, err := l.ReadLine(8); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
	got, err := l.ReadLine(8)
	if err != nil {
		t.Fatalf("ReadLine after overflow: %v", err)
	}
	if string(got) != "status" {
		t.Errorf("expected the next line to be intact, got %q", got)
	}
}

func TestReadLineSequence(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.Feed([]byte("list\r\nsend a.jpg\r\n"))

	for _, want := range []string{"list", "send a.jpg"} {
		got, err := l.ReadLine(64)
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if string(got) != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
	if _, err := l.ReadLine(64); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData once drained, got %v", err)
	}
}

func TestReadLineSplitTerminator(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.Feed([]byte("status\r"))

	got, err := l.ReadLine(64)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(got) != "status" {
		t.Errorf("expected the CR dropped, got %q", got)
	}

	// the late LF belongs to the line already returned
	m.Feed([]byte("\n"))
	if got, err := l.ReadLine(64); !errors.Is(err, ErrNoData) {
		t.Errorf("expected the late LF swallowed, got %q, %v", got, err)
	}
}

func TestReadLineSplitTerminatorLFStillPending(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.Feed([]byte("status\r"))
	if _, err := l.ReadLine(64); err != nil {
		t.Fatalf("ReadLine: %v", err)
	}

	// an idle poll in between does not forget the pending LF
	if _, err := l.ReadLine(64); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	m.Feed([]byte("\nlist\r\n"))
	got, err := l.ReadLine(64)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(got) != "list" {
		t.Errorf("expected list, got %q", got)
	}
}

func TestReadLineOnlySwallowsLeadingLF(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.Feed([]byte("status\r"))
	if _, err := l.ReadLine(64); err != nil {
		t.Fatalf("ReadLine: %v", err)
	}

	m.Feed([]byte("list\r\n\n\r\n"))
	for _, want := range []string{"list", "\n"} {
		got, err := l.ReadLine(64)
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}
		if string(got) != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}

func TestReadExact(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.Feed([]byte{1, 2, 3, 4})

	got, err := l.ReadExact(3)
	if err != nil {
		t.Fatalf("ReadExact: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("expected 1 2 3, got %v", got)
	}

	got, err = l.ReadExact(3)
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("expected ErrShortRead, got %v", err)
	}
	if !bytes.Equal(got, []byte{4}) {
		t.Errorf("expected the partial byte back, got %v", got)
	}
}

func TestReadAvailable(t *testing.T) {
	l, m := newTestLink([5]byte{})

	if _, err := l.ReadAvailable(16); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData on empty port, got %v", err)
	}

	m.Feed([]byte("abc"))
	got, err := l.ReadAvailable(2)
	if err != nil {
		t.Fatalf("ReadAvailable: %v", err)
	}
	if string(got) != "ab" {
		t.Errorf("expected ab, got %q", got)
	}
}

func TestReadErrorsAreHard(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.ReadErr = errors.New("EIO")

	if _, err := l.ReadLine(64); err == nil || errors.Is(err, ErrNoData) {
		t.Fatalf("expected a hard read error, got %v", err)
	}
}

func TestResetRestoresNormalMode(t *testing.T) {
	l, m := newTestLink([5]byte{})

	if err := l.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if m.Resets() != 1 {
		t.Errorf("expected one reset command, got %d", m.Resets())
	}
	if !m.InNormalMode() || l.Mode() != Normal {
		t.Error("expected normal mode after reset")
	}
	if len(m.Sent()) != 0 {
		t.Errorf("reset bytes must not go on air, got %v", m.Sent())
	}
}

func TestResetDrainsLateBootNoise(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.AfterFlush = []byte("E32 ready\r\n")

	if err := l.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got, err := l.ReadLine(64); !errors.Is(err, ErrNoData) {
		t.Errorf("expected boot noise drained, got %q, %v", got, err)
	}
}

func TestResetFailureStillRestoresNormalMode(t *testing.T) {
	l, m := newTestLink([5]byte{})
	m.WriteErr = errors.New("EIO")

	if err := l.Reset(); err == nil {
		t.Fatal("expected reset error")
	}
	if !m.InNormalMode() {
		t.Error("expected normal mode after failed reset")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	l, m := newTestLink([5]byte{})

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	for _, name := range []string{"port", "m0", "m1", "aux"} {
		if !m.Closed(name) {
			t.Errorf("expected %s to be released", name)
		}
	}
	if err := l.WriteBytes([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
}
