// Package protocol implements the two response framings used on the radio
// link: CR LF terminated text lines and 4-byte length-prefixed blocks.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

const (
	// HeaderSize is the length prefix of a block frame.
	HeaderSize = 4
	// MaxBlockSize is the largest payload the length prefix can announce.
	MaxBlockSize = math.MaxUint32
	// DefaultChunkSize bounds each serial write while streaming.
	DefaultChunkSize = 256
)

// Terminator ends every text frame.
var Terminator = []byte{'\r', '\n'}

var (
	ErrEmbeddedTerminator = errors.New("protocol: text contains CR LF")
	ErrEmptyBlock         = errors.New("protocol: empty block payload")
	ErrBlockTooLarge      = errors.New("protocol: block payload too large")
	ErrShortPayload       = errors.New("protocol: payload shorter than announced length")
	// ErrTransferFailed is what a receiver sees for a sentinel frame.
	ErrTransferFailed = errors.New("protocol: remote transfer failed")
)

// Writer is the part of the radio link the codec writes through.
type Writer interface {
	WriteBytes(data []byte) error
	WaitReady() error
}

// ============================================================================
// Line framing
// ============================================================================

// WriteLine sends text followed by CR LF. Text is never escaped, so it must
// not contain CR LF itself.
func WriteLine(w Writer, text string) error {
	if strings.Contains(text, "\r\n") {
		return ErrEmbeddedTerminator
	}
	frame := make([]byte, 0, len(text)+len(Terminator))
	frame = append(frame, text...)
	frame = append(frame, Terminator...)
	return w.WriteBytes(frame)
}

// WriteText streams r verbatim in chunks, then CR LF, then waits for the
// link to flush.
func WriteText(w Writer, r io.Reader, chunk int) error {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	buf := make([]byte, chunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := w.WriteBytes(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("protocol: read text: %w", err)
		}
	}
	if err := w.WriteBytes(Terminator); err != nil {
		return err
	}
	return w.WaitReady()
}

// ============================================================================
// Block framing
// ============================================================================

// EncodeHeader returns the big-endian length prefix for size.
func EncodeHeader(size uint32) [HeaderSize]byte {
	var h [HeaderSize]byte
	binary.BigEndian.PutUint32(h[:], size)
	return h
}

// WriteSentinel sends the zero-length frame that tells the far end the
// requested transfer failed.
func WriteSentinel(w Writer) error {
	h := EncodeHeader(0)
	return w.WriteBytes(h[:])
}

// WriteBlock sends the length prefix and then exactly size bytes from r.
// A zero or oversized payload is refused before anything is written; the
// caller answers those with WriteSentinel. Once the header is out the far
// end expects size bytes, so a short reader is reported as ErrShortPayload.
func WriteBlock(w Writer, r io.Reader, size int64, chunk int) error {
	if size <= 0 {
		return ErrEmptyBlock
	}
	if size > MaxBlockSize {
		return fmt.Errorf("%w: %d bytes", ErrBlockTooLarge, size)
	}
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	h := EncodeHeader(uint32(size))
	if err := w.WriteBytes(h[:]); err != nil {
		return err
	}

	buf := make([]byte, chunk)
	for remaining := size; remaining > 0; {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		got, err := io.ReadFull(r, buf[:n])
		if got > 0 {
			if werr := w.WriteBytes(buf[:got]); werr != nil {
				return werr
			}
			remaining -= int64(got)
		}
		if err != nil {
			return fmt.Errorf("%w: %d bytes missing: %v", ErrShortPayload, remaining, err)
		}
	}
	return w.WaitReady()
}

// ============================================================================
// Receiving side
// ============================================================================

// ReadBlock decodes one block frame. A sentinel yields ErrTransferFailed.
func ReadBlock(r io.Reader) ([]byte, error) {
	var h [HeaderSize]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return nil, fmt.Errorf("protocol: read block header: %w", err)
	}
	size := binary.BigEndian.Uint32(h[:])
	if size == 0 {
		return nil, ErrTransferFailed
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("protocol: read block payload: %w", err)
	}
	return payload, nil
}

// ReadTextLine decodes one text frame and strips the terminator. Bare LF
// characters are part of the text.
func ReadTextLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		part, err := r.ReadBytes('\n')
		line = append(line, part...)
		if err != nil {
			return "", fmt.Errorf("protocol: read text line: %w", err)
		}
		if bytes.HasSuffix(line, Terminator) {
			return string(line[:len(line)-len(Terminator)]), nil
		}
	}
}
