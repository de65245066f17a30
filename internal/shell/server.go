package shell

import (
	"context"
	"errors"
	"log"
	"time"

	"e32-hal/internal/radio"
)

const (
	// DefaultMaxLineLength matches the request buffer of the field units.
	DefaultMaxLineLength = 2048
	// DefaultIdlePause is the sleep between empty polls.
	DefaultIdlePause = 10 * time.Millisecond
)

// ServerOptions tunes the serve loop.
type ServerOptions struct {
	MaxLineLength int
	IdlePause     time.Duration
	// Heartbeat, when set, runs once per loop iteration.
	Heartbeat func()
}

// Server reads request lines off the link and hands them to a Dispatcher.
type Server struct {
	link Link
	d    *Dispatcher
	opts ServerOptions
}

func NewServer(link Link, d *Dispatcher, opts ServerOptions) *Server {
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = DefaultMaxLineLength
	}
	if opts.IdlePause <= 0 {
		opts.IdlePause = DefaultIdlePause
	}
	return &Server{link: link, d: d, opts: opts}
}

// Serve runs until ctx is cancelled or the link is closed. Cancellation is
// only observed between requests: a command that has started always runs
// to completion and sends its reply.
func (s *Server) Serve(ctx context.Context) error {
	log.Printf("shell: serving commands (max line %d bytes)", s.opts.MaxLineLength)
	for {
		select {
		case <-ctx.Done():
			log.Printf("shell: stopping")
			return nil
		default:
		}
		if s.opts.Heartbeat != nil {
			s.opts.Heartbeat()
		}

		line, err := s.link.ReadLine(s.opts.MaxLineLength)
		switch {
		case err == nil:
			if derr := s.d.Dispatch(context.WithoutCancel(ctx), string(line)); derr != nil {
				log.Printf("shell: %v", derr)
			}
		case errors.Is(err, radio.ErrNoData):
			s.pause(ctx)
		case errors.Is(err, radio.ErrLineTooLong):
			if derr := s.d.RejectLine(); derr != nil {
				log.Printf("shell: %v", derr)
			}
		case errors.Is(err, radio.ErrClosed):
			return err
		default:
			log.Printf("shell: read command: %v", err)
			s.pause(ctx)
		}
	}
}

func (s *Server) pause(ctx context.Context) {
	t := time.NewTimer(s.opts.IdlePause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
