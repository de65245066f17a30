// Package shell is the remote command shell served over the radio link:
// it tokenises request lines, runs the matching command and answers with
// exactly one frame per request.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"e32-hal/internal/protocol"
	"e32-hal/internal/radio"
)

// Fixed replies. None of them may contain CR LF.
const (
	ReplyNoCommand     = "No command given"
	ReplyIncorrectArgs = "Incorrect number of arguments"
	ReplyTooManyArgs   = "Too many arguments"
	ReplyUnknown       = "Unknown command"
	ReplyListFailed    = "Couldnt run ls"
	ReplyStatusFailed  = "Couldnt run status"
	ReplyRestarting    = "Restarting E32"
	ReplyLineTooLong   = "Command too long"
)

// Link is the part of radio.Link the shell drives.
type Link interface {
	protocol.Writer
	ReadLine(maxLen int) ([]byte, error)
	ReadConfig() (radio.ConfigBlock, error)
	Reset() error
}

// Capturer takes a photo and returns the file it was written to.
type Capturer interface {
	Capture(ctx context.Context) (string, error)
}

// Lister produces a directory listing.
type Lister interface {
	ListDirectory(ctx context.Context) (io.Reader, error)
}

// UsageReader reports host disk and RAM utilisation in percent.
type UsageReader interface {
	SystemUsage() (disk, ram int, err error)
}

// Options tunes the dispatcher. Zero values select the defaults.
type Options struct {
	MaxArgs      int
	ChunkSize    int
	MaxBlockSize int64
}

var errUnavailable = errors.New("shell: collaborator not configured")

type framing int

const (
	lineFraming framing = iota
	blockFraming
)

type command struct {
	argc    int
	framing framing
	run     func(ctx context.Context, args []string) error
}

// Dispatcher runs one command line at a time against the link.
type Dispatcher struct {
	link   Link
	camera Capturer
	lister Lister
	usage  UsageReader
	opts   Options

	commands map[string]command
	stats    *Stats
}

// NewDispatcher builds the command table. Any collaborator may be nil; the
// command depending on it then answers with its failure frame.
func NewDispatcher(link Link, camera Capturer, lister Lister, usage UsageReader, opts Options) *Dispatcher {
	if opts.MaxArgs <= 0 {
		opts.MaxArgs = DefaultMaxArgs
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = protocol.DefaultChunkSize
	}
	if opts.MaxBlockSize <= 0 || opts.MaxBlockSize > protocol.MaxBlockSize {
		opts.MaxBlockSize = protocol.MaxBlockSize
	}

	d := &Dispatcher{
		link:   link,
		camera: camera,
		lister: lister,
		usage:  usage,
		opts:   opts,
	}
	d.commands = map[string]command{
		"list":    {argc: 0, framing: lineFraming, run: d.list},
		"send":    {argc: 1, framing: blockFraming, run: d.send},
		"photo":   {argc: 0, framing: blockFraming, run: d.photo},
		"status":  {argc: 0, framing: lineFraming, run: d.status},
		"restart": {argc: 0, framing: lineFraming, run: d.restart},
	}
	d.stats = newStats(d.Commands())
	return d
}

// Commands lists the command names in sorted order.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.commands))
	for n := range d.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Stats returns the live counters.
func (d *Dispatcher) Stats() *Stats { return d.stats }

// Dispatch parses line, runs the command and sends its single reply frame.
// The returned error describes what went wrong for logging; the far end has
// already been answered.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) error {
	cmd, perr := ParseCommand(line, d.opts.MaxArgs)
	if errors.Is(perr, ErrNoCommand) {
		err := errors.Join(perr, protocol.WriteLine(d.link, ReplyNoCommand))
		d.stats.record("", err)
		return err
	}

	c, ok := d.commands[cmd.Name]
	var err error
	switch {
	case !ok:
		err = errors.Join(fmt.Errorf("%w: unknown command %q", ErrUsage, cmd.Name),
			protocol.WriteLine(d.link, ReplyUnknown))
	case perr != nil:
		err = d.usageError(c, perr, ReplyTooManyArgs)
	case len(cmd.Args) != c.argc:
		err = d.usageError(c, fmt.Errorf("%w: %s takes %d argument(s), got %d",
			ErrUsage, cmd.Name, c.argc, len(cmd.Args)), ReplyIncorrectArgs)
	default:
		err = c.run(ctx, cmd.Args)
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", cmd.Name, err)
	}
	d.stats.record(cmd.Name, err)
	return err
}

// RejectLine answers a request line that did not fit the line buffer.
func (d *Dispatcher) RejectLine() error {
	err := errors.Join(fmt.Errorf("%w: command line too long", ErrUsage),
		protocol.WriteLine(d.link, ReplyLineTooLong))
	d.stats.record("", err)
	return err
}

// usageError answers in the command's own framing so a peer waiting for a
// block header is never handed a text line.
func (d *Dispatcher) usageError(c command, cause error, reply string) error {
	if c.framing == blockFraming {
		return d.sentinel(cause)
	}
	return errors.Join(cause, protocol.WriteLine(d.link, reply))
}

// sentinel reports a failed transfer to the far end.
func (d *Dispatcher) sentinel(cause error) error {
	return errors.Join(cause, protocol.WriteSentinel(d.link))
}

// ============================================================================
// Commands
// ============================================================================

func (d *Dispatcher) list(ctx context.Context, _ []string) error {
	if d.lister == nil {
		return errors.Join(errUnavailable, protocol.WriteLine(d.link, ReplyListFailed))
	}
	out, err := d.lister.ListDirectory(ctx)
	if err != nil {
		return errors.Join(err, protocol.WriteLine(d.link, ReplyListFailed))
	}
	return protocol.WriteText(d.link, out, d.opts.ChunkSize)
}

func (d *Dispatcher) send(_ context.Context, args []string) error {
	return d.sendFile(args[0])
}

func (d *Dispatcher) photo(ctx context.Context, _ []string) error {
	if d.camera == nil {
		return d.sentinel(errUnavailable)
	}
	path, err := d.camera.Capture(ctx)
	if err != nil {
		return d.sentinel(err)
	}
	return d.sendFile(path)
}

func (d *Dispatcher) status(_ context.Context, _ []string) error {
	if d.usage == nil {
		return errors.Join(errUnavailable, protocol.WriteLine(d.link, ReplyStatusFailed))
	}
	disk, ram, err := d.usage.SystemUsage()
	if err != nil {
		return errors.Join(err, protocol.WriteLine(d.link, ReplyStatusFailed))
	}
	cfg, err := d.link.ReadConfig()
	if err != nil {
		return errors.Join(err, protocol.WriteLine(d.link, ReplyStatusFailed))
	}
	d.stats.recordConfig(cfg.Hex())
	return protocol.WriteLine(d.link, FormatStatus(disk, ram, cfg))
}

func (d *Dispatcher) restart(_ context.Context, _ []string) error {
	if err := d.link.Reset(); err != nil {
		log.Printf("shell: restart: %v", err)
	}
	return protocol.WriteLine(d.link, ReplyRestarting)
}

// sendFile streams a regular, non-empty file as one block. Anything that
// prevents the header from going out is answered with the sentinel.
func (d *Dispatcher) sendFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return d.sentinel(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return d.sentinel(err)
	}
	switch {
	case !info.Mode().IsRegular():
		return d.sentinel(fmt.Errorf("%s is not a regular file", path))
	case info.Size() == 0:
		return d.sentinel(fmt.Errorf("%s: %w", path, protocol.ErrEmptyBlock))
	case info.Size() > d.opts.MaxBlockSize:
		return d.sentinel(fmt.Errorf("%s: %w: %d bytes", path, protocol.ErrBlockTooLarge, info.Size()))
	}

	if err := protocol.WriteBlock(d.link, f, info.Size(), d.opts.ChunkSize); err != nil {
		return fmt.Errorf("send %s: %w", path, err)
	}
	return nil
}

// FormatStatus renders the status reply body.
func FormatStatus(disk, ram int, cfg radio.ConfigBlock) string {
	return fmt.Sprintf("Disk usage: %d%%\nRAM usage: %d%%\nTransmission power: %d dBm\nConfig hexstring: %s",
		disk, ram, cfg.TxPowerDBm(), cfg.Hex())
}
