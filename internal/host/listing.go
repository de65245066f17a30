package host

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// Lister produces a long directory listing with ls.
type Lister struct {
	Dir     string
	Timeout time.Duration
}

// ListDirectory runs `ls -l` on the configured directory.
func (l *Lister) ListDirectory(ctx context.Context) (io.Reader, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	dir := l.Dir
	if dir == "" {
		dir = "."
	}
	out, err := execWithTimeout(ctx, "ls", "-l", dir)
	if err != nil {
		return nil, errors.New("listing: " + sanitizeExecError("ls", err))
	}
	return strings.NewReader(out), nil
}
