package host

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// Camera takes still photos with the external capture tools.
type Camera struct {
	Output          string // file the photo is written to
	Device          string // V4L2 device for fswebcam, empty for its default
	Width           int
	Height          int
	Quality         int // JPEG quality 1-100
	PreferLibcamera bool
	Timeout         time.Duration
}

// NewCamera returns a camera with the capture settings used on the
// balloon payload: 320x240, JPEG quality 60, written to photo.jpg.
func NewCamera() *Camera {
	return &Camera{
		Output:  "photo.jpg",
		Width:   320,
		Height:  240,
		Quality: 60,
		Timeout: 30 * time.Second,
	}
}

// Capture takes a photo and returns the path of the file.
func (c *Camera) Capture(ctx context.Context) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	// a stale photo must never be mistaken for a fresh capture
	if err := os.Remove(c.Output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("camera: remove stale %s: %w", c.Output, err)
	}

	var err error
	if c.PreferLibcamera {
		if err = c.libcamera(ctx); err != nil {
			log.Printf("camera: %s, falling back to fswebcam", sanitizeExecError("libcamera-still", err))
			err = c.fswebcam(ctx)
		}
	} else {
		err = c.fswebcam(ctx)
	}
	if err != nil {
		return "", errors.New("camera: " + sanitizeExecError("fswebcam", err))
	}

	info, err := os.Stat(c.Output)
	if err != nil {
		return "", fmt.Errorf("camera: captured image missing: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("camera: captured image %s is empty", c.Output)
	}
	return c.Output, nil
}

func (c *Camera) fswebcam(ctx context.Context) error {
	args := []string{
		"-r", fmt.Sprintf("%dx%d", c.Width, c.Height),
		"--jpeg", strconv.Itoa(c.Quality),
		"--no-banner",
	}
	if c.Device != "" {
		args = append(args, "-d", c.Device)
	}
	args = append(args, c.Output)
	_, err := execWithTimeout(ctx, "fswebcam", args...)
	return err
}

func (c *Camera) libcamera(ctx context.Context) error {
	_, err := execWithTimeout(ctx, "libcamera-still",
		"-o", c.Output,
		"--width", strconv.Itoa(c.Width),
		"--height", strconv.Itoa(c.Height),
		"-q", strconv.Itoa(c.Quality),
		"-n",      // No preview
		"-t", "1", // immediate capture
	)
	return err
}
