// e32-hal serves a remote command shell over an EByte E32 LoRa module
// attached to the host UART and GPIO header.
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-chi/chi/v5"
	"gopkg.in/natefinch/lumberjack.v2"

	"e32-hal/internal/config"
	"e32-hal/internal/handlers"
	"e32-hal/internal/host"
	"e32-hal/internal/radio"
	"e32-hal/internal/shell"
)

func main() {
	os.Exit(run())
}

func run() int {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("e32-hal starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Config failed: %v", err)
		return 1
	}

	if cfg.Logging.File != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		}))
	}

	link, err := radio.Open(radioConfig(cfg))
	if err != nil {
		log.Printf("Failed to initialize E32 module: %v", err)
		return 1
	}
	defer func() {
		if err := link.Close(); err != nil {
			log.Printf("radio: close: %v", err)
		}
	}()

	if err := link.SetMode(radio.Normal); err != nil {
		log.Printf("Failed to set mode: %v", err)
		return 1
	}

	if cfg.Radio.TxPowerDbm != 0 {
		block, err := link.EnsureTxPower(cfg.Radio.TxPowerDbm)
		if err != nil {
			log.Printf("radio: could not set transmit power to %d dBm: %v", cfg.Radio.TxPowerDbm, err)
		} else {
			log.Printf("radio: config %s, transmit power %d dBm", block.Hex(), block.TxPowerDBm())
		}
	}

	d := shell.NewDispatcher(link, newCamera(cfg.Camera),
		&host.Lister{Dir: cfg.Listing.Dir, Timeout: cfg.Listing.Timeout()},
		&host.System{},
		shellOptions(cfg.Shell))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *http.Server
	if cfg.Diagnostics.Enabled {
		srv = startDiagnostics(cfg.Diagnostics.Addr(), d.Stats())
	}

	notify(daemon.SdNotifyReady)

	err = shell.NewServer(link, d, shell.ServerOptions{
		MaxLineLength: cfg.Shell.MaxLineLength,
		IdlePause:     cfg.Shell.IdlePause(),
		Heartbeat:     watchdogHeartbeat(),
	}).Serve(ctx)

	log.Println("Shutting down e32-hal...")
	notify(daemon.SdNotifyStopping)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			log.Printf("Diagnostics shutdown failed: %v", serr)
		}
	}

	if err != nil {
		log.Printf("Shell stopped: %v", err)
		return 1
	}
	log.Println("e32-hal stopped")
	return 0
}

func radioConfig(cfg *config.Config) radio.Config {
	return radio.Config{
		Port:        cfg.Serial.Port,
		ReadTimeout: cfg.Serial.ReadTimeout(),
		Chip:        cfg.GPIO.Chip,
		M0Pin:       cfg.GPIO.M0Pin,
		M1Pin:       cfg.GPIO.M1Pin,
		AuxPin:      cfg.GPIO.AuxPin,
		Options: radio.Options{
			ReadyTimeout: cfg.Radio.ReadyTimeout(),
			ReadyPoll:    cfg.Radio.ReadyPoll(),
			ModeSettle:   cfg.Radio.ModeSettle(),
		},
	}
}

func newCamera(c config.CameraConfig) *host.Camera {
	cam := host.NewCamera()
	cam.Output = c.Output
	cam.Device = c.Device
	cam.Width = c.Width
	cam.Height = c.Height
	cam.Quality = c.Quality
	cam.PreferLibcamera = c.PreferLibcamera
	cam.Timeout = c.Timeout()
	return cam
}

func shellOptions(c config.ShellConfig) shell.Options {
	return shell.Options{
		MaxArgs:      c.MaxArgs,
		ChunkSize:    c.ChunkSize,
		MaxBlockSize: c.MaxBlockBytes,
	}
}

// startDiagnostics serves the read-only stats API in the background.
func startDiagnostics(addr string, stats handlers.StatsSource) *http.Server {
	r := chi.NewRouter()
	handlers.SetupRoutes(r, handlers.NewHALHandler(stats))

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("Diagnostics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Diagnostics server failed: %v", err)
		}
	}()
	return srv
}

// notify sends a state to systemd. Outside a unit it is a no-op.
func notify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Printf("sd_notify %s: %v", state, err)
	}
}

// watchdogHeartbeat returns a heartbeat that pets the systemd watchdog at
// half its interval, or nil when the unit has no watchdog. A single file
// transfer must finish within WatchdogSec.
func watchdogHeartbeat() func() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Printf("sd_watchdog: %v", err)
		return nil
	}
	if interval == 0 {
		return nil
	}
	every := interval / 2
	var last time.Time
	return func() {
		if time.Since(last) < every {
			return
		}
		last = time.Now()
		notify(daemon.SdNotifyWatchdog)
	}
}
