package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/host/v3"

	"github.com/ulfmagnetics/trix-server/pkg/config"
	"github.com/ulfmagnetics/trix-server/pkg/crashlog"
	"github.com/ulfmagnetics/trix-server/pkg/display"
	"github.com/ulfmagnetics/trix-server/pkg/globals"
	"github.com/ulfmagnetics/trix-server/pkg/httpd"
	"github.com/ulfmagnetics/trix-server/pkg/logger"
	"github.com/ulfmagnetics/trix-server/pkg/matrix"
	"github.com/ulfmagnetics/trix-server/pkg/routes"
	"github.com/ulfmagnetics/trix-server/pkg/supervisor"
	"github.com/ulfmagnetics/trix-server/pkg/wifi"
)

func main() {
	// Initialize logger first to capture all logs
	logger.Init(os.Getenv("TRIX_LOG_LEVEL"))
	log := logger.Get()

	log.Info().Str("version", globals.FirmwareVersion).Msg("starting trix-server")

	if err := config.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize config")
	}
	settings := config.Get().Settings()
	logger.Init(settings.LogLevel)

	// The crash recorder comes up before anything that can fail, so every
	// later fault is captured and the boot is counted
	crash, err := crashlog.New(crashlog.Options{
		LogPath:     settings.CrashLogPath,
		CounterPath: settings.CrashCounterPath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize crash recorder")
	}

	panel, err := openPanel(settings.Panel)
	if err != nil {
		crash.LogException(err, "panel init")
		log.Fatal().Err(err).Msg("failed to initialize panel")
	}

	manager := display.NewManager(panel)

	server := httpd.New(settings.ListenAddr, settings.APIKey)
	routes.Register(server, &routes.Context{
		Display:      manager,
		Crash:        crash,
		Client:       &http.Client{Timeout: time.Duration(settings.FetchTimeoutSecs) * time.Second},
		FetchTimeout: time.Duration(settings.FetchTimeoutSecs) * time.Second,
	})

	if err := server.Start(); err != nil {
		crash.LogException(err, "server init")
		log.Fatal().Err(err).Msg("failed to start server")
	}

	sup := supervisor.New(supervisor.Config{
		Server:           server,
		Display:          manager,
		Link:             wifi.New("wlan0"),
		Crash:            crash,
		FailureThreshold: settings.FailureThreshold,
	})

	ctx, cancel := context.WithCancel(context.Background())

	// Shutdown on interrupt: closing the listener unblocks the supervisor's
	// current Poll call
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("shutting down")
		cancel()
		server.Close()
	}()

	crash.LogEvent("Server ready on "+server.Addr(), crashlog.LevelInfo)

	err = sup.Run(ctx)

	// Best effort: drain anything the ring buffered while storage was
	// unavailable, then release the panel
	crash.Flush()
	panel.Halt()

	switch {
	case errors.Is(err, context.Canceled):
		log.Info().Msg("stopped")
	case errors.Is(err, supervisor.ErrRecoveryFailed):
		// Deliberately loud: repeated failed recovery on this hardware
		// risks an undetectable hang, so the process dies instead
		crash.LogException(err, "fatal")
		crash.Flush()
		log.Fatal().Err(err).Msg("recovery failed, halting")
	case err != nil:
		crash.LogException(err, "fatal")
		crash.Flush()
		log.Fatal().Err(err).Msg("supervisor stopped unexpectedly")
	}
}

// openPanel brings up the configured matrix: the SPI device on real
// hardware, or the in-memory panel for headless use.
func openPanel(cfg config.PanelSettings) (matrix.Matrix, error) {
	if cfg.Fake {
		return matrix.NewFake(cfg.Width, cfg.Height), nil
	}

	if _, err := host.Init(); err != nil {
		return nil, err
	}

	return matrix.NewSPI(matrix.Opts{
		W:      cfg.Width,
		H:      cfg.Height,
		SPI:    cfg.SPI,
		DCPin:  cfg.DCPin,
		RSTPin: cfg.RSTPin,
	})
}
