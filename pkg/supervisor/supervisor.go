// Package supervisor runs the top-level service loop: it drives the HTTP
// collaborator one request at a time, counts consecutive failures, and
// escalates repeated failure into a full reset-and-reinitialize cycle.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/ulfmagnetics/trix-server/pkg/crashlog"
	"github.com/ulfmagnetics/trix-server/pkg/logger"
)

// DefaultFailureThreshold is how many consecutive failed cycles trigger
// recovery
const DefaultFailureThreshold = 3

// ErrRecoveryFailed is terminal: recovery itself failed, and the process
// should halt loudly rather than loop on an unrecoverable hardware state.
var ErrRecoveryFailed = errors.New("supervisor: recovery failed")

// State of the supervisor loop
type State int

const (
	Servicing State = iota
	Recovering
	Fatal
)

func (s State) String() string {
	switch s {
	case Servicing:
		return "servicing"
	case Recovering:
		return "recovering"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Collaborator is the network-server-facing dependency: it services one
// pending request per Poll call and can be fully reinitialized.
type Collaborator interface {
	Poll() error
	Restart() error
}

// Display is the subset of the display manager recovery touches
type Display interface {
	Clear() error
}

// NetLink verifies and restores the wireless link
type NetLink interface {
	EnsureConnected(ctx context.Context) error
}

// Config assembles a Supervisor
type Config struct {
	Server           Collaborator
	Display          Display
	Link             NetLink // optional
	Crash            *crashlog.Recorder
	FailureThreshold int           // 0 means DefaultFailureThreshold
	RecoveryTimeout  time.Duration // bound on link restoration, 0 = 30s
}

// Supervisor is the resilience loop. Single-goroutine use only.
type Supervisor struct {
	server    Collaborator
	display   Display
	link      NetLink
	crash     *crashlog.Recorder
	threshold int
	timeout   time.Duration

	state    State
	failures int
	log      zerolog.Logger
}

// New builds a supervisor in the Servicing state
func New(cfg Config) *Supervisor {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	return &Supervisor{
		server:    cfg.Server,
		display:   cfg.Display,
		link:      cfg.Link,
		crash:     cfg.Crash,
		threshold: cfg.FailureThreshold,
		timeout:   cfg.RecoveryTimeout,
		state:     Servicing,
		log:       logger.With("supervisor"),
	}
}

// State returns the current loop state
func (s *Supervisor) State() State {
	return s.state
}

// ConsecutiveFailures returns the current failure streak
func (s *Supervisor) ConsecutiveFailures() int {
	return s.failures
}

// Run services requests until the context is canceled or recovery fails.
// Only ErrRecoveryFailed (or context cancellation) ends the loop.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.Cycle(ctx); err != nil {
			return err
		}
	}
}

// Cycle performs one unit of service work and any escalation it triggers
func (s *Supervisor) Cycle(ctx context.Context) error {
	err := s.server.Poll()
	if err == nil {
		s.failures = 0
		return nil
	}

	// A listener closed under us during shutdown is not a service failure
	if errors.Is(err, net.ErrClosed) && ctx.Err() != nil {
		return ctx.Err()
	}

	s.failures++
	s.log.Warn().Err(err).Int("failures", s.failures).Int("threshold", s.threshold).
		Msg("service cycle failed")
	s.crash.LogException(err, fmt.Sprintf("service cycle (failure %d/%d)",
		s.failures, s.threshold))

	if s.failures < s.threshold {
		return nil
	}

	s.state = Recovering
	s.crash.LogEvent(fmt.Sprintf("Failure threshold reached (%d), starting recovery",
		s.threshold), crashlog.LevelWarning)

	if rerr := s.recover(ctx); rerr != nil {
		s.state = Fatal
		s.crash.LogException(rerr, "recovery")
		return fmt.Errorf("%w: %v", ErrRecoveryFailed, rerr)
	}

	s.crash.LogEvent("Recovery complete, resuming service", crashlog.LevelInfo)
	s.failures = 0
	s.state = Servicing
	return nil
}

// recover clears the display, restores the wireless link, and reinitializes
// the HTTP collaborator. Any error here is fatal to the caller.
func (s *Supervisor) recover(ctx context.Context) error {
	s.log.Warn().Msg("entering recovery")

	if err := s.display.Clear(); err != nil {
		return fmt.Errorf("display clear failed: %w", err)
	}

	if s.link != nil {
		lctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.link.EnsureConnected(lctx); err != nil {
			return fmt.Errorf("link restore failed: %w", err)
		}
	}

	if err := s.server.Restart(); err != nil {
		return fmt.Errorf("server restart failed: %w", err)
	}

	return nil
}
