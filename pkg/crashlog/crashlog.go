// Package crashlog provides the tiered-durability crash log and the
// power-loss-surviving crash counter.
//
// Every write goes to the log file first; when storage is read-only or full
// the entry lands in a bounded in-memory ring instead, dropping the oldest
// entry on overflow. The counter is a single byte of non-volatile storage,
// incremented once per boot and wrapping modulo 256.
package crashlog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ulfmagnetics/trix-server/pkg/globals"
	"github.com/ulfmagnetics/trix-server/pkg/logger"
)

// Level classifies a logged event
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

const banner = "============================================================"

// DefaultMaxBuffered is the ring capacity used when Options leaves it zero
const DefaultMaxBuffered = 50

// Options configures a Recorder
type Options struct {
	LogPath     string
	CounterPath string
	MaxBuffered int
}

// Recorder is the crash log and counter. Safe for use from auxiliary
// goroutines (signal handlers, shutdown paths).
type Recorder struct {
	mu          sync.Mutex
	logPath     string
	counterPath string
	maxBuffered int
	bootTime    time.Time
	count       uint8
	ring        []string
}

// New opens the recorder: it reads the persistent crash counter, increments
// it (wrapping modulo 256), persists the new value immediately, and writes a
// boot banner event.
func New(opts Options) (*Recorder, error) {
	if opts.LogPath == "" {
		opts.LogPath = globals.CrashLogPath
	}
	if opts.CounterPath == "" {
		opts.CounterPath = globals.CrashCounterPath
	}
	if opts.MaxBuffered <= 0 {
		opts.MaxBuffered = DefaultMaxBuffered
	}

	r := &Recorder{
		logPath:     opts.LogPath,
		counterPath: opts.CounterPath,
		maxBuffered: opts.MaxBuffered,
		bootTime:    time.Now(),
	}

	// MkdirAll is a no-op if the directory exists; failure here just means
	// writes will fall back to the memory ring
	os.MkdirAll(filepath.Dir(r.logPath), 0755)

	r.count = r.readCounter() + 1 // wraps at 255 by uint8 arithmetic
	if err := r.writeCounter(r.count); err != nil {
		r.write(fmt.Sprintf("[%08.2f] %s: failed to persist crash counter: %v\n",
			0.0, LevelError, err))
	}

	r.logBoot()
	return r, nil
}

func (r *Recorder) logBoot() {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", banner)
	fmt.Fprintf(&b, "BOOT at %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "Crash count: %d\n", r.count)
	fmt.Fprintf(&b, "Firmware version: %s\n", globals.FirmwareVersion)
	fmt.Fprintf(&b, "Free memory: %d bytes\n", freeMemory())
	fmt.Fprintf(&b, "%s\n", banner)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.write(b.String())
}

// LogEvent records a timestamped event at the given level
func (r *Recorder) LogEvent(msg string, level Level) {
	line := fmt.Sprintf("[%08.2f] %s: %s\n", r.Uptime().Seconds(), level, msg)

	logger.Get().Info().Str("level", string(level)).Msg(msg)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.write(line)
}

// LogException records an error with uptime, context, a free-memory
// snapshot, and a stack trace. Trace acquisition failure is recorded as a
// sub-event rather than swallowed.
func (r *Recorder) LogException(err error, context string) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", banner)
	fmt.Fprintf(&b, "EXCEPTION at %.2fs\n", r.Uptime().Seconds())
	if context != "" {
		fmt.Fprintf(&b, "Context: %s\n", context)
	}
	fmt.Fprintf(&b, "Type: %T\n", err)
	fmt.Fprintf(&b, "Message: %v\n", err)
	fmt.Fprintf(&b, "Free memory: %d bytes\n", freeMemory())
	b.WriteString("------------------------------------------------------------\n")

	if trace := stackTrace(); trace != "" {
		b.WriteString(trace)
	} else {
		b.WriteString("Failed to get stack trace\n")
	}
	fmt.Fprintf(&b, "%s\n", banner)

	logger.Get().Error().Err(err).Str("context", context).Msg("exception recorded")

	r.mu.Lock()
	defer r.mu.Unlock()
	r.write(b.String())
}

// write appends to the log file, falling back to the bounded memory ring.
// Callers hold r.mu.
func (r *Recorder) write(entry string) bool {
	if err := r.appendFile(entry); err != nil {
		r.ring = append(r.ring, entry)
		if len(r.ring) > r.maxBuffered {
			r.ring = r.ring[1:]
		}
		return false
	}
	return true
}

func (r *Recorder) appendFile(entry string) error {
	f, err := os.OpenFile(r.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(entry)
	return err
}

// Flush tries to drain the memory ring to the log file. The ring is cleared
// only when every buffered entry made it to storage.
func (r *Recorder) Flush() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.ring) == 0 {
		return true
	}

	var b strings.Builder
	b.WriteString("\n=== MEMORY BUFFER DUMP ===\n")
	for _, entry := range r.ring {
		b.WriteString(entry)
	}
	b.WriteString("=== END BUFFER ===\n")

	if err := r.appendFile(b.String()); err != nil {
		return false
	}

	r.ring = nil
	return true
}

// Buffered returns how many entries are waiting in the memory ring
func (r *Recorder) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ring)
}

// Contents returns the log file contents. maxLines > 0 limits the result to
// the last maxLines lines.
func (r *Recorder) Contents(maxLines int) (string, error) {
	data, err := os.ReadFile(r.logPath)
	if err != nil {
		return "", fmt.Errorf("failed to read crash log: %w", err)
	}

	if maxLines <= 0 {
		return string(data), nil
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// ClearLog truncates the log file and discards any buffered entries, so a
// later flush cannot resurrect pre-clear records.
func (r *Recorder) ClearLog() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ring = nil

	line := fmt.Sprintf("Log cleared at %.2fs\n", r.Uptime().Seconds())
	if err := os.WriteFile(r.logPath, []byte(line), 0644); err != nil {
		return fmt.Errorf("failed to clear crash log: %w", err)
	}
	return nil
}

// Count returns the crash counter as persisted at boot
func (r *Recorder) Count() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// ResetCounter sets the persistent crash counter back to zero
func (r *Recorder) ResetCounter() error {
	r.mu.Lock()
	if err := r.writeCounter(0); err != nil {
		r.mu.Unlock()
		return err
	}
	r.count = 0
	r.mu.Unlock()

	r.LogEvent("Crash counter reset", LevelInfo)
	return nil
}

// Uptime returns the elapsed time since the recorder was constructed
func (r *Recorder) Uptime() time.Duration {
	return time.Since(r.bootTime)
}

func (r *Recorder) readCounter() uint8 {
	data, err := os.ReadFile(r.counterPath)
	if err != nil || len(data) == 0 {
		return 0
	}
	return data[0]
}

func (r *Recorder) writeCounter(v uint8) error {
	if err := os.WriteFile(r.counterPath, []byte{v}, 0644); err != nil {
		return fmt.Errorf("failed to persist crash counter: %w", err)
	}
	return nil
}

// FreeMemory returns the available-memory snapshot used in log entries
func FreeMemory() uint64 {
	return freeMemory()
}

func freeMemory() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vm.Available
}

func stackTrace() (trace string) {
	defer func() {
		if recover() != nil {
			trace = ""
		}
	}()
	return string(debug.Stack())
}
