package log

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcribeFile *os.File
	logMu          sync.Mutex
	logReady       bool
	pid            int
	dir            string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absFromWd(flagPath)
	}

	// Priority 2: MURMUR_LOG_PATH environment variable
	if envPath := os.Getenv("MURMUR_LOG_PATH"); envPath != "" {
		return absFromWd(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absFromWd(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	transcribePath := filepath.Join(dir, "transcribe_log.txt")
	transcribeFile, err = os.OpenFile(transcribePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcribeFile != nil {
		transcribeFile.Close()
		transcribeFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msgf(format, args...)
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msgf(format, args...)
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msgf(format, args...)
	}
}

func SessionStart(provider, model string, credential bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("provider", provider).
		Str("model", model).
		Bool("credential", credential).
		Msg("session_start")
}

func SessionEnd(groups int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Int("groups", groups).
		Msg("session_end")
}

// ConnectionState records a transition of the streaming connection.
func ConnectionState(from, to string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("from", from).
		Str("to", to).
		Msg("connection_state")
}

// ServiceEvent logs a non-transcript payload from the recognition service.
// Payloads that are valid JSON are embedded raw.
func ServiceEvent(kind, payload string) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if kind == "warning" {
		ev = diagLog.Warn()
	}
	if json.Valid([]byte(payload)) {
		ev = ev.RawJSON("payload", []byte(payload))
	} else {
		ev = ev.Str("payload", payload)
	}
	ev.Str("kind", kind).Msg("service_event")
}

// Fragment appends an applied fragment to transcribe_log.txt.
func Fragment(groupID, utteranceID, text string) {
	if !logReady {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcribeFile == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, short(groupID), short(utteranceID), text)
	transcribeFile.WriteString(line)
}

func CaptureStats(chunks, forwarded, dropped uint64, seconds float64) {
	if !logReady {
		return
	}
	diagLog.Info().
		Uint64("chunks", chunks).
		Uint64("forwarded", forwarded).
		Uint64("dropped", dropped).
		Float64("armed_s", seconds).
		Msg("capture_stats")
}

func Persist(groups, bytes int, err error) {
	if !logReady {
		return
	}
	if err != nil {
		diagLog.Error().
			Int("groups", groups).
			Err(err).
			Msg("persist_failed")
		return
	}
	diagLog.Info().
		Int("groups", groups).
		Int("bytes", bytes).
		Msg("persist")
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
