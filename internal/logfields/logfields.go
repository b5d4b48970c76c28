package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeySubject    = "subject"
	KeyTask       = "task"
	KeyState      = "state"
	KeyReason     = "reason"
	KeyCommand    = "command"
	KeyExitCode   = "exit_code"
	KeyArtifact   = "artifact"
	KeyDir        = "dir"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Subject(s string) slog.Attr      { return slog.String(KeySubject, s) }
func Task(name string) slog.Attr      { return slog.String(KeyTask, name) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Reason(r string) slog.Attr       { return slog.String(KeyReason, r) }
func Command(c string) slog.Attr      { return slog.String(KeyCommand, c) }
func ExitCode(code int) slog.Attr     { return slog.Int(KeyExitCode, code) }
func Artifact(path string) slog.Attr  { return slog.String(KeyArtifact, path) }
func Dir(d string) slog.Attr          { return slog.String(KeyDir, d) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Duration(d time.Duration) slog.Attr {
	return DurationMS(float64(d.Microseconds()) / 1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
