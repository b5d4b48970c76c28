package errors

import "log/slog"

// ErrorCategory names the part of neuroflow an error came from. The CLI maps
// each category to one exit status.
type ErrorCategory string

const (
	// Problems the user fixes by editing neuroflow.yaml or the command line.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"

	// Problems while running a subject.
	CategoryTool       ErrorCategory = "tool"
	CategoryPipeline   ErrorCategory = "pipeline"
	CategoryFileSystem ErrorCategory = "filesystem"

	// Collaborators outside the subject tree.
	CategoryResources ErrorCategory = "resources"
	CategoryEvents    ErrorCategory = "events"
	CategoryStore     ErrorCategory = "store"

	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

var exitStatus = map[ErrorCategory]int{
	CategoryValidation: 2,
	CategoryConfig:     7,
	CategoryResources:  8,
	CategoryEvents:     8,
	CategoryInternal:   10,
	CategoryTool:       11,
	CategoryPipeline:   11,
	CategoryFileSystem: 11,
	CategoryRuntime:    12,
	CategoryStore:      12,
}

// ExitCode is the process exit status used for errors of this category.
// Categories without a dedicated status exit with 1.
func (c ErrorCategory) ExitCode() int {
	if code, ok := exitStatus[c]; ok {
		return code
	}
	return 1
}

// ErrorSeverity tells callers whether to stop, fail the current task or carry on.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
	SeverityInfo    ErrorSeverity = "info"
)

// Level returns the slog level an error of this severity is logged at.
func (s ErrorSeverity) Level() slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// RetryStrategy says whether repeating the failed operation can help.
type RetryStrategy string

const (
	RetryNever      RetryStrategy = "never"
	RetryBackoff    RetryStrategy = "backoff"
	RetryUserAction RetryStrategy = "user"
)

// ErrorContext holds the structured fields attached to an error.
type ErrorContext map[string]any

// Set stores value under key, allocating the map when needed.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = ErrorContext{}
	}
	c[key] = value
	return c
}

// GetString returns the value under key when it is a string.
func (c ErrorContext) GetString(key string) (string, bool) {
	s, ok := c[key].(string)
	return s, ok
}
