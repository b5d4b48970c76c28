package errors

import "maps"

// ErrorBuilder assembles a ClassifiedError. Builders start with severity
// error and retry strategy never.
type ErrorBuilder struct {
	err ClassifiedError
}

// NewError starts a builder for category with a human-readable message.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{err: ClassifiedError{
		category: category,
		severity: SeverityError,
		retry:    RetryNever,
		message:  message,
	}}
}

// WrapError starts a builder whose error wraps cause.
func WrapError(cause error, category ErrorCategory, message string) *ErrorBuilder {
	return NewError(category, message).WithCause(cause)
}

func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.err.cause = cause
	return b
}

// WithContext attaches a structured field. Later values replace earlier ones.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.err.context = b.err.context.Set(key, value)
	return b
}

// ForSubject, ForTask and ForRun attach the identifiers shared by every
// pipeline log line.
func (b *ErrorBuilder) ForSubject(subject string) *ErrorBuilder {
	return b.WithContext("subject", subject)
}

func (b *ErrorBuilder) ForTask(name string) *ErrorBuilder {
	return b.WithContext("task", name)
}

func (b *ErrorBuilder) ForRun(runID string) *ErrorBuilder {
	return b.WithContext("run_id", runID)
}

func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	b.err.severity = SeverityFatal
	return b
}

func (b *ErrorBuilder) Warning() *ErrorBuilder {
	b.err.severity = SeverityWarning
	return b
}

// Retryable marks the error as worth retrying with backoff.
func (b *ErrorBuilder) Retryable() *ErrorBuilder {
	b.err.retry = RetryBackoff
	return b
}

// UserAction marks the error as fixable only by the user, e.g. by installing
// a missing tool.
func (b *ErrorBuilder) UserAction() *ErrorBuilder {
	b.err.retry = RetryUserAction
	return b
}

// Build returns the error. The builder can keep being used; later changes do
// not leak into errors already built.
func (b *ErrorBuilder) Build() *ClassifiedError {
	out := b.err
	out.context = maps.Clone(b.err.context)
	return &out
}

// ConfigError reports a broken or incomplete neuroflow.yaml.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal().UserAction()
}

// ValidationError reports invalid arguments or an invalid task graph.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}

// ToolError reports a neuroimaging tool that could not run or exited non-zero.
func ToolError(message string) *ErrorBuilder {
	return NewError(CategoryTool, message)
}

func PipelineError(message string) *ErrorBuilder {
	return NewError(CategoryPipeline, message)
}

// ResourcesError reports a failure fetching the resource bundle.
func ResourcesError(message string) *ErrorBuilder {
	return NewError(CategoryResources, message).Retryable()
}

func InternalError(message string) *ErrorBuilder {
	return NewError(CategoryInternal, message).Fatal()
}
