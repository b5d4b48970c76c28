// Package errors classifies neuroflow failures.
//
// A ClassifiedError carries a category (which maps to the process exit
// status), a severity (which maps to a log level), a retry strategy that
// retry.Policy honours, and structured context fields:
//
//	err := errors.ToolError("recon-all exited non-zero").
//		WithCause(failure).
//		ForTask("parcellation").
//		Build()
package errors
