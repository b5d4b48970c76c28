// Package command runs external tools on behalf of pipeline tasks.
//
// A Runner executes one Invocation synchronously, keeps the tail of its
// output, appends a transcript to the task log and maps a non-zero exit status
// to a *ToolFailure. The runner has no knowledge of artifacts.
package command
