// Package stages holds the concrete diffusion MRI stages and the registry that
// builds them from configuration.
//
// Every stage keeps its outputs in its own working directory and reads
// upstream artifacts through dependency handles. Configuration is read once at
// construction; a missing required key aborts the run before any task executes.
package stages
