package task

import "fmt"

// Metadata describes a task independently of its behaviour.
type Metadata struct {
	Name           Name
	Order          int // position in the declared pipeline, used for directory naming
	Description    string
	Dependencies   []Dependency
	KeepWorkingDir bool // disables cleanup before Implement
}

// Base provides the metadata half of Task for embedding in concrete stages.
type Base struct {
	meta Metadata
}

// NewBase creates a base from metadata.
func NewBase(meta Metadata) Base {
	return Base{meta: meta}
}

func (b Base) Name() Name                 { return b.meta.Name }
func (b Base) Order() int                 { return b.meta.Order }
func (b Base) Description() string        { return b.meta.Description }
func (b Base) Dependencies() []Dependency { return append([]Dependency(nil), b.meta.Dependencies...) }

// CleanupBeforeImplement reports whether the working directory is emptied before Implement.
func (b Base) CleanupBeforeImplement() bool { return !b.meta.KeepWorkingDir }

// WorkingDirName returns the directory name of a task inside a subject directory.
func WorkingDirName(t interface {
	Name() Name
	Order() int
}) string {
	return fmt.Sprintf("%02d-%s", t.Order(), t.Name())
}
