package artifact

import "os"

// Entry pairs a human readable description with an artifact path. An empty
// path means the artifact could not be resolved.
type Entry struct {
	Description string
	Path        string
}

// Set is an ordered collection of described artifacts used for requirements,
// expected outputs and QA images.
type Set struct {
	entries     []Entry
	information string
}

// NewSet creates a set from entries.
func NewSet(entries ...Entry) *Set {
	return &Set{entries: append([]Entry(nil), entries...)}
}

// Add appends an entry and returns the set for chaining.
func (s *Set) Add(path, description string) *Set {
	s.entries = append(s.entries, Entry{Description: description, Path: path})
	return s
}

// Entries returns a copy of all entries in insertion order.
func (s *Set) Entries() []Entry {
	if s == nil {
		return nil
	}
	return append([]Entry(nil), s.entries...)
}

// Len returns the number of entries.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Missing returns the descriptions of entries whose path is empty or does not exist.
func (s *Set) Missing() []string {
	var missing []string
	for _, e := range s.Entries() {
		if !exists(e.Path) {
			missing = append(missing, e.Description)
		}
	}
	return missing
}

// Present returns entries whose artifact exists.
func (s *Set) Present() []Entry {
	var present []Entry
	for _, e := range s.Entries() {
		if exists(e.Path) {
			present = append(present, e)
		}
	}
	return present
}

// Complete reports whether every entry exists.
func (s *Set) Complete() bool { return len(s.Missing()) == 0 }

// SetInformation attaches free text for the QA report.
func (s *Set) SetInformation(text string) *Set {
	s.information = text
	return s
}

// Information returns the attached free text.
func (s *Set) Information() string {
	if s == nil {
		return ""
	}
	return s.information
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
