package artifact

import (
	"path/filepath"
	"sort"
	"strings"
)

const tokenSeparator = "_"

// ImageExtensions lists the extensions searched when a query names none, in
// order of preference.
var ImageExtensions = []string{".nii.gz", ".nii", ".mif", ".mgz"}

// multiExtensions are compound extensions that filepath.Ext would split.
var multiExtensions = []string{".nii.gz", ".tar.gz"}

// Artifact is the structured identity of one file.
type Artifact struct {
	Dir       string
	Base      string
	Modifiers []string
	Ext       string
}

// Parse splits a path into an Artifact. The first stem token becomes the base.
func Parse(path string) Artifact {
	dir, name := filepath.Split(path)
	stem, ext := SplitExt(name)
	tokens := Tokens(stem)
	a := Artifact{Ext: ext}
	if dir != "" {
		a.Dir = filepath.Clean(dir)
	}
	if len(tokens) > 0 {
		a.Base = tokens[0]
		a.Modifiers = tokens[1:]
	}
	return a
}

// Name returns the file name encoded by the artifact.
func (a Artifact) Name() string {
	parts := append([]string{a.Base}, a.Modifiers...)
	return strings.Join(nonEmpty(parts), tokenSeparator) + a.Ext
}

// Path returns the full path of the artifact.
func (a Artifact) Path() string {
	if a.Dir == "" {
		return a.Name()
	}
	return filepath.Join(a.Dir, a.Name())
}

// Tags returns the sorted multiset of tokens encoded in the name, base included.
func (a Artifact) Tags() []string {
	tags := Tokens(a.Base)
	for _, m := range a.Modifiers {
		tags = append(tags, Tokens(m)...)
	}
	sort.Strings(tags)
	return tags
}

// With returns a copy carrying one more modifier.
func (a Artifact) With(modifier string) Artifact {
	mods := make([]string, 0, len(a.Modifiers)+1)
	mods = append(mods, a.Modifiers...)
	if modifier != "" {
		mods = append(mods, modifier)
	}
	a.Modifiers = mods
	return a
}

// Compose derives an output path from source by appending modifier before the
// extension. The result lives in dir, never in the source's directory. An empty
// ext keeps the source extension; an empty modifier only swaps the extension.
func Compose(source, modifier, ext, dir string) string {
	_, name := filepath.Split(source)
	stem, srcExt := SplitExt(name)
	if ext == "" {
		ext = srcExt
	} else if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if modifier != "" {
		stem += tokenSeparator + modifier
	}
	return filepath.Join(dir, stem+ext)
}

// SplitExt separates a file name into stem and extension, keeping compound
// extensions such as .nii.gz whole.
func SplitExt(name string) (stem, ext string) {
	lower := strings.ToLower(name)
	for _, me := range multiExtensions {
		if strings.HasSuffix(lower, me) && len(name) > len(me) {
			return name[:len(name)-len(me)], name[len(name)-len(me):]
		}
	}
	ext = filepath.Ext(name)
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// Tokens splits a stem or tag into its underscore separated tokens.
func Tokens(s string) []string {
	return nonEmpty(strings.Split(s, tokenSeparator))
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
