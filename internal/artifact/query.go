package artifact

import (
	"slices"
	"sort"
	"strings"
)

// Query selects artifacts by base tag, modifiers and extension.
//
// An exact query matches a file whose stem starts with the base tokens and
// whose remaining tokens are exactly the modifier tokens, in any order. A
// Loose query only requires every modifier to appear as a contiguous token run
// in the remainder; extra tokens are allowed.
type Query struct {
	Base      string
	Modifiers []string
	Ext       string // empty means any of ImageExtensions
	Loose     bool
}

// Q builds an exact query for base and modifiers over image extensions.
func Q(base string, modifiers ...string) Query {
	return Query{Base: base, Modifiers: modifiers}
}

// WithExt returns a copy of the query restricted to ext.
func (q Query) WithExt(ext string) Query {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	q.Ext = ext
	return q
}

// Containing returns a loose copy of the query.
func (q Query) Containing() Query {
	q.Loose = true
	return q
}

// String renders the query for log output.
func (q Query) String() string {
	parts := append([]string{q.Base}, q.Modifiers...)
	s := strings.Join(parts, "+")
	if q.Ext != "" {
		s += q.Ext
	}
	if q.Loose {
		s += " (loose)"
	}
	return s
}

// Matches reports whether name satisfies the query. It returns the rank of the
// matched extension in ImageExtensions (0 for explicit extensions).
func (q Query) Matches(name string) (bool, int) {
	stem, rank, ok := q.stem(name)
	if !ok {
		return false, 0
	}
	tokens := Tokens(stem)
	base := Tokens(q.Base)
	if len(base) == 0 || len(tokens) < len(base) || !slices.Equal(tokens[:len(base)], base) {
		return false, 0
	}
	rest := tokens[len(base):]
	if q.Loose {
		return containsAll(rest, q.Modifiers), rank
	}
	return sameMultiset(rest, q.modifierTokens()), rank
}

func (q Query) stem(name string) (string, int, bool) {
	lower := strings.ToLower(name)
	if q.Ext != "" {
		ext := strings.ToLower(q.Ext)
		if !strings.HasSuffix(lower, ext) || len(name) == len(ext) {
			return "", 0, false
		}
		return name[:len(name)-len(ext)], 0, true
	}
	for rank, ext := range ImageExtensions {
		if strings.HasSuffix(lower, ext) && len(name) > len(ext) {
			return name[:len(name)-len(ext)], rank, true
		}
	}
	return "", 0, false
}

func (q Query) modifierTokens() []string {
	var out []string
	for _, m := range q.Modifiers {
		out = append(out, Tokens(m)...)
	}
	return out
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	sort.Strings(x)
	sort.Strings(y)
	return slices.Equal(x, y)
}

// containsAll reports whether every modifier occurs as a contiguous token run.
func containsAll(tokens, modifiers []string) bool {
	for _, m := range modifiers {
		mt := Tokens(m)
		if len(mt) == 0 {
			continue
		}
		found := false
		for i := 0; i+len(mt) <= len(tokens); i++ {
			if slices.Equal(tokens[i:i+len(mt)], mt) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
