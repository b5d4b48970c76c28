package qa

import (
	"bytes"
	"errors"
	"sort"

	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"
)

const (
	generatedKey = "generated"
	runIDKey     = "run_id"
)

var errMissingClosingDelimiter = errors.New("yaml frontmatter start delimiter found but closing delimiter is missing")

// fingerprintOf hashes the frontmatter fields and body. Volatile keys are
// excluded so re-rendering identical QA content yields the same value.
func fingerprintOf(fields map[string]any, body []byte) (string, error) {
	hashed := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case mdfp.FingerprintField, generatedKey, runIDKey:
			continue
		}
		hashed[k] = v
	}
	fm, err := serializeFrontmatter(hashed)
	if err != nil {
		return "", err
	}
	return mdfp.CalculateFingerprintFromParts(string(bytes.TrimSuffix(fm, []byte("\n"))), string(body)), nil
}

// serializeFrontmatter renders fields with sorted keys for stable output.
func serializeFrontmatter(fields map[string]any) ([]byte, error) {
	if len(fields) == 0 {
		return []byte{}, nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		value := &yaml.Node{}
		if err := value.Encode(fields[k]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, value)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func joinFrontmatter(fm, body []byte) []byte {
	out := make([]byte, 0, len(fm)+len(body)+8)
	out = append(out, "---\n"...)
	out = append(out, fm...)
	out = append(out, "---\n"...)
	return append(out, body...)
}

// splitFrontmatter separates a document into frontmatter fields and body.
func splitFrontmatter(content []byte) (map[string]any, []byte, error) {
	open := []byte("---\n")
	if !bytes.HasPrefix(content, open) {
		return map[string]any{}, content, nil
	}
	rest := content[len(open):]
	idx := bytes.Index(rest, []byte("\n---\n"))
	if idx < 0 {
		return nil, nil, errMissingClosingDelimiter
	}
	fields := map[string]any{}
	if err := yaml.Unmarshal(rest[:idx+1], &fields); err != nil {
		return nil, nil, err
	}
	return fields, rest[idx+len("\n---\n"):], nil
}
