package qa

import (
	"bytes"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/inful/mdfp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/pipeline"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// Section is the QA contribution of one task.
type Section struct {
	Task        task.Name
	Title       string
	Images      []artifact.Entry
	Information string
	Error       string
}

// Collect extracts the QA sections of a run in topological order. Tasks that
// supplied nothing are left out.
func Collect(r *pipeline.Report) []Section {
	title := cases.Title(language.English)
	var sections []Section
	for _, out := range r.Outcomes {
		if out.QA == nil && out.QAErr == nil {
			continue
		}
		s := Section{
			Task:        out.Name,
			Title:       title.String(string(out.Name)),
			Images:      out.QA.Present(),
			Information: out.QA.Information(),
		}
		if out.QAErr != nil {
			s.Error = out.QAErr.Error()
		}
		if s.empty() {
			continue
		}
		sections = append(sections, s)
	}
	return sections
}

// Document is a rendered report.
type Document struct {
	Fields      map[string]any
	Body        []byte
	Fingerprint string
}

// Bytes joins frontmatter and body.
func (d Document) Bytes() ([]byte, error) {
	fm, err := serializeFrontmatter(d.Fields)
	if err != nil {
		return nil, err
	}
	return joinFrontmatter(fm, d.Body), nil
}

// Render builds the Markdown report of subject. Image links are relative to
// reportDir. The fingerprint covers everything except the generation time.
func Render(subject, runID, reportDir string, sections []Section, now time.Time) (Document, error) {
	var body bytes.Buffer
	fmt.Fprintf(&body, "# Quality assurance: %s\n", subject)
	for _, s := range sections {
		fmt.Fprintf(&body, "\n## %s\n", s.Title)
		if s.Error != "" {
			fmt.Fprintf(&body, "\n> QA images could not be produced: %s\n", oneLine(s.Error))
		}
		if s.Information != "" {
			fmt.Fprintf(&body, "\n%s\n", strings.TrimSpace(s.Information))
		}
		for _, img := range s.Images {
			fmt.Fprintf(&body, "\n![%s](%s)\n", img.Description, relative(reportDir, img.Path))
		}
	}

	tasks := make([]string, 0, len(sections))
	for _, s := range sections {
		tasks = append(tasks, string(s.Task))
	}
	slices.Sort(tasks)
	fields := map[string]any{
		"title":   "QA " + subject,
		"subject": subject,
		"tasks":   tasks,
	}
	if len(sections) > 0 {
		fields[sectionsKey] = toRecords(reportDir, sections)
	}
	fingerprint, err := fingerprintOf(fields, body.Bytes())
	if err != nil {
		return Document{}, err
	}
	fields[mdfp.FingerprintField] = fingerprint
	fields[generatedKey] = now.UTC().Format(time.RFC3339)
	fields[runIDKey] = runID
	return Document{Fields: fields, Body: body.Bytes(), Fingerprint: fingerprint}, nil
}

func relative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
