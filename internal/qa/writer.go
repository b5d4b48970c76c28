package qa

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/inful/mdfp"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
	"git.home.luguber.info/inful/neuroflow/internal/pipeline"
)

const (
	markdownName = "index.md"
	htmlName     = "index.html"
)

// Result describes what Write did.
type Result struct {
	Dir           string
	Written       bool // false when the fingerprint was unchanged
	Fingerprint   string
	MissingImages []string
}

// Reporter writes the QA report of each run below the subject directory. It
// is a pipeline.Observer acting on run completion.
type Reporter struct {
	pipeline.NoopObserver

	SubjectsDir string
	ReportDir   string // relative to the subject directory
	Logger      *slog.Logger
	Now         func() time.Time
}

// NewReporter creates a reporter writing to <subjectsDir>/<subject>/<reportDir>.
func NewReporter(subjectsDir, reportDir string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{SubjectsDir: subjectsDir, ReportDir: reportDir, Logger: logger, Now: time.Now}
}

// Dir returns the report directory of subject.
func (r *Reporter) Dir(subject string) string {
	return filepath.Join(r.SubjectsDir, subject, r.ReportDir)
}

// OnRunComplete merges the run's QA output into the existing report and
// writes the result. Dry runs and runs that leave no section at all keep the
// previous report in place.
func (r *Reporter) OnRunComplete(report *pipeline.Report) {
	if report.DryRun {
		return
	}
	_, previous := r.readPrevious(report.Subject)
	sections := Merge(previous, Collect(report), report)
	if len(sections) == 0 {
		r.Logger.Debug("No QA output in run", logfields.Subject(report.Subject))
		return
	}
	res, err := r.Write(report.Subject, report.RunID, sections)
	if err != nil {
		r.Logger.Error("Failed to write QA report", logfields.Subject(report.Subject), logfields.Error(err))
		return
	}
	if !res.Written {
		r.Logger.Info("QA report unchanged", logfields.Dir(res.Dir))
		return
	}
	r.Logger.Info("QA report written", logfields.Dir(res.Dir), slog.String("fingerprint", res.Fingerprint))
}

// Write renders sections and stores index.md and index.html. When the existing
// Markdown carries the same fingerprint nothing is rewritten.
func (r *Reporter) Write(subject, runID string, sections []Section) (Result, error) {
	dir := r.Dir(subject)
	res := Result{Dir: dir}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	doc, err := Render(subject, runID, dir, sections, now())
	if err != nil {
		return res, err
	}
	res.Fingerprint = doc.Fingerprint

	if previous, _ := r.readPrevious(subject); previous == doc.Fingerprint {
		return res, nil
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return res, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create QA report directory").
			WithContext("dir", dir).Build()
	}
	content, err := doc.Bytes()
	if err != nil {
		return res, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to serialize QA frontmatter").Build()
	}
	page, err := ToHTML("QA "+subject, doc.Body)
	if err != nil {
		return res, err
	}
	for name, data := range map[string][]byte{markdownName: content, htmlName: page} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return res, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write QA report").
				WithContext("path", path).Build()
		}
	}
	res.Written = true

	missing, err := ValidateHTML(page, dir)
	if err != nil {
		return res, err
	}
	res.MissingImages = missing
	if len(missing) > 0 {
		r.Logger.Warn("QA report references missing images", logfields.Error(brokenImagesError(missing)))
	}
	return res, nil
}

// readPrevious returns the fingerprint and sections of the report currently on
// disk. A missing or unreadable report yields "" and nil.
func (r *Reporter) readPrevious(subject string) (string, []Section) {
	dir := r.Dir(subject)
	path := filepath.Join(dir, markdownName)
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.Logger.Warn("Failed to read previous QA report", logfields.Path(path), logfields.Error(err))
		}
		return "", nil
	}
	fields, _, err := splitFrontmatter(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")))
	if err != nil {
		r.Logger.Warn("Previous QA report has broken frontmatter", logfields.Path(path), logfields.Error(err))
		return "", nil
	}
	fp, _ := fields[mdfp.FingerprintField].(string)
	return fp, sectionsFromFields(dir, fields)
}
