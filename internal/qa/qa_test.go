package qa

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/inful/mdfp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/pipeline"
)

func png(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))
	return path
}

func TestCollectSkipsTasksWithoutQA(t *testing.T) {
	dir := t.TempDir()
	mask := png(t, dir, "mask_resample.png")
	report := &pipeline.Report{Subject: "s01", Outcomes: []pipeline.Outcome{
		{Name: "preparation", State: pipeline.StateDone},
		{Name: "registration", State: pipeline.StateDone, QA: artifact.NewSet().
			Add(mask, "Brain mask on upsampled b0").
			Add(filepath.Join(dir, "absent.png"), "absent")},
		{Name: "tractquerier", State: pipeline.StateDone, QA: artifact.NewSet().SetInformation("custom queries")},
		{Name: "tractography", State: pipeline.StateDone, QAErr: errors.New("renderer crashed")},
	}}

	sections := Collect(report)
	require.Len(t, sections, 3)
	assert.Equal(t, "Registration", sections[0].Title)
	require.Len(t, sections[0].Images, 1)
	assert.Equal(t, mask, sections[0].Images[0].Path)
	assert.Equal(t, "custom queries", sections[1].Information)
	assert.Equal(t, "renderer crashed", sections[2].Error)
}

func TestRenderFingerprintIgnoresVolatileFields(t *testing.T) {
	sections := []Section{{Task: "registration", Title: "Registration",
		Images: []artifact.Entry{{Description: "mask", Path: "/s/s01/03-registration/mask.png"}}}}

	a, err := Render("s01", "run-1", "/s/s01/report", sections, time.Unix(0, 0))
	require.NoError(t, err)
	b, err := Render("s01", "run-2", "/s/s01/report", sections, time.Unix(3600, 0))
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Contains(t, string(a.Body), "![mask](../03-registration/mask.png)")

	sections[0].Information = "changed"
	c, err := Render("s01", "run-1", "/s/s01/report", sections, time.Unix(0, 0))
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint, c.Fingerprint)
}

func TestDocumentRoundTripsFrontmatter(t *testing.T) {
	doc, err := Render("s01", "run-1", "/tmp", nil, time.Unix(0, 0))
	require.NoError(t, err)
	content, err := doc.Bytes()
	require.NoError(t, err)

	fields, body, err := splitFrontmatter(content)
	require.NoError(t, err)
	assert.Equal(t, doc.Fingerprint, fields[mdfp.FingerprintField])
	assert.Equal(t, "s01", fields["subject"])
	assert.Equal(t, doc.Body, body)

	_, _, err = splitFrontmatter([]byte("---\ntitle: x\n"))
	assert.ErrorIs(t, err, errMissingClosingDelimiter)
}

func TestValidateHTMLReportsMissingImages(t *testing.T) {
	dir := t.TempDir()
	png(t, dir, "ok.png")
	page := []byte(`<html><body><img src="ok.png"><img src="gone.png"><img src="https://example.org/x.png"></body></html>`)

	missing, err := ValidateHTML(page, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"gone.png"}, missing)
}

func TestReporterWritesOnceForUnchangedContent(t *testing.T) {
	subjects := t.TempDir()
	image := png(t, filepath.Join(subjects, "s01", "03-registration"), "mask_resample.png")
	r := NewReporter(subjects, "report", nil)
	sections := []Section{{Task: "registration", Title: "Registration",
		Images: []artifact.Entry{{Description: "Brain mask", Path: image}}}}

	first, err := r.Write("s01", "run-1", sections)
	require.NoError(t, err)
	assert.True(t, first.Written)
	assert.Empty(t, first.MissingImages)

	page, err := os.ReadFile(filepath.Join(r.Dir("s01"), htmlName))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(page), `src="../03-registration/mask_resample.png"`))

	second, err := r.Write("s01", "run-2", sections)
	require.NoError(t, err)
	assert.False(t, second.Written)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
}

func TestReporterIgnoresDryRuns(t *testing.T) {
	subjects := t.TempDir()
	r := NewReporter(subjects, "report", nil)
	r.OnRunComplete(&pipeline.Report{Subject: "s01", DryRun: true, Outcomes: []pipeline.Outcome{
		{Name: "tractquerier", QA: artifact.NewSet().SetInformation("x")},
	}})
	_, err := os.Stat(r.Dir("s01"))
	assert.True(t, os.IsNotExist(err))
}

func TestReporterKeepsSectionsOfSatisfiedTasks(t *testing.T) {
	subjects := t.TempDir()
	mask := png(t, filepath.Join(subjects, "s01", "03-registration"), "mask_resample.png")
	r := NewReporter(subjects, "report", nil)

	r.OnRunComplete(&pipeline.Report{Subject: "s01", RunID: "run-1", Outcomes: []pipeline.Outcome{
		{Name: "registration", State: pipeline.StateDone, QA: artifact.NewSet().Add(mask, "Brain mask")},
		{Name: "tractquerier", State: pipeline.StateDone, QA: artifact.NewSet().SetInformation("first queries")},
	}})
	r.OnRunComplete(&pipeline.Report{Subject: "s01", RunID: "run-2", Outcomes: []pipeline.Outcome{
		{Name: "registration", State: pipeline.StateSatisfied},
		{Name: "tractquerier", State: pipeline.StateDone, QA: artifact.NewSet().SetInformation("second queries")},
	}})

	content, err := os.ReadFile(filepath.Join(r.Dir("s01"), markdownName))
	require.NoError(t, err)
	md := string(content)
	assert.Contains(t, md, "![Brain mask](../03-registration/mask_resample.png)")
	assert.Contains(t, md, "second queries")
	assert.NotContains(t, md, "first queries")
	assert.Less(t, strings.Index(md, "## Registration"), strings.Index(md, "## Tractquerier"))

	fields, _, err := splitFrontmatter(content)
	require.NoError(t, err)
	assert.Equal(t, []any{"registration", "tractquerier"}, fields["tasks"])

	page, err := os.ReadFile(filepath.Join(r.Dir("s01"), htmlName))
	require.NoError(t, err)
	assert.Contains(t, string(page), `src="../03-registration/mask_resample.png"`)
}

func TestMergeRerunReplacesSection(t *testing.T) {
	dir := t.TempDir()
	kept := png(t, dir, "kept.png")
	previous := []Section{
		{Task: "registration", Title: "Registration", Images: []artifact.Entry{
			{Description: "kept", Path: kept},
			{Description: "gone", Path: filepath.Join(dir, "gone.png")},
		}},
		{Task: "tractography", Title: "Tractography", Information: "old"},
		{Task: "atlasregistration", Title: "Atlasregistration", Information: "external"},
	}
	report := &pipeline.Report{Outcomes: []pipeline.Outcome{
		{Name: "registration", State: pipeline.StateSatisfied},
		{Name: "tractography", State: pipeline.StateDone},
		{Name: "tractquerier", State: pipeline.StateDone},
	}}
	current := []Section{{Task: "tractquerier", Title: "Tractquerier", Information: "new"}}

	merged := Merge(previous, current, report)
	require.Len(t, merged, 3)
	assert.Equal(t, "registration", string(merged[0].Task))
	assert.Equal(t, []artifact.Entry{{Description: "kept", Path: kept}}, merged[0].Images)
	assert.Equal(t, "tractquerier", string(merged[1].Task))
	assert.Equal(t, "atlasregistration", string(merged[2].Task))
}

func TestSectionsSurviveFrontmatter(t *testing.T) {
	reportDir := filepath.Join(t.TempDir(), "s01", "report")
	sections := []Section{{Task: "registration", Title: "Registration", Error: "renderer crashed",
		Images: []artifact.Entry{{Description: "mask", Path: filepath.Join(filepath.Dir(reportDir), "03-registration", "mask.png")}}}}

	doc, err := Render("s01", "run-1", reportDir, sections, time.Unix(0, 0))
	require.NoError(t, err)
	content, err := doc.Bytes()
	require.NoError(t, err)
	fields, _, err := splitFrontmatter(content)
	require.NoError(t, err)

	assert.Equal(t, sections, sectionsFromFields(reportDir, fields))
	assert.Nil(t, sectionsFromFields(reportDir, map[string]any{"title": "QA s01"}))
}
