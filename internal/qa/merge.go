package qa

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/pipeline"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

const sectionsKey = "sections"

// sectionRecord is the frontmatter form of a Section. Image paths are stored
// relative to the report directory.
type sectionRecord struct {
	Task        string        `yaml:"task"`
	Title       string        `yaml:"title"`
	Information string        `yaml:"information,omitempty"`
	Error       string        `yaml:"error,omitempty"`
	Images      []imageRecord `yaml:"images,omitempty"`
}

type imageRecord struct {
	Description string `yaml:"description"`
	Path        string `yaml:"path"`
}

func toRecords(reportDir string, sections []Section) []sectionRecord {
	recs := make([]sectionRecord, 0, len(sections))
	for _, s := range sections {
		rec := sectionRecord{Task: string(s.Task), Title: s.Title, Information: s.Information, Error: s.Error}
		for _, img := range s.Images {
			rec.Images = append(rec.Images, imageRecord{Description: img.Description, Path: relative(reportDir, img.Path)})
		}
		recs = append(recs, rec)
	}
	return recs
}

// sectionsFromFields restores the sections stored in a report's frontmatter.
// Reports without them, or with a shape that no longer decodes, yield nil.
func sectionsFromFields(reportDir string, fields map[string]any) []Section {
	raw, ok := fields[sectionsKey]
	if !ok {
		return nil
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil
	}
	var recs []sectionRecord
	if err := yaml.Unmarshal(data, &recs); err != nil {
		return nil
	}
	sections := make([]Section, 0, len(recs))
	for _, rec := range recs {
		s := Section{Task: task.Name(rec.Task), Title: rec.Title, Information: rec.Information, Error: rec.Error}
		for _, img := range rec.Images {
			path := filepath.FromSlash(img.Path)
			if !filepath.IsAbs(path) {
				path = filepath.Join(reportDir, path)
			}
			s.Images = append(s.Images, artifact.Entry{Description: img.Description, Path: path})
		}
		sections = append(sections, s)
	}
	return sections
}

// Merge combines the sections of an earlier report with the sections
// collected from r. A task that ran again (DONE or FAILED) owns its section
// outright, so a rerun without QA output removes it. Satisfied and skipped
// tasks keep their earlier section, minus images that are gone from disk.
// The result follows the task order of r; sections of tasks r does not know
// come last in their earlier order.
func Merge(previous, current []Section, r *pipeline.Report) []Section {
	byTask := make(map[task.Name]Section, len(previous)+len(current))
	for _, s := range previous {
		s.Images = onDisk(s.Images)
		if s.empty() {
			continue
		}
		byTask[s.Task] = s
	}
	for _, out := range r.Outcomes {
		if out.State == pipeline.StateDone || out.State == pipeline.StateFailed {
			delete(byTask, out.Name)
		}
	}
	for _, s := range current {
		byTask[s.Task] = s
	}

	merged := make([]Section, 0, len(byTask))
	take := func(name task.Name) {
		if s, ok := byTask[name]; ok {
			merged = append(merged, s)
			delete(byTask, name)
		}
	}
	for _, out := range r.Outcomes {
		take(out.Name)
	}
	for _, s := range previous {
		take(s.Task)
	}
	return merged
}

func (s Section) empty() bool {
	return len(s.Images) == 0 && s.Information == "" && s.Error == ""
}

func onDisk(images []artifact.Entry) []artifact.Entry {
	var kept []artifact.Entry
	for _, img := range images {
		if _, err := os.Stat(img.Path); err == nil {
			kept = append(kept, img)
		}
	}
	return kept
}
