package stages

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/config"
	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

type freesurferImage struct {
	tag         string
	mgz         string // file under <id>/mri
	description string
}

var freesurferImages = []freesurferImage{
	{"anat_freesurfer", "T1.mgz", "anatomical"},
	{"aparc_aseg", "aparc+aseg.mgz", "parcellation"},
	{"brodmann", "brodmann.mgz", "brodmann"},
	{"norm", "norm.mgz", "normalized brain"},
	{"lh_ribbon", "lh.ribbon.mgz", "left hemisphere ribbon"},
	{"rh_ribbon", "rh.ribbon.mgz", "right hemisphere ribbon"},
	{"wmparc", "wmparc.mgz", "white matter parcellation"},
	{"mask", "brainmask.mgz", "brain mask"},
}

const tt5Tag = "tt5"

// ParcellationStage runs the FreeSurfer reconstruction, derives a Brodmann
// area image and converts the volumes of interest to NIfTI. Images supplied
// with the raw data are linked instead of recomputed.
type ParcellationStage struct {
	task.Base
	id             string
	directive      string
	labelsDir      string
	annotation     string
	freesurferHome string
	cleanup        bool
}

// NewParcellation builds the parcellation stage. tasks.parcellation.id is required.
func NewParcellation(cfg *config.Config) (task.Task, error) {
	s := cfg.Section(string(Parcellation))
	id, err := s.String("id")
	if err != nil {
		return nil, err
	}
	return &ParcellationStage{
		Base: task.NewBase(task.Metadata{
			Name:         Parcellation,
			Order:        order(Parcellation),
			Description:  "FreeSurfer parcellation",
			Dependencies: task.Requires(Preparation),
		}),
		id:             id,
		directive:      s.StringOr("directive", "all"),
		labelsDir:      s.StringOr("labels_dir", "labels"),
		annotation:     s.StringOr("annotation", "brodmann"),
		freesurferHome: s.StringOr("freesurfer_home", os.Getenv("FREESURFER_HOME")),
		cleanup:        s.BoolOr("cleanup", false),
	}, nil
}

func (p *ParcellationStage) MeetRequirement(env *task.Env) *artifact.Set {
	return artifact.NewSet().Add(env.FindIn(Preparation, "anat"), "high resolution")
}

func (p *ParcellationStage) IsDirty(env *task.Env) *artifact.Set {
	set := artifact.NewSet()
	for _, img := range freesurferImages {
		set.Add(env.Own(img.tag), img.description)
	}
	return set.Add(env.Own(tt5Tag), "5tt")
}

func (p *ParcellationStage) Implement(ctx context.Context, env *task.Env) error {
	missing := map[string]bool{}
	for _, tag := range append(tagsOf(freesurferImages), tt5Tag) {
		if found := env.FindIn(Preparation, tag); found != "" {
			env.Logger.Info("Found precomputed image, linking", logfields.Artifact(found))
			if _, err := env.Symlink(found); err != nil {
				return err
			}
			continue
		}
		missing[tag] = true
	}
	if len(missing) == 0 {
		return nil
	}

	needRecon := false
	for _, img := range freesurferImages {
		needRecon = needRecon || missing[img.tag]
	}
	if needRecon {
		if err := p.reconAll(ctx, env, env.FindIn(Preparation, "anat")); err != nil {
			return err
		}
		if missing["brodmann"] {
			if err := p.createBrodmannArea(ctx, env); err != nil {
				return err
			}
		}
		for _, img := range freesurferImages {
			if !missing[img.tag] {
				continue
			}
			source := filepath.Join(p.subjectDir(env), "mri", img.mgz)
			if err := p.mgz2nii(ctx, env, source, p.output(env, img.tag)); err != nil {
				return err
			}
		}
		if p.cleanup {
			p.cleanupReconAll(env)
		}
	}
	if missing[tt5Tag] {
		aparc := env.Own("aparc_aseg")
		if aparc == "" {
			aparc = p.output(env, "aparc_aseg")
		}
		target := p.output(env, tt5Tag)
		return env.Launch(ctx, command.New("5ttgen", "freesurfer", aparc, target,
			"-nthreads", threads(env), "-quiet").Producing(target))
	}
	return nil
}

func tagsOf(images []freesurferImage) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.tag
	}
	return out
}

func (p *ParcellationStage) output(env *task.Env, tag string) string {
	return filepath.Join(env.WorkingDir, tag+".nii")
}

func (p *ParcellationStage) subjectDir(env *task.Env) string {
	return filepath.Join(env.WorkingDir, p.id)
}

// freesurfer prepares an invocation with SUBJECTS_DIR pointing at the working
// directory. The variable is only set on the child process.
func (p *ParcellationStage) freesurfer(env *task.Env, program string, args ...string) command.Invocation {
	return command.New(program, args...).WithEnv("SUBJECTS_DIR", env.WorkingDir)
}

func (p *ParcellationStage) reconAll(ctx context.Context, env *task.Env, anat string) error {
	env.Logger.Info("Starting parcellation with FreeSurfer",
		logfields.Path(filepath.Join(p.subjectDir(env), "scripts", "recon-all.log")))
	return env.Launch(ctx, p.freesurfer(env, "recon-all",
		"-"+p.directive, "-i", anat, "-subjid", p.id, "-sd", env.WorkingDir, "-openmp", threads(env)).
		Echoing(command.EchoStderr))
}

func (p *ParcellationStage) createBrodmannArea(ctx context.Context, env *task.Env) error {
	labelsDir := p.labelsDir
	if !filepath.IsAbs(labelsDir) {
		labelsDir = filepath.Join(env.ResourcesDir, labelsDir)
	}
	labels, err := filepath.Glob(filepath.Join(labelsDir, "*.label"))
	if err != nil || len(labels) == 0 {
		return ferrors.ResourcesError("no Brodmann labels found").
			WithContext("dir", labelsDir).
			WithContext("hint", "configure resources.dir or tasks.parcellation.labels_dir").Build()
	}
	sort.Strings(labels)

	annotLabels := map[string][]string{}
	for _, labelPath := range labels {
		label := filepath.Base(labelPath)
		hemisphere, _, _ := strings.Cut(label, ".")
		if hemisphere != "lh" && hemisphere != "rh" {
			continue
		}
		annotLabels[hemisphere] = append(annotLabels[hemisphere],
			"--l", filepath.Join(p.subjectDir(env), "label", label))
		if err := env.Launch(ctx, p.freesurfer(env, "mri_label2label",
			"--srcsubject", "fsaverage", "--srclabel", labelPath,
			"--trgsubject", p.id, "--trglabel", label,
			"--hemi", hemisphere, "--regmethod", "surface")); err != nil {
			return err
		}
	}

	ctab := filepath.Join(p.freesurferHome, "FreeSurferColorLUT.txt")
	for _, hemisphere := range []string{"rh", "lh"} {
		args := append([]string{"--s", p.id, "--h", hemisphere, "--ctab", ctab, "--a", p.annotation}, annotLabels[hemisphere]...)
		if err := env.Launch(ctx, p.freesurfer(env, "mris_label2annot", args...)); err != nil {
			return err
		}
	}
	return env.Launch(ctx, p.freesurfer(env, "mri_aparc2aseg",
		"--s", p.id, "--annot", p.annotation, "--o", filepath.Join(p.subjectDir(env), "mri", "brodmann.mgz")))
}

func (p *ParcellationStage) mgz2nii(ctx context.Context, env *task.Env, source, target string) error {
	env.Logger.Info("Converting FreeSurfer image", logfields.Artifact(source), logfields.Path(target))
	return env.Launch(ctx, command.New("mri_convert", "-it", "mgz", "-ot", "nii", source, target).Producing(target))
}

// cleanupReconAll removes the links recon-all leaves in the subjects directory.
func (p *ParcellationStage) cleanupReconAll(env *task.Env) {
	for _, name := range []string{"rh.EC_average", "lh.EC_average", "fsaverage", "segment.dat"} {
		path := filepath.Join(env.WorkingDir, name)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			env.Logger.Warn("Failed to remove recon-all link", logfields.Path(path), logfields.Error(err))
		}
	}
}
