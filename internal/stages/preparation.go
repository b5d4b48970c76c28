package stages

import (
	"context"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/config"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// precomputedImages may be supplied with the raw data; preparation links them
// so parcellation can skip FreeSurfer.
var precomputedImages = []string{"aparc_aseg", "anat_freesurfer", "brodmann", "norm", "lh_ribbon", "rh_ribbon", "wmparc", "mask", "tt5"}

// PreparationStage links the raw subject inputs under canonical names and
// extracts the mean b0 volume.
type PreparationStage struct {
	task.Base
	dwiTag  string
	anatTag string
}

// NewPreparation builds the preparation stage.
func NewPreparation(cfg *config.Config) (task.Task, error) {
	s := cfg.Section(string(Preparation))
	return &PreparationStage{
		Base: task.NewBase(task.Metadata{
			Name:        Preparation,
			Order:       order(Preparation),
			Description: "link raw inputs and extract b0",
		}),
		dwiTag:  s.StringOr("dwi", "dwi"),
		anatTag: s.StringOr("anat", "anat"),
	}, nil
}

type rawInputs struct {
	dwi, anat, bval, bvec string
}

func (p *PreparationStage) raw(env *task.Env) rawInputs {
	return rawInputs{
		dwi:  env.Find(env.SubjectDir, artifact.Q(p.dwiTag)),
		anat: env.Find(env.SubjectDir, artifact.Q(p.anatTag)),
		bval: env.Find(env.SubjectDir, artifact.Q(p.dwiTag).WithExt(".bval")),
		bvec: env.Find(env.SubjectDir, artifact.Q(p.dwiTag).WithExt(".bvec")),
	}
}

func (p *PreparationStage) MeetRequirement(env *task.Env) *artifact.Set {
	in := p.raw(env)
	return artifact.NewSet().
		Add(in.dwi, "diffusion weighted image").
		Add(in.anat, "high resolution").
		Add(in.bval, "gradient b-values").
		Add(in.bvec, "gradient b-vectors")
}

func (p *PreparationStage) IsDirty(env *task.Env) *artifact.Set {
	return artifact.NewSet().
		Add(env.Own("dwi"), "diffusion weighted image").
		Add(env.Own("anat"), "high resolution").
		Add(env.Find(env.WorkingDir, artifact.Q("dwi").WithExt(".bval")), "gradient b-values").
		Add(env.Find(env.WorkingDir, artifact.Q("dwi").WithExt(".bvec")), "gradient b-vectors").
		Add(env.Own("b0"), "b0")
}

func (p *PreparationStage) Implement(ctx context.Context, env *task.Env) error {
	in := p.raw(env)
	links := []struct{ source, tag string }{
		{in.dwi, "dwi"}, {in.anat, "anat"}, {in.bval, "dwi"}, {in.bvec, "dwi"},
	}
	for _, l := range links {
		_, ext := artifact.SplitExt(l.source)
		if _, err := env.SymlinkAs(l.source, l.tag+ext); err != nil {
			return err
		}
	}
	for _, tag := range precomputedImages {
		if found := env.Find(env.SubjectDir, artifact.Q(tag)); found != "" {
			env.Logger.Info("Found precomputed image", "image", tag)
			if _, err := env.Symlink(found); err != nil {
				return err
			}
		}
	}

	dwi := env.Own("dwi")
	bval := env.Find(env.WorkingDir, artifact.Q("dwi").WithExt(".bval"))
	bvec := env.Find(env.WorkingDir, artifact.Q("dwi").WithExt(".bvec"))
	b0s := artifact.Compose(dwi, "b0s", ".mif", env.WorkingDir)
	b0 := artifact.Compose("b0.nii.gz", "", "", env.WorkingDir)

	if err := env.Launch(ctx, command.New("dwiextract", dwi, b0s, "-bzero", "-fslgrad", bvec, bval,
		"-nthreads", threads(env), "-quiet").Producing(b0s)); err != nil {
		return err
	}
	return env.Launch(ctx, command.New("mrmath", b0s, "mean", b0, "-axis", "3", "-quiet").Producing(b0))
}
