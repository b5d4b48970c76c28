package stages

import (
	"context"
	"path/filepath"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/config"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

const (
	dwiToFreesurferMatrix = "dwiToFreesurfer_transformation.mat"
	freesurferToDWIMatrix = "freesurferToDWI_transformation.mat"
)

// RegistrationStage brings the FreeSurfer volumes into diffusion space, once
// by FSL resampling onto the upsampled b0 and once by an MRtrix linear
// transform that keeps the anatomical grid.
type RegistrationStage struct {
	task.Base
	intrasubject bool
}

// NewRegistration builds the registration stage. The intrasubject flag is read
// from the parcellation section, next to the FreeSurfer subject it describes.
func NewRegistration(cfg *config.Config) (task.Task, error) {
	intrasubject := false
	if s := cfg.Section(string(Parcellation)); s.Has("intrasubject") {
		v, err := s.Bool("intrasubject")
		if err != nil {
			return nil, err
		}
		intrasubject = v
	}
	return &RegistrationStage{
		Base: task.NewBase(task.Metadata{
			Name:         Registration,
			Order:        order(Registration),
			Description:  "register anatomy to diffusion space",
			Dependencies: task.Requires(Upsampling, Parcellation),
		}),
		intrasubject: intrasubject,
	}, nil
}

type registrationInputs struct {
	b0, anat, norm, aparcAseg, lhRibbon, rhRibbon, brodmann, tt5, mask, wmparc string
}

func (r *RegistrationStage) inputs(env *task.Env) registrationInputs {
	return registrationInputs{
		b0:        env.FindIn(Upsampling, "b0", "upsample"),
		anat:      env.FindIn(Parcellation, "anat", "freesurfer"),
		norm:      env.FindIn(Parcellation, "norm"),
		aparcAseg: env.FindIn(Parcellation, "aparc_aseg"),
		lhRibbon:  env.FindIn(Parcellation, "lh_ribbon"),
		rhRibbon:  env.FindIn(Parcellation, "rh_ribbon"),
		brodmann:  env.FindIn(Parcellation, "brodmann"),
		tt5:       env.FindIn(Parcellation, "tt5"),
		mask:      env.FindIn(Parcellation, "mask"),
		wmparc:    env.FindIn(Parcellation, "wmparc"),
	}
}

func (r *RegistrationStage) MeetRequirement(env *task.Env) *artifact.Set {
	in := r.inputs(env)
	return artifact.NewSet().
		Add(in.anat, "high resolution").
		Add(in.b0, "b0 upsampled").
		Add(in.norm, "normalized brain").
		Add(in.aparcAseg, "parcellation").
		Add(in.rhRibbon, "right hemisphere ribbon").
		Add(in.lhRibbon, "left hemisphere ribbon").
		Add(in.tt5, "5tt").
		Add(in.mask, "brain mask").
		Add(in.brodmann, "brodmann").
		Add(in.wmparc, "white matter parcellation")
}

func (r *RegistrationStage) IsDirty(env *task.Env) *artifact.Set {
	return artifact.NewSet().
		Add(env.Own("anat", "freesurfer", "resample"), "anatomical resampled").
		Add(env.Own("aparc_aseg", "resample"), "parcellation atlas resample").
		Add(env.Own("aparc_aseg", "register"), "parcellation atlas register").
		Add(env.Own("tt5", "register"), "5tt image register").
		Add(env.Own("mask", "register"), "brain mask register").
		Add(env.Own("tt5", "resample"), "5tt image resample").
		Add(env.Own("mask", "resample"), "brain mask resample").
		Add(env.Own("norm", "resample"), "brain resample").
		Add(env.Own("wmparc", "resample"), "white matter parcellation resample").
		Add(env.Own("brodmann", "resample"), "brodmann atlas resample").
		Add(env.Own("brodmann", "register", "left_hemisphere"), "brodmann register left hemisphere atlas").
		Add(env.Own("brodmann", "register", "right_hemisphere"), "brodmann register right hemisphere atlas")
}

func (r *RegistrationStage) Implement(ctx context.Context, env *task.Env) error {
	in := r.inputs(env)

	fsToDWI, err := r.freesurferToDWI(ctx, env, in.b0, in.norm)
	if err != nil {
		return err
	}
	if _, err := r.resample(ctx, env, in.anat, in.b0, fsToDWI, false); err != nil {
		return err
	}
	mrtrixMatrix := env.Compose(fsToDWI, "mrtrix", ".mat")
	if err := env.Launch(ctx, command.New("transformconvert", fsToDWI, in.anat, in.b0,
		"flirt_import", mrtrixMatrix, "-quiet").Producing(mrtrixMatrix)); err != nil {
		return err
	}

	registered := map[string]string{}
	for _, source := range []string{in.aparcAseg, in.brodmann, in.lhRibbon, in.rhRibbon, in.tt5, in.mask, in.norm} {
		target, err := r.register(ctx, env, source, mrtrixMatrix)
		if err != nil {
			return err
		}
		registered[source] = target
	}
	for _, source := range []string{in.aparcAseg, in.brodmann, in.lhRibbon, in.rhRibbon, in.tt5, in.mask, in.norm, in.wmparc} {
		if _, err := r.resample(ctx, env, source, in.b0, fsToDWI, true); err != nil {
			return err
		}
	}

	brodmann := registered[in.brodmann]
	if err := r.multiply(ctx, env, brodmann, registered[in.lhRibbon], env.Compose(brodmann, "left_hemisphere", "")); err != nil {
		return err
	}
	return r.multiply(ctx, env, brodmann, registered[in.rhRibbon], env.Compose(brodmann, "right_hemisphere", ""))
}

// freesurferToDWI estimates the b0 to FreeSurfer transform and returns its inverse.
func (r *RegistrationStage) freesurferToDWI(ctx context.Context, env *task.Env, b0, norm string) (string, error) {
	forward := filepath.Join(env.WorkingDir, dwiToFreesurferMatrix)
	inverse := filepath.Join(env.WorkingDir, freesurferToDWIMatrix)
	args := []string{"-in", b0, "-ref", norm, "-omat", forward}
	if r.intrasubject {
		args = append(args, "-usesqform", "-dof", "6")
	}
	if err := env.Launch(ctx, fsl("flirt", args...).Producing(forward)); err != nil {
		return "", err
	}
	if err := env.Launch(ctx, fsl("convert_xfm", "-omat", inverse, "-inverse", forward).Producing(inverse)); err != nil {
		return "", err
	}
	return inverse, nil
}

func (r *RegistrationStage) resample(ctx context.Context, env *task.Env, source, reference, matrix string, nearest bool) (string, error) {
	target := env.Compose(source, "resample", ".nii.gz")
	args := []string{"-in", source, "-ref", reference, "-applyxfm", "-init", matrix, "-out", target}
	if nearest {
		args = append(args, "-interp", "nearestneighbour")
	}
	return target, env.Launch(ctx, fsl("flirt", args...).Producing(target))
}

func (r *RegistrationStage) register(ctx context.Context, env *task.Env, source, matrix string) (string, error) {
	target := env.Compose(source, "register", "")
	return target, env.Launch(ctx, command.New("mrtransform", source, "-linear", matrix, target, "-quiet").Producing(target))
}

func (r *RegistrationStage) multiply(ctx context.Context, env *task.Env, source, ribbon, target string) error {
	return env.Launch(ctx, command.New("mrcalc", source, ribbon, "-mult", target, "-quiet").Producing(target))
}

// fsl pins the FSL output format so targets keep the extension we name.
func fsl(program string, args ...string) command.Invocation {
	return command.New(program, args...).WithEnv("FSLOUTPUTTYPE", "NIFTI_GZ")
}

// QASupplier renders the brain mask and both atlases over the upsampled b0.
func (r *RegistrationStage) QASupplier(ctx context.Context, env *task.Env) (*artifact.Set, error) {
	b0 := env.FindIn(Upsampling, "b0", "upsample")
	images := []struct{ overlay, caption string }{
		{env.Own("mask", "resample"), "Brain mask on upsampled b0"},
		{env.Own("aparc_aseg", "resample"), "aparc+aseg segmentation on upsampled b0"},
		{env.Own("brodmann", "resample"), "Brodmann segmentation on upsampled b0"},
	}
	set := artifact.NewSet()
	for _, img := range images {
		png := env.Compose(img.overlay, "", ".png")
		if err := slicerPNG(ctx, env, b0, img.overlay, png); err != nil {
			return nil, err
		}
		set.Add(png, img.caption)
	}
	return set, nil
}
