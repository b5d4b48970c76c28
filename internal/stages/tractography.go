package stages

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/config"
	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// Tractography variants.
const (
	TensorProb = "tensor_prob"
	HardiProb  = "hardi_prob"
)

// hardiThreshold is the largest direction count still tracked with the tensor model.
const hardiThreshold = 45

// CountDirections returns the number of diffusion weighted volumes listed in
// an FSL b-values file, that is the count of non-zero b-values.
func CountDirections(bvalPath string) (int, error) {
	data, err := os.ReadFile(bvalPath)
	if err != nil {
		return 0, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read b-values").
			WithContext("path", bvalPath).Build()
	}
	count := 0
	for _, field := range bytes.Fields(data) {
		v, err := strconv.ParseFloat(string(field), 64)
		if err != nil {
			return 0, ferrors.ValidationError("invalid b-value").
				WithContext("path", bvalPath).
				WithContext("value", string(field)).Build()
		}
		if v != 0 {
			count++
		}
	}
	return count, nil
}

// TractographyStage generates a whole brain tractogram and converts it to
// TrackVis format for tract querying.
type TractographyStage struct {
	task.Base
	numberTracks int
	forceHardi   bool
}

// NewTractography builds the tractography stage.
func NewTractography(cfg *config.Config) (task.Task, error) {
	s := cfg.Section(string(Tractography))
	tracks := 100000
	if s.Has("number_tracks") {
		n, err := s.Int("number_tracks")
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, ferrors.ConfigError("number_tracks must be positive").
				WithContext("section", s.Name()).
				WithContext("value", n).Build()
		}
		tracks = n
	}
	return &TractographyStage{
		Base: task.NewBase(task.Metadata{
			Name:         Tractography,
			Order:        order(Tractography),
			Description:  "whole brain tractography",
			Dependencies: task.Requires(Preparation, Upsampling, Registration),
		}),
		numberTracks: tracks,
		forceHardi:   s.BoolOr("force_hardi", false),
	}, nil
}

// Variant selects the tracking algorithm for a given direction count.
func (t *TractographyStage) Variant(directions int) string {
	if t.forceHardi || directions > hardiThreshold {
		return HardiProb
	}
	return TensorProb
}

type tractographyInputs struct {
	dwi, bval, bvec, mask, tt5, b0 string
}

func (t *TractographyStage) inputs(env *task.Env) tractographyInputs {
	prep := env.DependDir(Preparation)
	return tractographyInputs{
		dwi:  env.FindIn(Upsampling, "dwi", "upsample"),
		b0:   env.FindIn(Upsampling, "b0", "upsample"),
		bval: env.Find(prep, artifact.Q("dwi").WithExt(".bval")),
		bvec: env.Find(prep, artifact.Q("dwi").WithExt(".bvec")),
		mask: env.FindIn(Registration, "mask", "resample"),
		tt5:  env.FindIn(Registration, "tt5", "resample"),
	}
}

func (t *TractographyStage) variant(env *task.Env, bval string) (string, error) {
	n, err := CountDirections(bval)
	if err != nil {
		return "", err
	}
	return t.Variant(n), nil
}

func (t *TractographyStage) MeetRequirement(env *task.Env) *artifact.Set {
	in := t.inputs(env)
	return artifact.NewSet().
		Add(in.dwi, "diffusion weighted upsampled").
		Add(in.b0, "b0 upsampled").
		Add(in.bval, "gradient b-values").
		Add(in.bvec, "gradient b-vectors").
		Add(in.mask, "brain mask resample").
		Add(in.tt5, "5tt image resample")
}

func (t *TractographyStage) IsDirty(env *task.Env) *artifact.Set {
	set := artifact.NewSet()
	variant, err := t.variant(env, t.inputs(env).bval)
	if err != nil {
		return set.Add("", "tractogram")
	}
	return set.Add(env.Find(env.WorkingDir, artifact.Q("dwi", variant).WithExt(".trk")), "tractogram "+variant)
}

func (t *TractographyStage) Implement(ctx context.Context, env *task.Env) error {
	in := t.inputs(env)
	variant, err := t.variant(env, in.bval)
	if err != nil {
		return err
	}
	tck := filepath.Join(env.WorkingDir, "dwi_"+variant+".tck")
	trk := filepath.Join(env.WorkingDir, "dwi_"+variant+".trk")
	grad := []string{"-fslgrad", in.bvec, in.bval}

	switch variant {
	case HardiProb:
		response := filepath.Join(env.WorkingDir, "dwi_response.txt")
		fod := filepath.Join(env.WorkingDir, "dwi_fod.mif")
		if err := env.Launch(ctx, mrtrix(env, "dwi2response",
			append(append([]string{"tournier", in.dwi, response}, grad...), "-mask", in.mask)...).Producing(response)); err != nil {
			return err
		}
		if err := env.Launch(ctx, mrtrix(env, "dwi2fod",
			append(append([]string{"csd", in.dwi, response, fod}, grad...), "-mask", in.mask)...).Producing(fod)); err != nil {
			return err
		}
		if err := env.Launch(ctx, mrtrix(env, "tckgen", fod, tck,
			"-algorithm", "iFOD2", "-act", in.tt5, "-seed_image", in.mask,
			"-select", strconv.Itoa(t.numberTracks)).Producing(tck)); err != nil {
			return err
		}
	default:
		args := append([]string{in.dwi, tck, "-algorithm", "Tensor_Prob"}, grad...)
		args = append(args, "-mask", in.mask, "-seed_image", in.mask, "-select", strconv.Itoa(t.numberTracks))
		if err := env.Launch(ctx, mrtrix(env, "tckgen", args...).Producing(tck)); err != nil {
			return err
		}
	}
	return env.Launch(ctx, command.New("nib-tck2trk", "--force", in.b0, tck).Producing(trk))
}

// mrtrix appends the thread count and quiet flag shared by MRtrix tools.
func mrtrix(env *task.Env, program string, args ...string) command.Invocation {
	return command.New(program, append(args, "-nthreads", threads(env), "-quiet")...)
}

// QASupplier renders the whole tractogram over the upsampled b0.
func (t *TractographyStage) QASupplier(ctx context.Context, env *task.Env) (*artifact.Set, error) {
	trk := env.Find(env.WorkingDir, artifact.Q("dwi").Containing().WithExt(".trk"))
	png := env.Compose(trk, "", ".png")
	if err := renderBundle(ctx, env, trk, env.FindIn(Upsampling, "b0", "upsample"), png); err != nil {
		return nil, err
	}
	return artifact.NewSet().Add(png, "Whole brain tractogram"), nil
}
