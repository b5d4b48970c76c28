package stages

import (
	"context"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/config"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// UpsamplingStage regrids the diffusion image and b0 to the configured voxel size.
type UpsamplingStage struct {
	task.Base
	voxelSize string
	interp    string
}

// NewUpsampling builds the upsampling stage.
func NewUpsampling(cfg *config.Config) (task.Task, error) {
	s := cfg.Section(string(Upsampling))
	voxel := 1.0
	if s.Has("voxel_size") {
		v, err := s.Float("voxel_size")
		if err != nil {
			return nil, err
		}
		voxel = v
	}
	return &UpsamplingStage{
		Base: task.NewBase(task.Metadata{
			Name:         Upsampling,
			Order:        order(Upsampling),
			Description:  "regrid diffusion images",
			Dependencies: task.Requires(Preparation),
		}),
		voxelSize: formatFloat(voxel),
		interp:    s.StringOr("interp", "sinc"),
	}, nil
}

func (u *UpsamplingStage) MeetRequirement(env *task.Env) *artifact.Set {
	return artifact.NewSet().
		Add(env.FindIn(Preparation, "dwi"), "diffusion weighted image").
		Add(env.FindIn(Preparation, "b0"), "b0")
}

func (u *UpsamplingStage) IsDirty(env *task.Env) *artifact.Set {
	return artifact.NewSet().
		Add(env.Own("dwi", "upsample"), "diffusion weighted upsampled").
		Add(env.Own("b0", "upsample"), "b0 upsampled")
}

func (u *UpsamplingStage) Implement(ctx context.Context, env *task.Env) error {
	for _, tag := range []string{"dwi", "b0"} {
		source := env.FindIn(Preparation, tag)
		target := env.Compose(source, "upsample", "")
		inv := command.New("mrgrid", source, "regrid", target,
			"-voxel", u.voxelSize, "-interp", u.interp, "-nthreads", threads(env), "-quiet").Producing(target)
		if err := env.Launch(ctx, inv); err != nil {
			return err
		}
	}
	return nil
}
