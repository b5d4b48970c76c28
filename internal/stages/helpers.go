package stages

import (
	"context"
	"strconv"

	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

func threads(env *task.Env) string {
	return strconv.Itoa(max(env.Threads, 1))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// slicerPNG renders background with overlay edges into a PNG for the QA report.
func slicerPNG(ctx context.Context, env *task.Env, background, overlay, target string) error {
	args := []string{background}
	if overlay != "" {
		args = append(args, overlay)
	}
	args = append(args, "-a", target)
	return env.Launch(ctx, command.New(env.Config.QA.Slicer, args...).Producing(target).Logging(command.LogTail))
}

// renderBundle renders a streamline bundle over a reference image.
func renderBundle(ctx context.Context, env *task.Env, trk, reference, target string) error {
	return env.Launch(ctx, command.New(env.Config.QA.TrkRenderer, trk, reference,
		"--stealth", "--out_stealth_png", target).Producing(target).Logging(command.LogTail))
}
