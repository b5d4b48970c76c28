package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/neuroflow/internal/config"
)

// InitCmd writes a commented starter neuroflow.yaml.
type InitCmd struct {
	Force  bool   `help:"Overwrite existing configuration file"`
	Output string `short:"o" name:"output" help:"Output directory for generated config file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	if i.Output != "" {
		return RunInit(g, filepath.Join(i.Output, "neuroflow.yaml"), i.Force)
	}
	return RunInit(g, root.Config, i.Force)
}

func RunInit(g *Global, configPath string, force bool) error {
	out := g.out()
	if err := config.WriteStarter(configPath, force); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Wrote %s\n", configPath)
	_, _ = fmt.Fprintln(out, "Next: set pipeline.subjects_dir and resources, then run 'neuroflow plan <subject>'")
	return nil
}
