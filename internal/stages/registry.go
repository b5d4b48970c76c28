package stages

import (
	"git.home.luguber.info/inful/neuroflow/internal/config"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

// Factory builds a stage from configuration.
type Factory func(cfg *config.Config) (task.Task, error)

// declared lists stages in pipeline order; the position becomes the
// working directory prefix.
var declared = []task.Name{
	Preparation,
	Upsampling,
	Parcellation,
	Registration,
	Tractography,
	Tractquerier,
}

func factories() map[task.Name]Factory {
	return map[task.Name]Factory{
		Preparation:  NewPreparation,
		Upsampling:   NewUpsampling,
		Parcellation: NewParcellation,
		Registration: NewRegistration,
		Tractography: NewTractography,
		Tractquerier: NewTractquerier,
	}
}

// Names returns the registered stage names in declared order.
func Names() []task.Name {
	return append([]task.Name(nil), declared...)
}

func order(name task.Name) int {
	for i, n := range declared {
		if n == name {
			return i
		}
	}
	return len(declared)
}

// Build constructs every registered stage. The first configuration error is
// returned and nothing is built.
func Build(cfg *config.Config) ([]task.Task, error) {
	byName := factories()
	tasks := make([]task.Task, 0, len(declared))
	for _, name := range declared {
		t, err := byName[name](cfg)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
