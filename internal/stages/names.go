package stages

import "git.home.luguber.info/inful/neuroflow/internal/task"

// Stage names.
const (
	Preparation       task.Name = "preparation"
	Upsampling        task.Name = "upsampling"
	Parcellation      task.Name = "parcellation"
	Registration      task.Name = "registration"
	Tractography      task.Name = "tractography"
	Tractquerier      task.Name = "tractquerier"
	AtlasRegistration task.Name = "atlasregistration" // optional upstream, not built in
)
