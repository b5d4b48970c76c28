package stages

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/neuroflow/internal/artifact"
	"git.home.luguber.info/inful/neuroflow/internal/command"
	"git.home.luguber.info/inful/neuroflow/internal/config"
	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
	"git.home.luguber.info/inful/neuroflow/internal/logfields"
	"git.home.luguber.info/inful/neuroflow/internal/task"
)

const (
	defaultQueries = "wmql_queries.qry"
	defaultDict    = "wmql_dict.qry"
)

const downsamplingWarning = "Warning: due to storage restriction, streamlines were downsampled. " +
	"Even if there is no difference in structural connectivity, you should be careful before " +
	"computing any metrics along these streamlines.\nTo run without this downsampling, please " +
	"refer to the documentation."

const customQueriesNotice = "Because you didn't choose default queries and dictionary, " +
	"we are not able to create proper screenshots of the output bundles."

// defaultBundles are the bundles produced by the default queries and rendered in QA.
var defaultBundles = []struct{ query, caption string }{
	{"cc_2", "Corpus Callosum"},
	{"ioff.left", "Inferior Fronto Occipital tract left"},
	{"ioff.right", "Inferior Fronto Occipital tract right"},
	{"ilf.left", "Inferior Longitudinal Fasciculus left"},
	{"ilf.right", "Inferior Longitudinal Fasciculus right"},
	{"uf.left", "Uncinate Fasciculus left"},
	{"uf.right", "Uncinate Fasciculus right"},
	{"cortico_spinal.left", "Corticospinal tract left"},
	{"cortico_spinal.right", "Corticospinal tract right"},
}

// TractquerierStage extracts named white matter bundles from the tractogram
// with WMQL queries. Its working directory survives re-runs.
type TractquerierStage struct {
	task.Base
	tracking    *TractographyStage
	atlasSuffix string
	queries     string
	dict        string
	ignore      bool
}

// NewTractquerier builds the tract querier stage.
func NewTractquerier(cfg *config.Config) (task.Task, error) {
	s := cfg.Section(string(Tractquerier))
	tracking, err := NewTractography(cfg)
	if err != nil {
		return nil, err
	}
	return &TractquerierStage{
		Base: task.NewBase(task.Metadata{
			Name:        Tractquerier,
			Order:       order(Tractquerier),
			Description: "WMQL bundle extraction",
			Dependencies: append(task.Requires(Preparation, Upsampling, Registration),
				task.OptionalDep(AtlasRegistration), task.Dependency{Name: Tractography}),
			KeepWorkingDir: true,
		}),
		tracking:    tracking.(*TractographyStage),
		atlasSuffix: s.StringOr("atlas_suffix", "resample"),
		queries:     s.StringOr("queries", defaultQueries),
		dict:        s.StringOr("dict", defaultDict),
		ignore:      s.BoolOr("ignore", false),
	}, nil
}

func (q *TractquerierStage) IsIgnore(env *task.Env) bool { return q.ignore }

func (q *TractquerierStage) defaultQuery() bool {
	return q.queries == defaultQueries && q.dict == defaultDict
}

func (q *TractquerierStage) resource(env *task.Env, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(env.ResourcesDir, name)
}

func (q *TractquerierStage) tractogram(env *task.Env) string {
	variant, err := q.tracking.variant(env, q.tracking.inputs(env).bval)
	if err != nil {
		return ""
	}
	return env.Find(env.DependDir(Tractography), artifact.Q("dwi", variant).WithExt(".trk"))
}

// atlas prefers the atlas registered by atlasregistration and falls back to
// the registration stage.
func (q *TractquerierStage) atlas(env *task.Env) string {
	if target := env.FindIn(AtlasRegistration, "wmparc", q.atlasSuffix); target != "" {
		env.Logger.Debug("Using atlas from atlas registration", logfields.Artifact(target))
		return target
	}
	return env.FindIn(Registration, "wmparc", q.atlasSuffix)
}

func (q *TractquerierStage) MeetRequirement(env *task.Env) *artifact.Set {
	return artifact.NewSet().
		Add(q.tractogram(env), "Tractography file").
		Add(q.atlas(env), "Atlas").
		Add(existing(q.resource(env, q.queries)), "WMQL queries").
		Add(existing(q.resource(env, q.dict)), "WMQL dictionary")
}

func (q *TractquerierStage) IsDirty(env *task.Env) *artifact.Set {
	set := artifact.NewSet()
	for _, trk := range env.FindAll(env.WorkingDir, artifact.Q("dwi").Containing().WithExt(".trk")) {
		set.Add(trk, filepath.Base(trk))
	}
	return set
}

func (q *TractquerierStage) Implement(ctx context.Context, env *task.Env) error {
	queries, err := copyInto(q.resource(env, q.queries), env.WorkingDir)
	if err != nil {
		return err
	}
	dict, err := copyInto(q.resource(env, q.dict), env.WorkingDir)
	if err != nil {
		return err
	}
	trk := q.tractogram(env)
	stem, _ := artifact.SplitExt(filepath.Base(trk))
	prefix := filepath.Join(env.WorkingDir, stem)
	return env.Launch(ctx, command.New("tract_querier",
		"-t", trk, "-a", q.atlas(env), "-I", dict, "-q", queries, "-o", prefix))
}

// QASupplier renders the default bundles over the resampled brain. Custom
// queries only produce an explanatory notice.
func (q *TractquerierStage) QASupplier(ctx context.Context, env *task.Env) (*artifact.Set, error) {
	set := artifact.NewSet()
	if !q.defaultQuery() {
		return set.SetInformation(customQueriesNotice), nil
	}
	norm := env.FindIn(Registration, "norm", "resample")
	for _, bundle := range defaultBundles {
		trk := env.Find(env.WorkingDir, artifact.Q("dwi", bundle.query).Containing().WithExt(".trk"))
		if trk == "" {
			continue
		}
		png := env.Compose(trk, "", ".png")
		if err := renderBundle(ctx, env, trk, norm, png); err != nil {
			return nil, err
		}
		set.Add(png, bundle.caption)
	}
	return set.SetInformation(downsamplingWarning), nil
}

func existing(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func copyInto(source, dir string) (string, error) {
	target := filepath.Join(dir, filepath.Base(source))
	in, err := os.Open(source)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryResources, "failed to open resource").
			WithContext("path", source).Build()
	}
	defer in.Close()
	out, err := os.Create(target)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create resource copy").
			WithContext("path", target).Build()
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to copy resource").
			WithContext("path", target).Build()
	}
	return target, out.Close()
}
