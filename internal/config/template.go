package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
)

const starterTemplate = `# neuroflow configuration
pipeline:
  subjects_dir: ./subjects
  concurrency: 1
  threads: 4
  fail_fast: false
  log_tail_lines: 40

retry:
  mode: linear
  initial: 1s
  max: 30s
  max_retries: 0

store:
  path: ./subjects/.neuroflow/history.db

metrics:
  enabled: false
  listen: ":9464"

events:
  nats_url: ""
  subject: neuroflow.tasks

resources:
  dir: ./resources

watch:
  debounce: 5s
  interval: 0s

qa:
  report_dir: report

tasks:
  preparation:
    b0_extract: "True"
  upsampling:
    voxel_size: 1
  parcellation:
    id: freesurfer
    directive: all
    intrasubject: "False"
    brodmann: "True"
  registration:
    cleanup: "False"
  tractography:
    number_tracks: 100000
    force_hardi: "False"
  tractquerier:
    ignore: "False"
    atlas_suffix: resample
    queries: wmql_queries.qry
    dict: wmql_dict.qry
`

// StarterTemplate returns the YAML written by `neuroflow init`.
func StarterTemplate() string { return starterTemplate }

// WriteStarter writes the starter configuration to path. Existing files are
// only replaced when force is set.
func WriteStarter(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ValidationError("configuration file already exists").
			WithContext("path", path).
			WithContext("hint", "use --force to overwrite").Build()
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to stat config file").Build()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to create config directory").Build()
		}
	}
	if err := os.WriteFile(path, []byte(starterTemplate), 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write config file").Build()
	}
	return nil
}
