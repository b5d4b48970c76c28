package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
)

func TestSectionGetters(t *testing.T) {
	s := NewSection("tractography", map[string]any{
		"number_tracks": 1000,
		"step":          "0.5",
		"force_hardi":   "True",
		"algorithm":     "iFOD2",
		"atlas_suffix":  "None",
		"blank":         "  ",
	})

	n, err := s.Int("number_tracks")
	require.NoError(t, err)
	assert.Equal(t, 1000, n)

	f, err := s.Float("step")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f, 1e-9)

	b, err := s.Bool("force_hardi")
	require.NoError(t, err)
	assert.True(t, b)

	assert.Equal(t, "iFOD2", s.StringOr("algorithm", "x"))
	assert.Equal(t, "resample", s.StringOr("atlas_suffix", "resample"))
	assert.False(t, s.Has("blank"))
	assert.Equal(t, []string{"algorithm", "atlas_suffix", "blank", "force_hardi", "number_tracks", "step"}, s.Keys())
}

func TestSectionMissingKeyIsConfigError(t *testing.T) {
	s := NewSection("registration", nil)
	_, err := s.String("cleanup")
	require.Error(t, err)

	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.CategoryConfig, ce.Category())
	key, _ := ce.Context().GetString("key")
	assert.Equal(t, "cleanup", key)
}

func TestSectionInvalidValue(t *testing.T) {
	s := NewSection("upsampling", map[string]any{"voxel_size": "fine", "flag": "maybe"})
	_, err := s.Int("voxel_size")
	require.Error(t, err)
	assert.Equal(t, 3, s.IntOr("voxel_size", 3))
	assert.True(t, s.BoolOr("flag", true))
}

func TestSectionRequire(t *testing.T) {
	s := NewSection("parcellation", map[string]any{"id": "freesurfer"})
	require.NoError(t, s.Require("id"))
	err := s.Require("id", "directive")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parcellation.directive")
}

func TestConfigSectionUnknownIsEmpty(t *testing.T) {
	cfg := Default()
	s := cfg.Section("nope")
	assert.Equal(t, "nope", s.Name())
	assert.Empty(t, s.Keys())
}
