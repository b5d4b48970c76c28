package artifact

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposePlacesOutputInCallingDirectory(t *testing.T) {
	got := Compose(filepath.Join("/subjects/s1/03-registration", "brodmann_register.nii"), "left_hemisphere", "", "/subjects/s1/05-tractquerier")
	assert.Equal(t, filepath.Join("/subjects/s1/05-tractquerier", "brodmann_register_left_hemisphere.nii"), got)
}

func TestComposeExtensionHandling(t *testing.T) {
	cases := []struct {
		source, modifier, ext, want string
	}{
		{"dwi.nii.gz", "upsample", "", "dwi_upsample.nii.gz"},
		{"mask_resample.nii", "", "png", "mask_resample.png"},
		{"freesurferToDWI_transformation.mat", "mrtrix", ".mat", "freesurferToDWI_transformation_mrtrix.mat"},
		{"dwi_tensor_prob.tck", "", ".trk", "dwi_tensor_prob.trk"},
	}
	for _, tc := range cases {
		assert.Equal(t, filepath.Join("/w", tc.want), Compose(tc.source, tc.modifier, tc.ext, "/w"), tc.source)
	}
}

func TestSplitExt(t *testing.T) {
	cases := map[string][2]string{
		"dwi.nii.gz":                  {"dwi", ".nii.gz"},
		"aparc_aseg.nii":              {"aparc_aseg", ".nii"},
		"dwi_tensor_prob_uf.left.trk": {"dwi_tensor_prob_uf.left", ".trk"},
		"README":                      {"README", ""},
	}
	for in, want := range cases {
		stem, ext := SplitExt(in)
		assert.Equal(t, want[0], stem, in)
		assert.Equal(t, want[1], ext, in)
	}
}

func TestParseAndName(t *testing.T) {
	a := Parse("/w/brodmann_register_left_hemisphere.nii")
	assert.Equal(t, "/w", a.Dir)
	assert.Equal(t, "brodmann", a.Base)
	assert.Equal(t, []string{"register", "left", "hemisphere"}, a.Modifiers)
	assert.Equal(t, ".nii", a.Ext)
	assert.Equal(t, "/w/brodmann_register_left_hemisphere.nii", a.Path())

	bare := Parse("anat.nii.gz")
	assert.Empty(t, bare.Dir)
	assert.Equal(t, "anat.nii.gz", bare.Path())
}

func TestWithKeepsTagSetIndependentOfOrder(t *testing.T) {
	a := Artifact{Dir: "/w", Base: "brodmann", Ext: ".nii"}
	ab := a.With("register").With("left_hemisphere")
	ba := a.With("left_hemisphere").With("register")
	assert.Equal(t, ab.Tags(), ba.Tags())
	assert.NotEqual(t, ab.Name(), ba.Name())
	assert.Empty(t, a.Modifiers)
}
