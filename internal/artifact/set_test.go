package artifact

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetMissingReportsDescriptions(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "aparc_aseg.nii")
	r := NewResolver(nil)

	aparc, _ := r.Find(dir, Q("aparc_aseg"))
	brodmann, _ := r.Find(dir, Q("brodmann"))
	set := NewSet().Add(aparc, "parcellation").Add(brodmann, "brodmann")

	assert.Equal(t, []string{"brodmann"}, set.Missing())
	assert.Equal(t, []Entry{{Description: "parcellation", Path: filepath.Join(dir, "aparc_aseg.nii")}}, set.Present())
	assert.False(t, set.Complete())
	assert.Equal(t, 2, set.Len())
}

func TestSetStaleEntryCountsAsMissing(t *testing.T) {
	set := NewSet(Entry{Description: "mask", Path: filepath.Join(t.TempDir(), "mask.nii")})
	assert.Equal(t, []string{"mask"}, set.Missing())
}

func TestSetInformationAndNil(t *testing.T) {
	set := NewSet().SetInformation("downsampled")
	assert.Equal(t, "downsampled", set.Information())
	assert.True(t, set.Complete())

	var empty *Set
	assert.Zero(t, empty.Len())
	assert.Empty(t, empty.Information())
	assert.Empty(t, empty.Missing())
}
