package artifact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestQueryExactMatching(t *testing.T) {
	cases := []struct {
		name  string
		query Query
		file  string
		match bool
	}{
		{"base only", Q("aparc_aseg"), "aparc_aseg.nii", true},
		{"base only rejects modified", Q("aparc_aseg"), "aparc_aseg_resample.nii", false},
		{"modifier", Q("aparc_aseg", "resample"), "aparc_aseg_resample.nii", true},
		{"multi token modifier any order", Q("brodmann", "left_hemisphere", "register"), "brodmann_register_left_hemisphere.nii", true},
		{"unrelated modifier", Q("brodmann", "register", "m2"), "brodmann_register.nii", false},
		{"prefix is not base", Q("anat"), "anatomy.nii", false},
		{"gz image", Q("dwi", "upsample"), "dwi_upsample.nii.gz", true},
		{"non image ignored", Q("dwi"), "dwi.bval", false},
		{"explicit ext", Q("dwi").WithExt("bval"), "dwi.bval", true},
		{"explicit ext mismatch", Q("dwi").WithExt(".bvec"), "dwi.bval", false},
		{"case insensitive ext", Q("t1"), "t1.NII", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, _ := tc.query.Matches(tc.file)
			assert.Equal(t, tc.match, ok)
		})
	}
}

func TestQueryLooseMatching(t *testing.T) {
	q := Q("dwi").WithExt(".trk").Containing()
	for _, name := range []string{"dwi_tensor_prob_cc_2.trk", "dwi_hardi_prob_uf.left.trk", "dwi.trk"} {
		ok, _ := q.Matches(name)
		assert.True(t, ok, name)
	}
	ok, _ := q.Matches("b0_tensor.trk")
	assert.False(t, ok)

	withMod := Q("dwi", "tensor_prob").WithExt(".trk").Containing()
	ok, _ = withMod.Matches("dwi_tensor_prob_cc_2.trk")
	assert.True(t, ok)
	ok, _ = withMod.Matches("dwi_tensor_x_prob.trk")
	assert.False(t, ok)
}

func TestQueryExtensionRank(t *testing.T) {
	_, gz := Q("dwi").Matches("dwi.nii.gz")
	_, nii := Q("dwi").Matches("dwi.nii")
	_, mgz := Q("dwi").Matches("dwi.mgz")
	assert.Less(t, gz, nii)
	assert.Less(t, nii, mgz)
}

func token() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z][a-z0-9]{0,5}`)
}

func TestModifierOrderDoesNotAffectMatching(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := token().Draw(t, "base")
		mods := rapid.SliceOfNDistinct(token(), 1, 4, rapid.ID[string]).Draw(t, "mods")
		perm := rapid.Permutation(mods).Draw(t, "perm")

		name := base + "_" + strings.Join(mods, "_") + ".nii"
		if ok, _ := Q(base, perm...).Matches(name); !ok {
			t.Fatalf("query %v did not match %s", perm, name)
		}
	})
}

func TestUnrelatedModifierNeverMatches(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := token().Draw(t, "base")
		mods := rapid.SliceOfNDistinct(token(), 0, 3, rapid.ID[string]).Draw(t, "mods")
		extra := token().Filter(func(s string) bool {
			for _, m := range mods {
				if m == s {
					return false
				}
			}
			return s != base
		}).Draw(t, "extra")

		written := Artifact{Base: base, Modifiers: mods, Ext: ".nii"}
		if ok, _ := Q(base, mods...).Matches(written.Name()); !ok {
			t.Fatalf("round trip failed for %s", written.Name())
		}
		if ok, _ := Q(base, append(mods, extra)...).Matches(written.Name()); ok {
			t.Fatalf("query with %s matched %s", extra, written.Name())
		}
	})
}
