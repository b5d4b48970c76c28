// Package artifact resolves image artifacts on disk by structured identity.
//
// An artifact file name is a base tag followed by modifier tokens and an
// extension, all joined by underscores (brodmann_register_left_hemisphere.nii).
// Lookups compare token multisets rather than substrings, so modifier order
// never matters and unrelated files sharing a prefix are not returned.
package artifact
