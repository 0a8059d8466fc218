package domain

import "sort"

// CodeBundle is the complete set of generated source files for one
// candidate version of the service, keyed by relative path. Bundles are
// replaced wholesale, never mutated in place.
type CodeBundle map[string]string

// Paths returns the bundle's file paths in deterministic (sorted) order
func (b CodeBundle) Paths() []string {
	paths := make([]string, 0, len(b))
	for p := range b {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Clone returns an independent copy of the bundle
func (b CodeBundle) Clone() CodeBundle {
	out := make(CodeBundle, len(b))
	for p, src := range b {
		out[p] = src
	}
	return out
}
