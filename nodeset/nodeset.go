// Sets of node names, and the overlap computation between them.
//
// A Set is a sorted, duplicate-free slice of node names.  Sets are produced by expanding the compact
// host list notation (see ../hostglob) and are immutable once created.

package nodeset

import (
	"slices"
	"strings"

	"jobcost/hostglob"
)

type Set []string

// Expander turns a compact host list expression into a Set.  The builtin expander is Expand; an
// expander that asks Slurm (`scontrol show hostnames`) lives in the source package.
type Expander func(expr string) (Set, error)

// Create a Set from names in any order, with or without duplicates.
func New(names ...string) Set {
	s := slices.Clone(names)
	slices.Sort(s)
	return Set(slices.Compact(s))
}

// Expand a host list expression like "c1-[01-04],gpu-[1,3]" into a Set.  The empty expression
// yields the empty set.
func Expand(expr string) (Set, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Set{}, nil
	}
	names, err := hostglob.ExpandMultiPattern(expr)
	if err != nil {
		return nil, err
	}
	return New(names...), nil
}

func (s Set) Len() int {
	return len(s)
}

func (s Set) Contains(name string) bool {
	_, found := slices.BinarySearch(s, name)
	return found
}

// Compress renders the set in compact host list notation.  Expanding the result yields the set.
func (s Set) Compress() string {
	return strings.Join(hostglob.CompressHostnames(s), ",")
}

// OverlapCount returns |A ∩ B| for two sorted, duplicate-free sets, computed as |A| + |B| - |A ∪ B|
// with a single merge pass that counts the union.  Either set may be empty.
func OverlapCount(a, b Set) int {
	var i, j, union int
	for i < len(a) && j < len(b) {
		switch strings.Compare(a[i], b[j]) {
		case -1:
			i++
		case 1:
			j++
		default:
			i++
			j++
		}
		union++
	}
	union += len(a) - i + len(b) - j
	return len(a) + len(b) - union
}

// Intersection materializes the common members, for reporting.
func Intersection(a, b Set) Set {
	common := make(Set, 0)
	var i, j int
	for i < len(a) && j < len(b) {
		switch strings.Compare(a[i], b[j]) {
		case -1:
			i++
		case 1:
			j++
		default:
			common = append(common, a[i])
			i++
			j++
		}
	}
	return common
}

// Union of two sets.
func Union(a, b Set) Set {
	u := make(Set, 0, len(a)+len(b))
	var i, j int
	for i < len(a) && j < len(b) {
		switch strings.Compare(a[i], b[j]) {
		case -1:
			u = append(u, a[i])
			i++
		case 1:
			u = append(u, b[j])
			j++
		default:
			u = append(u, a[i])
			i++
			j++
		}
	}
	u = append(u, a[i:]...)
	return append(u, b[j:]...)
}
