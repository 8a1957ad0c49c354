package utils

import (
	mapset "github.com/deckarep/golang-set"
)

// NameDeduper remembers the class names already emitted
type NameDeduper struct {
	seen mapset.Set
}

func NewNameDeduper() *NameDeduper {
	return &NameDeduper{seen: mapset.NewThreadUnsafeSet()}
}

// First reports whether name is seen for the first time. Anonymous entries
// cannot collide, so "" is always first.
func (d *NameDeduper) First(name string) bool {
	if len(name) == 0 {
		return true
	}
	return d.seen.Add(name)
}

// Len is the number of distinct names seen
func (d *NameDeduper) Len() int {
	return d.seen.Cardinality()
}
