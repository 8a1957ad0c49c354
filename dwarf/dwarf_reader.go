package dwarfhelper

import (
	"debug/dwarf"
)

// ChildIterator yields the direct children of a DIE in document order. It
// owns its reader, so it is single pass and must not be copied.
type ChildIterator struct {
	parent  *Entry
	reader  *dwarf.Reader
	started bool
	done    bool
}

func newChildIterator(parent *Entry) *ChildIterator {
	return &ChildIterator{
		parent: parent,
		reader: parent.index.data.Reader(),
	}
}

// Next returns the next direct child, or nil once the children are exhausted
func (_this *ChildIterator) Next() (*Entry, error) {
	if _this.done {
		return nil, nil
	}
	if !_this.started {
		_this.started = true
		_this.reader.Seek(_this.parent.Offset())
		parent, err := _this.reader.Next()
		if err != nil {
			_this.done = true
			return nil, err
		}
		if parent == nil || !parent.Children {
			_this.done = true
			return nil, nil
		}
	} else {
		// step over the grandchildren of the child returned last
		_this.reader.SkipChildren()
	}

	kid, err := _this.reader.Next()
	if err != nil {
		_this.done = true
		return nil, err
	}
	if kid == nil || kid.Tag == 0 {
		_this.done = true
		return nil, nil
	}
	return _this.parent.wrap(kid), nil
}

// ClassIterator walks the children of an aggregate that pass keep, each
// followed through its type attribute to the referenced DIE.
type ClassIterator struct {
	children *ChildIterator
	keep     func(*Entry) bool
}

// Next returns the next referenced DIE, or nil when the children are
// exhausted. Children without a type attribute are skipped.
func (_this *ClassIterator) Next() (*Entry, error) {
	for {
		kid, err := _this.children.Next()
		if err != nil || kid == nil {
			return nil, err
		}
		if !_this.keep(kid) {
			continue
		}
		class, err := kid.Class()
		if err != nil {
			return nil, err
		}
		if class == nil {
			continue
		}
		return class, nil
	}
}
