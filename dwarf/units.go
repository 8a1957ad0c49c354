package dwarfhelper

import (
	"debug/dwarf"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru"
)

const (
	defaultPointerSize = 8
	entryCacheSize     = 4096
)

// Unit is one compilation unit of the index. lo and hi are the offsets of the
// unit DIE and of the last DIE the unit holds.
type Unit struct {
	entry    *dwarf.Entry
	lo, hi   dwarf.Offset
	addrSize int
}

// Contains reports whether the DIE at off belongs to this unit
func (_this *Unit) Contains(off dwarf.Offset) bool {
	return _this.lo <= off && off <= _this.hi
}

// PointerSize is the address size declared by the unit header
func (_this *Unit) PointerSize() int64 {
	if _this.addrSize <= 0 {
		return defaultPointerSize
	}
	return int64(_this.addrSize)
}

func (_this *Unit) Offset() dwarf.Offset {
	return _this.lo
}

// UnitIndex holds every compilation unit of a DWARF image for the whole
// inspection run, so references into any unit resolve without reparsing.
type UnitIndex struct {
	data    *dwarf.Data
	units   []*Unit
	entries *lru.Cache
}

// NewUnitIndex walks .debug_info once. A nil data yields an index without
// units.
func NewUnitIndex(data *dwarf.Data) (*UnitIndex, error) {
	cache, err := lru.New(entryCacheSize)
	if err != nil {
		return nil, err
	}
	index := &UnitIndex{
		data:    data,
		entries: cache,
	}
	if data == nil {
		return index, nil
	}

	reader := data.Reader()
	var current *Unit
	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, fmt.Errorf("read dwarf error: %v", err)
		}
		if entry == nil {
			break
		}
		// null entries carry no offset, units may end in null padding
		if entry.Tag == 0 {
			continue
		}
		if current == nil || isUnitTag(entry.Tag) {
			current = &Unit{
				entry:    entry,
				lo:       entry.Offset,
				hi:       entry.Offset,
				addrSize: reader.AddressSize(),
			}
			index.units = append(index.units, current)
			continue
		}
		current.hi = entry.Offset
	}
	log.Debugf("indexed %d compilation units", len(index.units))
	return index, nil
}

func isUnitTag(tag dwarf.Tag) bool {
	switch tag {
	case dwarf.TagCompileUnit, dwarf.TagPartialUnit, dwarf.TagSkeletonUnit, dwarf.TagTypeUnit:
		return true
	}
	return false
}

func (_this *UnitIndex) Data() *dwarf.Data {
	return _this.data
}

// Units in the order of .debug_info
func (_this *UnitIndex) Units() []*Unit {
	return _this.units
}

func (_this *UnitIndex) Len() int {
	return len(_this.units)
}

// UnitFor finds the unit owning the .debug_info offset off
func (_this *UnitIndex) UnitFor(off dwarf.Offset) (*Unit, error) {
	i := sort.Search(len(_this.units), func(i int) bool {
		return _this.units[i].hi >= off
	})
	if i < len(_this.units) && _this.units[i].Contains(off) {
		return _this.units[i], nil
	}
	return nil, fmt.Errorf("%w: offset 0x%x", ErrDanglingReference, off)
}

// Root is the unit DIE, the parent of all top-level entries of the unit
func (_this *UnitIndex) Root(unit *Unit) *Entry {
	return &Entry{
		die:   unit.entry,
		unit:  unit,
		index: _this,
	}
}

// EntryAt wraps the DIE at off, looking up its owning unit
func (_this *UnitIndex) EntryAt(off dwarf.Offset) (*Entry, error) {
	unit, err := _this.UnitFor(off)
	if err != nil {
		return nil, err
	}
	return _this.entryIn(unit, off)
}

func (_this *UnitIndex) entryIn(unit *Unit, off dwarf.Offset) (*Entry, error) {
	die, err := _this.dieAt(off)
	if err != nil {
		return nil, err
	}
	return &Entry{
		die:   die,
		unit:  unit,
		index: _this,
	}, nil
}

func (_this *UnitIndex) dieAt(off dwarf.Offset) (*dwarf.Entry, error) {
	if cached, ok := _this.entries.Get(off); ok {
		return cached.(*dwarf.Entry), nil
	}
	reader := _this.data.Reader()
	reader.Seek(off)
	die, err := reader.Next()
	if err != nil {
		return nil, err
	}
	if die == nil || die.Offset != off {
		return nil, fmt.Errorf("%w: no entry at offset 0x%x", ErrDanglingReference, off)
	}
	_this.entries.Add(off, die)
	return die, nil
}
