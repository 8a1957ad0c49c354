package dwarfhelper

import (
	"bytes"
	"debug/dwarf"
	"fmt"

	"github.com/go-delve/delve/pkg/dwarf/leb128"
	"github.com/go-delve/delve/pkg/dwarf/op"
)

// longest pointer or typedef chain followed before giving up on a cycle
const maxTypeChain = 256

// Entry is a DIE together with the unit it lives in and the index used to
// follow references out of that unit. Entries are cheap views and never
// outlive their index.
type Entry struct {
	die   *dwarf.Entry
	unit  *Unit
	index *UnitIndex
}

func (_this *Entry) Tag() dwarf.Tag {
	return _this.die.Tag
}

func (_this *Entry) Offset() dwarf.Offset {
	return _this.die.Offset
}

func (_this *Entry) Unit() *Unit {
	return _this.unit
}

// DIE is the decoded entry backing this view
func (_this *Entry) DIE() *dwarf.Entry {
	return _this.die
}

// wrap shares the ambient context of _this with a DIE of the same unit
func (_this *Entry) wrap(die *dwarf.Entry) *Entry {
	return &Entry{
		die:   die,
		unit:  _this.unit,
		index: _this.index,
	}
}

func (_this *Entry) Children() *ChildIterator {
	return newChildIterator(_this)
}

// Name is the name attribute, or the pointee name followed by "*" for an
// unnamed pointer type. Anonymous entries return "".
func (_this *Entry) Name() (string, error) {
	suffix := ""
	current := _this
	for i := 0; i < maxTypeChain; i++ {
		if name, ok := current.die.Val(dwarf.AttrName).(string); ok {
			return name + suffix, nil
		}
		if current.Tag() != dwarf.TagPointerType {
			return "", nil
		}
		pointee, err := current.Class()
		if err != nil || pointee == nil {
			return "", err
		}
		suffix += "*"
		current = pointee
	}
	return "", _this.errTypeChain()
}

// SizeBytes is the byte_size attribute. Pointer types carry none and take
// the address size of their unit.
func (_this *Entry) SizeBytes() (int64, bool) {
	if size, ok := _this.die.Val(dwarf.AttrByteSize).(int64); ok && size >= 0 {
		return size, true
	}
	if _this.Tag() == dwarf.TagPointerType && _this.die.Val(dwarf.AttrByteSize) == nil {
		return _this.unit.PointerSize(), true
	}
	return 0, false
}

// HasByteSize reports whether the entry carries a byte_size attribute
func (_this *Entry) HasByteSize() bool {
	return _this.die.Val(dwarf.AttrByteSize) != nil
}

// MemberLocation is the constant data_member_location of a member or
// inheritance entry. Location expressions other than a lone
// DW_OP_plus_uconst are not evaluated and count as absent.
func (_this *Entry) MemberLocation() (int64, bool) {
	field := _this.die.AttrField(dwarf.AttrDataMemberLoc)
	if field == nil {
		return 0, false
	}
	switch val := field.Val.(type) {
	case int64:
		if val >= 0 {
			return val, true
		}
	case []byte:
		if loc, ok := plusUconst(val); ok {
			return int64(loc), true
		}
	}
	log.Debugf("skip member location of class %s at 0x%x", field.Class, _this.Offset())
	return 0, false
}

func plusUconst(expr []byte) (uint64, bool) {
	if len(expr) < 2 || op.Opcode(expr[0]) != op.DW_OP_plus_uconst {
		return 0, false
	}
	buf := bytes.NewBuffer(expr[1:])
	val, _ := leb128.DecodeUnsigned(buf)
	if buf.Len() != 0 {
		return 0, false
	}
	return val, true
}

// Class follows the type attribute. A nil entry without error means the
// attribute is absent.
func (_this *Entry) Class() (*Entry, error) {
	field := _this.die.AttrField(dwarf.AttrType)
	if field == nil {
		return nil, nil
	}
	off, ok := field.Val.(dwarf.Offset)
	if field.Class != dwarf.ClassReference || !ok {
		return nil, fmt.Errorf("%w: type of entry 0x%x has class %s", ErrMalformedReference, _this.Offset(), field.Class)
	}
	// reference inside the home unit
	if _this.unit.Contains(off) {
		return _this.index.entryIn(_this.unit, off)
	}
	return _this.index.EntryAt(off)
}

// ExpandTypedefs follows typedef links to the first entry that is not a
// typedef. A chain ending in a typedef of void yields nil.
func (_this *Entry) ExpandTypedefs() (*Entry, error) {
	current := _this
	for i := 0; i < maxTypeChain; i++ {
		if current.Tag() != dwarf.TagTypedef {
			return current, nil
		}
		next, err := current.Class()
		if err != nil || next == nil {
			return nil, err
		}
		current = next
	}
	return nil, _this.errTypeChain()
}

func (_this *Entry) errTypeChain() error {
	return fmt.Errorf("%w: type chain of entry 0x%x exceeds %d links", ErrMalformedReference, _this.Offset(), maxTypeChain)
}

// BaseClasses iterates the types referenced by the inheritance children
func (_this *Entry) BaseClasses() *ClassIterator {
	_this.mustBeAggregate("BaseClasses")
	return &ClassIterator{
		children: _this.Children(),
		keep: func(kid *Entry) bool {
			return kid.Tag() == dwarf.TagInheritance
		},
	}
}

// ClassMembers iterates the types of the data members, members without a
// data_member_location (static members) are skipped
func (_this *Entry) ClassMembers() *ClassIterator {
	_this.mustBeAggregate("ClassMembers")
	return &ClassIterator{
		children: _this.Children(),
		keep: func(kid *Entry) bool {
			if kid.Tag() != dwarf.TagMember {
				return false
			}
			_, ok := kid.MemberLocation()
			return ok
		},
	}
}

func (_this *Entry) mustBeAggregate(caller string) {
	if !IsAggregate(_this.Tag()) {
		panic(fmt.Sprintf("%s called on %s entry at 0x%x", caller, _this.Tag(), _this.Offset()))
	}
}

// IsAggregate reports whether entries of tag can carry members and bases
func IsAggregate(tag dwarf.Tag) bool {
	switch tag {
	case dwarf.TagClassType, dwarf.TagStructType, dwarf.TagUnionType:
		return true
	}
	return false
}
