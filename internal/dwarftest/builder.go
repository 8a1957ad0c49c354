// Package dwarftest builds DWARF 4 .debug_info and .debug_abbrev sections
// holding any number of compilation units, for tests.
package dwarftest

import (
	"bytes"
	"debug/dwarf"
	"encoding/binary"
	"fmt"

	"github.com/go-delve/delve/pkg/dwarf/leb128"
)

// Attribute values select their form by type.
type (
	// UnitRef is encoded as DW_FORM_ref4, relative to the current unit
	UnitRef dwarf.Offset
	// InfoRef is encoded as DW_FORM_ref_addr, relative to .debug_info
	InfoRef dwarf.Offset
	// Signature is encoded as DW_FORM_ref_sig8
	Signature uint64
)

const (
	formRefAddr     = 0x10
	formData2       = 0x05
	formData4       = 0x06
	formData8       = 0x07
	formString      = 0x08
	formData1       = 0x0b
	formRef4        = 0x13
	formExprloc     = 0x18
	formFlagPresent = 0x19
	formRefSig8     = 0x20
)

type attrForm struct {
	attr dwarf.Attr
	form uint64
}

type tagDescr struct {
	tag      dwarf.Tag
	children bool
	attrs    []attrForm
}

type tagState struct {
	tagDescr
	off int
}

// Builder dwarf builder
type Builder struct {
	info     bytes.Buffer
	abbrevs  []tagDescr
	tagStack []*tagState
	unitOff  int
	inUnit   bool
	padding  int
}

func New() *Builder {
	return &Builder{}
}

// StartUnit closes the open unit, if any, and starts a compile unit
func (b *Builder) StartUnit(name string) dwarf.Offset {
	b.closeUnit()
	b.unitOff = b.info.Len()
	b.info.Write([]byte{
		0x0, 0x0, 0x0, 0x0, // length
		0x4, 0x0, // version
		0x0, 0x0, 0x0, 0x0, // debug_abbrev_offset
		0x8, // address_size
	})
	b.inUnit = true
	return b.TagOpen(dwarf.TagCompileUnit, name)
}

func (b *Builder) closeUnit() {
	if !b.inUnit {
		return
	}
	b.TagClose()
	if len(b.tagStack) > 0 {
		panic(fmt.Sprintf("unbalanced TagOpen/TagClose %d", len(b.tagStack)))
	}
	b.info.Write(make([]byte, b.padding))
	b.padding = 0
	binary.LittleEndian.PutUint32(b.info.Bytes()[b.unitOff:], uint32(b.info.Len()-b.unitOff-4))
	b.inUnit = false
}

// TagOpen starts a new DIE, close it with TagClose
func (b *Builder) TagOpen(tag dwarf.Tag, name string) dwarf.Offset {
	if !b.inUnit {
		panic("TagOpen outside of a unit")
	}
	if len(b.tagStack) > 0 {
		b.tagStack[len(b.tagStack)-1].children = true
	}
	ts := &tagState{off: b.info.Len()}
	ts.tag = tag
	// abbrev code, known at TagClose
	b.info.WriteByte(0)
	b.tagStack = append(b.tagStack, ts)
	if name != "" {
		b.Attr(dwarf.AttrName, name)
	}
	return dwarf.Offset(ts.off)
}

// PadUnit appends n zero bytes after the closing entry of the current unit
func (b *Builder) PadUnit(n int) {
	b.padding = n
}

// SetHasChildren marks the current DIE as having children even if none are added
func (b *Builder) SetHasChildren() {
	b.tagStack[len(b.tagStack)-1].children = true
}

func (b *Builder) TagClose() {
	ts := b.tagStack[len(b.tagStack)-1]
	b.tagStack = b.tagStack[:len(b.tagStack)-1]
	code := b.abbrevFor(ts.tagDescr)
	if code > 0x7f {
		panic("too many abbreviations")
	}
	b.info.Bytes()[ts.off] = byte(code)
	if ts.children {
		b.info.WriteByte(0)
	}
}

// Attr adds an attribute to the current DIE
func (b *Builder) Attr(attr dwarf.Attr, val interface{}) {
	ts := b.tagStack[len(b.tagStack)-1]
	var form uint64
	switch x := val.(type) {
	case string:
		form = formString
		b.info.WriteString(x)
		b.info.WriteByte(0)
	case uint8:
		form = formData1
		b.info.WriteByte(x)
	case uint16:
		form = formData2
		_ = binary.Write(&b.info, binary.LittleEndian, x)
	case uint32:
		form = formData4
		_ = binary.Write(&b.info, binary.LittleEndian, x)
	case uint64:
		form = formData8
		_ = binary.Write(&b.info, binary.LittleEndian, x)
	case bool:
		if !x {
			panic("only present flags are supported")
		}
		form = formFlagPresent
	case UnitRef:
		form = formRef4
		_ = binary.Write(&b.info, binary.LittleEndian, uint32(int(x)-b.unitOff))
	case InfoRef:
		form = formRefAddr
		_ = binary.Write(&b.info, binary.LittleEndian, uint32(x))
	case Signature:
		form = formRefSig8
		_ = binary.Write(&b.info, binary.LittleEndian, uint64(x))
	case []byte:
		form = formExprloc
		leb128.EncodeUnsigned(&b.info, uint64(len(x)))
		b.info.Write(x)
	default:
		panic(fmt.Sprintf("unknown value type %T", val))
	}
	ts.attrs = append(ts.attrs, attrForm{attr: attr, form: form})
}

func (b *Builder) abbrevFor(descr tagDescr) int {
	for i := range b.abbrevs {
		if sameDescr(b.abbrevs[i], descr) {
			return i + 1
		}
	}
	b.abbrevs = append(b.abbrevs, descr)
	return len(b.abbrevs)
}

func sameDescr(a, b tagDescr) bool {
	if a.tag != b.tag || a.children != b.children || len(a.attrs) != len(b.attrs) {
		return false
	}
	for i := range a.attrs {
		if a.attrs[i] != b.attrs[i] {
			return false
		}
	}
	return true
}

// Build closes the open unit and returns the abbrev and info sections
func (b *Builder) Build() (abbrev, info []byte) {
	b.closeUnit()
	var buf bytes.Buffer
	for i, descr := range b.abbrevs {
		leb128.EncodeUnsigned(&buf, uint64(i+1))
		leb128.EncodeUnsigned(&buf, uint64(descr.tag))
		if descr.children {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		for _, a := range descr.attrs {
			leb128.EncodeUnsigned(&buf, uint64(a.attr))
			leb128.EncodeUnsigned(&buf, a.form)
		}
		buf.WriteByte(0)
		buf.WriteByte(0)
	}
	buf.WriteByte(0)
	return buf.Bytes(), b.info.Bytes()
}

// Data builds the sections and opens them with debug/dwarf
func (b *Builder) Data() (*dwarf.Data, error) {
	abbrev, info := b.Build()
	return dwarf.New(abbrev, nil, nil, info, nil, nil, nil, nil)
}

func (b *Builder) BaseType(name string, size uint8) dwarf.Offset {
	off := b.TagOpen(dwarf.TagBaseType, name)
	b.Attr(dwarf.AttrByteSize, size)
	b.TagClose()
	return off
}

// Class opens a class DIE, close it with TagClose
func (b *Builder) Class(name string, size uint8) dwarf.Offset {
	off := b.TagOpen(dwarf.TagClassType, name)
	b.Attr(dwarf.AttrByteSize, size)
	return off
}

// Declaration is a class declared without a definition
func (b *Builder) Declaration(name string) dwarf.Offset {
	off := b.TagOpen(dwarf.TagClassType, name)
	b.Attr(dwarf.AttrDeclaration, true)
	b.TagClose()
	return off
}

func (b *Builder) Member(name string, typ interface{}, loc uint8) dwarf.Offset {
	off := b.TagOpen(dwarf.TagMember, name)
	b.Attr(dwarf.AttrType, typ)
	b.Attr(dwarf.AttrDataMemberLoc, loc)
	b.TagClose()
	return off
}

// StaticMember is a member without data_member_location
func (b *Builder) StaticMember(name string, typ interface{}) dwarf.Offset {
	off := b.TagOpen(dwarf.TagMember, name)
	b.Attr(dwarf.AttrType, typ)
	b.Attr(dwarf.AttrExternal, true)
	b.Attr(dwarf.AttrDeclaration, true)
	b.TagClose()
	return off
}

func (b *Builder) Inheritance(typ interface{}, loc uint8) dwarf.Offset {
	off := b.TagOpen(dwarf.TagInheritance, "")
	b.Attr(dwarf.AttrType, typ)
	b.Attr(dwarf.AttrDataMemberLoc, loc)
	b.TagClose()
	return off
}

func (b *Builder) Pointer(typ interface{}) dwarf.Offset {
	off := b.TagOpen(dwarf.TagPointerType, "")
	if typ != nil {
		b.Attr(dwarf.AttrType, typ)
	}
	b.TagClose()
	return off
}

func (b *Builder) Typedef(name string, typ interface{}) dwarf.Offset {
	off := b.TagOpen(dwarf.TagTypedef, name)
	if typ != nil {
		b.Attr(dwarf.AttrType, typ)
	}
	b.TagClose()
	return off
}
