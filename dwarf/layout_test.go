package dwarfhelper

import (
	"bytes"
	"debug/dwarf"
	"strings"
	"testing"

	"github.com/go-delve/delve/pkg/dwarf/dwarfbuilder"
	"github.com/go-delve/delve/pkg/dwarf/op"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dwarflayout/internal/dwarftest"
)

func buildIndex(t *testing.T, b *dwarftest.Builder) *UnitIndex {
	t.Helper()
	data, err := b.Data()
	require.NoError(t, err)
	index, err := NewUnitIndex(data)
	require.NoError(t, err)
	return index
}

func dumpString(t *testing.T, index *UnitIndex, opts DumpOptions) string {
	t.Helper()
	buf := &bytes.Buffer{}
	_, err := Dump(index, opts, buf)
	require.NoError(t, err)
	return buf.String()
}

func nameFilter(name string) DumpOptions {
	return DumpOptions{Filter: &SearchFilter{ClassName: name}}
}

// fixture holds every scenario class in two units
func fixture() *dwarftest.Builder {
	b := dwarftest.New()
	b.StartUnit("first.cpp")
	intType := dwarftest.UnitRef(b.BaseType("int", 4))
	uint32Type := dwarftest.UnitRef(b.BaseType("uint32_t", 4))

	b.Class("Point", 8)
	b.Member("x", intType, 0)
	b.Member("y", intType, 4)
	b.TagClose()

	base := dwarftest.UnitRef(b.Class("Base", 8))
	b.Member("a", intType, 0)
	b.Member("b", intType, 4)
	b.TagClose()

	derived := dwarftest.UnitRef(b.Class("Derived", 16))
	b.Inheritance(base, 0)
	b.Member("z", intType, 8)
	b.TagClose()

	b.Class("MoreDerived", 24)
	b.Inheritance(derived, 0)
	b.Member("w", intType, 16)
	b.TagClose()

	node := dwarftest.UnitRef(b.Declaration("Node"))
	nodePtr := dwarftest.UnitRef(b.Pointer(node))
	b.Class("Node", 8)
	b.Member("next", nodePtr, 0)
	b.TagClose()

	alias1 := dwarftest.UnitRef(b.Typedef("u32", uint32Type))
	alias2 := dwarftest.UnitRef(b.Typedef("word_t", alias1))
	alias3 := dwarftest.UnitRef(b.Typedef("count_t", alias2))
	b.Class("Foo", 4)
	b.Member("count", alias3, 0)
	b.TagClose()

	handle := dwarftest.UnitRef(b.Class("Handle", 8))
	b.Member("fd", intType, 0)
	b.TagClose()

	b.Class("Session", 4)
	b.StaticMember("shared", handle)
	b.Member("id", intType, 0)
	b.TagClose()

	b.StartUnit("second.cpp")
	b.Class("Client", 8)
	b.Member("handle", dwarftest.InfoRef(handle), 0)
	b.TagClose()
	return b
}

func TestPrintPoint(t *testing.T) {
	index := buildIndex(t, fixture())
	expected := `struct Point { // 8 bytes
    int x; // 4 bytes, 0-4
    int y; // 4 bytes, 4-8
};
`
	assert.Equal(t, expected, dumpString(t, index, nameFilter("Point")))
}

func TestPrintInheritance(t *testing.T) {
	index := buildIndex(t, fixture())
	expected := `struct Derived { // 16 bytes
    Base _base_class; // 8 bytes, 0-8
    int z; // 4 bytes, 8-12
};
`
	assert.Equal(t, expected, dumpString(t, index, nameFilter("Derived")))
}

func TestPrintPointerMember(t *testing.T) {
	index := buildIndex(t, fixture())
	expected := `struct Node { // 8 bytes
    Node* next; // 8 bytes, 0-8
};
`
	assert.Equal(t, expected, dumpString(t, index, nameFilter("Node")))
}

func TestPrintTypedefChain(t *testing.T) {
	index := buildIndex(t, fixture())
	expected := `struct Foo { // 4 bytes
    uint32_t count; // 4 bytes, 0-4
};
`
	assert.Equal(t, expected, dumpString(t, index, nameFilter("Foo")))
}

func TestPrintSkipsStaticMembers(t *testing.T) {
	index := buildIndex(t, fixture())
	expected := `struct Session { // 4 bytes
    int id; // 4 bytes, 0-4
};
`
	assert.Equal(t, expected, dumpString(t, index, nameFilter("Session")))
}

func TestDumpAll(t *testing.T) {
	index := buildIndex(t, fixture())
	out := dumpString(t, index, DumpOptions{})

	headers := printedNames(out)
	// the Node declaration has no byte size
	assert.Equal(t, []string{"Point", "Base", "Derived", "MoreDerived", "Node", "Foo", "Handle", "Session", "Client"}, headers)
	assert.False(t, strings.HasPrefix(out, "\n"))
	assert.False(t, strings.HasSuffix(out, "\n\n"))
	assert.Equal(t, len(headers)-1, strings.Count(out, "\n\n"))
}

func TestDumpIsDeterministic(t *testing.T) {
	index := buildIndex(t, fixture())
	first := dumpString(t, index, DumpOptions{})
	second := dumpString(t, buildIndex(t, fixture()), DumpOptions{})
	assert.Equal(t, first, second)
	assert.Equal(t, first, dumpString(t, index, DumpOptions{}))
}

func TestDumpDeduplicatesAcrossUnits(t *testing.T) {
	b := dwarftest.New()
	for _, unit := range []string{"a.cpp", "b.cpp"} {
		b.StartUnit(unit)
		intType := dwarftest.UnitRef(b.BaseType("int", 4))
		b.Class("Widget", 4)
		b.Member("id", intType, 0)
		b.TagClose()
	}
	index := buildIndex(t, b)
	require.Equal(t, 2, index.Len())

	expected := `struct Widget { // 4 bytes
    int id; // 4 bytes, 0-4
};
`
	assert.Equal(t, expected, dumpString(t, index, DumpOptions{}))
}

func TestDumpKeepsAnonymousClasses(t *testing.T) {
	b := dwarftest.New()
	b.StartUnit("anon.cpp")
	for i := 0; i < 2; i++ {
		b.TagOpen(dwarf.TagClassType, "")
		b.Attr(dwarf.AttrByteSize, uint8(1))
		b.TagClose()
	}
	index := buildIndex(t, b)
	expected := `struct unknown_class { // 1 bytes
};

struct unknown_class { // 1 bytes
};
`
	assert.Equal(t, expected, dumpString(t, index, DumpOptions{}))
}

func TestPrintFallbackNames(t *testing.T) {
	b := dwarftest.New()
	b.StartUnit("anon.cpp")
	anon := b.TagOpen(dwarf.TagStructType, "")
	b.Attr(dwarf.AttrByteSize, uint8(4))
	b.TagClose()
	alias := dwarftest.UnitRef(b.Typedef("anon_t", dwarftest.UnitRef(anon)))
	voidAlias := dwarftest.UnitRef(b.Typedef("void_t", nil))
	voidPtr := dwarftest.UnitRef(b.Pointer(nil))

	b.Class("Holder", 16)
	b.Member("", alias, 0)
	b.Member("opaque", voidAlias, 4)
	b.Member("raw", voidPtr, 8)
	b.TagClose()
	index := buildIndex(t, b)

	expected := `struct Holder { // 16 bytes
    unknown_class unknown_name; // 4 bytes, 0-4
    unknown_class opaque; // 0 bytes, 4-4
    unknown_class raw; // 8 bytes, 8-16
};
`
	assert.Equal(t, expected, dumpString(t, index, DumpOptions{}))
}

func TestPrintEmptyClass(t *testing.T) {
	b := dwarftest.New()
	b.StartUnit("empty.cpp")
	b.Class("Empty", 1)
	b.SetHasChildren()
	b.TagClose()
	index := buildIndex(t, b)
	assert.Equal(t, "struct Empty { // 1 bytes\n};\n", dumpString(t, index, DumpOptions{}))
}

func TestDumpIncludeStructs(t *testing.T) {
	b := dwarftest.New()
	b.StartUnit("structs.cpp")
	intType := dwarftest.UnitRef(b.BaseType("int", 4))
	b.TagOpen(dwarf.TagStructType, "Plain")
	b.Attr(dwarf.AttrByteSize, uint8(4))
	b.Member("v", intType, 0)
	b.TagClose()
	b.TagOpen(dwarf.TagUnionType, "Either")
	b.Attr(dwarf.AttrByteSize, uint8(4))
	b.Member("i", intType, 0)
	b.Member("j", intType, 0)
	b.TagClose()
	index := buildIndex(t, b)

	assert.Equal(t, "", dumpString(t, index, DumpOptions{}))
	out := dumpString(t, index, DumpOptions{IncludeStructs: true})
	assert.Contains(t, out, "struct Plain { // 4 bytes\n    int v; // 4 bytes, 0-4\n};\n")
	assert.Contains(t, out, "    int j; // 4 bytes, 0-4\n")
}

func TestDumpStopsOnMalformedReference(t *testing.T) {
	b := dwarftest.New()
	b.StartUnit("broken.cpp")
	intType := dwarftest.UnitRef(b.BaseType("int", 4))
	b.Class("Good", 4)
	b.Member("v", intType, 0)
	b.TagClose()
	b.Class("Bad", 8)
	b.Member("sig", dwarftest.Signature(0xfeedface), 0)
	b.TagClose()
	index := buildIndex(t, b)

	buf := &bytes.Buffer{}
	printed, err := Dump(index, DumpOptions{}, buf)
	assert.ErrorIs(t, err, ErrMalformedReference)
	assert.Equal(t, 1, printed)
	assert.Equal(t, "struct Good { // 4 bytes\n    int v; // 4 bytes, 0-4\n};\n", buf.String())
}

func TestFieldsInvariant(t *testing.T) {
	index := buildIndex(t, fixture())
	for _, unit := range index.Units() {
		kids := index.Root(unit).Children()
		for {
			kid, err := kids.Next()
			require.NoError(t, err)
			if kid == nil {
				break
			}
			if kid.Tag() != dwarf.TagClassType {
				continue
			}
			fields, err := kid.Fields()
			require.NoError(t, err)
			for _, f := range fields {
				assert.Equal(t, f.Size, f.End()-f.Start)
			}
		}
	}
}

func TestMemberLocationPlusUconst(t *testing.T) {
	b := dwarfbuilder.New()
	intType := b.TagOpen(dwarf.TagBaseType, "int")
	b.Attr(dwarf.AttrByteSize, uint8(4))
	b.TagClose()
	b.TagOpen(dwarf.TagClassType, "Pair")
	b.Attr(dwarf.AttrByteSize, uint8(8))
	b.AddMember("first", intType, []byte{byte(op.DW_OP_plus_uconst), 0})
	b.AddMember("second", intType, []byte{byte(op.DW_OP_plus_uconst), 4})
	b.TagClose()
	abbrev, aranges, frame, info, line, pubnames, ranges, str, _, err := b.Build()
	require.NoError(t, err)
	data, err := dwarf.New(abbrev, aranges, frame, info, line, pubnames, ranges, str)
	require.NoError(t, err)
	index, err := NewUnitIndex(data)
	require.NoError(t, err)

	expected := `struct Pair { // 8 bytes
    int first; // 4 bytes, 0-4
    int second; // 4 bytes, 4-8
};
`
	assert.Equal(t, expected, dumpString(t, index, DumpOptions{}))
}

func TestPlusUconst(t *testing.T) {
	tests := []struct {
		name string
		expr []byte
		val  uint64
		ok   bool
	}{
		{name: "small", expr: []byte{byte(op.DW_OP_plus_uconst), 8}, val: 8, ok: true},
		{name: "multi-byte", expr: []byte{byte(op.DW_OP_plus_uconst), 0x80, 0x01}, val: 128, ok: true},
		{name: "empty", expr: nil},
		{name: "other-op", expr: []byte{byte(op.DW_OP_lit0)}},
		{name: "trailing-ops", expr: []byte{byte(op.DW_OP_plus_uconst), 8, byte(op.DW_OP_deref)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val, ok := plusUconst(tt.expr)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.val, val)
		})
	}
}
