package dwarfhelper

import (
	"debug/dwarf"
	"fmt"
	"io"

	"dwarflayout/utils"
)

const (
	unknownClass  = "unknown_class"
	unknownName   = "unknown_name"
	baseClassName = "_base_class"
)

// Field is one laid out member or base class of an aggregate
type Field struct {
	TypeName string
	Name     string
	Size     int64
	Start    int64
}

func (f Field) End() int64 {
	return f.Start + f.Size
}

// Fields lists the member and inheritance children that carry a
// data_member_location, in document order
func (_this *Entry) Fields() ([]Field, error) {
	_this.mustBeAggregate("Fields")
	fields := make([]Field, 0)
	kids := _this.Children()
	for {
		kid, err := kids.Next()
		if err != nil {
			return nil, err
		}
		if kid == nil {
			return fields, nil
		}
		if kid.Tag() != dwarf.TagMember && kid.Tag() != dwarf.TagInheritance {
			continue
		}
		start, ok := kid.MemberLocation()
		if !ok {
			continue
		}
		f := Field{
			TypeName: unknownClass,
			Name:     baseClassName,
			Start:    start,
		}
		if kid.Tag() == dwarf.TagMember {
			name, err := kid.Name()
			if err != nil {
				return nil, err
			}
			f.Name = name
			if f.Name == "" {
				f.Name = unknownName
			}
		}

		class, err := kid.Class()
		if err != nil {
			return nil, err
		}
		if class != nil {
			class, err = class.ExpandTypedefs()
			if err != nil {
				return nil, err
			}
		}
		if class != nil {
			typeName, err := class.Name()
			if err != nil {
				return nil, err
			}
			if typeName != "" {
				f.TypeName = typeName
			}
			f.Size, _ = class.SizeBytes()
		}
		fields = append(fields, f)
	}
}

// LayoutPrinter writes the pseudo-declarations, one blank line between classes
type LayoutPrinter struct {
	w       io.Writer
	printed int
}

func NewLayoutPrinter(w io.Writer) *LayoutPrinter {
	return &LayoutPrinter{w: w}
}

// Printed is the number of classes written so far
func (_this *LayoutPrinter) Printed() int {
	return _this.printed
}

func (_this *LayoutPrinter) Print(entry *Entry) error {
	name, err := entry.Name()
	if err != nil {
		return err
	}
	if name == "" {
		name = unknownClass
	}
	size, _ := entry.SizeBytes()
	fields, err := entry.Fields()
	if err != nil {
		return err
	}

	if _this.printed > 0 {
		if _, err = fmt.Fprintln(_this.w); err != nil {
			return err
		}
	}
	_this.printed++
	if _, err = fmt.Fprintf(_this.w, "struct %s { // %d bytes\n", name, size); err != nil {
		return err
	}
	for _, f := range fields {
		_, err = fmt.Fprintf(_this.w, "    %s %s; // %d bytes, %d-%d\n", f.TypeName, f.Name, f.Size, f.Start, f.End())
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(_this.w, "};")
	return err
}

// DumpOptions select the candidate top-level entries
type DumpOptions struct {
	Filter *SearchFilter
	// IncludeStructs also considers structure and union types, not only classes
	IncludeStructs bool
}

// Dump prints every sized top-level class of every unit that passes the
// filter, each name once, and returns how many were printed.
func Dump(index *UnitIndex, opts DumpOptions, w io.Writer) (int, error) {
	printer := NewLayoutPrinter(w)
	dedup := utils.NewNameDeduper()
	for _, unit := range index.Units() {
		kids := index.Root(unit).Children()
		for {
			kid, err := kids.Next()
			if err != nil {
				return printer.Printed(), err
			}
			if kid == nil {
				break
			}
			if !opts.isCandidate(kid) {
				continue
			}
			ok, err := opts.Filter.Match(kid)
			if err != nil {
				return printer.Printed(), err
			}
			if !ok {
				continue
			}
			name, err := kid.Name()
			if err != nil {
				return printer.Printed(), err
			}
			if !dedup.First(name) {
				continue
			}
			if err := printer.Print(kid); err != nil {
				return printer.Printed(), err
			}
		}
	}
	return printer.Printed(), nil
}

func (opts DumpOptions) isCandidate(entry *Entry) bool {
	switch entry.Tag() {
	case dwarf.TagClassType:
	case dwarf.TagStructType, dwarf.TagUnionType:
		if !opts.IncludeStructs {
			return false
		}
	default:
		return false
	}
	return entry.HasByteSize()
}
