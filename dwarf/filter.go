package dwarfhelper

import (
	"debug/dwarf"
)

// SearchFilter selects the classes to print. Every empty field accepts all.
type SearchFilter struct {
	ClassName          string
	BaseClassName      string
	ContainedClassName string
	// TransitiveBases lets BaseClassName match any ancestor, not only direct bases
	TransitiveBases bool
}

// Match reports whether the aggregate entry passes all three sub-filters
func (_this *SearchFilter) Match(entry *Entry) (bool, error) {
	if _this == nil {
		return true, nil
	}
	if _this.ClassName != "" {
		name, err := entry.Name()
		if err != nil || name != _this.ClassName {
			return false, err
		}
	}
	if _this.BaseClassName != "" {
		ok, err := _this.matchBaseClass(entry)
		if err != nil || !ok {
			return false, err
		}
	}
	if _this.ContainedClassName != "" {
		ok, err := _this.matchMember(entry)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (_this *SearchFilter) matchBaseClass(entry *Entry) (bool, error) {
	visited := make(map[dwarf.Offset]bool)
	queue := []*Entry{entry}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if !IsAggregate(current.Tag()) {
			continue
		}
		bases := current.BaseClasses()
		for {
			base, err := bases.Next()
			if err != nil {
				return false, err
			}
			if base == nil {
				break
			}
			name, err := base.Name()
			if err != nil {
				return false, err
			}
			if name == _this.BaseClassName {
				return true, nil
			}
			if _this.TransitiveBases && !visited[base.Offset()] {
				visited[base.Offset()] = true
				queue = append(queue, base)
			}
		}
	}
	return false, nil
}

// members match on the name of their type or on the typedef-expanded name
// the layout prints
func (_this *SearchFilter) matchMember(entry *Entry) (bool, error) {
	members := entry.ClassMembers()
	for {
		member, err := members.Next()
		if err != nil {
			return false, err
		}
		if member == nil {
			return false, nil
		}
		name, err := member.Name()
		if err != nil {
			return false, err
		}
		if name == _this.ContainedClassName {
			return true, nil
		}
		if member.Tag() != dwarf.TagTypedef {
			continue
		}
		expanded, err := member.ExpandTypedefs()
		if err != nil {
			return false, err
		}
		if expanded == nil {
			continue
		}
		name, err = expanded.Name()
		if err != nil {
			return false, err
		}
		if name == _this.ContainedClassName {
			return true, nil
		}
	}
}
