package dwarfhelper

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/go-delve/delve/pkg/dwarf/godwarf"
	"github.com/hashicorp/go-multierror"

	"dwarflayout/logger"
)

var log = logger.GetLogger("dwarf")

// There are many DWARF sections, but these are the ones
// dwarf.New takes directly.
var baseSections = []string{"abbrev", "info", "str", "line", "ranges"}

// DWARF 5 sections registered through AddSection.
var extraSections = []string{"addr", "line_str", "str_offsets", "rnglists", "loclists"}

type DwarfInfo struct {
	path      string
	elfFile   *elf.File
	debugFile *elf.File
	data      *dwarf.Data
}

// NewDwarfInfo opens input and loads its debug sections, falling back to the
// companion named by .gnu_debuglink for sections the object does not carry.
func NewDwarfInfo(input string) (*DwarfInfo, error) {
	elfFile, err := elf.Open(input)
	if err != nil {
		return nil, err
	}
	info := &DwarfInfo{
		path:    input,
		elfFile: elfFile,
	}
	info.debugFile, err = openDebugLink(input, elfFile)
	if err != nil {
		_ = info.Close()
		return nil, err
	}
	info.data, err = LoadDWARF(elfFile, info.debugFile)
	if err != nil {
		_ = info.Close()
		return nil, err
	}
	return info, nil
}

func (_this *DwarfInfo) GetData() *dwarf.Data {
	return _this.data
}

func (_this *DwarfInfo) Path() string {
	return _this.path
}

// HasCompanion reports whether a debug-link companion was opened
func (_this *DwarfInfo) HasCompanion() bool {
	return _this.debugFile != nil
}

func (_this *DwarfInfo) Close() error {
	var result error
	if _this.debugFile != nil {
		if err := _this.debugFile.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing debug link companion: %v", err))
		}
	}
	if _this.elfFile != nil {
		if err := _this.elfFile.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing %s: %v", _this.path, err))
		}
	}
	return result
}

// LoadDWARF builds the decoder from the debug sections of main, taking each
// section from companion when main lacks it. companion may be nil. Without
// any .debug_info the result is nil and there are no units to list.
func LoadDWARF(main, companion *elf.File) (*dwarf.Data, error) {
	if !hasDebugSection(main, "info") && (companion == nil || !hasDebugSection(companion, "info")) {
		log.Warnf("no .debug_info section found, nothing to list")
		return nil, nil
	}
	// elf applies the relocation map of relocatable objects itself
	if main.Type == elf.ET_REL && companion == nil {
		return main.DWARF()
	}

	dat := make(map[string][]byte, len(baseSections))
	for _, name := range baseSections {
		b, err := sectionData(name, main, companion)
		if err != nil {
			return nil, err
		}
		log.Debugf("loaded .debug_%s: %d bytes", name, len(b))
		dat[name] = b
	}
	if len(dat["info"]) == 0 {
		log.Warnf("empty .debug_info section, nothing to list")
		return nil, nil
	}

	d, err := dwarf.New(dat["abbrev"], nil, nil, dat["info"], dat["line"], nil, dat["ranges"], dat["str"])
	if err != nil {
		return nil, err
	}

	for _, name := range extraSections {
		b, err := sectionData(name, main, companion)
		if err != nil {
			return nil, err
		}
		if b == nil {
			continue
		}
		log.Debugf("loaded .debug_%s: %d bytes", name, len(b))
		if err := d.AddSection(".debug_"+name, b); err != nil {
			return nil, err
		}
	}

	// DWARF 4 type units
	types, err := sectionData("types", main, companion)
	if err != nil {
		return nil, err
	}
	if types != nil {
		if err := d.AddTypes("types", types); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// sectionData returns the uncompressed contents of .debug_<name> from the
// first object carrying it, or nil when none does.
func sectionData(name string, objects ...*elf.File) ([]byte, error) {
	for _, f := range objects {
		if f == nil || !hasDebugSection(f, name) {
			continue
		}
		b, err := godwarf.GetDebugSectionElf(f, name)
		if err != nil {
			return nil, fmt.Errorf("read .debug_%s: %w", name, err)
		}
		return b, nil
	}
	return nil, nil
}

func hasDebugSection(f *elf.File, name string) bool {
	for _, prefix := range []string{".debug_", ".zdebug_"} {
		if s := f.Section(prefix + name); s != nil && s.Type != elf.SHT_NOBITS {
			return true
		}
	}
	return false
}

// DebugLink returns the companion file name and checksum stored in the
// .gnu_debuglink section, ok is false when the object has none.
func DebugLink(f *elf.File) (name string, crc uint32, ok bool, err error) {
	sec := f.Section(".gnu_debuglink")
	if sec == nil {
		return "", 0, false, nil
	}
	b, err := sec.Data()
	if err != nil {
		return "", 0, false, err
	}
	name, crc, err = parseDebugLink(b, f.ByteOrder)
	if err != nil {
		return "", 0, false, err
	}
	return name, crc, true, nil
}

// the section holds a NUL terminated file name, padding up to a four byte
// boundary, then the CRC32 of the companion
func parseDebugLink(b []byte, order binary.ByteOrder) (string, uint32, error) {
	end := bytes.IndexByte(b, 0)
	if end <= 0 {
		return "", 0, fmt.Errorf("malformed .gnu_debuglink section: missing file name")
	}
	crcOff := (end + 4) &^ 3
	if len(b) < crcOff+4 {
		return "", 0, fmt.Errorf("malformed .gnu_debuglink section: missing checksum")
	}
	return string(b[:end]), order.Uint32(b[crcOff:]), nil
}

func debugLinkPath(objectPath, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(filepath.Dir(objectPath), name)
}

func openDebugLink(objectPath string, f *elf.File) (*elf.File, error) {
	name, crc, ok, err := DebugLink(f)
	if err != nil || !ok {
		return nil, err
	}
	companionPath := debugLinkPath(objectPath, name)
	content, err := os.ReadFile(companionPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debugf("debug link companion %s not found, ignored", companionPath)
			return nil, nil
		}
		return nil, err
	}
	if sum := crc32.ChecksumIEEE(content); sum != crc {
		log.Warnf("debug link companion %s checksum is %08x, expected %08x", companionPath, sum, crc)
	}

	companion, err := elf.NewFile(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse debug link companion %s: %v", companionPath, err)
	}
	if err := checkByteOrder(f, companion); err != nil {
		return nil, err
	}
	log.Debugf("using debug link companion %s", companionPath)
	return companion, nil
}

func checkByteOrder(main, companion *elf.File) error {
	if main.Data != companion.Data {
		return fmt.Errorf("%w: object is %s, companion is %s", ErrEndianMismatch, main.Data, companion.Data)
	}
	return nil
}
