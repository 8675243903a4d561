// Package elfx provides ELF loading helpers for AArch64 executables and
// shared objects: segment mapping, function symbols, and string data.
package elfx

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

var (
	ErrNotELF      = errors.New("elfx: not an ELF file")
	ErrNotARM64    = errors.New("elfx: not ARM64 (EM_AARCH64)")
	ErrNotLoadable = errors.New("elfx: not an executable or shared object")
	ErrNot64Bit    = errors.New("elfx: not 64-bit ELF")
	ErrNoSymbol    = errors.New("elfx: symbol not found")
	ErrNoSegment   = errors.New("elfx: no PT_LOAD segment covers address")
)

// File wraps a debug/elf.File with convenience methods for code analysis.
type File struct {
	ELF    *elf.File
	raw    io.ReaderAt
	size   int64
	closer io.Closer
}

// Open opens an ELF file and validates it is an ARM64 executable or shared
// object.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfx: stat: %w", err)
	}
	ef, err := NewFile(f, info.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	ef.closer = f
	return ef, nil
}

// NewFile parses an ELF image of the given size.
func NewFile(r io.ReaderAt, size int64) (*File, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}
	if ef.Class != elf.ELFCLASS64 {
		return nil, ErrNot64Bit
	}
	if ef.Machine != elf.EM_AARCH64 {
		return nil, ErrNotARM64
	}
	if ef.Type != elf.ET_DYN && ef.Type != elf.ET_EXEC {
		return nil, fmt.Errorf("%w: %s", ErrNotLoadable, ef.Type)
	}
	return &File{ELF: ef, raw: r, size: size}, nil
}

// Close releases resources.
func (f *File) Close() error {
	err := f.ELF.Close()
	if f.closer != nil {
		if cerr := f.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// FileSize returns the size of the underlying file.
func (f *File) FileSize() int64 { return f.size }

// Symbol is a defined function or object symbol.
type Symbol struct {
	Name    string
	Addr    uint64
	Size    uint64
	Func    bool
	Dynamic bool // from .dynsym
}

// Symbols returns defined STT_FUNC and STT_OBJECT symbols from .symtab and
// .dynsym, sorted by address. When both tables name an address, the
// .symtab entry wins. Missing tables are not an error.
func (f *File) Symbols() ([]Symbol, error) {
	byAddr := make(map[uint64]Symbol)
	add := func(syms []elf.Symbol, dynamic bool) {
		for _, s := range syms {
			typ := elf.ST_TYPE(s.Info)
			if typ != elf.STT_FUNC && typ != elf.STT_OBJECT {
				continue
			}
			if s.Section == elf.SHN_UNDEF || s.Value == 0 || s.Name == "" {
				continue
			}
			if _, seen := byAddr[s.Value]; seen {
				continue
			}
			byAddr[s.Value] = Symbol{
				Name:    s.Name,
				Addr:    s.Value,
				Size:    s.Size,
				Func:    typ == elf.STT_FUNC,
				Dynamic: dynamic,
			}
		}
	}
	static, err := f.ELF.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("elfx: symtab: %w", err)
	}
	add(static, false)
	dyn, err := f.ELF.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, fmt.Errorf("elfx: dynsym: %w", err)
	}
	add(dyn, true)

	out := make([]Symbol, 0, len(byAddr))
	for _, s := range byAddr {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out, nil
}

// Symbol looks up a defined symbol by exact name.
// Returns the symbol's virtual address and size.
func (f *File) Symbol(name string) (addr, size uint64, err error) {
	syms, err := f.Symbols()
	if err != nil {
		return 0, 0, err
	}
	for _, s := range syms {
		if s.Name == name {
			return s.Addr, s.Size, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrNoSymbol, name)
}

// VAToFileOffset converts a virtual address to a file offset using PT_LOAD segments.
func (f *File) VAToFileOffset(va uint64) (uint64, error) {
	off, _, err := f.fileSpan(va)
	return off, err
}

// fileSpan maps va to a file offset and returns how many file-backed bytes
// its segment holds from there on, clamped to the end of the file.
func (f *File) fileSpan(va uint64) (off, avail uint64, err error) {
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if va >= p.Vaddr && va-p.Vaddr < p.Filesz {
			off = va - p.Vaddr + p.Off
			if off < p.Off || off >= uint64(f.size) {
				return 0, 0, fmt.Errorf("elfx: VA 0x%x maps to offset 0x%x beyond file size 0x%x", va, off, f.size)
			}
			avail = min(p.Filesz-(va-p.Vaddr), uint64(f.size)-off)
			return off, avail, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: VA 0x%x", ErrNoSegment, va)
}

// ReadBytesAtVA reads up to n bytes starting at the given virtual address,
// clamped to the file-backed end of the segment holding va.
func (f *File) ReadBytesAtVA(va uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("elfx: negative read length %d at VA 0x%x", n, va)
	}
	off, avail, err := f.fileSpan(va)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, min(uint64(n), avail))
	got, err := f.raw.ReadAt(buf, int64(off))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("elfx: read at 0x%x: %w", off, err)
	}
	return buf[:got], nil
}

// IsExecutable reports whether va lies in an executable PT_LOAD segment.
func (f *File) IsExecutable(va uint64) bool {
	for _, p := range f.ELF.Progs {
		if p.Type == elf.PT_LOAD && p.Flags&elf.PF_X != 0 && va >= p.Vaddr && va < p.Vaddr+p.Memsz {
			return true
		}
	}
	return false
}

// CString reads the NUL-terminated string at va from a non-executable
// allocated section. It reports false when va is not in such a section or
// no terminator appears within limit bytes.
func (f *File) CString(va uint64, limit int) ([]byte, bool) {
	for _, s := range f.ELF.Sections {
		if s.Flags&elf.SHF_ALLOC == 0 || s.Flags&elf.SHF_EXECINSTR != 0 || s.Type == elf.SHT_NOBITS {
			continue
		}
		if va < s.Addr || va >= s.Addr+s.Size {
			continue
		}
		n := min(uint64(limit), s.Addr+s.Size-va)
		buf := make([]byte, n)
		got, err := s.ReadAt(buf, int64(va-s.Addr))
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, false
		}
		i := bytes.IndexByte(buf[:got], 0)
		if i < 0 {
			return nil, false
		}
		return buf[:i], true
	}
	return nil, false
}

// SegmentInfo describes a PT_LOAD segment.
type SegmentInfo struct {
	Vaddr  uint64
	Memsz  uint64
	Filesz uint64
	Offset uint64
	Flags  elf.ProgFlag
}

// LoadSegments returns all PT_LOAD segments.
func (f *File) LoadSegments() []SegmentInfo {
	var segs []SegmentInfo
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		segs = append(segs, SegmentInfo{
			Vaddr:  p.Vaddr,
			Memsz:  p.Memsz,
			Filesz: p.Filesz,
			Offset: p.Off,
			Flags:  p.Flags,
		})
	}
	return segs
}
