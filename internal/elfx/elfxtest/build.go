// Package elfxtest builds small AArch64 ELF images for tests.
package elfxtest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Sym is a defined symbol.
type Sym struct {
	Name string
	Addr uint64
	Size uint64
}

// Image describes the ELF to build: one executable .text segment and one
// read-only .rodata segment, with function symbols in .text and object
// symbols in .rodata.
type Image struct {
	Type       elf.Type // defaults to ET_DYN
	Machine    elf.Machine
	TextAddr   uint64
	Text       []uint32
	RodataAddr uint64
	Rodata     []byte
	Funcs      []Sym
	Objects    []Sym
}

const (
	ehdrSize = 64
	phdrSize = 56
	shdrSize = 64
	symSize  = 24
)

// Build lays out the image. The result parses with debug/elf.
func Build(img Image) []byte {
	if img.Type == 0 {
		img.Type = elf.ET_DYN
	}
	if img.Machine == 0 {
		img.Machine = elf.EM_AARCH64
	}
	le := binary.LittleEndian

	text := make([]byte, 4*len(img.Text))
	for i, w := range img.Text {
		le.PutUint32(text[4*i:], w)
	}

	strtab := []byte{0}
	var symtab bytes.Buffer
	symtab.Write(make([]byte, symSize))
	addSym := func(s Sym, typ elf.SymType, shndx uint16) {
		var e [symSize]byte
		le.PutUint32(e[0:], uint32(len(strtab)))
		e[4] = byte(elf.STB_GLOBAL)<<4 | byte(typ)
		le.PutUint16(e[6:], shndx)
		le.PutUint64(e[8:], s.Addr)
		le.PutUint64(e[16:], s.Size)
		symtab.Write(e[:])
		strtab = append(strtab, s.Name...)
		strtab = append(strtab, 0)
	}
	for _, s := range img.Funcs {
		addSym(s, elf.STT_FUNC, 1)
	}
	for _, s := range img.Objects {
		addSym(s, elf.STT_OBJECT, 2)
	}

	names := []string{"", ".text", ".rodata", ".symtab", ".strtab", ".shstrtab"}
	var shstrtab []byte
	nameOff := make([]uint32, len(names))
	for i, n := range names {
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, n...)
		shstrtab = append(shstrtab, 0)
	}

	var out bytes.Buffer
	out.Write(make([]byte, ehdrSize+2*phdrSize))
	place := func(data []byte) uint64 {
		for out.Len()%8 != 0 {
			out.WriteByte(0)
		}
		off := uint64(out.Len())
		out.Write(data)
		return off
	}
	textOff := place(text)
	rodataOff := place(img.Rodata)
	symOff := place(symtab.Bytes())
	strOff := place(strtab)
	shstrOff := place(shstrtab)
	shOff := place(nil)

	type shdr struct {
		name          uint32
		typ           elf.SectionType
		flags         elf.SectionFlag
		addr, off, sz uint64
		link, info    uint32
		entsize       uint64
	}
	shdrs := []shdr{
		{},
		{nameOff[1], elf.SHT_PROGBITS, elf.SHF_ALLOC | elf.SHF_EXECINSTR, img.TextAddr, textOff, uint64(len(text)), 0, 0, 0},
		{nameOff[2], elf.SHT_PROGBITS, elf.SHF_ALLOC, img.RodataAddr, rodataOff, uint64(len(img.Rodata)), 0, 0, 0},
		{nameOff[3], elf.SHT_SYMTAB, 0, 0, symOff, uint64(symtab.Len()), 4, 1, symSize},
		{nameOff[4], elf.SHT_STRTAB, 0, 0, strOff, uint64(len(strtab)), 0, 0, 0},
		{nameOff[5], elf.SHT_STRTAB, 0, 0, shstrOff, uint64(len(shstrtab)), 0, 0, 0},
	}
	for _, s := range shdrs {
		var e [shdrSize]byte
		le.PutUint32(e[0:], s.name)
		le.PutUint32(e[4:], uint32(s.typ))
		le.PutUint64(e[8:], uint64(s.flags))
		le.PutUint64(e[16:], s.addr)
		le.PutUint64(e[24:], s.off)
		le.PutUint64(e[32:], s.sz)
		le.PutUint32(e[40:], s.link)
		le.PutUint32(e[44:], s.info)
		le.PutUint64(e[48:], 1)
		le.PutUint64(e[56:], s.entsize)
		out.Write(e[:])
	}

	b := out.Bytes()
	copy(b, elf.ELFMAG)
	b[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	b[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	b[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	le.PutUint16(b[16:], uint16(img.Type))
	le.PutUint16(b[18:], uint16(img.Machine))
	le.PutUint32(b[20:], uint32(elf.EV_CURRENT))
	le.PutUint64(b[24:], img.TextAddr) // entry
	le.PutUint64(b[32:], ehdrSize)     // phoff
	le.PutUint64(b[40:], shOff)
	le.PutUint16(b[52:], ehdrSize)
	le.PutUint16(b[54:], phdrSize)
	le.PutUint16(b[56:], 2)
	le.PutUint16(b[58:], shdrSize)
	le.PutUint16(b[60:], uint16(len(shdrs)))
	le.PutUint16(b[62:], uint16(len(shdrs)-1))

	putPhdr := func(at int, flags elf.ProgFlag, vaddr, off, sz uint64) {
		p := b[at:]
		le.PutUint32(p[0:], uint32(elf.PT_LOAD))
		le.PutUint32(p[4:], uint32(flags))
		le.PutUint64(p[8:], off)
		le.PutUint64(p[16:], vaddr)
		le.PutUint64(p[24:], vaddr)
		le.PutUint64(p[32:], sz)
		le.PutUint64(p[40:], sz)
		le.PutUint64(p[48:], 8)
	}
	putPhdr(ehdrSize, elf.PF_R|elf.PF_X, img.TextAddr, textOff, uint64(len(text)))
	putPhdr(ehdrSize+phdrSize, elf.PF_R, img.RodataAddr, rodataOff, uint64(len(img.Rodata)))
	return b
}
