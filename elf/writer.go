// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import (
	"fmt"
	"io"
)

type lifecycleState int

const (
	stateBuilding lifecycleState = iota
	stateFinalizing
	stateDone
)

// bundleSize is the target-defined code-alignment quantum used as .text's
// sh_addralign.
const bundleSize = 32

// ObjectWriter orchestrates the emission of one ELF relocatable object file.
// It owns every section and symbol it creates (a single Go struct holding
// slices of pointers stands in for the corpus's arena allocator, since Go's
// garbage collector already gives stable addresses to heap-allocated
// structs); handles returned to callers are non-owning borrowed pointers
// valid until the writer itself is discarded.
type ObjectWriter struct {
	class   FileClass
	machine MachineType
	eflags  uint32

	sink   *byteSink
	ledger *fileLedger
	state  lifecycleState

	shstrtabStrings *StringTable
	strtabStrings   *StringTable

	null     *Section
	shstrtab *Section
	symtab   *Section
	strtab   *Section

	text           *Section
	textSections   []*Section
	dataSections   []*Section
	rodataSections []*Section

	relTextSections   []*Section
	relDataSections   []*Section
	relRodataSections []*Section

	symbols   []*Symbol
	numLocals int

	allSections []*Section
	shOffset    uint64

	symbolIndexCache map[string]int
}

// NewObjectWriter constructs a writer targeting ctx.TargetArch(). It
// immediately writes a dummy (all-zero) ELF header to the sink and creates
// the fixed bookkeeping sections: Null, .shstrtab, .symtab, .strtab.
func NewObjectWriter(ctx GlobalContext) (ow *ObjectWriter, err error) {
	defer func() { err = recoverProgrammingError(recover()) }()

	arch := ctx.TargetArch()
	class := classFor(arch)

	ow = &ObjectWriter{
		class:           class,
		machine:         ELFMachine(arch),
		eflags:          ELFFlags(arch),
		sink:            newByteSink(),
		ledger:          newFileLedger(),
		shstrtabStrings: newStringTable(),
		strtabStrings:   newStringTable(),
	}

	ow.null = ow.createSection("", SHT_NULL, 0, 0, 0)

	ow.shstrtab = ow.createSection(".shstrtab", SHT_STRTAB, 0, 1, 0)
	ow.symtab = ow.createSection(".symtab", SHT_SYMTAB, 0, wordAlign(class), sizeSymbol(class))
	ow.strtab = ow.createSection(".strtab", SHT_STRTAB, 0, 1, 0)

	ow.symbols = append(ow.symbols, &Symbol{})

	ow.sink.WriteZeroPadding(uint64(sizeElfHeader(class)))

	return ow, nil
}

func wordAlign(class FileClass) uint64 {
	if class == ELFCLASS64 {
		return 8
	}
	return 4
}

func (ow *ObjectWriter) requireBuilding(op string) {
	assertf(ow.state == stateBuilding, "%s: invalid in current writer state", op)
}

// createSection allocates a section, registers its name in .shstrtab, and
// returns a borrowed pointer. Valid only while section numbers are not yet
// assigned.
func (ow *ObjectWriter) createSection(name string, shType SectionHeaderType, flags SectionHeaderFlag, align uint64, entsize uint64) *Section {
	assertf(ow.state == stateBuilding, "createSection(%q): section numbers already assigned", name)
	s := &Section{Name: name, Type: shType, Flags: flags, AddrAlign: align, EntrySize: entsize}
	if ow.shstrtabStrings != nil {
		s.nameOffset = ow.shstrtabStrings.Add(name)
	}
	return s
}

// alignFileOffset pads the sink with zero bytes until its position is a
// multiple of align, via a zero-size anchor placed through the ledger
// (SPEC_FULL.md §4.5), and returns the new position.
func (ow *ObjectWriter) alignFileOffset(align uint64) uint64 {
	offset := ow.ledger.place(ow.sink.Tell(), 0, align)
	pad := offset - ow.sink.Tell()
	ow.sink.WriteZeroPadding(pad)
	return offset
}

func (ow *ObjectWriter) addSymbol(name string, typ SymbolType, binding SymbolBinding, sec *Section, value uint64, size uint64) *Symbol {
	sym := &Symbol{Name: name, Type: typ, Binding: binding, Section: sec, Value: value, Size: size}
	sym.nameOffset = ow.strtabStrings.Add(name)
	ow.symbols = append(ow.symbols, sym)
	return sym
}

// relocationSectionFor returns the relocation section paired with target,
// creating it on first use.
func (ow *ObjectWriter) relocationSectionFor(target *Section, bucket *[]*Section, baseName string) *Section {
	for _, r := range *bucket {
		if r.relatedSection == target {
			return r
		}
	}
	relType := relocationSectionType(ow.class)
	relPrefix := ".rela"
	align, entsize := uint64(8), sizeRelocation(ow.class)
	if ow.class == ELFCLASS32 {
		relPrefix = ".rel"
		align = 4
	}
	r := ow.createSection(relPrefix+baseName, relType, 0, align, entsize)
	r.relatedSection = target
	*bucket = append(*bucket, r)
	return r
}

// WriteFunctionCode appends a compiled function's machine code and its
// symbol to the (single, coalesced) .text section, and if the assembler
// carries fixups, appends adjusted relocation records to .rela.text or
// .rel.text.
func (ow *ObjectWriter) WriteFunctionCode(name string, isInternal bool, asm AssemblerHandle) (err error) {
	defer func() { err = recoverProgrammingError(recover()) }()
	ow.requireBuilding("WriteFunctionCode")

	if ow.text == nil {
		ow.text = ow.createSection(".text", SHT_PROGBITS, SHF_ALLOC|SHF_EXECINSTR, bundleSize, 0)
		ow.text.offset = ow.alignFileOffset(bundleSize)
		ow.textSections = append(ow.textSections, ow.text)
	}

	curSize := ow.text.Size
	code := asm.Bytes()
	ow.sink.WriteBytes(code)
	ow.text.Size += uint64(len(code))

	typ, binding := STT_FUNC, STB_GLOBAL
	if isInternal {
		typ, binding = STT_NOTYPE, STB_LOCAL
	}
	ow.addSymbol(name, typ, binding, ow.text, curSize, 0)

	fixups := asm.Fixups()
	if len(fixups) > 0 {
		rel := ow.relocationSectionFor(ow.text, &ow.relTextSections, ".text")
		for _, f := range fixups {
			f.Offset += curSize
			rel.fixups = append(rel.fixups, f)
		}
	}
	return nil
}

// WriteConstantPool appends a same-kind constant pool as a mergeable rodata
// section (.rodata.cst4 or .rodata.cst8), one LOCAL NOTYPE symbol per
// constant.
func (ow *ObjectWriter) WriteConstantPool(kind PoolElementKind, pool ConstantPool) (err error) {
	defer func() { err = recoverProgrammingError(recover()) }()
	ow.requireBuilding("WriteConstantPool")

	constants := pool.Constants()
	if len(constants) == 0 {
		return nil
	}

	n := kind.size()
	sec := ow.createSection(fmt.Sprintf(".rodata.cst%d", n), SHT_PROGBITS, SHF_ALLOC|SHF_MERGE, n, n)
	sec.offset = ow.alignFileOffset(n)
	ow.rodataSections = append(ow.rodataSections, sec)

	var offset uint64
	for _, c := range constants {
		data := c.Bytes()
		assertf(uint64(len(data)) == n, "constant pool element %q: expected %d bytes, got %d", c.EmitPoolLabel(), n, len(data))
		ow.addSymbol(c.EmitPoolLabel(), STT_NOTYPE, STB_LOCAL, sec, offset, 0)
		ow.sink.WriteBytes(data)
		offset += n
	}
	sec.Size = n * uint64(len(constants))
	return nil
}

// WriteDataInitializer would write an initialized data global. Globals with
// initializers are unfinished in this writer (SPEC_FULL.md §9, open question
// a); it deliberately fails rather than guessing at semantics.
func (ow *ObjectWriter) WriteDataInitializer(name string, value []byte) error {
	return &NotImplementedError{Feature: "data initializers for BSS/data globals"}
}

// partitionSymbols stably partitions the symbol table into all LOCAL
// bindings followed by all non-LOCAL bindings, preserving creation order
// within each partition, and records numLocals.
func (ow *ObjectWriter) partitionSymbols() {
	locals := make([]*Symbol, 0, len(ow.symbols))
	globals := make([]*Symbol, 0, len(ow.symbols))
	for _, s := range ow.symbols {
		if s.Binding == STB_LOCAL {
			locals = append(locals, s)
		} else {
			globals = append(globals, s)
		}
	}
	ow.numLocals = len(locals)
	ow.symbols = append(locals, globals...)
	ow.symbolIndexCache = nil
}

func (ow *ObjectWriter) symbolIndex(name string) int {
	if ow.symbolIndexCache == nil {
		ow.symbolIndexCache = make(map[string]int, len(ow.symbols))
		for i, s := range ow.symbols {
			ow.symbolIndexCache[s.Name] = i
		}
	}
	idx, ok := ow.symbolIndexCache[name]
	assertf(ok, "relocation references a symbol never added to this writer: %q", name)
	return idx
}

// assignSectionNumbers produces AllSections and assigns each section a
// 0-based number: Null, then Text/Data/RoData buckets (each user section
// immediately followed by its relocation section, if any), then
// .shstrtab/.symtab/.strtab.
func (ow *ObjectWriter) assignSectionNumbers() {
	next := 0
	assign := func(s *Section) {
		s.number = next
		s.numberAssigned = true
		ow.allSections = append(ow.allSections, s)
		next++
	}

	assign(ow.null)

	type bucket struct {
		user []*Section
		rel  []*Section
	}
	buckets := []bucket{
		{ow.textSections, ow.relTextSections},
		{ow.dataSections, ow.relDataSections},
		{ow.rodataSections, ow.relRodataSections},
	}

	for _, b := range buckets {
		relIdx := 0
		for _, u := range b.user {
			assign(u)
			if relIdx < len(b.rel) && b.rel[relIdx].relatedSection == u {
				r := b.rel[relIdx]
				r.Info = uint32(u.number)
				assign(r)
				relIdx++
			}
		}
		assertf(relIdx == len(b.rel), "relocation section has no preceding related section in its bucket")
	}

	assign(ow.shstrtab)
	assign(ow.symtab)
	assign(ow.strtab)

	assertf(len(ow.allSections) < SHN_LORESERVE, "section count %d exceeds SHN_LORESERVE escape (not implemented)", len(ow.allSections))

	ow.shstrtab.nameOffset = ow.shstrtabStrings.IndexOf(".shstrtab")
	ow.symtab.nameOffset = ow.shstrtabStrings.IndexOf(".symtab")
	ow.strtab.nameOffset = ow.shstrtabStrings.IndexOf(".strtab")

	ow.symtab.Link = uint32(ow.strtab.number)

	for _, b := range buckets {
		for _, r := range b.rel {
			r.Link = uint32(ow.symtab.number)
		}
	}
}

// WriteNonUserSections runs the finalization protocol exactly once: freeze
// string tables, assign section numbers, emit .symtab/.strtab/relocation
// sections/section-header table, then seek to offset 0 and patch the ELF
// header with the now-known e_shoff/e_shnum/e_shstrndx.
func (ow *ObjectWriter) WriteNonUserSections() (err error) {
	defer func() { err = recoverProgrammingError(recover()) }()
	ow.requireBuilding("WriteNonUserSections")
	ow.state = stateFinalizing

	// 1. freeze .shstrtab
	ow.shstrtab.offset = ow.alignFileOffset(1)
	ow.shstrtabStrings.Layout()
	shstrtabData := ow.shstrtabStrings.Bytes()
	ow.shstrtab.Size = uint64(len(shstrtabData))
	ow.sink.WriteBytes(shstrtabData)

	// 2. assign section numbers (finalizes name indices, sh_link, sh_info)
	ow.partitionSymbols()
	ow.assignSectionNumbers()
	ow.symtab.Info = uint32(ow.numLocals)

	// 3. freeze .strtab
	ow.strtabStrings.Layout()

	// 4. resolve symbols
	for _, sym := range ow.symbols {
		sym.nameOffset = ow.strtabStrings.IndexOf(sym.Name)
		if sym.Section != nil {
			assertf(sym.Section.numberAssigned, "symbol %q bound to a section with no assigned number", sym.Name)
			sym.sectionIndex = uint16(sym.Section.number)
		}
	}

	// 5. emit .symtab
	ow.symtab.offset = ow.alignFileOffset(wordAlign(ow.class))
	for _, sym := range ow.symbols {
		ow.writeSymbol(sym)
	}
	ow.symtab.Size = uint64(len(ow.symbols)) * ow.symtab.EntrySize

	// 6. emit .strtab
	ow.strtab.offset = ow.alignFileOffset(1)
	strtabData := ow.strtabStrings.Bytes()
	ow.strtab.Size = uint64(len(strtabData))
	ow.sink.WriteBytes(strtabData)

	// 7. emit relocation sections, bucket order Text, Data, RoData
	for _, bucket := range [][]*Section{ow.relTextSections, ow.relDataSections, ow.relRodataSections} {
		for _, r := range bucket {
			r.offset = ow.alignFileOffset(r.AddrAlign)
			for _, f := range r.fixups {
				ow.writeRelocation(f)
			}
			r.Size = uint64(len(r.fixups)) * r.EntrySize
		}
	}

	// 8. emit section-header table
	shAlign := uint64(4)
	if ow.class == ELFCLASS64 {
		shAlign = 8
	}
	ow.shOffset = ow.alignFileOffset(shAlign)
	for _, s := range ow.allSections {
		ow.writeSectionHeader(s)
	}

	// 9. patch the ELF header in place
	ow.sink.Seek(0)
	ow.writeElfHeader()

	ow.state = stateDone
	return nil
}

// AllSections returns the finalized, numbered section list. Valid only
// after WriteNonUserSections completes.
func (ow *ObjectWriter) AllSections() []*Section {
	assertf(ow.state == stateDone, "AllSections() before WriteNonUserSections completed")
	return ow.allSections
}

// Bytes returns the complete serialized object file. Valid only after
// WriteNonUserSections completes.
func (ow *ObjectWriter) Bytes() []byte {
	assertf(ow.state == stateDone, "Bytes() before WriteNonUserSections completed")
	return ow.sink.Bytes()
}

// WriteTo writes the complete serialized object file to w.
func (ow *ObjectWriter) WriteTo(w io.Writer) (n int64, err error) {
	defer func() { err = recoverProgrammingError(recover()) }()
	assertf(ow.state == stateDone, "WriteTo() before WriteNonUserSections completed")
	written, ioErr := w.Write(ow.sink.Bytes())
	if ioErr != nil {
		return int64(written), wrapErrorf(ioErr, "elf.ObjectWriter.WriteTo")
	}
	return int64(written), nil
}
