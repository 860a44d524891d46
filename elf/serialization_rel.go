// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

// This writer always pairs ELFCLASS64 with SHT_RELA (addend carried in the
// record) and ELFCLASS32 with SHT_REL (addend implicit in the referenced
// bytes), matching SPEC_FULL.md §3's "entsize 24 or 8" — the REL64/RELA32
// combinations the generic ABI also allows are never produced here.

// sizeRelocation returns the entsize of the relocation section for class:
// 24 bytes (Elf64_Rela) or 8 bytes (Elf32_Rel).
func sizeRelocation(class FileClass) uint64 {
	if class == ELFCLASS64 {
		return 24
	}
	return 8
}

// relocationSectionType returns the sh_type this writer uses for class.
func relocationSectionType(class FileClass) SectionHeaderType {
	if class == ELFCLASS64 {
		return SHT_RELA
	}
	return SHT_REL
}

// writeRelocation appends one relocation record for fixup f.
// r_info packs the symbol index and type differently per class:
// (sym<<32)|type for ELF64, (sym<<8)|(type&0xff) for ELF32.
func (ow *ObjectWriter) writeRelocation(f Fixup) {
	var symIdx uint64
	if f.SymbolName != "" {
		symIdx = uint64(ow.symbolIndex(f.SymbolName))
	}
	if ow.class == ELFCLASS64 {
		info := (symIdx << 32) | uint64(f.Type)
		ow.sink.WriteLE64(f.Offset)
		ow.sink.WriteLE64(info)
		ow.sink.WriteLE64(uint64(f.Addend))
	} else {
		info := uint32((symIdx << 8) | uint64(f.Type&0xFF))
		ow.sink.WriteLE32(uint32(f.Offset))
		ow.sink.WriteLE32(info)
	}
}
