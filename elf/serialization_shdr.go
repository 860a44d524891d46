// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

// sizeSectionHeader returns sizeof(Elf64_Shdr) or sizeof(Elf32_Shdr): 64 or
// 40 bytes.
//
// Note: the corpus's own sectionHeader64 struct models sh_flags, sh_size,
// sh_addralign and sh_entsize as 32-bit fields, which undersizes an
// ELFCLASS64 section header to 48 bytes instead of the generic ABI's 64. It
// is a bug in the source this module was grounded on; this writer emits the
// real Elf64_Shdr layout (those four fields as 8-byte Xword/Addr) since
// byte-exact ABI conformance is an explicit requirement here.
func sizeSectionHeader(class FileClass) int {
	if class == ELFCLASS64 {
		return 64
	}
	return 40
}

// writeSectionHeader appends one Elf{32,64}_Shdr record for s. All ten
// fields keep the same order across classes; only the width of
// Flags/Address/Offset/Size/AddrAlign/EntrySize changes.
func (ow *ObjectWriter) writeSectionHeader(s *Section) {
	ow.sink.WriteLE32(s.nameOffset)
	ow.sink.WriteLE32(uint32(s.Type))
	if ow.class == ELFCLASS64 {
		ow.sink.WriteLE64(uint64(s.Flags))
		ow.sink.WriteLE64(s.Address)
		ow.sink.WriteLE64(s.offset)
		ow.sink.WriteLE64(s.Size)
		ow.sink.WriteLE32(s.Link)
		ow.sink.WriteLE32(s.Info)
		ow.sink.WriteLE64(s.AddrAlign)
		ow.sink.WriteLE64(s.EntrySize)
	} else {
		ow.sink.WriteLE32(uint32(s.Flags))
		ow.sink.WriteLE32(uint32(s.Address))
		ow.sink.WriteLE32(uint32(s.offset))
		ow.sink.WriteLE32(uint32(s.Size))
		ow.sink.WriteLE32(s.Link)
		ow.sink.WriteLE32(s.Info)
		ow.sink.WriteLE32(uint32(s.AddrAlign))
		ow.sink.WriteLE32(uint32(s.EntrySize))
	}
}
