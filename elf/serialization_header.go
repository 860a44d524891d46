// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

// sizeElfHeader returns e_ehsize / EI_NIDENT(16) + the class-parametric
// header tail: 64 bytes total for ELFCLASS64, 52 for ELFCLASS32.
func sizeElfHeader(class FileClass) int {
	if class == ELFCLASS64 {
		return 64
	}
	return 52
}

// writeElfHeader emits the full ELF header (identification + tail) at the
// sink's current position. Construction only reserves the header's bytes as
// zero padding; this is called once, after finalization seeks back to offset
// 0, to write the header with the final e_shoff/e_shnum/e_shstrndx.
func (ow *ObjectWriter) writeElfHeader() {
	var ident [16]byte
	ident[0], ident[1], ident[2], ident[3] = 0x7F, 'E', 'L', 'F'
	ident[4] = uint8(ow.class)
	ident[5] = uint8(ELFDATA2LSB)
	ident[6] = 1 // EV_CURRENT
	ident[7] = 0 // ELFOSABI_NONE (SYSV)
	ident[8] = 0 // ABI version
	ow.sink.WriteBytes(ident[:])

	ow.sink.WriteLE16(uint16(ET_REL))
	ow.sink.WriteLE16(uint16(ow.machine))
	ow.sink.WriteLE32(1) // e_version
	ow.sink.WriteWord(ow.class, 0)          // e_entry
	ow.sink.WriteWord(ow.class, 0)          // e_phoff
	ow.sink.WriteWord(ow.class, ow.shOffset) // e_shoff
	ow.sink.WriteLE32(ow.eflags)
	ow.sink.WriteLE16(uint16(sizeElfHeader(ow.class)))
	ow.sink.WriteLE16(0) // e_phentsize
	ow.sink.WriteLE16(0) // e_phnum
	ow.sink.WriteLE16(uint16(sizeSectionHeader(ow.class)))
	ow.sink.WriteLE16(uint16(len(ow.allSections)))
	ow.sink.WriteLE16(uint16(ow.shstrtab.number))
}
