// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

// Symbol is an entry destined for .symtab. Section is a non-owning
// back-reference; a nil Section means undefined (st_shndx = SHN_UNDEF), used
// only by the implicit NULL symbol at index 0.
type Symbol struct {
	Name       string
	nameOffset uint32
	Type       SymbolType
	Binding    SymbolBinding
	Other      uint8
	Section    *Section
	Value      uint64
	Size       uint64

	sectionIndex uint16
}
