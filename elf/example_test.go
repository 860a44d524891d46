// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf_test

import (
	"bytes"
	"fmt"

	"github.com/tinybackend/objelf/elf"
)

// codegenContext is the minimal driver-side implementation of
// elf.GlobalContext a code generator backend would supply.
type codegenContext struct{ arch elf.TargetArch }

func (c codegenContext) TargetArch() elf.TargetArch { return c.arch }

// asmResult is a toy stand-in for whatever a real assembler returns: the
// encoded instruction bytes plus any unresolved references within them.
type asmResult struct {
	code   []byte
	fixups []elf.Fixup
}

func (a asmResult) Bytes() []byte     { return a.code }
func (a asmResult) Fixups() []elf.Fixup { return a.fixups }

// Example demonstrates the call sequence a code generator backend follows to
// produce one relocatable object file: construct a writer for a target,
// stream in function bodies and constant pools in any order, finalize once,
// then take the bytes.
func Example() {
	ow, err := elf.NewObjectWriter(codegenContext{arch: elf.ArchX86_64})
	if err != nil {
		panic(err)
	}

	// A leaf function with no outgoing references.
	if err := ow.WriteFunctionCode("answer", false, asmResult{
		code: []byte{0xb8, 0x2a, 0x00, 0x00, 0x00, 0xc3}, // mov eax, 42; ret
	}); err != nil {
		panic(err)
	}

	// A function calling the one above via a PC-relative fixup.
	if err := ow.WriteFunctionCode("main", false, asmResult{
		code: []byte{0xe8, 0x00, 0x00, 0x00, 0x00, 0xc3}, // call answer; ret
		fixups: []elf.Fixup{
			{Offset: 1, Type: uint32(elf.RX8664_PC32), SymbolName: "answer", Addend: -4},
		},
	}); err != nil {
		panic(err)
	}

	if err := ow.WriteNonUserSections(); err != nil {
		panic(err)
	}

	names := make([]string, 0)
	for _, s := range ow.AllSections() {
		names = append(names, s.Name)
	}
	fmt.Println(names)

	var out bytes.Buffer
	if _, err := ow.WriteTo(&out); err != nil {
		panic(err)
	}
	fmt.Println(out.Len() == len(ow.Bytes()))

	// Output:
	// [ .text .rela.text .shstrtab .symtab .strtab]
	// true
}
