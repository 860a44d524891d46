// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import "encoding/binary"

// byteSink is an append-only, seekable-to-zero byte buffer: writes at the
// current position overwrite existing bytes, writes past the current end
// grow it. It buffers the whole object image in memory, matching the
// corpus's own file_writer.go, which lays out every section before a single
// linear write; here the single extra capability needed is a seek back to
// offset 0 to patch the ELF header once the rest of the layout is known.
type byteSink struct {
	buf []byte
	pos int
}

func newByteSink() *byteSink {
	return &byteSink{}
}

func (s *byteSink) Tell() uint64 {
	return uint64(s.pos)
}

// Seek repositions the write cursor. Only seeking back to a previously
// written position (the header patch) is a supported use; seeking past the
// current end leaves a hole that the next write fills with zero bytes when
// it grows the buffer.
func (s *byteSink) Seek(pos uint64) {
	s.pos = int(pos)
}

func (s *byteSink) WriteBytes(b []byte) {
	end := s.pos + len(b)
	if end > len(s.buf) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}
	copy(s.buf[s.pos:end], b)
	s.pos = end
}

func (s *byteSink) WriteZeroPadding(n uint64) {
	if n == 0 {
		return
	}
	s.WriteBytes(make([]byte, n))
}

func (s *byteSink) WriteU8(v uint8) {
	s.WriteBytes([]byte{v})
}

func (s *byteSink) WriteLE16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	s.WriteBytes(b[:])
}

func (s *byteSink) WriteLE32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	s.WriteBytes(b[:])
}

func (s *byteSink) WriteLE64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	s.WriteBytes(b[:])
}

// WriteWord writes v as a 4-byte (ELFCLASS32) or 8-byte (ELFCLASS64) little
// endian word; used for every class-parametric Addr/Off/Xword field.
func (s *byteSink) WriteWord(class FileClass, v uint64) {
	if class == ELFCLASS64 {
		s.WriteLE64(v)
	} else {
		s.WriteLE32(uint32(v))
	}
}

func (s *byteSink) Bytes() []byte {
	return s.buf
}
