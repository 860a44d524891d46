// SPDX-License-Identifier: MIT
//
// Copyright (c) 2024 Adrian "asie" Siekierka

package elf

import "github.com/tinybackend/objelf/relocation"

// ledgerSpan bounds the placement ledger's address space. An object file
// never approaches this size; it exists only so relocation.Region's offset
// arithmetic has a finite upper bound to work within.
const ledgerSpan = uint64(1) << 48

// placement is the relocation.RegionPlaceable adapter for a single claimed
// file-offset range.
type placement struct {
	offset uint64
	size   uint64
	align  uint64
}

func (p *placement) Offset() uint64     { return p.offset }
func (p *placement) SetOffset(o uint64) { p.offset = o }
func (p *placement) Size() uint64       { return p.size }
func (p *placement) Alignment() uint64  { return p.align }

// fileLedger records placed [offset, offset+size) ranges via the corpus's
// generic ascending, first-fit region allocator (SPEC_FULL.md §2a). A request
// gets the first aligned offset at or after minOffset that does not fall
// inside an already-placed range; a request whose minOffset lies inside such
// a range is moved past it, not refused. The writer only places zero-size
// anchors (alignFileOffset), so section payload ranges are not recorded, and
// a request with a minOffset below an earlier anchor is not detected.
type fileLedger struct {
	region *relocation.Region[*placement]
}

func newFileLedger() *fileLedger {
	return &fileLedger{region: relocation.NewRegion[*placement](0, ledgerSpan, false)}
}

// place reserves size bytes aligned to align at or after minOffset and
// returns the chosen offset. size may be 0 to reserve only an aligned
// anchor point (used by alignFileOffset).
func (l *fileLedger) place(minOffset uint64, size uint64, align uint64) uint64 {
	if align == 0 {
		align = 1
	}
	p := &placement{size: size, align: align}
	ok, _ := l.region.Place(p, []uint64{minOffset, ledgerSpan - 1}, false)
	assertf(ok, "placement ledger: could not place %d bytes aligned to %d at or after offset %d", size, align, minOffset)
	return p.Offset()
}
