package heap

import (
	"fmt"

	"github.com/tuannm99/novastore/internal/alias/bx"
	"github.com/tuannm99/novastore/internal/bufferpool"
)

// PageHandle is a pinned data page seen through the heap layout. It is
// valid until the page is handed back with FileHandle.UnpinPageHandle.
type PageHandle struct {
	hdr   *FileHeader
	frame *bufferpool.Frame
}

func (p *PageHandle) PageNum() uint32 { return p.frame.PageNum() }

func (p *PageHandle) NumRecords() uint32 {
	return bx.U32At(p.frame.Data, offNumRecords)
}

func (p *PageHandle) setNumRecords(n uint32) {
	bx.PutU32At(p.frame.Data, offNumRecords, n)
}

func (p *PageHandle) NextFreePage() uint32 {
	return bx.U32At(p.frame.Data, offNextFreePage)
}

func (p *PageHandle) setNextFreePage(n uint32) {
	bx.PutU32At(p.frame.Data, offNextFreePage, n)
}

func (p *PageHandle) Full() bool { return p.NumRecords() >= p.hdr.RecordsPerPage }

func (p *PageHandle) bitmap() []byte {
	return p.frame.Data[pageHeaderSize : pageHeaderSize+int(p.hdr.BitmapSize)]
}

// IsSet reports whether slot holds a live record.
func (p *PageHandle) IsSet(slot uint32) bool {
	if slot >= p.hdr.RecordsPerPage {
		return false
	}
	return p.bitmap()[slot/8]&(1<<(slot%8)) != 0
}

func (p *PageHandle) setBit(slot uint32) {
	p.bitmap()[slot/8] |= 1 << (slot % 8)
}

func (p *PageHandle) clearBit(slot uint32) {
	p.bitmap()[slot/8] &^= 1 << (slot % 8)
}

// firstClear returns the lowest free slot.
func (p *PageHandle) firstClear() (uint32, bool) {
	for s := range p.hdr.RecordsPerPage {
		if !p.IsSet(s) {
			return s, true
		}
	}
	return 0, false
}

func (p *PageHandle) slot(slot uint32) []byte {
	off := p.hdr.slotOffset(slot)
	return p.frame.Data[off : off+int(p.hdr.RecordSize)]
}

// Record returns a copy of the record in slot.
func (p *PageHandle) Record(slot uint32) ([]byte, error) {
	if slot >= p.hdr.RecordsPerPage {
		return nil, fmt.Errorf("%w: slot %d", ErrBadRID, slot)
	}
	if !p.IsSet(slot) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, RID{PageNumber: p.PageNum(), SlotNumber: slot})
	}
	return append([]byte(nil), p.slot(slot)...), nil
}
