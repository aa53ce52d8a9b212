package heap

import (
	"errors"
	"fmt"

	"github.com/tuannm99/novastore/internal/alias/bx"
)

// Header page (page 0):
//
//	[0:4)   magic
//	[4:8)   recordSize
//	[8:12)  recordsPerPage
//	[12:16) bitmapSize
//	[16:20) numPages (header page included)
//	[20:24) firstFreePage (0 = none)
//
// Data page (page >= 1):
//
//	[0:4)   numRecords
//	[4:8)   nextFreePage (0 = none)
//	[8:8+bitmapSize)  occupancy bitmap, bit i = slot i
//	then recordsPerPage slots of recordSize bytes
const (
	heapMagic      uint32 = 0x4e564846 // "NVHF"
	fileHeaderSize        = 24
	pageHeaderSize        = 8

	offMagic          = 0
	offRecordSize     = 4
	offRecordsPerPage = 8
	offBitmapSize     = 12
	offNumPages       = 16
	offFirstFreePage  = 20

	offNumRecords   = 0
	offNextFreePage = 4
)

var (
	ErrRecordNotFound = errors.New("heap: record not found")
	ErrBadRID         = errors.New("heap: rid out of range")
	ErrRecordSize     = errors.New("heap: record has wrong size")
	ErrRecordTooLarge = errors.New("heap: record does not fit in a page")
	ErrNotHeapFile    = errors.New("heap: not a heap file")
	ErrFileOpen       = errors.New("heap: file is open")
	ErrCorruptPage    = errors.New("heap: corrupt page")
)

// FileHeader is the content of page 0.
type FileHeader struct {
	RecordSize     uint32
	RecordsPerPage uint32
	BitmapSize     uint32
	NumPages       uint32
	FirstFreePage  uint32
}

// NewFileHeader lays out pageSize-byte pages for fixed recordSize records.
func NewFileHeader(pageSize, recordSize int) (FileHeader, error) {
	if recordSize <= 0 {
		return FileHeader{}, fmt.Errorf("%w: %d", ErrRecordSize, recordSize)
	}
	avail := pageSize - pageHeaderSize
	rpp := avail * 8 / (recordSize*8 + 1)
	for rpp > 0 && pageHeaderSize+bitmapBytes(rpp)+rpp*recordSize > pageSize {
		rpp--
	}
	if rpp < 1 {
		return FileHeader{}, fmt.Errorf("%w: record %d bytes, page %d bytes", ErrRecordTooLarge, recordSize, pageSize)
	}
	return FileHeader{
		RecordSize:     uint32(recordSize),
		RecordsPerPage: uint32(rpp),
		BitmapSize:     uint32(bitmapBytes(rpp)),
		NumPages:       1,
	}, nil
}

func bitmapBytes(slots int) int { return (slots + 7) / 8 }

func (h FileHeader) encode(page []byte) {
	bx.Zero(page)
	bx.PutU32At(page, offMagic, heapMagic)
	bx.PutU32At(page, offRecordSize, h.RecordSize)
	bx.PutU32At(page, offRecordsPerPage, h.RecordsPerPage)
	bx.PutU32At(page, offBitmapSize, h.BitmapSize)
	bx.PutU32At(page, offNumPages, h.NumPages)
	bx.PutU32At(page, offFirstFreePage, h.FirstFreePage)
}

// DecodeFileHeader reads the header page of a heap file.
func DecodeFileHeader(page []byte) (FileHeader, error) {
	if len(page) < fileHeaderSize || bx.U32At(page, offMagic) != heapMagic {
		return FileHeader{}, ErrNotHeapFile
	}
	h := FileHeader{
		RecordSize:     bx.U32At(page, offRecordSize),
		RecordsPerPage: bx.U32At(page, offRecordsPerPage),
		BitmapSize:     bx.U32At(page, offBitmapSize),
		NumPages:       bx.U32At(page, offNumPages),
		FirstFreePage:  bx.U32At(page, offFirstFreePage),
	}
	if h.RecordSize == 0 || h.RecordsPerPage == 0 || h.NumPages == 0 {
		return FileHeader{}, fmt.Errorf("%w: bad header %+v", ErrNotHeapFile, h)
	}
	return h, nil
}

func (h FileHeader) slotOffset(slot uint32) int {
	return pageHeaderSize + int(h.BitmapSize) + int(slot)*int(h.RecordSize)
}
