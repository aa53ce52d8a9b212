package heap

import (
	"fmt"
	"log/slog"

	"github.com/tuannm99/novastore/internal/bufferpool"
	locking "github.com/tuannm99/novastore/internal/lock"
	"github.com/tuannm99/novastore/internal/storage"
)

// FileHandle is an open heap file. Data pages go through the buffer pool;
// the header lives in memory and is written back on Flush and close.
type FileHandle struct {
	name string
	rm   *RecordManager
	view *bufferpool.FileView

	hdr      FileHeader
	hdrDirty bool
	refs     *locking.RefCount
}

func (fh *FileHandle) Name() string       { return fh.name }
func (fh *FileHandle) Header() FileHeader { return fh.hdr }

// FetchPageHandle pins data page pageNum.
func (fh *FileHandle) FetchPageHandle(pageNum uint32) (*PageHandle, error) {
	if pageNum == 0 || pageNum >= fh.hdr.NumPages {
		return nil, fmt.Errorf("%w: %s page %d (pages %d)", storage.ErrPageOutOfRange, fh.name, pageNum, fh.hdr.NumPages)
	}
	f, err := fh.view.FetchPage(pageNum)
	if err != nil {
		return nil, err
	}
	return &PageHandle{hdr: &fh.hdr, frame: f}, nil
}

func (fh *FileHandle) UnpinPageHandle(pageNum uint32, dirty bool) error {
	return fh.view.UnpinPage(pageNum, dirty)
}

func (fh *FileHandle) checkRID(rid RID) error {
	if rid.PageNumber == 0 || rid.PageNumber >= fh.hdr.NumPages || rid.SlotNumber >= fh.hdr.RecordsPerPage {
		return fmt.Errorf("%w: %s in %s", ErrBadRID, rid, fh.name)
	}
	return nil
}

// GetRecord returns a copy of the record at rid.
func (fh *FileHandle) GetRecord(rid RID) ([]byte, error) {
	if err := fh.checkRID(rid); err != nil {
		return nil, err
	}
	ph, err := fh.FetchPageHandle(rid.PageNumber)
	if err != nil {
		return nil, err
	}
	rec, err := ph.Record(rid.SlotNumber)

	// Read-only: dirty = false
	if uerr := fh.UnpinPageHandle(rid.PageNumber, false); err == nil {
		err = uerr
	}
	return rec, err
}

// IsRecord reports whether rid currently addresses a live record.
func (fh *FileHandle) IsRecord(rid RID) (bool, error) {
	if err := fh.checkRID(rid); err != nil {
		return false, nil
	}
	ph, err := fh.FetchPageHandle(rid.PageNumber)
	if err != nil {
		return false, err
	}
	ok := ph.IsSet(rid.SlotNumber)
	return ok, fh.UnpinPageHandle(rid.PageNumber, false)
}

// InsertRecord stores data in the first free slot of the first page on
// the free list, allocating a new page when the list is empty.
func (fh *FileHandle) InsertRecord(data []byte) (RID, error) {
	if len(data) != int(fh.hdr.RecordSize) {
		return RID{}, fmt.Errorf("%w: got %d, want %d", ErrRecordSize, len(data), fh.hdr.RecordSize)
	}

	var ph *PageHandle
	if fh.hdr.FirstFreePage == 0 {
		f, err := fh.view.NewPage()
		if err != nil {
			return RID{}, err
		}
		ph = &PageHandle{hdr: &fh.hdr, frame: f}
		ph.setNumRecords(0)
		ph.setNextFreePage(0)

		fh.hdr.NumPages = f.PageNum() + 1
		fh.hdr.FirstFreePage = f.PageNum()
		fh.hdrDirty = true
		slog.Debug("heap: page added", "file", fh.name, "page", f.PageNum())
	} else {
		var err error
		ph, err = fh.FetchPageHandle(fh.hdr.FirstFreePage)
		if err != nil {
			return RID{}, err
		}
	}
	pageNum := ph.PageNum()

	slot, ok := ph.firstClear()
	if !ok {
		_ = fh.UnpinPageHandle(pageNum, false)
		return RID{}, fmt.Errorf("%w: %s page %d is on the free list but full", ErrCorruptPage, fh.name, pageNum)
	}

	copy(ph.slot(slot), data)
	ph.setBit(slot)
	ph.setNumRecords(ph.NumRecords() + 1)

	if ph.Full() {
		fh.hdr.FirstFreePage = ph.NextFreePage()
		ph.setNextFreePage(0)
		fh.hdrDirty = true
	}

	if err := fh.UnpinPageHandle(pageNum, true); err != nil {
		return RID{}, err
	}
	return RID{PageNumber: pageNum, SlotNumber: slot}, nil
}

// DeleteRecord clears the slot bit. The bytes stay until the slot is
// reused.
func (fh *FileHandle) DeleteRecord(rid RID) error {
	if err := fh.checkRID(rid); err != nil {
		return err
	}
	ph, err := fh.FetchPageHandle(rid.PageNumber)
	if err != nil {
		return err
	}
	if !ph.IsSet(rid.SlotNumber) {
		_ = fh.UnpinPageHandle(rid.PageNumber, false)
		return fmt.Errorf("%w: %s", ErrRecordNotFound, rid)
	}

	wasFull := ph.Full()
	ph.clearBit(rid.SlotNumber)
	ph.setNumRecords(ph.NumRecords() - 1)

	// A full page is off the free list; it has room again.
	if wasFull {
		ph.setNextFreePage(fh.hdr.FirstFreePage)
		fh.hdr.FirstFreePage = rid.PageNumber
		fh.hdrDirty = true
	}
	return fh.UnpinPageHandle(rid.PageNumber, true)
}

// UpdateRecord overwrites the live record at rid in place.
func (fh *FileHandle) UpdateRecord(rid RID, data []byte) error {
	if len(data) != int(fh.hdr.RecordSize) {
		return fmt.Errorf("%w: got %d, want %d", ErrRecordSize, len(data), fh.hdr.RecordSize)
	}
	if err := fh.checkRID(rid); err != nil {
		return err
	}
	ph, err := fh.FetchPageHandle(rid.PageNumber)
	if err != nil {
		return err
	}
	if !ph.IsSet(rid.SlotNumber) {
		_ = fh.UnpinPageHandle(rid.PageNumber, false)
		return fmt.Errorf("%w: %s", ErrRecordNotFound, rid)
	}
	copy(ph.slot(rid.SlotNumber), data)
	return fh.UnpinPageHandle(rid.PageNumber, true)
}

// Scan calls fn for each live record in (page, slot) order, one pinned
// page at a time. fn returning false stops the scan.
func (fh *FileHandle) Scan(fn func(rid RID, rec []byte) bool) error {
	for p := uint32(1); p < fh.hdr.NumPages; p++ {
		ph, err := fh.FetchPageHandle(p)
		if err != nil {
			return err
		}
		if ph.NumRecords() == 0 {
			if err := fh.UnpinPageHandle(p, false); err != nil {
				return err
			}
			continue
		}

		var recs [][]byte
		var rids []RID
		for s := range fh.hdr.RecordsPerPage {
			if ph.IsSet(s) {
				rids = append(rids, RID{PageNumber: p, SlotNumber: s})
				recs = append(recs, append([]byte(nil), ph.slot(s)...))
			}
		}
		// Unpin before calling out so fn may touch the file itself.
		if err := fh.UnpinPageHandle(p, false); err != nil {
			return err
		}
		for i := range rids {
			if !fn(rids[i], recs[i]) {
				return nil
			}
		}
	}
	return nil
}

// Flush writes the file's dirty pages and its header back to disk and
// fsyncs the file.
func (fh *FileHandle) Flush() error {
	if err := fh.flush(); err != nil {
		return err
	}
	return fh.rm.dm.Sync(fh.name)
}

func (fh *FileHandle) flush() error {
	if err := fh.view.FlushAll(); err != nil {
		return err
	}
	if !fh.hdrDirty {
		return nil
	}
	if err := fh.rm.writeHeader(fh.name, fh.hdr); err != nil {
		return err
	}
	fh.hdrDirty = false
	return nil
}
