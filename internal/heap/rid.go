package heap

import "fmt"

// RID (row identifier) is the physical address of a stored record:
// PageNumber: data page inside the heap file (page 0 is the file header)
// SlotNumber: slot index inside that page
//
// A RID is a locator, not an owner. After DeleteRecord the slot may be
// handed out again.
type RID struct {
	PageNumber uint32 `json:"pageNumber"`
	SlotNumber uint32 `json:"slotNumber"`
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageNumber, r.SlotNumber)
}

// Less orders RIDs by page, then slot: the order of a table scan.
func (r RID) Less(o RID) bool {
	if r.PageNumber != o.PageNumber {
		return r.PageNumber < o.PageNumber
	}
	return r.SlotNumber < o.SlotNumber
}
