package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/tuannm99/novastore/internal/index"
	"github.com/tuannm99/novastore/internal/record"
)

type TableMeta struct {
	// ID stays the same for the life of the table; a table dropped and
	// created again under the same name gets a new one.
	ID     uuid.UUID     `json:"id"`
	Name   string        `json:"name"`
	Schema record.Schema `json:"schema"`
	// Indexes maps an indexed column to its index kind.
	Indexes   map[string]index.Kind `json:"indexes,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// DataFile is the heap file name of the table, relative to the data root.
func (m *TableMeta) DataFile() string {
	return m.Name + "/data"
}

func (m *TableMeta) IndexKind(column string) (index.Kind, bool) {
	k, ok := m.Indexes[column]
	return k, ok
}
