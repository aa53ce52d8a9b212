package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tuannm99/novastore/internal/alias/util"
	"github.com/tuannm99/novastore/internal/index"
	"github.com/tuannm99/novastore/internal/record"
)

var (
	ErrTableExists    = errors.New("catalog: table already exists")
	ErrTableNotFound  = errors.New("catalog: table not found")
	ErrColumnNotFound = errors.New("catalog: column not found")
	ErrIndexExists    = errors.New("catalog: column is already indexed")
	ErrIndexNotFound  = errors.New("catalog: column is not indexed")
	ErrBadName        = errors.New("catalog: invalid table name")
)

const catalogVersion = 1

type fileFormat struct {
	Version int          `json:"version"`
	Tables  []*TableMeta `json:"tables"`
}

// Catalog is the table metadata store, persisted as <root>/meta/tables.json.
type Catalog struct {
	path string

	mu     sync.RWMutex
	tables map[string]*TableMeta
}

func Path(root string) string {
	return filepath.Join(root, "meta", "tables.json")
}

// Load reads the catalog under root; a missing file is an empty catalog.
func Load(root string) (*Catalog, error) {
	c := &Catalog{path: Path(root), tables: make(map[string]*TableMeta)}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("catalog: read: %w", err)
	}
	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", c.path, err)
	}
	for _, m := range f.Tables {
		c.tables[m.Name] = m
	}
	slog.Debug("catalog: loaded", "path", c.path, "tables", len(c.tables))
	return c, nil
}

// Save rewrites the catalog file atomically.
func (c *Catalog) Save() error {
	c.mu.RLock()
	f := fileFormat{Version: catalogVersion, Tables: make([]*TableMeta, 0, len(c.tables))}
	for _, m := range c.tables {
		f.Tables = append(f.Tables, m)
	}
	c.mu.RUnlock()

	sort.Slice(f.Tables, func(i, j int) bool { return f.Tables[i].Name < f.Tables[j].Name })
	data, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(c.path, data, 0o644); err != nil {
		return fmt.Errorf("catalog: write: %w", err)
	}
	return nil
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\.`) && !strings.HasPrefix(name, "-")
}

// Create registers a new table. The meta returned is owned by the catalog.
func (c *Catalog) Create(name string, schema record.Schema) (*TableMeta, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrBadName, name)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	now := time.Now()
	m := &TableMeta{
		ID:        uuid.New(),
		Name:      name,
		Schema:    schema,
		Indexes:   map[string]index.Kind{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.tables[name] = m
	return m, nil
}

func (c *Catalog) Get(name string) (*TableMeta, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return m, nil
}

func (c *Catalog) Drop(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	delete(c.tables, name)
	return nil
}

// Tables lists table names, sorted.
func (c *Catalog) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tables))
	for name := range c.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetIndex records that column of table is indexed with kind. One index
// per column.
func (c *Catalog) SetIndex(table, column string, kind index.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.tables[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	if m.Schema.ColumnIndex(column) < 0 {
		return fmt.Errorf("%w: %s.%s", ErrColumnNotFound, table, column)
	}
	if k, ok := m.Indexes[column]; ok {
		return fmt.Errorf("%w: %s.%s (%s)", ErrIndexExists, table, column, k)
	}
	if m.Indexes == nil {
		m.Indexes = map[string]index.Kind{}
	}
	m.Indexes[column] = kind
	m.UpdatedAt = time.Now()
	return nil
}

// DropIndex forgets the index on column and returns its kind.
func (c *Catalog) DropIndex(table, column string) (index.Kind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.tables[table]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	k, ok := m.Indexes[column]
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", ErrIndexNotFound, table, column)
	}
	delete(m.Indexes, column)
	m.UpdatedAt = time.Now()
	return k, nil
}
