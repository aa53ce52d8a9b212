package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/tuannm99/novastore/internal"
	"github.com/tuannm99/novastore/internal/bufferpool"
	"github.com/tuannm99/novastore/internal/catalog"
	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/index"
	"github.com/tuannm99/novastore/internal/record"
	"github.com/tuannm99/novastore/internal/storage"
	"github.com/tuannm99/novastore/internal/value"
)

var ErrDatabaseClosed = errors.New("novastore: database is closed")

// Database wires the storage core together for one data directory:
// disk manager, shared buffer pool, record manager, index registry and
// catalog.
type Database struct {
	DataDir string

	dm      *storage.DiskManager
	bp      *bufferpool.BufferPool
	rm      *heap.RecordManager
	indexes *index.Registry
	cat     *catalog.Catalog

	mu     sync.Mutex
	tables map[string]*Table
	closed bool
}

// Open opens (creating if needed) the database under cfg.Storage.Workdir.
func Open(cfg *internal.Config) (*Database, error) {
	if cfg == nil {
		cfg = internal.DefaultConfig()
	}
	root := cfg.Storage.Workdir

	dm, err := storage.Open(root, cfg.Storage.PageSize)
	if err != nil {
		return nil, err
	}
	repl, err := bufferpool.NewReplacer(cfg.BufferPool.Replacer, cfg.BufferPool.Capacity)
	if err != nil {
		_ = dm.Close()
		return nil, err
	}
	bp := bufferpool.NewWithReplacer(dm, cfg.BufferPool.Capacity, repl)

	reg, err := index.NewRegistry(root, index.Options{Order: cfg.Index.Order}, cfg.Index.MaxOpen)
	if err != nil {
		_ = dm.Close()
		return nil, err
	}
	cat, err := catalog.Load(root)
	if err != nil {
		reg.Close()
		_ = dm.Close()
		return nil, err
	}

	slog.Info("engine: database opened", "dir", root, "page_size", dm.PageSize(),
		"pool_capacity", bp.Capacity(), "tables", len(cat.Tables()))

	return &Database{
		DataDir: root,
		dm:      dm,
		bp:      bp,
		rm:      heap.NewRecordManager(dm, bp),
		indexes: reg,
		cat:     cat,
		tables:  make(map[string]*Table),
	}, nil
}

func (db *Database) check() error {
	if db.closed {
		return ErrDatabaseClosed
	}
	return nil
}

// CreateTable registers the table and creates its heap file.
func (db *Database) CreateTable(name string, schema record.Schema) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check(); err != nil {
		return nil, err
	}

	meta, err := db.cat.Create(name, schema)
	if err != nil {
		return nil, err
	}
	if err := db.rm.CreateFile(meta.DataFile(), schema.RecordSize()); err != nil {
		_ = db.cat.Drop(name)
		return nil, err
	}
	if err := db.cat.Save(); err != nil {
		return nil, err
	}
	slog.Info("engine: table created", "table", name, "id", meta.ID, "record_size", schema.RecordSize())
	return db.tableLocked(name)
}

// Table returns the open table name, opening its heap file on first use.
func (db *Database) Table(name string) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check(); err != nil {
		return nil, err
	}
	return db.tableLocked(name)
}

func (db *Database) tableLocked(name string) (*Table, error) {
	if t, ok := db.tables[name]; ok {
		return t, nil
	}
	meta, err := db.cat.Get(name)
	if err != nil {
		return nil, err
	}
	fh, err := db.rm.OpenFile(meta.DataFile())
	if err != nil {
		return nil, err
	}
	t := &Table{db: db, meta: meta, fh: fh}
	db.tables[name] = t
	return t, nil
}

// Tables lists table names, sorted.
func (db *Database) Tables() []string {
	return db.cat.Tables()
}

// DropTable removes the table, its heap file and its index snapshots.
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check(); err != nil {
		return err
	}

	meta, err := db.cat.Get(name)
	if err != nil {
		return err
	}
	if t, ok := db.tables[name]; ok {
		if err := db.rm.CloseFile(t.fh); err != nil {
			return err
		}
		delete(db.tables, name)
	}
	for col, kind := range meta.Indexes {
		if err := db.indexes.Drop(name, col, kind); err != nil {
			return err
		}
	}
	if err := db.rm.DestroyFile(meta.DataFile()); err != nil {
		if !errors.Is(err, storage.ErrFileNotFound) {
			return err
		}
		slog.Warn("engine: heap file already gone", "table", name, "file", meta.DataFile())
	}
	if err := db.cat.Drop(name); err != nil {
		return err
	}
	slog.Info("engine: table dropped", "table", name)
	return db.cat.Save()
}

// CreateIndex builds an index over column from a full table scan. Rows
// with duplicate keys abort the build.
func (db *Database) CreateIndex(table, column string, kind index.Kind) error {
	t, err := db.Table(table)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check(); err != nil {
		return err
	}

	col := t.meta.Schema.ColumnIndex(column)
	if col < 0 {
		return fmt.Errorf("%w: %s.%s", catalog.ErrColumnNotFound, table, column)
	}
	if k, ok := t.meta.IndexKind(column); ok {
		return fmt.Errorf("%w: %s.%s (%s)", catalog.ErrIndexExists, table, column, k)
	}

	entries := make(map[value.Value]heap.RID)
	var scanErr error
	err = t.fh.Scan(func(rid heap.RID, rec []byte) bool {
		key, err := t.meta.Schema.DecodeColumn(rec, col)
		if err != nil {
			scanErr = err
			return false
		}
		if prev, dup := entries[key]; dup {
			scanErr = fmt.Errorf("%w: %s.%s = %s at %s and %s", index.ErrDuplicateKey, table, column, key, prev, rid)
			return false
		}
		entries[key] = rid
		return true
	})
	if err == nil {
		err = scanErr
	}
	if err != nil {
		return err
	}

	if _, err := db.indexes.Build(table, column, kind, entries); err != nil {
		return err
	}
	if err := db.cat.SetIndex(table, column, kind); err != nil {
		return err
	}
	slog.Info("engine: index created", "table", table, "column", column, "kind", kind, "entries", len(entries))
	return db.cat.Save()
}

// DropIndex removes the index on column and its snapshot.
func (db *Database) DropIndex(table, column string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check(); err != nil {
		return err
	}

	kind, err := db.cat.DropIndex(table, column)
	if err != nil {
		return err
	}
	if err := db.indexes.Drop(table, column, kind); err != nil {
		return err
	}
	return db.cat.Save()
}

// Index returns the open index on table.column.
func (db *Database) Index(table, column string) (index.Index, error) {
	meta, err := db.cat.Get(table)
	if err != nil {
		return nil, err
	}
	kind, ok := meta.IndexKind(column)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", catalog.ErrIndexNotFound, table, column)
	}
	return db.indexes.Get(table, column, kind)
}

func (db *Database) Stats() bufferpool.Stats {
	return db.bp.Stats()
}

func (db *Database) Disk() *storage.DiskManager {
	return db.dm
}

// Checkpoint makes the current state durable without closing: every open
// heap file is flushed and fsynced, then disk metadata and the catalog are
// written.
func (db *Database) Checkpoint() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.check(); err != nil {
		return err
	}

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(db.tables)) {
		if err := db.tables[name].fh.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("engine: checkpoint %s: %w", name, err))
		}
	}
	if err := db.dm.SaveMeta(); err != nil {
		errs = append(errs, err)
	}
	if err := db.cat.Save(); err != nil {
		errs = append(errs, err)
	}
	slog.Debug("engine: checkpoint", "tables", len(db.tables), "failed", len(errs))
	return errors.Join(errs...)
}

// Close flushes every page, writes heap headers, disk metadata and the
// catalog, then releases the data directory.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	var errs []error
	if err := db.rm.CloseAll(); err != nil {
		errs = append(errs, err)
	}
	if err := db.bp.FlushAllPages(""); err != nil {
		errs = append(errs, err)
	}
	db.indexes.Close()
	if err := db.cat.Save(); err != nil {
		errs = append(errs, err)
	}
	if err := db.dm.Close(); err != nil {
		errs = append(errs, err)
	}
	db.tables = nil

	slog.Info("engine: database closed", "dir", db.DataDir)
	return errors.Join(errs...)
}

func sortedColumns(m map[string]index.Kind) []string {
	out := make([]string, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
