package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/tuannm99/novastore/internal"
	"github.com/tuannm99/novastore/internal/engine"
	"github.com/tuannm99/novastore/internal/index"
	"github.com/tuannm99/novastore/internal/record"
	"github.com/tuannm99/novastore/internal/value"
)

const usage = `usage: novastore [-config file] <command> [args]

commands:
  init                                 create the data directory
  tables                               list tables, columns and indexes
  create-table <name> <col:KIND>...    KIND is INTEGER, FLOAT or CHAR
  insert <table> <value>...            one value per column
  scan <table>                         print every row
  create-index <table> <col> [kind]    kind is BTREE or InMemoryOrdered
  drop-index <table> <col>
  drop-table <table>
  lookup <table> <col> <op> <value>    op is = < <= > >=
  dump-index <table> <col>             print index entries in key order
  stats                                buffer pool and disk usage
  checkpoint                           flush and fsync everything without exiting
  shell                                interactive prompt running the commands above
`

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	histPath := flag.String("history", defaultHistoryPath(), "Shell history file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(cfg.NewLogger(os.Stderr))

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	db, err := engine.Open(cfg)
	if err != nil {
		slog.Error("open database", "dir", cfg.Storage.Workdir, "err", err)
		os.Exit(1)
	}

	var runErr error
	if args[0] == "shell" {
		runErr = runShell(db, cfg, *histPath)
	} else {
		runErr = run(db, cfg, args[0], args[1:])
	}
	if err := db.Close(); err != nil {
		slog.Error("close database", "err", err)
		runErr = errors.Join(runErr, err)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}

var errUsage = errors.New("wrong number of arguments")

func run(db *engine.Database, cfg *internal.Config, cmd string, args []string) error {
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: %w\n\n%s", cmd, errUsage, usage)
		}
		return nil
	}

	switch cmd {
	case "init":
		fmt.Printf("data directory ready: %s\n", db.DataDir)
		return nil

	case "tables":
		for _, name := range db.Tables() {
			t, err := db.Table(name)
			if err != nil {
				return err
			}
			cols := make([]string, 0, t.Schema().NumCols())
			for _, c := range t.Schema().Columns {
				col := c.Name + " " + c.Kind.String()
				if idx, err := db.Index(name, c.Name); err == nil {
					col += fmt.Sprintf(" [%s, %d keys]", idx.Kind(), idx.Len())
				}
				cols = append(cols, col)
			}
			fmt.Printf("%s(%s) id=%s\n", name, strings.Join(cols, ", "), t.ID())
		}
		return nil

	case "create-table":
		if err := need(2); err != nil {
			return err
		}
		var schema record.Schema
		for _, spec := range args[1:] {
			name, kindStr, ok := strings.Cut(spec, ":")
			if !ok {
				return fmt.Errorf("column %q: want name:KIND", spec)
			}
			kind, err := value.ParseKind(kindStr)
			if err != nil {
				return err
			}
			schema.Columns = append(schema.Columns, record.Column{Name: name, Kind: kind})
		}
		_, err := db.CreateTable(args[0], schema)
		return err

	case "insert":
		if err := need(1); err != nil {
			return err
		}
		t, err := db.Table(args[0])
		if err != nil {
			return err
		}
		cols := t.Schema().Columns
		if len(args)-1 != len(cols) {
			return fmt.Errorf("%w: %s has %d columns, got %d values",
				record.ErrColumnCount, t.Name(), len(cols), len(args)-1)
		}
		vals := make([]value.Value, len(cols))
		for i, c := range cols {
			if vals[i], err = value.Parse(c.Kind, args[i+1]); err != nil {
				return err
			}
		}
		rid, err := t.Insert(vals)
		if err != nil {
			return err
		}
		fmt.Println(rid)
		return nil

	case "scan":
		if err := need(1); err != nil {
			return err
		}
		t, err := db.Table(args[0])
		if err != nil {
			return err
		}
		return t.Scan(func(r engine.Row) bool {
			printRow(r)
			return true
		})

	case "create-index":
		if err := need(2); err != nil {
			return err
		}
		kindStr := cfg.Index.DefaultKind
		if len(args) > 2 {
			kindStr = args[2]
		}
		kind, err := index.ParseKind(kindStr)
		if err != nil {
			return err
		}
		return db.CreateIndex(args[0], args[1], kind)

	case "drop-index":
		if err := need(2); err != nil {
			return err
		}
		return db.DropIndex(args[0], args[1])

	case "drop-table":
		if err := need(1); err != nil {
			return err
		}
		return db.DropTable(args[0])

	case "lookup":
		if err := need(4); err != nil {
			return err
		}
		t, err := db.Table(args[0])
		if err != nil {
			return err
		}
		op, err := engine.ParseOp(args[2])
		if err != nil {
			return err
		}
		col := t.Schema().ColumnIndex(args[1])
		if col < 0 {
			return fmt.Errorf("%w: %s", record.ErrUnknownColumn, args[1])
		}
		key, err := value.Parse(t.Schema().Columns[col].Kind, args[3])
		if err != nil {
			return err
		}
		rows, err := t.Lookup(args[1], op, key)
		if err != nil {
			return err
		}
		for _, r := range rows {
			printRow(r)
		}
		return nil

	case "dump-index":
		if err := need(2); err != nil {
			return err
		}
		idx, err := db.Index(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("# %s %s, %d keys\n", idx.Kind(), idx.Path(), idx.Len())
		for k, rid := range index.All(idx) {
			fmt.Printf("%s\t%s\n", k, rid)
		}
		return nil

	case "stats":
		st := db.Stats()
		fmt.Printf("buffer pool: %d/%d frames resident, %d pinned (%s replacer)\n",
			st.Resident, st.Capacity, st.Pinned, cfg.BufferPool.Replacer)
		fmt.Printf("hits %s, misses %s, evictions %s, flushes %s\n",
			humanize.Comma(int64(st.Hits)), humanize.Comma(int64(st.Misses)),
			humanize.Comma(int64(st.Evictions)), humanize.Comma(int64(st.Flushes)))
		size, files, err := dirSize(db.DataDir)
		if err != nil {
			return err
		}
		dm := db.Disk()
		fmt.Printf("disk: %s in %d files under %s (page size %s)\n",
			humanize.IBytes(size), files, db.DataDir, humanize.IBytes(uint64(dm.PageSize())))
		for _, name := range dm.Files() {
			pages, err := dm.PageCount(name)
			if err != nil {
				return err
			}
			fmt.Printf("  %-24s %6d pages  %s\n", name, pages,
				humanize.IBytes(uint64(pages)*uint64(dm.PageSize())))
		}
		return nil

	case "checkpoint":
		return db.Checkpoint()

	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

func printRow(r engine.Row) {
	parts := make([]string, len(r.Values))
	for i, v := range r.Values {
		parts[i] = v.String()
	}
	fmt.Printf("%s\t%s\n", r.RID, strings.Join(parts, "\t"))
}

func dirSize(root string) (uint64, int, error) {
	var total uint64
	var n int
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(info.Size())
		n++
		return nil
	})
	return total, n, err
}
