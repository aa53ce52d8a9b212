package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"slices"

	"github.com/tuannm99/novastore/internal/alias/util"
	"github.com/tuannm99/novastore/internal/heap"
	"github.com/tuannm99/novastore/internal/value"
)

// A snapshot is a JSON object from encoded key ("INTEGER_42") to RID:
//
//	{"INTEGER_42": {"pageNumber": 1, "slotNumber": 0}}
func loadSnapshot(path string) ([]Entry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("index: read snapshot: %w", err)
	}

	var raw map[string]heap.RID
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("index: decode snapshot %s: %w", path, err)
	}

	out := make([]Entry, 0, len(raw))
	for k, rid := range raw {
		key, err := value.ParseKey(k)
		if err != nil {
			return nil, fmt.Errorf("index: snapshot %s: %w", path, err)
		}
		out = append(out, Entry{Key: key, RID: rid})
	}
	// Replay in key order so rebuilding is deterministic.
	slices.SortFunc(out, func(a, b Entry) int { return value.Order(a.Key, b.Key) })

	slog.Debug("index: snapshot loaded", "path", path, "entries", len(out))
	return out, nil
}

func writeSnapshot(path string, entries iter.Seq2[value.Value, heap.RID]) error {
	if path == "" {
		return nil
	}
	raw := make(map[string]heap.RID)
	for k, rid := range entries {
		ek, err := value.EncodeKey(k)
		if err != nil {
			return err
		}
		raw[ek] = rid
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := util.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("index: write snapshot: %w", err)
	}
	slog.Debug("index: snapshot saved", "path", path, "entries", len(raw))
	return nil
}
