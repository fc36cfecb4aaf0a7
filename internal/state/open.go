package state

import (
	"fmt"
	"path/filepath"
)

const (
	KVSQLite = "sqlite"
	KVBadger = "badger"
	KVMemory = "memory"
)

// OpenKV picks the storage for hint progress. The sqlite backend shares the
// already open store; the returned KV must not be closed separately in that
// case.
func OpenKV(kind, dataDir string, sq *SQLiteStore) (KV, bool, error) {
	switch kind {
	case "", KVSQLite:
		if sq == nil {
			return nil, false, fmt.Errorf("open kv: sqlite store not available")
		}
		return sq, false, nil
	case KVBadger:
		dir := ""
		if dataDir != "" {
			dir = filepath.Join(dataDir, "kv")
		}
		kv, err := NewBadgerKV(dir)
		if err != nil {
			return nil, false, fmt.Errorf("open kv: %w", err)
		}
		return kv, true, nil
	case KVMemory:
		return NewMemoryKV(), true, nil
	default:
		return nil, false, fmt.Errorf("open kv: unknown backend %q", kind)
	}
}
