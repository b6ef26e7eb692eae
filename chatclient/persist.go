package chatclient

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
)

// Transcript persists log entries of one conversation in a PebbleDB store.
// Keys are the 8-byte big-endian entry sequence, so iteration order is log
// order.
type Transcript struct {
	db *pebble.DB
}

// OpenTranscript opens (or creates) the store at dir. An empty dir yields a
// nil Transcript, which accepts appends and loads nothing.
func OpenTranscript(dir string) (*Transcript, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Transcript{db: db}, nil
}

func (t *Transcript) Append(e LogEntry) error {
	if t == nil || t.db == nil {
		return nil
	}
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return t.db.Set(seqKey(e.Seq), val, pebble.Sync)
}

// LoadRecent returns the newest limit entries in log order. limit <= 0
// loads everything.
func (t *Transcript) LoadRecent(limit int) ([]LogEntry, error) {
	if t == nil || t.db == nil {
		return nil, nil
	}
	it, err := t.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	// Walk backwards from the newest key, then restore log order.
	var out []LogEntry
	for valid := it.Last(); valid; valid = it.Prev() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var e LogEntry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (t *Transcript) Close() error {
	if t == nil || t.db == nil {
		return nil
	}
	return t.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
