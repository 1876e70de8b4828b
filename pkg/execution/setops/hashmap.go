package setops

import (
	"encoding/binary"

	"setexec/pkg/memory"
	"setexec/pkg/primitives"
	"setexec/pkg/tuple"
)

// entryOverhead approximates the bytes an entry costs outside the arena:
// the entry struct, its slot in the insertion list and its bucket slot.
const (
	entryOverhead  = 64
	bucketOverhead = 48
)

// secondaryKey is the in-memory lookup key: the big-endian bytes of the
// primary hash. Rows with equal keys share a bucket.
type secondaryKey [8]byte

func keyOf(hash primitives.HashCode) secondaryKey {
	var k secondaryKey
	binary.BigEndian.PutUint64(k[:], uint64(hash))
	return k
}

// Entry is one distinct row held by a HashMap.
type Entry struct {
	Hash    primitives.HashCode
	Row     []byte // canonical encoding, stored in the map's arena
	Counter uint64
}

// ProbeResult reports the outcome of HashMap.Probe.
type ProbeResult struct {
	// Entry is the matching or newly inserted entry, nil otherwise.
	Entry *Entry

	Found    bool
	Inserted bool

	// SpillNeeded is set when inserting would exceed the memory budget.
	// Nothing was modified.
	SpillNeeded bool

	// SingleRowTooLarge is set when the row alone exceeds the whole budget,
	// so no amount of spilling can make room for it.
	SingleRowTooLarge bool
}

// HashMap deduplicates rows in memory under a byte budget. Candidate rows
// with the same secondary key are compared column by column, so a hash
// collision never merges distinct rows.
type HashMap struct {
	arena   *memory.Arena
	buckets map[secondaryKey][]*Entry
	entries []*Entry

	scratch *tuple.Tuple
	encBuf  []byte
}

// NewHashMap creates an empty map for rows of schema td with the given
// budget in bytes.
func NewHashMap(td *tuple.TupleDescription, budget int64) *HashMap {
	return &HashMap{
		arena:   memory.NewArena(budget),
		buckets: make(map[secondaryKey][]*Entry),
		scratch: tuple.NewTuple(td),
	}
}

// Len returns the number of distinct rows held.
func (m *HashMap) Len() int {
	return len(m.entries)
}

// Used returns the bytes accounted against the budget.
func (m *HashMap) Used() int64 {
	return m.arena.Used()
}

// Budget returns the configured budget.
func (m *HashMap) Budget() int64 {
	return m.arena.Budget()
}

// Lookup is Probe with the primary hash computed from row.
func (m *HashMap) Lookup(row *tuple.Tuple, write bool) (ProbeResult, error) {
	hash, err := tuple.Hash(row)
	if err != nil {
		return ProbeResult{}, err
	}
	return m.Probe(row, hash, write)
}

// Probe looks row up under its primary hash. If no equal row is held and
// write is set, the row is inserted with a zero counter unless that would
// exceed the budget, in which case SpillNeeded (or SingleRowTooLarge) is
// reported and the map is left unchanged.
func (m *HashMap) Probe(row *tuple.Tuple, hash primitives.HashCode, write bool) (ProbeResult, error) {
	key := keyOf(hash)
	bucket, hasBucket := m.buckets[key]

	for _, e := range bucket {
		if err := tuple.Decode(e.Row, m.scratch); err != nil {
			return ProbeResult{}, err
		}
		if tuple.Equal(row, m.scratch) {
			return ProbeResult{Entry: e, Found: true}, nil
		}
	}

	if !write {
		return ProbeResult{}, nil
	}

	enc, err := tuple.Encode(m.encBuf[:0], row)
	if err != nil {
		return ProbeResult{}, err
	}
	m.encBuf = enc

	need := int64(len(enc)) + entryOverhead
	if !hasBucket {
		need += bucketOverhead
	}
	if need > m.arena.Budget() {
		return ProbeResult{SingleRowTooLarge: true}, nil
	}
	if !m.arena.Fits(need) {
		return ProbeResult{SpillNeeded: true}, nil
	}

	if err := m.arena.Reserve(need - int64(len(enc))); err != nil {
		return ProbeResult{}, err
	}
	stored, err := m.arena.Copy(enc)
	if err != nil {
		return ProbeResult{}, err
	}

	e := &Entry{Hash: hash, Row: stored}
	m.buckets[key] = append(bucket, e)
	m.entries = append(m.entries, e)
	return ProbeResult{Entry: e, Inserted: true}, nil
}

// Entries returns the held entries in insertion order. The slice is owned by
// the map and invalidated by Reset.
func (m *HashMap) Entries() []*Entry {
	return m.entries
}

// Reset empties the map and keeps the arena's blocks for reuse.
func (m *HashMap) Reset() {
	clear(m.buckets)
	clear(m.entries)
	m.entries = m.entries[:0]
	m.arena.Reset(true)
}

// Release empties the map and frees its memory.
func (m *HashMap) Release() {
	m.buckets = make(map[secondaryKey][]*Entry)
	m.entries = nil
	m.arena.Reset(false)
}
