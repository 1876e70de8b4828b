// Package rowstore implements the temporary table a materialization writes
// into. Rows live in memory until the store outgrows its memory limit, after
// which they are moved to a bbolt file; this promotion is transparent to
// writers and to cursors, which re-seek by row id.
//
// Every row carries a hidden counter column used by set operations to track
// multiplicities, and its primary hash.
package rowstore

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"os"
	"time"

	"setexec/pkg/dberror"
	"setexec/pkg/logging"
	"setexec/pkg/metrics"
	"setexec/pkg/primitives"
	"setexec/pkg/tuple"

	"github.com/google/btree"
	bolt "go.etcd.io/bbolt"
)

const (
	// rowOverhead approximates the per-row bookkeeping of the in-memory
	// representation.
	rowOverhead = 40

	counterSize = 8
	hashSize    = 8
)

var rowsBucket = []byte("rows")

// Options configures a Store.
type Options struct {
	Schema *tuple.TupleDescription

	// Unique enables a unique index over the whole row; Write then rejects
	// duplicates with ErrDuplicateKey.
	Unique bool

	// MemoryLimit is the in-memory size at which the store is promoted to
	// disk. Zero disables promotion.
	MemoryLimit int64

	// Dir is where the bbolt file is created on promotion.
	Dir string

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Store is an append-only table of rows with counters.
type Store struct {
	opts Options
	log  *slog.Logger

	mem      [][]byte
	counters []uint64
	hashes   []primitives.HashCode
	memBytes int64

	db     *bolt.DB
	dbPath string

	rows   int64
	nextID primitives.RowID

	// generation changes on promotion, epoch on truncation.
	generation uint64
	epoch      uint64

	unique    *btree.BTree
	hashIndex *btree.BTree

	scratch *tuple.Tuple
	encBuf  []byte
}

// New creates an empty in-memory store.
func New(opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("rowstore")
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	s := &Store{
		opts:    opts,
		log:     opts.Logger,
		nextID:  1,
		scratch: tuple.NewTuple(opts.Schema),
	}
	if opts.Unique {
		s.unique = btree.New(btreeDegree)
	}
	return s
}

// Schema returns the description of stored rows.
func (s *Store) Schema() *tuple.TupleDescription {
	return s.opts.Schema
}

// Rows returns the number of stored rows.
func (s *Store) Rows() int64 {
	return s.rows
}

// LastRowID returns the id of the most recently written row, or
// InvalidRowID when the store is empty.
func (s *Store) LastRowID() primitives.RowID {
	return s.nextID - 1
}

// Promoted reports whether rows live on disk.
func (s *Store) Promoted() bool {
	return s.db != nil
}

// Hash computes the primary hash the store indexes row under.
func (s *Store) Hash(row *tuple.Tuple) (primitives.HashCode, error) {
	return tuple.Hash(row)
}

// Write appends row with the given hash and counter. With a unique index a
// row equal to a stored one is rejected with ErrDuplicateKey.
func (s *Store) Write(row *tuple.Tuple, hash primitives.HashCode, counter uint64) (primitives.RowID, error) {
	enc, err := tuple.Encode(s.encBuf[:0], row)
	if err != nil {
		return primitives.InvalidRowID, dberror.RowStoreWrite(err, "Store.Write")
	}
	s.encBuf = enc

	if s.unique != nil && s.unique.Has(uniqueItem{key: enc}) {
		return primitives.InvalidRowID, dberror.DuplicateKey("row")
	}

	id := s.nextID
	stored := bytes.Clone(enc)
	if s.db == nil {
		s.mem = append(s.mem, stored)
		s.counters = append(s.counters, counter)
		s.hashes = append(s.hashes, hash)
		s.memBytes += int64(len(stored)) + rowOverhead
	} else if err := s.put(id, hash, counter, stored); err != nil {
		return primitives.InvalidRowID, err
	}

	s.nextID++
	s.rows++
	if s.unique != nil {
		s.unique.ReplaceOrInsert(uniqueItem{key: stored, id: id})
	}
	if s.hashIndex != nil {
		s.hashIndex.ReplaceOrInsert(hashItem{hash: hash, id: id})
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.RowsMaterialized.Inc()
	}

	if s.db == nil && s.opts.MemoryLimit > 0 && s.memBytes > s.opts.MemoryLimit {
		if err := s.promote(); err != nil {
			return primitives.InvalidRowID, err
		}
	}
	return id, nil
}

// UpdateCounter replaces the counter of a stored row.
func (s *Store) UpdateCounter(id primitives.RowID, counter uint64) error {
	if id == primitives.InvalidRowID || id >= s.nextID {
		return dberror.AssertionFailedf("row id %d out of range", id)
	}
	if s.db == nil {
		s.counters[id-1] = counter
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(rowsBucket)
		v := b.Get(rowKey(id))
		if v == nil {
			return dberror.AssertionFailedf("row %d missing from disk store", id)
		}
		updated := bytes.Clone(v)
		binary.BigEndian.PutUint64(updated, counter)
		return b.Put(rowKey(id), updated)
	})
	if err != nil {
		return dberror.RowStoreWrite(err, "Store.UpdateCounter")
	}
	return nil
}

// Get decodes row id into `into` and returns its counter and hash.
func (s *Store) Get(id primitives.RowID, into *tuple.Tuple) (uint64, primitives.HashCode, error) {
	enc, counter, hash, err := s.load(id)
	if err != nil {
		return 0, 0, err
	}
	if err := tuple.Decode(enc, into); err != nil {
		return 0, 0, dberror.RowStoreWrite(err, "Store.Get")
	}
	into.RowID = id
	return counter, hash, nil
}

func (s *Store) load(id primitives.RowID) ([]byte, uint64, primitives.HashCode, error) {
	if id == primitives.InvalidRowID || id >= s.nextID {
		return nil, 0, 0, dberror.AssertionFailedf("row id %d out of range", id)
	}
	if s.db == nil {
		return s.mem[id-1], s.counters[id-1], s.hashes[id-1], nil
	}

	var (
		enc     []byte
		counter uint64
		hash    primitives.HashCode
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(rowsBucket).Get(rowKey(id))
		if v == nil {
			return dberror.AssertionFailedf("row %d missing from disk store", id)
		}
		counter = binary.BigEndian.Uint64(v)
		hash = primitives.HashCode(binary.BigEndian.Uint64(v[counterSize:]))
		enc = bytes.Clone(v[counterSize+hashSize:])
		return nil
	})
	if err != nil {
		return nil, 0, 0, dberror.RowStoreWrite(err, "Store.load")
	}
	return enc, counter, hash, nil
}

// LookupUnique returns the id of the stored row equal to row. It requires the
// unique index.
func (s *Store) LookupUnique(row *tuple.Tuple) (primitives.RowID, bool, error) {
	if s.unique == nil {
		return primitives.InvalidRowID, false, dberror.AssertionFailedf("store has no unique index")
	}
	enc, err := tuple.Encode(s.encBuf[:0], row)
	if err != nil {
		return primitives.InvalidRowID, false, err
	}
	s.encBuf = enc

	found := s.unique.Get(uniqueItem{key: enc})
	if found == nil {
		return primitives.InvalidRowID, false, nil
	}
	return found.(uniqueItem).id, true, nil
}

// EnableHashIndex builds the non-unique hash index over the stored rows and
// keeps it current for later writes. It is idempotent.
func (s *Store) EnableHashIndex() error {
	if s.hashIndex != nil {
		return nil
	}
	s.hashIndex = btree.New(btreeDegree)

	if s.db == nil {
		for i, h := range s.hashes {
			s.hashIndex.ReplaceOrInsert(hashItem{hash: h, id: primitives.RowID(i + 1)})
		}
		return nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(rowsBucket).ForEach(func(k, v []byte) error {
			s.hashIndex.ReplaceOrInsert(hashItem{
				hash: primitives.HashCode(binary.BigEndian.Uint64(v[counterSize:])),
				id:   primitives.RowID(binary.BigEndian.Uint64(k)),
			})
			return nil
		})
	})
	if err != nil {
		return dberror.RowStoreWrite(err, "Store.EnableHashIndex")
	}
	return nil
}

// HasHashIndex reports whether EnableHashIndex was called since the last
// truncation.
func (s *Store) HasHashIndex() bool {
	return s.hashIndex != nil
}

// FindEqual probes the hash index for a stored row equal to row, comparing
// every candidate column by column.
func (s *Store) FindEqual(row *tuple.Tuple, hash primitives.HashCode) (primitives.RowID, uint64, bool, error) {
	if s.hashIndex == nil {
		return primitives.InvalidRowID, 0, false, dberror.AssertionFailedf("store has no hash index")
	}

	var (
		foundID primitives.RowID
		counter uint64
		err     error
	)
	candidates(s.hashIndex, hash, func(id primitives.RowID) bool {
		var c uint64
		c, _, err = s.Get(id, s.scratch)
		if err != nil {
			return false
		}
		if tuple.Equal(row, s.scratch) {
			foundID, counter = id, c
			return false
		}
		return true
	})
	if err != nil {
		return primitives.InvalidRowID, 0, false, err
	}
	return foundID, counter, foundID != primitives.InvalidRowID, nil
}

// Truncate removes every row and index entry. Open cursors restart from the
// beginning.
func (s *Store) Truncate() error {
	if err := s.dropDisk(); err != nil {
		return err
	}
	s.mem, s.counters, s.hashes = nil, nil, nil
	s.memBytes = 0
	s.rows = 0
	s.nextID = 1
	s.epoch++
	if s.opts.Unique {
		s.unique = btree.New(btreeDegree)
	}
	s.hashIndex = nil
	return nil
}

// Close releases the disk file, if any.
func (s *Store) Close() error {
	return s.dropDisk()
}

func (s *Store) dropDisk() error {
	if s.db == nil {
		return nil
	}
	closeErr := s.db.Close()
	removeErr := os.Remove(s.dbPath)
	s.db = nil
	s.dbPath = ""
	if closeErr != nil {
		return dberror.RowStoreWrite(closeErr, "Store.Close")
	}
	if removeErr != nil && !os.IsNotExist(removeErr) {
		return dberror.RowStoreWrite(removeErr, "Store.Close")
	}
	return nil
}

// promote moves all rows into a bbolt file.
func (s *Store) promote() error {
	if err := os.MkdirAll(s.opts.Dir, 0o700); err != nil {
		return dberror.RowStoreWrite(err, "Store.promote")
	}
	f, err := os.CreateTemp(s.opts.Dir, "rowstore-*.db")
	if err != nil {
		return dberror.RowStoreWrite(err, "Store.promote")
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return dberror.RowStoreWrite(err, "Store.promote")
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second, NoFreelistSync: true})
	if err != nil {
		_ = os.Remove(path)
		return dberror.RowStoreWrite(err, "Store.promote")
	}
	db.NoSync = true

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(rowsBucket)
		if err != nil {
			return err
		}
		b.FillPercent = 1.0
		for i, enc := range s.mem {
			id := primitives.RowID(i + 1)
			if err := b.Put(rowKey(id), diskValue(s.counters[i], s.hashes[i], enc)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		_ = os.Remove(path)
		return dberror.RowStoreWrite(err, "Store.promote")
	}

	s.log.Info("row store promoted to disk",
		"rows", s.rows,
		logging.Bytes("memory", s.memBytes),
		"path", path)

	s.db = db
	s.dbPath = path
	s.mem, s.counters, s.hashes = nil, nil, nil
	s.memBytes = 0
	s.generation++
	if s.opts.Metrics != nil {
		s.opts.Metrics.RowStorePromotions.Inc()
	}
	return nil
}

func (s *Store) put(id primitives.RowID, hash primitives.HashCode, counter uint64, enc []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(rowsBucket)
		b.FillPercent = 1.0
		return b.Put(rowKey(id), diskValue(counter, hash, enc))
	})
	if err != nil {
		return dberror.RowStoreWrite(err, "Store.Write")
	}
	return nil
}

func rowKey(id primitives.RowID) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(id))
}

func diskValue(counter uint64, hash primitives.HashCode, enc []byte) []byte {
	v := make([]byte, 0, counterSize+hashSize+len(enc))
	v = binary.BigEndian.AppendUint64(v, counter)
	v = binary.BigEndian.AppendUint64(v, uint64(hash))
	return append(v, enc...)
}
