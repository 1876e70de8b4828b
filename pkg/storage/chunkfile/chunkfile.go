// Package chunkfile implements the temporary files a spilling set operation
// partitions its rows into. A chunk file is an append-only sequence of
// records that can be replayed from any recorded offset while appends continue
// at the end. Files are private to one query, carry no header, and are removed
// on Close.
package chunkfile

import (
	"bufio"
	"encoding/binary"
	"io"
	"path/filepath"

	"setexec/pkg/dberror"
	"setexec/pkg/metrics"

	"github.com/golang/snappy"
	"github.com/spf13/afero"
)

// Record layout
//
//	+----------+-----------------+-------------+---------+---------------+---------+
//	| hash u64 | counter uvarint | set uvarint | flags   | len uvarint   | payload |
//	| 8 bytes  |                 |             | 1 byte  |               |         |
//	+----------+-----------------+-------------+---------+---------------+---------+
//
// payload is an encoded row, snappy-compressed when flagCompressed is set.
const (
	hashSize       = 8
	flagCompressed = 1 << 0

	flushThreshold = 64 << 10
	readBufferSize = 32 << 10
)

// Record is one row stored in a chunk file.
type Record struct {
	Hash    uint64
	Counter uint64
	Set     uint32
	Payload []byte
}

// File is an append-only chunk file.
type File struct {
	fs       afero.Fs
	f        afero.File
	name     string
	compress bool
	metrics  *metrics.Metrics

	size    int64  // bytes durably written at the end of f
	pending []byte // appended but not yet written
	rows    int64
	scratch []byte
}

// Create makes a new empty chunk file in dir. prefix becomes part of the
// file name to ease debugging.
func Create(fs afero.Fs, dir, prefix string, compress bool, m *metrics.Metrics) (*File, error) {
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, dberror.TempFileIO(err, "chunkfile.Create")
	}
	f, err := afero.TempFile(fs, dir, prefix+"-*.chunk")
	if err != nil {
		return nil, dberror.TempFileIO(err, "chunkfile.Create")
	}
	if m != nil {
		m.ChunkFilesOpen.Inc()
	}
	return &File{fs: fs, f: f, name: f.Name(), compress: compress, metrics: m}, nil
}

// Name returns the path of the file.
func (cf *File) Name() string {
	return filepath.Clean(cf.name)
}

// Size returns the logical end offset: the offset the next record starts at.
func (cf *File) Size() int64 {
	return cf.size + int64(len(cf.pending))
}

// Rows returns the number of records appended since creation or the last
// Truncate.
func (cf *File) Rows() int64 {
	return cf.rows
}

// Append adds rec at the end of the file and returns its encoded size.
func (cf *File) Append(rec Record) (int, error) {
	payload := rec.Payload
	var flags byte
	if cf.compress {
		cf.scratch = snappy.Encode(cf.scratch[:cap(cf.scratch)], rec.Payload)
		payload = cf.scratch
		flags |= flagCompressed
	}

	start := len(cf.pending)
	cf.pending = binary.BigEndian.AppendUint64(cf.pending, rec.Hash)
	cf.pending = binary.AppendUvarint(cf.pending, rec.Counter)
	cf.pending = binary.AppendUvarint(cf.pending, uint64(rec.Set))
	cf.pending = append(cf.pending, flags)
	cf.pending = binary.AppendUvarint(cf.pending, uint64(len(payload)))
	cf.pending = append(cf.pending, payload...)
	n := len(cf.pending) - start

	cf.rows++
	if cf.metrics != nil {
		cf.metrics.ChunkRowsWritten.Inc()
		cf.metrics.ChunkBytesWritten.Add(float64(n))
	}

	if len(cf.pending) >= flushThreshold {
		if err := cf.Flush(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// Flush writes buffered appends to the underlying file.
func (cf *File) Flush() error {
	if len(cf.pending) == 0 {
		return nil
	}
	if _, err := cf.f.WriteAt(cf.pending, cf.size); err != nil {
		return dberror.TempFileIO(err, "chunkfile.Flush")
	}
	cf.size += int64(len(cf.pending))
	cf.pending = cf.pending[:0]
	return nil
}

// Truncate empties the file so it can be refilled.
func (cf *File) Truncate() error {
	cf.pending = cf.pending[:0]
	if err := cf.f.Truncate(0); err != nil {
		return dberror.TempFileIO(err, "chunkfile.Truncate")
	}
	cf.size = 0
	cf.rows = 0
	return nil
}

// Close closes and removes the file.
func (cf *File) Close() error {
	if cf.f == nil {
		return nil
	}
	closeErr := cf.f.Close()
	removeErr := cf.fs.Remove(cf.name)
	cf.f = nil
	if cf.metrics != nil {
		cf.metrics.ChunkFilesOpen.Dec()
	}
	if closeErr != nil {
		return dberror.TempFileIO(closeErr, "chunkfile.Close")
	}
	if removeErr != nil {
		return dberror.TempFileIO(removeErr, "chunkfile.Close")
	}
	return nil
}

// NewReader returns a reader positioned at offset. Records appended after the
// reader was created are not visible to it.
func (cf *File) NewReader(offset int64) (*Reader, error) {
	if err := cf.Flush(); err != nil {
		return nil, err
	}
	section := io.NewSectionReader(cf.f, offset, cf.size-offset)
	return &Reader{
		r:      bufio.NewReaderSize(section, readBufferSize),
		offset: offset,
	}, nil
}

// Reader replays records sequentially.
type Reader struct {
	r       *bufio.Reader
	offset  int64
	payload []byte
	raw     []byte
}

// Offset returns the file offset of the next record.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Next decodes the next record into rec. rec.Payload aliases a buffer owned
// by the reader and is valid until the following call. It returns io.EOF when
// no records remain.
func (r *Reader) Next(rec *Record) error {
	var hdr [hashSize]byte
	n, err := io.ReadFull(r.r, hdr[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return io.EOF
		}
		return dberror.TempFileIO(err, "chunkfile.Reader.Next")
	}
	consumed := int64(hashSize)
	rec.Hash = binary.BigEndian.Uint64(hdr[:])

	counted := &countingByteReader{r: r.r}
	if rec.Counter, err = binary.ReadUvarint(counted); err != nil {
		return dberror.TempFileIO(unexpected(err), "chunkfile.Reader.Next")
	}
	set, err := binary.ReadUvarint(counted)
	if err != nil {
		return dberror.TempFileIO(unexpected(err), "chunkfile.Reader.Next")
	}
	rec.Set = uint32(set)
	flags, err := counted.ReadByte()
	if err != nil {
		return dberror.TempFileIO(unexpected(err), "chunkfile.Reader.Next")
	}
	length, err := binary.ReadUvarint(counted)
	if err != nil {
		return dberror.TempFileIO(unexpected(err), "chunkfile.Reader.Next")
	}
	consumed += counted.n

	if uint64(cap(r.raw)) < length {
		r.raw = make([]byte, length)
	}
	r.raw = r.raw[:length]
	if _, err := io.ReadFull(r.r, r.raw); err != nil {
		return dberror.TempFileIO(unexpected(err), "chunkfile.Reader.Next")
	}
	consumed += int64(length)

	rec.Payload = r.raw
	if flags&flagCompressed != 0 {
		r.payload, err = snappy.Decode(r.payload[:cap(r.payload)], r.raw)
		if err != nil {
			return dberror.TempFileIO(err, "chunkfile.Reader.Next")
		}
		rec.Payload = r.payload
	}

	r.offset += consumed
	return nil
}

type countingByteReader struct {
	r *bufio.Reader
	n int64
}

func (c *countingByteReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.n++
	}
	return b, err
}

// unexpected turns a clean EOF inside a record into ErrUnexpectedEOF.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
