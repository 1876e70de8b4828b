package tuple

import (
	"bytes"
	"fmt"
	"setexec/pkg/types"
)

// Row encoding
//
//	+----------------------+-----------------------------+
//	| null bitmap          | non-NULL fields, in order   |
//	| ceil(n/8) bytes      | types.Field.Serialize bytes |
//	+----------------------+-----------------------------+
//
// The encoding is canonical: equal rows encode to equal bytes. It is the form
// rows take inside hash arenas, chunk files and the disk-backed row store, and
// it is the input of the primary hash.

// Encode appends the encoding of t to dst and returns the extended slice.
func Encode(dst []byte, t *Tuple) ([]byte, error) {
	n := len(t.fields)
	bitmapLen := (n + 7) / 8

	buf := bytes.NewBuffer(dst)
	bitmapStart := buf.Len()
	buf.Write(make([]byte, bitmapLen))

	for i, f := range t.fields {
		if f == nil {
			continue
		}
		if err := f.Serialize(buf); err != nil {
			return dst, fmt.Errorf("failed to serialize field %d: %w", i, err)
		}
	}

	out := buf.Bytes()
	for i, f := range t.fields {
		if f == nil {
			out[bitmapStart+i/8] |= 1 << (uint(i) % 8)
		}
	}
	return out, nil
}

// EncodedSize returns the number of bytes Encode produces for t.
func EncodedSize(t *Tuple) int {
	size := (len(t.fields) + 7) / 8
	for _, f := range t.fields {
		if f != nil {
			size += int(f.Length())
		}
	}
	return size
}

// Decode parses data produced by Encode into the decode target into, which
// must have been created with the same schema. The previous contents of into
// are overwritten.
func Decode(data []byte, into *Tuple) error {
	n := len(into.fields)
	bitmapLen := (n + 7) / 8
	if len(data) < bitmapLen {
		return fmt.Errorf("encoded row too short: %d bytes, need at least %d", len(data), bitmapLen)
	}

	bitmap := data[:bitmapLen]
	r := bytes.NewReader(data[bitmapLen:])

	for i := 0; i < n; i++ {
		if bitmap[i/8]&(1<<(uint(i)%8)) != 0 {
			into.fields[i] = nil
			continue
		}

		f, err := types.ParseField(r, into.TupleDesc.Types[i])
		if err != nil {
			return fmt.Errorf("failed to parse field %d: %w", i, err)
		}
		into.fields[i] = f
	}

	if r.Len() != 0 {
		return fmt.Errorf("encoded row has %d trailing bytes", r.Len())
	}
	return nil
}

// DecodeNew allocates a fresh tuple for td and decodes data into it.
func DecodeNew(td *TupleDescription, data []byte) (*Tuple, error) {
	t := NewTuple(td)
	if err := Decode(data, t); err != nil {
		return nil, err
	}
	return t, nil
}

// EncodeColumns encodes only the listed columns, in the listed order. It is
// used for index keys and group keys.
func EncodeColumns(dst []byte, t *Tuple, cols []int) ([]byte, error) {
	projected := &Tuple{fields: make([]types.Field, len(cols))}
	for i, c := range cols {
		if c < 0 || c >= len(t.fields) {
			return dst, fmt.Errorf("column %d out of bounds [0, %d)", c, len(t.fields))
		}
		projected.fields[i] = t.fields[c]
	}
	return Encode(dst, projected)
}
