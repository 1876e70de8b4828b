package tuple

import (
	"setexec/pkg/primitives"

	"github.com/cespare/xxhash/v2"
)

// Hash computes the primary hash of a row: xxHash64 over its canonical
// encoding. Because the encoding is canonical the hash survives encode/decode
// round trips and is equal for equal rows.
func Hash(t *Tuple) (primitives.HashCode, error) {
	encoded, err := Encode(nil, t)
	if err != nil {
		return 0, err
	}
	return HashEncoded(encoded), nil
}

// HashEncoded hashes an already encoded row.
func HashEncoded(encoded []byte) primitives.HashCode {
	return primitives.HashCode(xxhash.Sum64(encoded))
}
