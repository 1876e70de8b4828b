package setops

import (
	"encoding/binary"
	"math"
	"math/bits"

	"setexec/pkg/primitives"

	"github.com/cespare/xxhash/v2"
)

// fillFactor is the fraction of the in-memory map a chunk is sized to fill,
// leaving room for estimation error.
const fillFactor = 0.9

// chunkLayout partitions rows into numChunks chunks. When numChunks exceeds
// the open-file limit, chunks are grouped into numSets sets processed one
// after the other, each using the same `slots` physical file pairs.
type chunkLayout struct {
	numChunks int
	numSets   int
	slots     int
	seed      uint64
}

// computeLayout sizes the partitioning from the rows the map held when it
// overflowed and the expected total row count.
func computeLayout(estimatedRows, mapRows int64, maxChunks int, seed uint64) chunkLayout {
	if mapRows < 1 {
		mapRows = 1
	}
	if estimatedRows < mapRows {
		estimatedRows = mapRows
	}

	ideal := int64(math.Ceil(float64(estimatedRows) / (fillFactor * float64(mapRows))))
	numChunks := bitCeil(ideal)

	numSets := (numChunks + maxChunks - 1) / maxChunks
	slots := min(numChunks, maxChunks)

	return chunkLayout{
		numChunks: slots * numSets,
		numSets:   numSets,
		slots:     slots,
		seed:      seed,
	}
}

// bitCeil returns the smallest power of two >= n, and 1 for n <= 1.
func bitCeil(n int64) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(uint64(n-1))
}

// tertiaryIndex maps a primary hash to a chunk index in [0, numChunks). It
// rehashes with a seed so that chunk assignment is independent of the
// in-memory bucket assignment.
func (l chunkLayout) tertiaryIndex(hash primitives.HashCode) int {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], l.seed)
	binary.LittleEndian.PutUint64(buf[8:], uint64(hash))
	return int(xxhash.Sum64(buf[:]) & uint64(l.numChunks-1))
}

// target returns the set and slot a row with the given primary hash belongs to.
func (l chunkLayout) target(hash primitives.HashCode) (set, slot int) {
	idx := l.tertiaryIndex(hash)
	return idx / l.slots, idx % l.slots
}
