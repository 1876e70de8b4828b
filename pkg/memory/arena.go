// Package memory provides byte-budgeted allocation for operators that must
// detect when their working set outgrows the memory they were granted.
package memory

import (
	"setexec/pkg/dberror"
)

const defaultBlockSize = 64 << 10

// Arena hands out byte slices carved from large blocks and accounts every
// byte against a fixed budget. It never grows past the budget: Alloc and
// Reserve fail with ErrOutOfMemory instead, and Fits lets callers test first
// without side effects.
//
// Slices returned by Alloc stay valid until the next Reset.
type Arena struct {
	budget    int64
	used      int64
	blockSize int

	blocks [][]byte
	cur    int // index of the block being carved
	off    int // write offset inside blocks[cur]
}

// NewArena creates an arena that may account at most budget bytes.
func NewArena(budget int64) *Arena {
	bs := defaultBlockSize
	if budget > 0 && int64(bs) > budget {
		bs = int(budget)
	}
	if bs < 1 {
		bs = 1
	}
	return &Arena{budget: budget, blockSize: bs}
}

// Budget returns the configured byte budget.
func (a *Arena) Budget() int64 { return a.budget }

// Used returns the bytes accounted so far.
func (a *Arena) Used() int64 { return a.used }

// Fits reports whether n more bytes can be accounted.
func (a *Arena) Fits(n int64) bool {
	return n >= 0 && a.used+n <= a.budget
}

// Reserve accounts n bytes without allocating them. It is used for the
// bookkeeping overhead of structures that live outside the arena.
func (a *Arena) Reserve(n int64) error {
	if !a.Fits(n) {
		return dberror.OutOfMemory(a.used+n, a.budget)
	}
	a.used += n
	return nil
}

// Alloc returns a zeroed slice of n bytes.
func (a *Arena) Alloc(n int) ([]byte, error) {
	if err := a.Reserve(int64(n)); err != nil {
		return nil, err
	}
	return a.carve(n), nil
}

// Copy stores a copy of b in the arena.
func (a *Arena) Copy(b []byte) ([]byte, error) {
	dst, err := a.Alloc(len(b))
	if err != nil {
		return nil, err
	}
	copy(dst, b)
	return dst, nil
}

func (a *Arena) carve(n int) []byte {
	for a.cur < len(a.blocks) {
		blk := a.blocks[a.cur]
		if len(blk)-a.off >= n {
			out := blk[a.off : a.off+n : a.off+n]
			a.off += n
			return out
		}
		a.cur++
		a.off = 0
	}

	size := a.blockSize
	if n > size {
		size = n
	}
	blk := make([]byte, size)
	a.blocks = append(a.blocks, blk)
	a.cur = len(a.blocks) - 1
	a.off = n
	return blk[:n:n]
}

// Reset releases every allocation. With keepCapacity the blocks are kept and
// reused by later allocations, otherwise they are dropped for the GC.
func (a *Arena) Reset(keepCapacity bool) {
	a.used = 0
	a.cur = 0
	a.off = 0
	if !keepCapacity {
		a.blocks = nil
		return
	}
	for _, blk := range a.blocks {
		clear(blk)
	}
}

// Capacity returns the bytes held in blocks, allocated or not.
func (a *Arena) Capacity() int64 {
	var total int64
	for _, blk := range a.blocks {
		total += int64(len(blk))
	}
	return total
}
