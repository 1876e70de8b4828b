package rowstore

import (
	"setexec/pkg/primitives"
	"setexec/pkg/tuple"
)

// Cursor scans a store in row id order. It holds no storage handles between
// calls, so it stays valid across writes and promotion: after either it
// continues from the last row id it returned.
type Cursor struct {
	s          *Store
	last       primitives.RowID
	generation uint64
	epoch      uint64
	row        *tuple.Tuple
}

// NewCursor returns a cursor positioned before the first row.
func (s *Store) NewCursor() *Cursor {
	return &Cursor{
		s:          s,
		generation: s.generation,
		epoch:      s.epoch,
		row:        tuple.NewTuple(s.opts.Schema),
	}
}

// Next returns the next row and its counter, or a nil row at the end. The
// row is reused by the following call.
func (c *Cursor) Next() (*tuple.Tuple, uint64, error) {
	c.resync()
	id := c.last + 1
	if id >= c.s.nextID {
		return nil, 0, nil
	}

	counter, _, err := c.s.Get(id, c.row)
	if err != nil {
		return nil, 0, err
	}
	c.last = id
	return c.row, counter, nil
}

// SeekAfter positions the cursor so that Next returns the row following id.
func (c *Cursor) SeekAfter(id primitives.RowID) {
	c.resync()
	c.last = id
}

// Position returns the id of the last row returned.
func (c *Cursor) Position() primitives.RowID {
	return c.last
}

func (c *Cursor) resync() {
	if c.epoch != c.s.epoch {
		c.epoch = c.s.epoch
		c.generation = c.s.generation
		c.last = primitives.InvalidRowID
		return
	}
	if c.generation != c.s.generation {
		c.s.log.Debug("cursor re-seek after promotion", "after_row", c.last)
		c.generation = c.s.generation
	}
}
