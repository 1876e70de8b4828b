package iterator

import (
	"setexec/pkg/session"
	"setexec/pkg/tuple"
)

// ForEach initializes src and applies processFunc to each row until the end
// of stream or the first error. Rows passed to processFunc are owned by src.
func ForEach(ec *session.ExecContext, src RowSource, processFunc func(*tuple.Tuple) error) error {
	if err := src.Init(ec); err != nil {
		return err
	}
	for {
		row, err := src.Read()
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		if err := processFunc(row); err != nil {
			return err
		}
	}
}

// Collect initializes src and returns clones of all its rows.
func Collect(ec *session.ExecContext, src RowSource) ([]*tuple.Tuple, error) {
	var rows []*tuple.Tuple
	err := ForEach(ec, src, func(row *tuple.Tuple) error {
		rows = append(rows, row.Clone())
		return nil
	})
	return rows, err
}

// Count initializes src and returns the number of rows it produces.
func Count(ec *session.ExecContext, src RowSource) (int, error) {
	n := 0
	err := ForEach(ec, src, func(*tuple.Tuple) error {
		n++
		return nil
	})
	return n, err
}
