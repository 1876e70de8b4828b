package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"setexec/pkg/iterator"
	"setexec/pkg/tuple"
	"setexec/pkg/types"
	"setexec/pkg/utils/functools"

	"github.com/spf13/afero"
)

var valueDesc = tuple.MustNewTupleDesc([]types.Type{types.IntType}, []string{"value"})

// parseValue reads one integer cell. "null" (any case) and empty cells are
// NULL.
func parseValue(b *tuple.Builder, cell string) error {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, "null") {
		b.AddNull()
		return nil
	}
	v, err := strconv.ParseInt(cell, 10, 64)
	if err != nil {
		return fmt.Errorf("bad value %q: %w", cell, err)
	}
	b.AddInt(v)
	return nil
}

// parseRow builds a one-column row from a cell.
func parseRow(cell string) (*tuple.Tuple, error) {
	b := tuple.NewBuilder(valueDesc)
	if err := parseValue(b, cell); err != nil {
		return nil, err
	}
	return b.Build()
}

// literalOperand turns "1,1,2" into a single-column source. An empty string
// is an empty operand.
func literalOperand(list string) (*iterator.SliceSource, error) {
	var rows []*tuple.Tuple
	if strings.TrimSpace(list) != "" {
		var err error
		rows, err = functools.MapWithError(strings.Split(list, ","), parseRow)
		if err != nil {
			return nil, err
		}
	}
	return iterator.NewSliceSource(valueDesc, rows), nil
}

// csvOperand reads the first column of every record of a CSV file.
func csvOperand(fs afero.Fs, path string) (*iterator.SliceSource, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows []*tuple.Tuple
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		row, err := parseRow(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		rows = append(rows, row)
	}
	return iterator.NewSliceSource(valueDesc, rows), nil
}
