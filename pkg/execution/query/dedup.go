package query

import (
	"bytes"

	"setexec/pkg/iterator"
	"setexec/pkg/session"
	"setexec/pkg/tuple"
	"setexec/pkg/types"
)

// RemoveDuplicates drops rows whose key columns equal those of the row
// immediately before them. Only adjacent duplicates are removed, so the
// input is expected to be grouped on the key.
type RemoveDuplicates struct {
	*iterator.UnaryOperator
	cols []int

	prev    *tuple.Tuple
	hasPrev bool
}

// NewRemoveDuplicates creates the operator. A nil cols compares whole rows.
func NewRemoveDuplicates(child iterator.RowSource, cols []int) (*RemoveDuplicates, error) {
	r := &RemoveDuplicates{cols: cols}
	unaryOp, err := iterator.NewUnaryOperator(child, r.readNext)
	if err != nil {
		return nil, err
	}
	r.UnaryOperator = unaryOp
	r.prev = tuple.NewTuple(child.Schema())
	if r.cols == nil {
		r.cols = make([]int, child.Schema().NumFields())
		for i := range r.cols {
			r.cols[i] = i
		}
	}
	return r, nil
}

func (r *RemoveDuplicates) Init(ec *session.ExecContext) error {
	r.hasPrev = false
	return r.UnaryOperator.Init(ec)
}

func (r *RemoveDuplicates) readNext() (*tuple.Tuple, error) {
	for {
		t, err := r.FetchNext()
		if err != nil || t == nil {
			return t, err
		}
		if r.hasPrev {
			same, err := r.sameAsPrev(t)
			if err != nil {
				return nil, err
			}
			if same {
				r.GetChild().UnlockRow()
				continue
			}
		}
		r.prev.CopyFrom(t)
		r.hasPrev = true
		return t, nil
	}
}

func (r *RemoveDuplicates) sameAsPrev(t *tuple.Tuple) (bool, error) {
	for _, c := range r.cols {
		a, err := t.GetField(c)
		if err != nil {
			return false, err
		}
		b, err := r.prev.GetField(c)
		if err != nil {
			return false, err
		}
		if types.CompareFields(a, b) != 0 {
			return false, nil
		}
	}
	return true, nil
}

// RemoveDuplicatesOnIndex drops rows whose index key bytes equal the key of
// the previous row. It is used over index scans, where equal keys are
// adjacent and comparing the encoded key is cheaper than comparing fields.
type RemoveDuplicatesOnIndex struct {
	*iterator.UnaryOperator
	keyCols []int

	prevKey []byte
	key     []byte
	hasPrev bool
}

// NewRemoveDuplicatesOnIndex creates the operator over the index key
// columns keyCols.
func NewRemoveDuplicatesOnIndex(child iterator.RowSource, keyCols []int) (*RemoveDuplicatesOnIndex, error) {
	r := &RemoveDuplicatesOnIndex{keyCols: keyCols}
	unaryOp, err := iterator.NewUnaryOperator(child, r.readNext)
	if err != nil {
		return nil, err
	}
	r.UnaryOperator = unaryOp
	return r, nil
}

func (r *RemoveDuplicatesOnIndex) Init(ec *session.ExecContext) error {
	r.hasPrev = false
	return r.UnaryOperator.Init(ec)
}

func (r *RemoveDuplicatesOnIndex) readNext() (*tuple.Tuple, error) {
	for {
		t, err := r.FetchNext()
		if err != nil || t == nil {
			return t, err
		}
		r.key, err = tuple.EncodeColumns(r.key[:0], t, r.keyCols)
		if err != nil {
			return nil, err
		}
		if r.hasPrev && bytes.Equal(r.key, r.prevKey) {
			r.GetChild().UnlockRow()
			continue
		}
		r.prevKey = append(r.prevKey[:0], r.key...)
		r.hasPrev = true
		return t, nil
	}
}
