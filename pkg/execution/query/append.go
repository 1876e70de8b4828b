package query

import (
	"fmt"

	"setexec/pkg/iterator"
	"setexec/pkg/session"
	"setexec/pkg/tuple"
)

// Append returns the rows of its children one child after the other. Each
// child is initialized when Append reaches it, and null-row flags and batch
// hints only go to the child currently being read.
type Append struct {
	*iterator.BaseSource
	children []iterator.RowSource
	current  int

	batchMode bool
	nullRow   bool
}

// NewAppend concatenates children, which must share a schema.
func NewAppend(children ...iterator.RowSource) (*Append, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("append needs at least one child")
	}
	schema := children[0].Schema()
	for i, c := range children[1:] {
		if !c.Schema().Equals(schema) {
			return nil, fmt.Errorf("append child %d has schema %s, want %s", i+1, c.Schema(), schema)
		}
	}

	a := &Append{children: children}
	a.BaseSource = iterator.NewBaseSource(schema, a.readNext)
	return a, nil
}

func (a *Append) Init(ec *session.ExecContext) error {
	a.InitBase(ec)
	a.current = 0
	return a.initChild()
}

func (a *Append) initChild() error {
	child := a.children[a.current]
	if err := child.Init(a.ExecContext()); err != nil {
		return err
	}
	if a.batchMode {
		child.StartBatchMode()
	}
	child.SetNullRowFlag(a.nullRow)
	return nil
}

func (a *Append) readNext() (*tuple.Tuple, error) {
	for {
		t, err := a.children[a.current].Read()
		if err != nil || t != nil {
			return t, err
		}

		if a.batchMode {
			a.children[a.current].EndBatchMode()
		}
		a.current++
		if a.current == len(a.children) {
			a.current--
			return nil, nil
		}
		if err := a.initChild(); err != nil {
			return nil, err
		}
	}
}

func (a *Append) UnlockRow() {
	a.children[a.current].UnlockRow()
}

func (a *Append) SetNullRowFlag(isNull bool) {
	a.nullRow = isNull
	a.children[a.current].SetNullRowFlag(isNull)
}

func (a *Append) StartBatchMode() {
	a.batchMode = true
	a.children[a.current].StartBatchMode()
}

func (a *Append) EndBatchMode() {
	a.batchMode = false
	a.children[a.current].EndBatchMode()
}

func (a *Append) Close() error {
	var firstErr error
	for _, c := range a.children {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
