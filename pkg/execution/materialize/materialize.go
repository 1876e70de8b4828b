// Package materialize implements MaterializeIterator, which runs the
// operands of a UNION, INTERSECT or EXCEPT into a row store and then serves
// the stored rows like a table scan.
package materialize

import (
	"fmt"
	"log/slog"

	"setexec/pkg/dberror"
	"setexec/pkg/execution/query"
	"setexec/pkg/execution/setops"
	"setexec/pkg/iterator"
	"setexec/pkg/logging"
	"setexec/pkg/primitives"
	"setexec/pkg/session"
	"setexec/pkg/storage/rowstore"
	"setexec/pkg/tuple"

	"github.com/cockroachdb/errors"
)

// errLimitReached stops operand reads once LimitRows rows are stored.
var errLimitReached = errors.New("row limit reached")

// MaterializeIterator materializes its operands on Init and returns the
// resulting table on Read. A result is reused by later Inits until it is
// invalidated.
type MaterializeIterator struct {
	*iterator.BaseSource
	opts     Options
	operands []Operand
	log      *slog.Logger

	store     *rowstore.Store
	processor *setops.Processor
	scan      *query.TableScan
	tail      *query.FollowTail
	recursive *RecursiveReference

	materialized bool
	generations  []uint64
	rounds       int
}

// New creates a MaterializeIterator without operands.
func New(opts Options) (*MaterializeIterator, error) {
	if opts.Schema == nil {
		return nil, fmt.Errorf("materialization needs a schema")
	}
	if opts.MaxRecursionDepth == 0 {
		opts.MaxRecursionDepth = DefaultMaxRecursionDepth
	}
	m := &MaterializeIterator{
		opts: opts,
		log:  logging.WithOperator("materialize").With("operation", opts.Type.String()),
	}
	m.BaseSource = iterator.NewBaseSource(opts.Schema, m.readNext)
	m.recursive = newRecursiveReference(m)
	return m, nil
}

// AddOperand appends an operand. Operands must be added before the first
// Init.
func (m *MaterializeIterator) AddOperand(op Operand) error {
	if m.store != nil {
		return fmt.Errorf("operands cannot be added after Init")
	}
	if op.Source == nil {
		return fmt.Errorf("operand %d has no source", len(m.operands))
	}
	if !op.Source.Schema().Equals(m.opts.Schema) {
		return fmt.Errorf("operand %d has schema %s, want %s", len(m.operands), op.Source.Schema(), m.opts.Schema)
	}
	if op.Recursive {
		if m.opts.Type.Hashed() {
			return fmt.Errorf("%s cannot have a recursive operand", m.opts.Type)
		}
		if len(m.operands) == 0 {
			return fmt.Errorf("the first operand cannot be recursive")
		}
	}
	m.operands = append(m.operands, op)
	return nil
}

// Store returns the table holding the result, or nil before the first
// Init.
func (m *MaterializeIterator) Store() *rowstore.Store {
	return m.store
}

// RecursiveReference returns the source recursive operands read the table
// through. Each round it yields the rows the previous round added.
func (m *MaterializeIterator) RecursiveReference() *RecursiveReference {
	return m.recursive
}

// Rounds returns how many recursive rounds the last materialization ran.
func (m *MaterializeIterator) Rounds() int {
	return m.rounds
}

func (m *MaterializeIterator) Init(ec *session.ExecContext) error {
	m.InitBase(ec)
	if len(m.operands) == 0 {
		return fmt.Errorf("materialization has no operands")
	}

	if !m.materialized || m.opts.RematerializeAlways || m.invalidated() {
		if err := m.materialize(ec); err != nil {
			return err
		}
	}
	return m.scan.Init(ec)
}

func (m *MaterializeIterator) invalidated() bool {
	for i, inv := range m.opts.Invalidators {
		if inv.Generation() != m.generations[i] {
			return true
		}
	}
	return false
}

func (m *MaterializeIterator) materialize(ec *session.ExecContext) error {
	m.materialized = false
	if err := m.prepare(ec); err != nil {
		return err
	}
	ec.Metrics().Materializations.WithLabelValues(m.opts.Type.String()).Inc()

	var err error
	if m.opts.Type.Hashed() {
		err = m.materializeHashed(ec)
	} else {
		err = m.materializeTable(ec)
	}
	if err != nil {
		return err
	}
	if m.opts.RejectMultipleRows {
		if err := m.checkSingleRow(ec); err != nil {
			return err
		}
	}

	m.generations = m.generations[:0]
	for _, inv := range m.opts.Invalidators {
		m.generations = append(m.generations, inv.Generation())
	}
	m.materialized = true
	m.log.Debug("materialized",
		"rows", m.store.Rows(),
		"rounds", m.rounds,
		"on_disk", m.store.Promoted())
	return nil
}

// prepare creates the store and its readers on first use and empties them
// on later materializations.
func (m *MaterializeIterator) prepare(ec *session.ExecContext) error {
	m.rounds = 0
	if m.store != nil {
		if m.processor != nil {
			if err := m.processor.Reset(); err != nil {
				return err
			}
		}
		return m.store.Truncate()
	}

	var policy setops.Policy
	if m.opts.Type.Hashed() {
		var err error
		if policy, err = newPolicy(m.opts.Type, len(m.operands), m.opts.FirstDistinct); err != nil {
			return err
		}
	}

	m.store = rowstore.New(rowstore.Options{
		Schema:      m.opts.Schema,
		Unique:      m.opts.Type == UnionDistinct,
		MemoryLimit: int64(ec.Config().RowStoreMemoryLimit),
		Dir:         ec.TempDir(),
		Metrics:     ec.Metrics(),
		Logger:      m.log,
	})
	m.tail = query.NewFollowTail(m.store)

	var copies query.CopiesFunc
	if policy != nil {
		m.processor = setops.NewProcessor(ec, m.opts.Schema, policy, m.store, len(m.operands))
		copies = policy.Copies
	}
	m.scan = query.NewTableScan(m.store, copies)
	return nil
}

func (m *MaterializeIterator) materializeHashed(ec *session.ExecContext) error {
	estimate := m.operands[0].EstimatedRows
	for i, op := range m.operands {
		if err := op.Source.Init(ec); err != nil {
			return err
		}
		if err := m.processor.MaterializeOperand(i, op.Source, estimate); err != nil {
			return err
		}
	}
	return m.processor.Finish()
}

func (m *MaterializeIterator) materializeTable(ec *session.ExecContext) error {
	for _, op := range m.operands {
		if op.Recursive {
			continue
		}
		err := m.writeOperand(ec, op.Source)
		if errors.Is(err, errLimitReached) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	err := m.materializeRecursive(ec)
	if errors.Is(err, errLimitReached) {
		return nil
	}
	return err
}

// materializeRecursive runs the recursive operands in rounds. Each round
// sees only the rows the previous round added, and the rounds stop when one
// adds nothing.
func (m *MaterializeIterator) materializeRecursive(ec *session.ExecContext) error {
	var recursive []Operand
	for _, op := range m.operands {
		if op.Recursive {
			recursive = append(recursive, op)
		}
	}
	if len(recursive) == 0 {
		return nil
	}

	after, upTo := primitives.InvalidRowID, m.store.LastRowID()
	for upTo != after {
		if m.rounds == m.opts.MaxRecursionDepth {
			return dberror.RecursionLimit(m.opts.MaxRecursionDepth)
		}
		if err := ec.CheckKilled(); err != nil {
			return err
		}
		m.rounds++
		m.tail.SetWindow(after, upTo)
		before := m.store.Rows()
		for _, op := range recursive {
			if err := m.writeOperand(ec, op.Source); err != nil {
				return err
			}
		}
		m.log.Debug("recursive round", "round", m.rounds, "added", m.store.Rows()-before)
		after, upTo = upTo, m.store.LastRowID()
	}
	return nil
}

// writeOperand copies the rows of src into the store. UNION DISTINCT drops
// rows the unique index already holds.
func (m *MaterializeIterator) writeOperand(ec *session.ExecContext, src iterator.RowSource) error {
	if err := src.Init(ec); err != nil {
		return err
	}
	for {
		if err := ec.CheckKilled(); err != nil {
			return err
		}
		if m.opts.LimitRows > 0 && uint64(m.store.Rows()) >= m.opts.LimitRows {
			return errLimitReached
		}

		row, err := src.Read()
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		hash, err := m.store.Hash(row)
		if err != nil {
			return err
		}
		if _, err := m.store.Write(row, hash, 1); err != nil {
			if errors.Is(err, dberror.ErrDuplicateKey) {
				continue
			}
			return err
		}
		if m.opts.RejectMultipleRows && m.store.Rows() > 1 {
			return dberror.SubqueryMultipleRows()
		}
	}
}

// checkSingleRow counts output rows, copies included, and fails on a second
// one.
func (m *MaterializeIterator) checkSingleRow(ec *session.ExecContext) error {
	if err := m.scan.Init(ec); err != nil {
		return err
	}
	for n := 0; ; n++ {
		row, err := m.scan.Read()
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		if n == 1 {
			return dberror.SubqueryMultipleRows()
		}
	}
}

func (m *MaterializeIterator) readNext() (*tuple.Tuple, error) {
	return m.scan.Read()
}

// PositionedRowID returns the row id of the last row returned, which lets a
// Weedout above use the materialized table.
func (m *MaterializeIterator) PositionedRowID() primitives.RowID {
	return m.scan.PositionedRowID()
}

func (m *MaterializeIterator) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, op := range m.operands {
		keep(op.Source.Close())
	}
	if m.processor != nil {
		keep(m.processor.Close())
	}
	if m.store != nil {
		keep(m.store.Close())
	}
	return firstErr
}
