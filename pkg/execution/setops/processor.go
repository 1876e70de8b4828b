package setops

import (
	"log/slog"

	"setexec/pkg/dberror"
	"setexec/pkg/iterator"
	"setexec/pkg/logging"
	"setexec/pkg/primitives"
	"setexec/pkg/session"
	"setexec/pkg/tuple"
)

// Store is where a Processor puts its deduplicated rows. rowstore.Store
// implements it.
type Store interface {
	Write(row *tuple.Tuple, hash primitives.HashCode, counter uint64) (primitives.RowID, error)
	UpdateCounter(id primitives.RowID, counter uint64) error
	// FindEqual needs EnableHashIndex to have been called.
	FindEqual(row *tuple.Tuple, hash primitives.HashCode) (primitives.RowID, uint64, bool, error)
	EnableHashIndex() error
}

// seedMix spreads the operand count and processor id over the tertiary seed.
const seedMix = 0x9e3779b97f4a7c15

// Processor materializes the operands of one INTERSECT or EXCEPT into a
// Store. Rows are deduplicated in a HashMap; when the map outgrows its
// budget the operation spills to chunk files, and when even that overflows
// it falls back to deduplicating through the store's hash index.
type Processor struct {
	ec          *session.ExecContext
	log         *slog.Logger
	schema      *tuple.TupleDescription
	policy      Policy
	store       Store
	numOperands int

	hashMap *HashMap
	spill   *SpillState
	indexed bool
}

// NewProcessor creates a processor for numOperands operands whose results
// go to store. The map budget is the session's set operation buffer size.
func NewProcessor(ec *session.ExecContext, schema *tuple.TupleDescription, policy Policy, store Store, numOperands int) *Processor {
	cfg := ec.Config()
	hashMap := NewHashMap(schema, int64(cfg.SetOperationBufferSize))
	seed := cfg.TertiaryHashSeed ^ (uint64(numOperands)+ec.NextID()<<16)*seedMix
	return &Processor{
		ec:          ec,
		log:         ec.Logger().With("operator", policy.Name()),
		schema:      schema,
		policy:      policy,
		store:       store,
		numOperands: numOperands,
		hashMap:     hashMap,
		spill:       NewSpillState(ec, schema, hashMap, seed),
	}
}

// Policy returns the multiplicity rules in use.
func (p *Processor) Policy() Policy {
	return p.policy
}

// Indexed reports whether deduplication moved to the store's hash index.
func (p *Processor) Indexed() bool {
	return p.indexed
}

// Spilled reports whether a spill episode is in progress.
func (p *Processor) Spilled() bool {
	return p.spill.Active()
}

// MaterializeOperand reads operand idx to its end. Operand 0 is the left
// operand and must come first. estimatedRows is the planner's estimate of
// the left operand's size and is only used to size a spill.
func (p *Processor) MaterializeOperand(idx int, src iterator.RowSource, estimatedRows int64) error {
	if idx < 0 || idx >= p.numOperands {
		return dberror.AssertionFailedf("operand %d out of range [0, %d)", idx, p.numOperands)
	}
	if p.indexed {
		return p.drainIndexed(idx, src)
	}
	if p.spill.Active() {
		if idx == 0 {
			return dberror.AssertionFailedf("left operand read while spilled")
		}
		if err := p.spill.SaveOperandToIF(src, idx); err != nil {
			return err
		}
		return p.replay(idx)
	}

	for {
		row, err := src.Read()
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		hash, err := tuple.Hash(row)
		if err != nil {
			return err
		}

		if idx > 0 {
			res, err := p.hashMap.Probe(row, hash, false)
			if err != nil {
				return err
			}
			if err := p.applyRight(res, idx); err != nil {
				return err
			}
			continue
		}

		res, err := p.hashMap.Probe(row, hash, true)
		if err != nil {
			return err
		}
		switch {
		case res.SingleRowTooLarge:
			return p.fallBackToIndex(idx, row, hash, src)
		case res.SpillNeeded:
			if err := p.spill.Init(row, hash, src, estimatedRows); err != nil {
				return err
			}
			return p.replay(idx)
		}
		if err := p.applyLeft(res); err != nil {
			return err
		}
	}
}

func (p *Processor) applyLeft(res ProbeResult) error {
	var counter uint64
	if res.Found {
		counter = res.Entry.Counter
	}
	act, c, err := p.policy.OnLeftRow(res.Found, counter)
	if err != nil {
		return err
	}
	if act != ActionNone {
		res.Entry.Counter = c
	}
	return nil
}

func (p *Processor) applyRight(res ProbeResult, idx int) error {
	if !res.Found {
		return nil
	}
	act, c, err := p.policy.OnRightRow(true, idx, res.Entry.Counter)
	if err != nil {
		return err
	}
	if act == ActionUpdate {
		res.Entry.Counter = c
	}
	return nil
}

// replay runs the spilled rows of operand idx through the map.
func (p *Processor) replay(idx int) error {
	for {
		r, err := p.spill.ReadNextRow()
		if err != nil {
			return err
		}
		if r == nil {
			return nil
		}

		write := idx == 0 || r.FromHF
		res, err := p.hashMap.Probe(r.Row, r.Hash, write)
		if err != nil {
			return err
		}
		if res.SpillNeeded || res.SingleRowTooLarge {
			return p.recoverSecondaryOverflow(idx, r)
		}

		switch {
		case r.FromHF:
			if !res.Inserted {
				return dberror.AssertionFailedf("duplicate row in spilled region")
			}
			res.Entry.Counter = r.Counter
		case idx == 0:
			err = p.applyLeft(res)
		default:
			err = p.applyRight(res, idx)
		}
		if err != nil {
			return err
		}
	}
}

// recoverSecondaryOverflow moves everything the spill holds into the store
// and finishes operand idx through the hash index.
func (p *Processor) recoverSecondaryOverflow(idx int, offending *SpilledRow) error {
	if err := p.spill.MarkSecondaryOverflow(offending); err != nil {
		return err
	}
	if err := p.store.EnableHashIndex(); err != nil {
		return err
	}
	if err := p.spill.WritePartiallyCompletedHFs(p.writeRow); err != nil {
		return err
	}
	p.hashMap.Reset()
	p.indexed = true

	for {
		r, err := p.spill.ReadNextRowSecondaryOverflow()
		if err != nil {
			return err
		}
		if r == nil {
			break
		}
		if err := p.processIndexed(idx, r.Row, r.Hash); err != nil {
			return err
		}
	}
	return p.spill.Close()
}

// fallBackToIndex handles a left row too large for the whole map: the map
// is moved into the store and the rest of the operand goes through the
// hash index.
func (p *Processor) fallBackToIndex(idx int, row *tuple.Tuple, hash primitives.HashCode, src iterator.RowSource) error {
	p.log.Info("row exceeds set operation buffer, deduplicating through row store",
		logging.Bytes("row_bytes", int64(tuple.EncodedSize(row))),
		logging.Bytes("buffer", p.hashMap.Budget()))
	p.ec.Metrics().SingleRowFallbacks.Inc()

	if err := p.store.EnableHashIndex(); err != nil {
		return err
	}
	if err := p.writeMap(); err != nil {
		return err
	}
	p.hashMap.Reset()
	p.indexed = true

	if err := p.processIndexed(idx, row, hash); err != nil {
		return err
	}
	return p.drainIndexed(idx, src)
}

func (p *Processor) drainIndexed(idx int, src iterator.RowSource) error {
	for {
		row, err := src.Read()
		if err != nil {
			return err
		}
		if row == nil {
			return nil
		}
		hash, err := tuple.Hash(row)
		if err != nil {
			return err
		}
		if err := p.processIndexed(idx, row, hash); err != nil {
			return err
		}
	}
}

// processIndexed applies the policy to row against the store's hash index.
func (p *Processor) processIndexed(idx int, row *tuple.Tuple, hash primitives.HashCode) error {
	id, counter, found, err := p.store.FindEqual(row, hash)
	if err != nil {
		return err
	}

	var (
		act Action
		c   uint64
	)
	if idx == 0 {
		act, c, err = p.policy.OnLeftRow(found, counter)
	} else {
		act, c, err = p.policy.OnRightRow(found, idx, counter)
	}
	if err != nil {
		return err
	}

	switch act {
	case ActionInsert:
		_, err = p.store.Write(row, hash, c)
	case ActionUpdate:
		err = p.store.UpdateCounter(id, c)
	}
	return err
}

func (p *Processor) writeRow(row *tuple.Tuple, hash primitives.HashCode, counter uint64) error {
	_, err := p.store.Write(row, hash, counter)
	return err
}

func (p *Processor) writeMap() error {
	scratch := tuple.NewTuple(p.schema)
	for _, e := range p.hashMap.Entries() {
		if err := p.ec.CheckKilled(); err != nil {
			return err
		}
		if err := tuple.Decode(e.Row, scratch); err != nil {
			return err
		}
		if err := p.writeRow(scratch, e.Hash, e.Counter); err != nil {
			return err
		}
	}
	return nil
}

// Finish writes whatever is still held in memory or on chunk files to the
// store after the last operand.
func (p *Processor) Finish() error {
	p.ec.Metrics().HashMapBytes.Set(float64(p.hashMap.Used()))
	switch {
	case p.indexed:
	case p.spill.Active():
		if err := p.spill.WriteResults(p.writeRow); err != nil {
			return err
		}
		if err := p.spill.Close(); err != nil {
			return err
		}
	default:
		if err := p.writeMap(); err != nil {
			return err
		}
	}
	p.hashMap.Reset()
	p.log.Debug("set operation finished", "indexed", p.indexed)
	return nil
}

// Reset prepares the processor for a rematerialization. The caller
// truncates the store.
func (p *Processor) Reset() error {
	p.indexed = false
	p.hashMap.Reset()
	return p.spill.Close()
}

// Close releases the map's memory and removes any chunk files.
func (p *Processor) Close() error {
	p.hashMap.Release()
	return p.spill.Close()
}
