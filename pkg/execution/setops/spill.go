package setops

import (
	"io"
	"log/slog"

	"setexec/pkg/dberror"
	"setexec/pkg/iterator"
	"setexec/pkg/logging"
	"setexec/pkg/primitives"
	"setexec/pkg/session"
	"setexec/pkg/storage/chunkfile"
	"setexec/pkg/tuple"
)

// SpilledRow is a row handed back by the spill replay. Row is reused by the
// next call; callers that keep it must Clone it.
type SpilledRow struct {
	Row     *tuple.Tuple
	Hash    primitives.HashCode
	Counter uint64
	FromHF  bool
}

// RowWriter receives deduplicated rows when a spill is flushed to the row
// store.
type RowWriter func(row *tuple.Tuple, hash primitives.HashCode, counter uint64) error

// hfRegion is the latest generation of one (chunk, set) inside an HF file.
type hfRegion struct {
	offset int64
	rows   int64
}

type chunkPair struct {
	hf  *chunkfile.File
	inp *chunkfile.File
}

// SpillState moves a set operation that outgrew its hash map onto chunk
// files and replays it chunk by chunk. The order of I/O is decided by
// spillMachine; SpillState only executes the actions.
type SpillState struct {
	ec      *session.ExecContext
	log     *slog.Logger
	schema  *tuple.TupleDescription
	hashMap *HashMap
	seed    uint64

	layout    chunkLayout
	machine   *spillMachine
	pairs     []chunkPair
	remaining *chunkfile.File
	regions   [][]hfRegion // [chunk][set]

	hfReader *chunkfile.Reader
	ifReader *chunkfile.Reader
	rec      chunkfile.Record
	out      SpilledRow
	encBuf   []byte

	offending         SpilledRow
	secondaryOverflow bool
}

// NewSpillState prepares spilling for one materialization. Nothing is
// created on disk until Init.
func NewSpillState(ec *session.ExecContext, schema *tuple.TupleDescription, hashMap *HashMap, seed uint64) *SpillState {
	return &SpillState{
		ec:      ec,
		log:     ec.Logger().With("operator", "spill"),
		schema:  schema,
		hashMap: hashMap,
		seed:    seed,
		out:     SpilledRow{Row: tuple.NewTuple(schema)},
	}
}

// Active reports whether a spill episode is in progress.
func (s *SpillState) Active() bool {
	return s.machine != nil && s.machine.State() != StateNone
}

// State returns the current reading phase.
func (s *SpillState) State() ReadingState {
	if s.machine == nil {
		return StateNone
	}
	return s.machine.State()
}

// SecondaryOverflow reports whether the spill itself overflowed.
func (s *SpillState) SecondaryOverflow() bool {
	return s.secondaryOverflow
}

// Init starts a spill episode after the map overflowed on offending while
// reading the left operand. The map's entries are spread over the HF files
// and the rest of src, offending first, is drained into the IF files.
func (s *SpillState) Init(offending *tuple.Tuple, hash primitives.HashCode, src iterator.RowSource, estimatedRows int64) error {
	if s.Active() {
		return dberror.AssertionFailedf("spill initialized twice")
	}
	cfg := s.ec.Config()

	mapRows := int64(s.hashMap.Len())
	est := estimatedRows
	if est < mapRows {
		est = int64(cfg.RowEstimateMultiplier) * mapRows
	}
	s.layout = computeLayout(est, mapRows, cfg.MaxChunkFiles, s.seed)
	s.machine = newSpillMachine(s.layout.slots, s.layout.numSets)
	s.regions = make([][]hfRegion, s.layout.slots)
	for i := range s.regions {
		s.regions[i] = make([]hfRegion, s.layout.numSets)
	}

	s.log.Info("spilling set operation to disk",
		"map_rows", mapRows,
		logging.Bytes("map_bytes", s.hashMap.Used()),
		"estimated_rows", est,
		"chunks", s.layout.numChunks,
		"sets", s.layout.numSets)
	s.ec.Metrics().Spills.Inc()

	if err := s.createFiles(); err != nil {
		return err
	}
	if err := s.spreadMap(); err != nil {
		return err
	}

	if err := s.drainLeft(offending, hash); err != nil {
		return err
	}
	for {
		row, err := src.Read()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		h, err := tuple.Hash(row)
		if err != nil {
			return err
		}
		if err := s.drainLeft(row, h); err != nil {
			return err
		}
	}

	s.hashMap.Reset()
	return s.machine.start()
}

func (s *SpillState) createFiles() error {
	fs, dir := s.ec.Fs(), s.ec.TempDir()
	compress := s.ec.Config().CompressChunks
	s.pairs = make([]chunkPair, s.layout.slots)
	for i := range s.pairs {
		hf, err := chunkfile.Create(fs, dir, "hf", compress, s.ec.Metrics())
		if err != nil {
			return err
		}
		s.pairs[i].hf = hf
		inp, err := chunkfile.Create(fs, dir, "if", compress, s.ec.Metrics())
		if err != nil {
			return err
		}
		s.pairs[i].inp = inp
	}
	if s.layout.numSets > 1 {
		rem, err := chunkfile.Create(fs, dir, "remaining", compress, s.ec.Metrics())
		if err != nil {
			return err
		}
		s.remaining = rem
	}
	return nil
}

// spreadMap writes the first generation of every (chunk, set) region. One
// pass over the map per set keeps each region contiguous.
func (s *SpillState) spreadMap() error {
	for set := 0; set < s.layout.numSets; set++ {
		for chunk := range s.pairs {
			s.regions[chunk][set] = hfRegion{offset: s.pairs[chunk].hf.Size()}
		}
		for _, e := range s.hashMap.Entries() {
			eset, chunk := s.layout.target(e.Hash)
			if eset != set {
				continue
			}
			if err := s.appendEntry(chunk, set, e); err != nil {
				return err
			}
			s.regions[chunk][set].rows++
		}
		for chunk := range s.pairs {
			s.machine.setHF(chunk, set, s.regions[chunk][set].rows)
		}
	}
	return nil
}

func (s *SpillState) appendEntry(chunk, set int, e *Entry) error {
	_, err := s.pairs[chunk].hf.Append(chunkfile.Record{
		Hash:    uint64(e.Hash),
		Counter: e.Counter,
		Set:     uint32(set),
		Payload: e.Row,
	})
	return err
}

func (s *SpillState) drainLeft(row *tuple.Tuple, hash primitives.HashCode) error {
	if err := s.ec.CheckKilled(); err != nil {
		return err
	}
	enc, err := tuple.Encode(s.encBuf[:0], row)
	if err != nil {
		return err
	}
	s.encBuf = enc

	set, chunk := s.layout.target(hash)
	rec := chunkfile.Record{Hash: uint64(hash), Set: uint32(set), Payload: enc}
	s.machine.addIF(chunk, set)
	if set == 0 {
		if _, err := s.pairs[chunk].inp.Append(rec); err != nil {
			return err
		}
	}
	if s.remaining != nil {
		if _, err := s.remaining.Append(rec); err != nil {
			return err
		}
	}
	return nil
}

// SaveOperandToIF writes right operand src to the IF files, each row tagged
// with its set, and starts replaying it.
func (s *SpillState) SaveOperandToIF(src iterator.RowSource, operand int) error {
	if s.State() != StateCopyOperandToIF {
		return dberror.AssertionFailedf("saving operand %d in state %s", operand, s.State())
	}
	if s.remaining != nil {
		// Only the left operand is read set by set.
		if err := s.remaining.Close(); err != nil {
			return err
		}
		s.remaining = nil
	}
	if err := s.truncateIFs(); err != nil {
		return err
	}
	s.machine.resetIF()

	var rows int64
	for {
		if err := s.ec.CheckKilled(); err != nil {
			return err
		}
		row, err := src.Read()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		hash, err := tuple.Hash(row)
		if err != nil {
			return err
		}
		enc, err := tuple.Encode(s.encBuf[:0], row)
		if err != nil {
			return err
		}
		s.encBuf = enc
		set, chunk := s.layout.target(hash)
		if _, err := s.pairs[chunk].inp.Append(chunkfile.Record{Hash: uint64(hash), Set: uint32(set), Payload: enc}); err != nil {
			return err
		}
		s.machine.addIF(chunk, set)
		rows++
	}
	s.log.Debug("operand saved to chunk files", "operand", operand, "rows", rows)
	return s.machine.beginRightOperand()
}

func (s *SpillState) truncateIFs() error {
	s.ifReader = nil
	for _, p := range s.pairs {
		if err := p.inp.Truncate(); err != nil {
			return err
		}
	}
	return nil
}

// ReadNextRow returns the next row the materializer must process, or nil
// when the current operand is exhausted. Rows from an HF carry their stored
// counter and go straight into the map; IF rows go through the policy.
func (s *SpillState) ReadNextRow() (*SpilledRow, error) {
	if err := s.ec.CheckKilled(); err != nil {
		return nil, err
	}
	for {
		act, err := s.machine.Step()
		if err != nil {
			return nil, err
		}
		switch act.Kind {
		case ReadHF:
			return s.readHF(act)
		case ReadIF:
			return s.readIF(act)
		case FinishChunk:
			if err := s.finishChunk(act.Chunk, act.Set); err != nil {
				return nil, err
			}
		case LoadSet:
			if err := s.loadSet(act.Set); err != nil {
				return nil, err
			}
		case OperandDone:
			return nil, nil
		default:
			return nil, dberror.AssertionFailedf("unexpected spill action %s in state %s", act.Kind, s.machine.State())
		}
	}
}

func (s *SpillState) readHF(act SpillAction) (*SpilledRow, error) {
	if act.Row == 0 {
		r, err := s.pairs[act.Chunk].hf.NewReader(s.regions[act.Chunk][act.Set].offset)
		if err != nil {
			return nil, err
		}
		s.hfReader = r
	}
	if err := s.next(s.hfReader, "hf"); err != nil {
		return nil, err
	}
	return s.decode(true)
}

// readIF returns the next IF row of act.Set, skipping rows of other sets.
func (s *SpillState) readIF(act SpillAction) (*SpilledRow, error) {
	if act.Row == 0 {
		r, err := s.pairs[act.Chunk].inp.NewReader(0)
		if err != nil {
			return nil, err
		}
		s.ifReader = r
	}
	for {
		if err := s.ec.CheckKilled(); err != nil {
			return nil, err
		}
		if err := s.next(s.ifReader, "if"); err != nil {
			return nil, err
		}
		if int(s.rec.Set) == act.Set {
			return s.decode(false)
		}
	}
}

func (s *SpillState) next(r *chunkfile.Reader, kind string) error {
	if r == nil {
		return dberror.AssertionFailedf("no open %s reader", kind)
	}
	err := r.Next(&s.rec)
	if err == io.EOF {
		// The count matrix promised another row.
		return dberror.TempFileIO(io.ErrUnexpectedEOF, "spill.read "+kind)
	}
	return err
}

func (s *SpillState) decode(fromHF bool) (*SpilledRow, error) {
	if err := tuple.Decode(s.rec.Payload, s.out.Row); err != nil {
		return nil, err
	}
	s.out.Hash = primitives.HashCode(s.rec.Hash)
	s.out.Counter = s.rec.Counter
	s.out.FromHF = fromHF
	return &s.out, nil
}

// finishChunk appends the map as the next generation of (chunk, set).
func (s *SpillState) finishChunk(chunk, set int) error {
	region := hfRegion{offset: s.pairs[chunk].hf.Size()}
	for _, e := range s.hashMap.Entries() {
		if err := s.appendEntry(chunk, set, e); err != nil {
			return err
		}
		region.rows++
	}
	s.regions[chunk][set] = region
	s.machine.setHF(chunk, set, region.rows)
	s.hfReader = nil
	s.hashMap.Reset()
	return nil
}

// loadSet replaces the IF contents with the left rows of set.
func (s *SpillState) loadSet(set int) error {
	if s.remaining == nil {
		return dberror.AssertionFailedf("loading set %d without remaining input", set)
	}
	if err := s.truncateIFs(); err != nil {
		return err
	}
	r, err := s.remaining.NewReader(0)
	if err != nil {
		return err
	}
	var rows int64
	for {
		if err := s.ec.CheckKilled(); err != nil {
			return err
		}
		err := r.Next(&s.rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if int(s.rec.Set) != set {
			continue
		}
		_, chunk := s.layout.target(primitives.HashCode(s.rec.Hash))
		if _, err := s.pairs[chunk].inp.Append(s.rec); err != nil {
			return err
		}
		rows++
	}
	s.log.Debug("loaded chunk set", "set", set, "rows", rows)
	return nil
}

// MarkSecondaryOverflow records that row could not be placed in the map
// while spilling and freezes the replay cursor.
func (s *SpillState) MarkSecondaryOverflow(row *SpilledRow) error {
	s.offending = SpilledRow{
		Row:     row.Row.Clone(),
		Hash:    row.Hash,
		Counter: row.Counter,
		FromHF:  row.FromHF,
	}
	if err := s.machine.enterFlush(!row.FromHF); err != nil {
		return err
	}
	s.secondaryOverflow = true

	fr := s.machine.frozen
	s.log.Info("spill overflowed again, falling back to index deduplication",
		"state", s.machine.frozenState,
		"set", fr.set,
		"chunk", fr.chunk,
		"row", fr.row,
		logging.Bytes("map_bytes", s.hashMap.Used()))
	s.ec.Metrics().SecondaryOverflows.Inc()
	return nil
}

// WritePartiallyCompletedHFs hands every deduplicated row held by the spill
// to write: all finished regions, the map contents and, when the overflow
// hit while loading an HF, the unread rest of that HF region followed by the
// offending row.
func (s *SpillState) WritePartiallyCompletedHFs(write RowWriter) error {
	if !s.secondaryOverflow {
		return dberror.AssertionFailedf("no secondary overflow to recover from")
	}
	fr, frozenState := s.machine.frozen, s.machine.frozenState

	for chunk := range s.regions {
		for set := range s.regions[chunk] {
			if chunk == fr.chunk && set == fr.set {
				continue
			}
			if err := s.writeRegion(chunk, set, write); err != nil {
				return err
			}
		}
	}

	scratch := tuple.NewTuple(s.schema)
	for _, e := range s.hashMap.Entries() {
		if err := tuple.Decode(e.Row, scratch); err != nil {
			return err
		}
		if err := write(scratch, e.Hash, e.Counter); err != nil {
			return err
		}
	}

	if !frozenState.readingHF() {
		return nil
	}
	rest := s.machine.counts[fr.chunk][fr.set].HF - fr.row
	for i := int64(0); i < rest; i++ {
		if err := s.next(s.hfReader, "hf"); err != nil {
			return err
		}
		row, err := s.decode(true)
		if err != nil {
			return err
		}
		if err := write(row.Row, row.Hash, row.Counter); err != nil {
			return err
		}
	}
	if s.offending.FromHF {
		return write(s.offending.Row, s.offending.Hash, s.offending.Counter)
	}
	return nil
}

// ReadNextRowSecondaryOverflow returns the IF rows of the current operand
// that the spill never processed, starting with the offending row when it
// came from an IF. It returns nil when none remain.
func (s *SpillState) ReadNextRowSecondaryOverflow() (*SpilledRow, error) {
	if err := s.ec.CheckKilled(); err != nil {
		return nil, err
	}
	for {
		act, err := s.machine.Step()
		if err != nil {
			return nil, err
		}
		switch act.Kind {
		case ReplayOffending:
			return &s.offending, nil
		case ReadIF:
			return s.readIF(act)
		case LoadSet:
			if err := s.loadSet(act.Set); err != nil {
				return nil, err
			}
		case OperandDone:
			return nil, nil
		default:
			return nil, dberror.AssertionFailedf("unexpected spill action %s while flushing", act.Kind)
		}
	}
}

// WriteResults hands the final generation of every region to write.
func (s *SpillState) WriteResults(write RowWriter) error {
	if s.State() != StateCopyOperandToIF {
		return dberror.AssertionFailedf("writing spill results in state %s", s.State())
	}
	for chunk := range s.regions {
		for set := range s.regions[chunk] {
			if err := s.writeRegion(chunk, set, write); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SpillState) writeRegion(chunk, set int, write RowWriter) error {
	region := s.regions[chunk][set]
	if region.rows == 0 {
		return nil
	}
	r, err := s.pairs[chunk].hf.NewReader(region.offset)
	if err != nil {
		return err
	}
	for i := int64(0); i < region.rows; i++ {
		if err := s.ec.CheckKilled(); err != nil {
			return err
		}
		if err := s.next(r, "hf"); err != nil {
			return err
		}
		row, err := s.decode(true)
		if err != nil {
			return err
		}
		if err := write(row.Row, row.Hash, row.Counter); err != nil {
			return err
		}
	}
	return nil
}

// Close removes every chunk file and returns the state to NONE so the
// materialization can be re-run.
func (s *SpillState) Close() error {
	var firstErr error
	closeFile := func(f *chunkfile.File) {
		if f == nil {
			return
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, p := range s.pairs {
		closeFile(p.hf)
		closeFile(p.inp)
	}
	closeFile(s.remaining)

	s.pairs = nil
	s.remaining = nil
	s.regions = nil
	s.hfReader = nil
	s.ifReader = nil
	s.machine = nil
	s.offending = SpilledRow{}
	s.secondaryOverflow = false
	return firstErr
}
