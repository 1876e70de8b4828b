package setops

import (
	"fmt"
	"slices"

	"setexec/pkg/dberror"
)

// ReadingState is the phase a spilled set operation is in.
type ReadingState int

const (
	StateNone ReadingState = iota
	StateReadingLeftHF
	StateReadingLeftIF
	StateCopyOperandToIF
	StateReadingRightHF
	StateReadingRightIF
	// StateFlushRestOfIFs replays the unread IF rows of the current operand
	// through index-based deduplication after a secondary overflow.
	StateFlushRestOfIFs
)

func (s ReadingState) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateReadingLeftHF:
		return "READING_LEFT_HF"
	case StateReadingLeftIF:
		return "READING_LEFT_IF"
	case StateCopyOperandToIF:
		return "COPY_OPERAND_N_TO_IF"
	case StateReadingRightHF:
		return "READING_RIGHT_HF"
	case StateReadingRightIF:
		return "READING_RIGHT_IF"
	case StateFlushRestOfIFs:
		return "FLUSH_REST_OF_LEFT_IFS"
	default:
		return fmt.Sprintf("ReadingState(%d)", int(s))
	}
}

func (s ReadingState) readingHF() bool {
	return s == StateReadingLeftHF || s == StateReadingRightHF
}

func (s ReadingState) readingLeft() bool {
	return s == StateReadingLeftHF || s == StateReadingLeftIF
}

// transitions lists the legal successor states. Resetting to StateNone at
// the end of a materialization is not a transition.
var transitions = map[ReadingState][]ReadingState{
	StateNone:            {StateReadingLeftHF},
	StateReadingLeftHF:   {StateReadingLeftIF, StateFlushRestOfIFs},
	StateReadingLeftIF:   {StateReadingLeftHF, StateCopyOperandToIF, StateFlushRestOfIFs},
	StateCopyOperandToIF: {StateReadingRightHF},
	StateReadingRightHF:  {StateReadingRightIF, StateFlushRestOfIFs},
	StateReadingRightIF:  {StateReadingRightHF, StateCopyOperandToIF, StateFlushRestOfIFs},
	StateFlushRestOfIFs:  {},
}

// SpillActionKind is the I/O step the spill machine asks its driver to
// perform next.
type SpillActionKind int

const (
	// ReadHF reads the next row of the current HF region into the map.
	ReadHF SpillActionKind = iota
	// ReadIF reads the next IF row of the current set. Row 0 starts a new
	// scan of the chunk's IF file.
	ReadIF
	// FinishChunk appends the map to HF[Chunk] as the region of Set and
	// clears the map.
	FinishChunk
	// LoadSet refills the IF files with the left rows of Set.
	LoadSet
	// ReplayOffending hands back the row that caused the secondary overflow.
	ReplayOffending
	// OperandDone reports that every row of the current operand was
	// produced.
	OperandDone
)

func (k SpillActionKind) String() string {
	switch k {
	case ReadHF:
		return "ReadHF"
	case ReadIF:
		return "ReadIF"
	case FinishChunk:
		return "FinishChunk"
	case LoadSet:
		return "LoadSet"
	case ReplayOffending:
		return "ReplayOffending"
	case OperandDone:
		return "OperandDone"
	default:
		return fmt.Sprintf("SpillActionKind(%d)", int(k))
	}
}

// SpillAction is one step emitted by the spill machine.
type SpillAction struct {
	Kind  SpillActionKind
	Set   int
	Chunk int
	Row   int64 // index among the rows of (Chunk, Set) for ReadHF/ReadIF
}

// rowCounts is the number of rows to read from the HF region and the IF file
// of one (chunk, set).
type rowCounts struct {
	HF int64
	IF int64
}

type spillCursor struct {
	set   int
	chunk int
	row   int64
}

// spillMachine is the pure state machine behind SpillState: it owns the
// phase, the cursor and the row-count matrix and decides the next I/O step,
// but performs no I/O itself.
type spillMachine struct {
	state   ReadingState
	slots   int
	numSets int
	cur     spillCursor
	counts  [][]rowCounts // [chunk][set]

	pendingLoad bool

	// Set by enterFlush.
	frozen          spillCursor
	frozenState     ReadingState
	replayOffending bool
	flushDone       bool
}

func newSpillMachine(slots, numSets int) *spillMachine {
	counts := make([][]rowCounts, slots)
	for i := range counts {
		counts[i] = make([]rowCounts, numSets)
	}
	return &spillMachine{slots: slots, numSets: numSets, counts: counts}
}

func (m *spillMachine) transition(to ReadingState) error {
	if !slices.Contains(transitions[m.state], to) {
		return dberror.AssertionFailedf("invalid spill transition %s -> %s", m.state, to)
	}
	m.state = to
	return nil
}

// State returns the current phase.
func (m *spillMachine) State() ReadingState {
	return m.state
}

func (m *spillMachine) setHF(chunk, set int, rows int64) {
	m.counts[chunk][set].HF = rows
}

func (m *spillMachine) addIF(chunk, set int) {
	m.counts[chunk][set].IF++
}

func (m *spillMachine) resetIF() {
	for chunk := range m.counts {
		for set := range m.counts[chunk] {
			m.counts[chunk][set].IF = 0
		}
	}
}

// start begins replay of the left operand at the first chunk of set 0.
func (m *spillMachine) start() error {
	if err := m.transition(StateReadingLeftHF); err != nil {
		return err
	}
	m.cur = spillCursor{}
	return nil
}

// beginRightOperand begins replay of a right operand whose rows were saved
// to the IF files.
func (m *spillMachine) beginRightOperand() error {
	if err := m.transition(StateReadingRightHF); err != nil {
		return err
	}
	m.cur = spillCursor{}
	return nil
}

// enterFlush freezes the cursor after a secondary overflow and switches to
// replaying the rest of the current operand's IF rows. offendingFromIF asks
// for the offending row to be replayed first.
func (m *spillMachine) enterFlush(offendingFromIF bool) error {
	frozenState := m.state
	if err := m.transition(StateFlushRestOfIFs); err != nil {
		return err
	}
	m.frozen = m.cur
	m.frozenState = frozenState
	m.replayOffending = offendingFromIF
	m.pendingLoad = false
	m.flushDone = false
	if frozenState.readingHF() {
		// IF rows of the frozen chunk have not been read yet.
		m.cur.row = 0
	}
	return nil
}

// reset returns the machine to StateNone.
func (m *spillMachine) reset() {
	m.state = StateNone
	m.cur = spillCursor{}
	m.pendingLoad = false
	m.replayOffending = false
	m.flushDone = false
	for chunk := range m.counts {
		clear(m.counts[chunk])
	}
}

// Step returns the next action and advances the cursor past it.
func (m *spillMachine) Step() (SpillAction, error) {
	for {
		switch m.state {
		case StateReadingLeftHF, StateReadingRightHF:
			if m.pendingLoad {
				m.pendingLoad = false
				return SpillAction{Kind: LoadSet, Set: m.cur.set}, nil
			}
			if m.cur.row < m.counts[m.cur.chunk][m.cur.set].HF {
				a := SpillAction{Kind: ReadHF, Set: m.cur.set, Chunk: m.cur.chunk, Row: m.cur.row}
				m.cur.row++
				return a, nil
			}
			next := StateReadingLeftIF
			if m.state == StateReadingRightHF {
				next = StateReadingRightIF
			}
			if err := m.transition(next); err != nil {
				return SpillAction{}, err
			}
			m.cur.row = 0

		case StateReadingLeftIF, StateReadingRightIF:
			if m.cur.row < m.counts[m.cur.chunk][m.cur.set].IF {
				a := SpillAction{Kind: ReadIF, Set: m.cur.set, Chunk: m.cur.chunk, Row: m.cur.row}
				m.cur.row++
				return a, nil
			}
			a := SpillAction{Kind: FinishChunk, Set: m.cur.set, Chunk: m.cur.chunk}
			if err := m.advanceChunk(); err != nil {
				return SpillAction{}, err
			}
			return a, nil

		case StateCopyOperandToIF:
			return SpillAction{Kind: OperandDone}, nil

		case StateFlushRestOfIFs:
			if m.replayOffending {
				m.replayOffending = false
				return SpillAction{Kind: ReplayOffending, Set: m.frozen.set, Chunk: m.frozen.chunk}, nil
			}
			if m.flushDone {
				return SpillAction{Kind: OperandDone}, nil
			}
			if m.pendingLoad {
				m.pendingLoad = false
				return SpillAction{Kind: LoadSet, Set: m.cur.set}, nil
			}
			if m.cur.row < m.counts[m.cur.chunk][m.cur.set].IF {
				a := SpillAction{Kind: ReadIF, Set: m.cur.set, Chunk: m.cur.chunk, Row: m.cur.row}
				m.cur.row++
				return a, nil
			}
			m.advanceFlush()

		default:
			return SpillAction{}, dberror.AssertionFailedf("spill machine stepped in state %s", m.state)
		}
	}
}

// advanceChunk moves past a finished chunk. Entering a new left set requests
// a LoadSet; finishing the last set ends the operand.
func (m *spillMachine) advanceChunk() error {
	left := m.state.readingLeft()
	m.cur.row = 0
	m.cur.chunk++
	if m.cur.chunk < m.slots {
		return m.toHF(left)
	}

	m.cur.chunk = 0
	m.cur.set++
	if m.cur.set == m.numSets {
		m.cur.set = 0
		return m.transition(StateCopyOperandToIF)
	}
	if left {
		m.pendingLoad = true
	}
	return m.toHF(left)
}

func (m *spillMachine) toHF(left bool) error {
	if left {
		return m.transition(StateReadingLeftHF)
	}
	return m.transition(StateReadingRightHF)
}

func (m *spillMachine) advanceFlush() {
	m.cur.row = 0
	m.cur.chunk++
	if m.cur.chunk < m.slots {
		return
	}
	m.cur.chunk = 0
	m.cur.set++
	if m.cur.set == m.numSets {
		m.flushDone = true
		return
	}
	if m.frozenState.readingLeft() {
		m.pendingLoad = true
	}
}
