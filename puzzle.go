package main

import (
	"errors"
	"fmt"
)

// BoardSize is the number of cells in a puzzle (3x3).
const BoardSize = 9

var (
	ErrAlreadyActive    = errors.New("another cell is already active")
	ErrAlreadyCompleted = errors.New("cell already completed")
	ErrNotActive        = errors.New("cell is not active")
	ErrUnknownCell      = errors.New("unknown cell")
)

// CellStatus is the lifecycle state of a single cell.
type CellStatus int

const (
	Locked CellStatus = iota
	Active
	Completed
)

var cellStatusNames = map[CellStatus]string{
	Locked:    "locked",
	Active:    "active",
	Completed: "completed",
}

func (s CellStatus) String() string {
	if name, ok := cellStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s CellStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CellStatus) UnmarshalText(b []byte) error {
	for k, name := range cellStatusNames {
		if name == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown cell status %q", b)
}

// Concept is what a cell asks the player to photograph.
// An empty Synonyms list means only Target itself is accepted.
type Concept struct {
	Target   string   `json:"target"`
	Synonyms []string `json:"synonyms,omitempty"`
}

// Board is the initial configuration of a puzzle.
type Board struct {
	Concepts []Concept `json:"concepts"`
	// StartActive is the id of a cell that starts Active, 0 for none.
	StartActive int `json:"start_active,omitempty"`
}

// Validate checks the board has exactly BoardSize named concepts.
func (b Board) Validate() error {
	if len(b.Concepts) != BoardSize {
		return fmt.Errorf("board needs %d concepts, got %d", BoardSize, len(b.Concepts))
	}
	for i, c := range b.Concepts {
		if c.Target == "" {
			return fmt.Errorf("concept %d has no target", i+1)
		}
	}
	if b.StartActive < 0 || b.StartActive > BoardSize {
		return fmt.Errorf("start_active %d out of range", b.StartActive)
	}
	return nil
}

// Cell is one square of the grid.
type Cell struct {
	ID      int        `json:"id"`
	Concept Concept    `json:"concept"`
	Status  CellStatus `json:"status"`
	initial CellStatus
}

// PuzzleState is a point-in-time copy of a puzzle.
type PuzzleState struct {
	Cells        []Cell `json:"cells"`
	Points       int    `json:"points"`
	Elapsed      int    `json:"elapsed_seconds"`
	TimerRunning bool   `json:"timer_running"`
	ActiveCell   int    `json:"active_cell,omitempty"`
	Won          bool   `json:"won"`
}

// Puzzle owns the cells, score, timer and win detection of one session.
// It is not safe for concurrent use; Game serializes access to it.
type Puzzle struct {
	cells     [BoardSize]Cell
	increment int

	points  int
	elapsed int
	running bool
	active  int // 0 when no cell is active
	won     bool
}

// NewPuzzle builds a puzzle from a board. increment is the number of
// points awarded per completed cell.
func NewPuzzle(b Board, increment int) (*Puzzle, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if increment <= 0 {
		return nil, fmt.Errorf("points increment must be positive, got %d", increment)
	}

	p := &Puzzle{increment: increment}
	for i, c := range b.Concepts {
		initial := Locked
		if b.StartActive == i+1 {
			initial = Active
		}
		p.cells[i] = Cell{
			ID:      i + 1,
			Concept: Concept{Target: c.Target, Synonyms: append([]string(nil), c.Synonyms...)},
			initial: initial,
		}
	}
	p.Reset()
	return p, nil
}

func (p *Puzzle) cell(id int) (*Cell, error) {
	if id < 1 || id > BoardSize {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCell, id)
	}
	return &p.cells[id-1], nil
}

// Cell returns a copy of the cell with the given id.
func (p *Puzzle) Cell(id int) (Cell, error) {
	c, err := p.cell(id)
	if err != nil {
		return Cell{}, err
	}
	return *c, nil
}

// Activate makes a cell the one being attempted and starts the timer.
// Activating the cell that is already active is a no-op.
func (p *Puzzle) Activate(id int) error {
	c, err := p.cell(id)
	if err != nil {
		return err
	}
	if p.active != 0 && p.active != id {
		return ErrAlreadyActive
	}
	if c.Status == Completed {
		return ErrAlreadyCompleted
	}

	c.Status = Active
	p.active = id
	p.StartTimer()
	return nil
}

// Complete marks the active cell as found and awards points. It reports
// true exactly once: on the completion that finishes the board.
// Completing an already completed cell does nothing.
func (p *Puzzle) Complete(id int) (bool, error) {
	c, err := p.cell(id)
	if err != nil {
		return false, err
	}
	if c.Status == Completed {
		return false, nil
	}
	if p.active != id {
		return false, ErrNotActive
	}

	c.Status = Completed
	p.points += p.increment
	p.active = 0

	if p.won || !p.allCompleted() {
		return false, nil
	}
	p.won = true
	p.StopTimer()
	return true, nil
}

// Abandon returns the active cell to Locked. Score and timer are untouched.
func (p *Puzzle) Abandon(id int) error {
	c, err := p.cell(id)
	if err != nil {
		return err
	}
	if p.active != id || c.Status != Active {
		return ErrNotActive
	}
	c.Status = Locked
	p.active = 0
	return nil
}

// Reset puts every cell back to its initial status, zeroes score and
// elapsed time and stops the timer.
func (p *Puzzle) Reset() {
	p.points = 0
	p.elapsed = 0
	p.running = false
	p.active = 0
	p.won = false
	for i := range p.cells {
		p.cells[i].Status = p.cells[i].initial
		if p.cells[i].initial == Active {
			p.active = p.cells[i].ID
		}
	}
}

func (p *Puzzle) allCompleted() bool {
	for _, c := range p.cells {
		if c.Status != Completed {
			return false
		}
	}
	return true
}

// StartTimer starts the session clock; no-op when already running.
func (p *Puzzle) StartTimer() {
	if p.won {
		return
	}
	p.running = true
}

// StopTimer stops the session clock; no-op when already stopped.
func (p *Puzzle) StopTimer() {
	p.running = false
}

// Tick advances the clock by one second if it is running.
func (p *Puzzle) Tick() bool {
	if !p.running {
		return false
	}
	p.elapsed++
	return true
}

// ActiveCell returns the id of the active cell, if any.
func (p *Puzzle) ActiveCell() (int, bool) {
	return p.active, p.active != 0
}

func (p *Puzzle) Points() int        { return p.points }
func (p *Puzzle) Elapsed() int       { return p.elapsed }
func (p *Puzzle) TimerRunning() bool { return p.running }
func (p *Puzzle) Won() bool          { return p.won }

// State returns a copy of the whole puzzle.
func (p *Puzzle) State() PuzzleState {
	cells := make([]Cell, len(p.cells))
	for i, c := range p.cells {
		cells[i] = c
		cells[i].Concept.Synonyms = append([]string(nil), c.Concept.Synonyms...)
	}
	return PuzzleState{
		Cells:        cells,
		Points:       p.points,
		Elapsed:      p.elapsed,
		TimerRunning: p.running,
		ActiveCell:   p.active,
		Won:          p.won,
	}
}
