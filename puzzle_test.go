package main

import (
	"errors"
	"testing"
)

func newTestPuzzle(t *testing.T) *Puzzle {
	t.Helper()
	p, err := NewPuzzle(DefaultBoard(), 10)
	if err != nil {
		t.Fatalf("new puzzle: %v", err)
	}
	return p
}

func TestNewPuzzleValidatesBoard(t *testing.T) {
	if _, err := NewPuzzle(Board{Concepts: DefaultBoard().Concepts[:8]}, 10); err == nil {
		t.Fatal("expected error for 8-concept board")
	}
	b := DefaultBoard()
	b.Concepts[4].Target = ""
	if _, err := NewPuzzle(b, 10); err == nil {
		t.Fatal("expected error for empty target")
	}
	if _, err := NewPuzzle(DefaultBoard(), 0); err == nil {
		t.Fatal("expected error for zero increment")
	}
}

func TestActivateStartsTimer(t *testing.T) {
	p := newTestPuzzle(t)
	if p.TimerRunning() {
		t.Fatal("timer should be stopped on a fresh puzzle")
	}
	if err := p.Activate(1); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if id, ok := p.ActiveCell(); !ok || id != 1 {
		t.Fatalf("expected cell 1 active, got %d (%v)", id, ok)
	}
	if c, _ := p.Cell(1); c.Status != Active {
		t.Fatalf("expected active, got %s", c.Status)
	}
	if !p.TimerRunning() {
		t.Fatal("activate should start the timer")
	}
	// Re-activating the same cell is harmless.
	if err := p.Activate(1); err != nil {
		t.Fatalf("re-activate: %v", err)
	}
}

func TestActivateWhileAnotherActive(t *testing.T) {
	p := newTestPuzzle(t)
	p.Activate(1)

	if err := p.Activate(2); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if c, _ := p.Cell(1); c.Status != Active {
		t.Fatalf("cell 1 should stay active, got %s", c.Status)
	}
	if c, _ := p.Cell(2); c.Status != Locked {
		t.Fatalf("cell 2 should stay locked, got %s", c.Status)
	}
	if id, _ := p.ActiveCell(); id != 1 {
		t.Fatalf("active cell changed to %d", id)
	}
}

func TestActivateCompletedCell(t *testing.T) {
	p := newTestPuzzle(t)
	p.Activate(5)
	p.Complete(5)

	if err := p.Activate(5); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	if _, ok := p.ActiveCell(); ok {
		t.Fatal("no cell should be active")
	}
}

func TestActivateUnknownCell(t *testing.T) {
	p := newTestPuzzle(t)
	for _, id := range []int{0, 10, -1} {
		if err := p.Activate(id); !errors.Is(err, ErrUnknownCell) {
			t.Fatalf("cell %d: expected ErrUnknownCell, got %v", id, err)
		}
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	p := newTestPuzzle(t)
	p.Activate(3)

	if _, err := p.Complete(3); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := p.Complete(3); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if p.Points() != 10 {
		t.Fatalf("expected 10 points, got %d", p.Points())
	}
	if _, ok := p.ActiveCell(); ok {
		t.Fatal("complete should clear the active cell")
	}
}

func TestCompleteRequiresActiveCell(t *testing.T) {
	p := newTestPuzzle(t)
	if _, err := p.Complete(2); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if p.Points() != 0 {
		t.Fatal("points should not change")
	}
}

func TestWinFiresOnce(t *testing.T) {
	p := newTestPuzzle(t)

	wins := 0
	for id := 1; id <= BoardSize; id++ {
		if err := p.Activate(id); err != nil {
			t.Fatalf("activate %d: %v", id, err)
		}
		p.Tick()
		won, err := p.Complete(id)
		if err != nil {
			t.Fatalf("complete %d: %v", id, err)
		}
		if won {
			wins++
			if id != BoardSize {
				t.Fatalf("win fired early on cell %d", id)
			}
		}
	}
	for id := 1; id <= BoardSize; id++ {
		if won, _ := p.Complete(id); won {
			wins++
		}
	}

	if wins != 1 {
		t.Fatalf("expected exactly one win, got %d", wins)
	}
	if !p.Won() {
		t.Fatal("puzzle should be won")
	}
	if p.Points() != 90 {
		t.Fatalf("expected 90 points, got %d", p.Points())
	}

	elapsed := p.Elapsed()
	if p.Tick() || p.Elapsed() != elapsed {
		t.Fatal("timer should be frozen after the win")
	}
}

func TestAbandon(t *testing.T) {
	p := newTestPuzzle(t)
	p.Activate(1)
	p.Complete(1)
	p.Activate(3)
	p.Tick()
	p.Tick()

	if err := p.Abandon(3); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if c, _ := p.Cell(3); c.Status != Locked {
		t.Fatalf("expected locked, got %s", c.Status)
	}
	if _, ok := p.ActiveCell(); ok {
		t.Fatal("active cell should be cleared")
	}
	if p.Points() != 10 || p.Elapsed() != 2 {
		t.Fatalf("points/elapsed changed: %d/%d", p.Points(), p.Elapsed())
	}
	if !p.TimerRunning() {
		t.Fatal("timer keeps running across attempts")
	}

	if err := p.Abandon(3); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if err := p.Abandon(1); !errors.Is(err, ErrNotActive) {
		t.Fatalf("completed cell cannot be abandoned, got %v", err)
	}
}

func TestTimer(t *testing.T) {
	p := newTestPuzzle(t)
	if p.Tick() {
		t.Fatal("tick should be ignored while stopped")
	}
	p.StartTimer()
	p.StartTimer()
	p.Tick()
	p.Tick()
	p.StopTimer()
	p.StopTimer()
	p.Tick()
	if p.Elapsed() != 2 {
		t.Fatalf("expected 2 seconds, got %d", p.Elapsed())
	}
}

func TestReset(t *testing.T) {
	p := newTestPuzzle(t)
	p.Activate(1)
	p.Complete(1)
	p.Activate(2)
	p.Tick()

	p.Reset()

	st := p.State()
	if st.Points != 0 || st.Elapsed != 0 || st.TimerRunning || st.ActiveCell != 0 || st.Won {
		t.Fatalf("unexpected state after reset: %+v", st)
	}
	for _, c := range st.Cells {
		if c.Status != Locked {
			t.Fatalf("cell %d should be locked, got %s", c.ID, c.Status)
		}
	}
}

func TestResetRestoresStartActive(t *testing.T) {
	b := DefaultBoard()
	b.StartActive = 4
	p, err := NewPuzzle(b, 10)
	if err != nil {
		t.Fatalf("new puzzle: %v", err)
	}
	if id, ok := p.ActiveCell(); !ok || id != 4 {
		t.Fatalf("expected cell 4 active at start, got %d", id)
	}

	p.Activate(4)
	p.Complete(4)
	p.Reset()

	if c, _ := p.Cell(4); c.Status != Active {
		t.Fatalf("expected cell 4 active after reset, got %s", c.Status)
	}
	if id, _ := p.ActiveCell(); id != 4 {
		t.Fatalf("expected active cell 4, got %d", id)
	}
}

func TestStateIsCopy(t *testing.T) {
	p := newTestPuzzle(t)
	st := p.State()
	st.Cells[0].Status = Completed
	st.Cells[0].Concept.Synonyms[0] = "mutated"

	c, _ := p.Cell(1)
	if c.Status != Locked || c.Concept.Synonyms[0] == "mutated" {
		t.Fatal("State should return a copy")
	}
}
