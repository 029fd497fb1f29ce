package main

import "fmt"

// Screen is the single screen presented to the player.
type Screen int

const (
	ScreenGrid Screen = iota
	ScreenCapture
	ScreenWin
)

var screenNames = map[Screen]string{
	ScreenGrid:    "grid",
	ScreenCapture: "capture",
	ScreenWin:     "win",
}

func (s Screen) String() string {
	if name, ok := screenNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Screen) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Screen) UnmarshalText(b []byte) error {
	for k, name := range screenNames {
		if name == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown screen %q", b)
}

// Navigator maps puzzle transitions and resolver outcomes to screens.
// Win is terminal until the game is restarted.
type Navigator struct {
	screen Screen
}

func (n *Navigator) Screen() Screen { return n.screen }

// Activated moves the grid to the capture screen.
func (n *Navigator) Activated() Screen {
	if n.screen == ScreenGrid {
		n.screen = ScreenCapture
	}
	return n.screen
}

// Matched returns from capture to the grid after a cell is completed.
func (n *Navigator) Matched() Screen {
	if n.screen == ScreenCapture {
		n.screen = ScreenGrid
	}
	return n.screen
}

// NoMatch keeps the capture screen up for a retry.
func (n *Navigator) NoMatch() Screen {
	return n.screen
}

// Home leaves the capture screen.
func (n *Navigator) Home() Screen {
	if n.screen == ScreenCapture {
		n.screen = ScreenGrid
	}
	return n.screen
}

// Won shows the win screen from anywhere.
func (n *Navigator) Won() Screen {
	n.screen = ScreenWin
	return n.screen
}

// Reset returns to the grid.
func (n *Navigator) Reset() Screen {
	n.screen = ScreenGrid
	return n.screen
}
