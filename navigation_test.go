package main

import "testing"

func TestNavigator(t *testing.T) {
	var n Navigator
	steps := []struct {
		name string
		do   func() Screen
		want Screen
	}{
		{"start", n.Screen, ScreenGrid},
		{"match on grid", n.Matched, ScreenGrid},
		{"activate", n.Activated, ScreenCapture},
		{"no match", n.NoMatch, ScreenCapture},
		{"match", n.Matched, ScreenGrid},
		{"activate again", n.Activated, ScreenCapture},
		{"home", n.Home, ScreenGrid},
		{"activate", n.Activated, ScreenCapture},
		{"win", n.Won, ScreenWin},
		{"home after win", n.Home, ScreenWin},
		{"activate after win", n.Activated, ScreenWin},
		{"reset", n.Reset, ScreenGrid},
	}
	for _, s := range steps {
		if got := s.do(); got != s.want {
			t.Fatalf("%s: expected %s, got %s", s.name, s.want, got)
		}
	}
}
