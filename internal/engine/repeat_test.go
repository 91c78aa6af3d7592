package engine

import (
	"errors"
	"testing"
)

func TestRepeatPointAAlwaysSucceeds(t *testing.T) {
	var r Repeat
	r.SetA(5)
	if a, ok := r.A(); !ok || a != 5 {
		t.Fatalf("point A: got %v, %v, want 5, true", a, ok)
	}
	r.SetA(2)
	if a, _ := r.A(); a != 2 {
		t.Errorf("point A must move freely: got %v, want 2", a)
	}
}

func TestRepeatPointBMustFollowA(t *testing.T) {
	var r Repeat
	if err := r.SetB(3); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("B without A: got %v, want ErrInvalidRange", err)
	}
	r.SetA(2)
	if err := r.SetB(2); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("B equal to A: got %v, want ErrInvalidRange", err)
	}
	if err := r.SetB(1.5); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("B before A: got %v, want ErrInvalidRange", err)
	}
	if _, ok := r.B(); ok {
		t.Error("failed placements must leave B unset")
	}
	if err := r.SetB(4); err != nil {
		t.Fatalf("valid B: %v", err)
	}
	if b, ok := r.B(); !ok || b != 4 {
		t.Errorf("point B: got %v, %v, want 4, true", b, ok)
	}
}

func TestRepeatRejectedBKeepsExistingRange(t *testing.T) {
	var r Repeat
	r.SetA(2)
	if err := r.SetB(4); err != nil {
		t.Fatalf("valid B: %v", err)
	}
	if err := r.SetB(1); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("invalid B: got %v, want ErrInvalidRange", err)
	}
	if b, ok := r.B(); !ok || b != 4 {
		t.Errorf("rejected placement must not clobber B: got %v, %v, want 4, true", b, ok)
	}
}

func TestRepeatMovingAPastBDropsB(t *testing.T) {
	var r Repeat
	r.SetA(2)
	if err := r.SetB(4); err != nil {
		t.Fatalf("valid B: %v", err)
	}
	r.Enable(true)

	r.SetA(3) // still before B, range survives
	if !r.Active() {
		t.Error("range must stay active while A < B")
	}

	r.SetA(4) // on B, range collapses
	if _, ok := r.B(); ok {
		t.Error("B must be dropped when A reaches it")
	}
	if r.Active() {
		t.Error("a collapsed range must not wrap playback")
	}
}

func TestRepeatActiveNeedsPointsAndEnable(t *testing.T) {
	var r Repeat
	if r.Active() {
		t.Fatal("empty range must be inactive")
	}
	r.SetA(1)
	r.Enable(true)
	if r.Active() {
		t.Error("range without B must be inactive")
	}
	if err := r.SetB(2); err != nil {
		t.Fatalf("valid B: %v", err)
	}
	if !r.Active() {
		t.Error("enabled complete range must be active")
	}
	r.Enable(false)
	if r.Active() {
		t.Error("disabled range must be inactive")
	}

	r.Enable(true)
	r.Clear()
	if r.Active() {
		t.Error("cleared range must be inactive")
	}
	if _, ok := r.A(); ok {
		t.Error("clear must drop point A")
	}
	if _, ok := r.B(); ok {
		t.Error("clear must drop point B")
	}
}
