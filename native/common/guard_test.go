package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	if err := Guard(nil, "pool"); err != nil {
		t.Fatalf("nil view: %v", err)
	}
	board := NewSwitchboard()
	if err := Guard(board, ""); err != nil {
		t.Fatalf("empty module: %v", err)
	}
	if err := Guard(board, "pool"); err != nil {
		t.Fatalf("unpaused module: %v", err)
	}
	board.SetPaused("pool", true)
	if err := Guard(board, "pool"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("paused module: %v, want ErrModulePaused", err)
	}
	if err := Guard(board, "lending"); err != nil {
		t.Fatalf("other module: %v", err)
	}
	board.SetPaused("pool", false)
	if err := Guard(board, "pool"); err != nil {
		t.Fatalf("resumed module: %v", err)
	}
}
