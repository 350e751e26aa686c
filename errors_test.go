package stakeberry

import (
	"errors"
	"fmt"
	"testing"
)

func TestHaltError_Message(t *testing.T) {
	err := NewHaltError(7, "stored app hash differs from host")
	want := "HALT at height 7: stored app hash differs from host"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestIsHalt(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		halt   bool
		height uint64
	}{
		{"direct", NewHaltError(3, "x"), true, 3},
		{"wrapped", fmt.Errorf("handshake: %w", NewHaltError(9, "y")), true, 9},
		{"plain", errors.New("disk full"), false, 0},
		{"nil", nil, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, ok := IsHalt(tc.err)
			if ok != tc.halt {
				t.Fatalf("IsHalt = %v, want %v", ok, tc.halt)
			}
			if ok && h.Height != tc.height {
				t.Fatalf("height = %d, want %d", h.Height, tc.height)
			}
		})
	}
}
