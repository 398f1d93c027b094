package mem_test

import (
	"errors"
	"math"
	"testing"

	"vasm/pkg/mem"
)

func TestStackPushPop(t *testing.T) {
	arena := mem.NewArena(256)
	s, err := mem.NewStack(arena, 64, 4, 4, false)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Push(1, -2, 3); err != nil {
		t.Fatal(err)
	}
	if s.Used() != 3 {
		t.Errorf("expected 3 used, got %d", s.Used())
	}

	for _, want := range []int64{3, -2, 1} {
		got, err := s.Pop()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}

	if _, err := s.Pop(); !errors.Is(err, mem.ErrStackUnderflow) {
		t.Errorf("expected underflow, got %v", err)
	}
}

func TestStackOverflow(t *testing.T) {
	arena := mem.NewArena(256)
	s, _ := mem.NewStack(arena, 0, 8, 3, false)

	if err := s.Push(1, 2, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(4); !errors.Is(err, mem.ErrStackOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
	if s.Used() != 3 {
		t.Errorf("failed push must not change the stack, used %d", s.Used())
	}
}

func TestRollingStackDropsOldest(t *testing.T) {
	arena := mem.NewArena(256)
	s, _ := mem.NewStack(arena, 10, 2, 3, true)

	for i := int64(1); i <= 10; i++ {
		if err := s.Push(i); err != nil {
			t.Fatalf("rolling push %d: %v", i, err)
		}
		if s.Used() > s.Cap() {
			t.Fatalf("used %d exceeds capacity %d", s.Used(), s.Cap())
		}
	}

	for _, want := range []int64{10, 9, 8} {
		got, _ := s.Pop()
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
	if s.Used() != 0 {
		t.Errorf("expected empty stack, got %d", s.Used())
	}
}

func TestStackRegionBounds(t *testing.T) {
	arena := mem.NewArena(32)

	if _, err := mem.NewStack(arena, 16, 8, 4, false); !errors.Is(err, mem.ErrOutOfBounds) {
		t.Errorf("expected out of bounds region, got %v", err)
	}
	if _, err := mem.NewStack(arena, 0, 3, 4, false); !errors.Is(err, mem.ErrInvalidSize) {
		t.Errorf("expected invalid entry size, got %v", err)
	}
	if _, err := mem.NewStack(arena, 0, 8, math.MaxInt/4, false); !errors.Is(err, mem.ErrInvalidSize) {
		t.Errorf("expected invalid entry count, got %v", err)
	}
	if _, err := mem.NewStack(arena, math.MaxInt-8, 8, 4, false); !errors.Is(err, mem.ErrOutOfBounds) {
		t.Errorf("expected out of bounds region, got %v", err)
	}
}
