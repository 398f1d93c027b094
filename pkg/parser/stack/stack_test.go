package stack_test

import (
	"testing"

	"vasm/pkg/parser/stack"

	"github.com/google/go-cmp/cmp"
)

func TestStackOrder(t *testing.T) {
	s := stack.NewStack(1, 2)
	s.Push(3)

	if s.Size() != 3 {
		t.Fatalf("expected size 3, got %d", s.Size())
	}

	if top, ok := s.Peek(); !ok || top != 3 {
		t.Errorf("peek: got %d, %v", top, ok)
	}

	var popped []int
	for s.Size() > 0 {
		v, _ := s.Pop()
		popped = append(popped, v)
	}

	if diff := cmp.Diff([]int{3, 2, 1}, popped); diff != "" {
		t.Errorf("pop order mismatch (-want +got):\n%s", diff)
	}

	if _, ok := s.Pop(); ok {
		t.Error("pop on empty stack must report false")
	}
}

func TestStackPeekPtr(t *testing.T) {
	type record struct{ breaks []int }

	s := stack.NewStack[record]()
	if s.PeekPtr() != nil {
		t.Fatal("empty stack must return nil")
	}

	s.Push(record{})
	s.PeekPtr().breaks = append(s.PeekPtr().breaks, 7)

	top, _ := s.Pop()
	if diff := cmp.Diff([]int{7}, top.breaks); diff != "" {
		t.Errorf("in-place update lost (-want +got):\n%s", diff)
	}
}
