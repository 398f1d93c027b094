package mem_test

import (
	"errors"
	"testing"

	"vasm/pkg/mem"

	"github.com/google/go-cmp/cmp"
)

func TestStructViewLayout(t *testing.T) {
	layout := mem.NewLayout(
		mem.Field{Name: "version", Type: mem.TypeU16},
		mem.Field{Name: "pos", Nested: []mem.Field{
			{Name: "x", Type: mem.TypeI16},
			{Name: "y", Type: mem.TypeI16},
		}},
		mem.Field{Name: "palette", Type: mem.TypeU8, Count: 4},
		mem.Field{Name: "scale", Type: mem.TypeF32},
	)

	if layout.Size() != 2+4+4+4 {
		t.Errorf("expected size 14, got %d", layout.Size())
	}

	want := []string{"version", "pos.x", "pos.y", "pos", "palette", "scale"}
	if diff := cmp.Diff(want, layout.Names()); diff != "" {
		t.Errorf("field order (-want +got):\n%s", diff)
	}

	arena := mem.NewArena(64)
	v, err := mem.NewStructView(arena, 8, layout)
	if err != nil {
		t.Fatal(err)
	}

	offsets := map[string]int{"version": 0, "pos": 2, "pos.x": 2, "pos.y": 4, "palette": 6, "scale": 10}
	for path, want := range offsets {
		got, err := v.Offset(path)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("offset %s: expected %d, got %d", path, want, got)
		}
	}

	_ = v.Set("pos.y", -3)
	_ = v.SetAt("palette", 3, 200)
	_ = v.SetFloat("scale", 0.25)

	if y, _ := v.Get("pos.y"); y != -3 {
		t.Errorf("pos.y: got %d", y)
	}
	if raw, _ := mem.ReadInt(arena, 8+4, mem.TypeI16); raw != -3 {
		t.Errorf("pos.y not stored at base+4: %d", raw)
	}
	if p, _ := v.GetAt("palette", 3); p != 200 {
		t.Errorf("palette[3]: got %d", p)
	}
	if s, _ := v.GetFloat("scale"); s != 0.25 {
		t.Errorf("scale: got %g", s)
	}
}

func TestStructViewErrors(t *testing.T) {
	layout := mem.NewLayout(mem.Field{Name: "a", Type: mem.TypeU8, Count: 2})
	v, _ := mem.NewStructView(mem.NewArena(8), 0, layout)

	if _, err := v.Get("b"); !errors.Is(err, mem.ErrUnknownField) {
		t.Errorf("expected unknown field, got %v", err)
	}
	if _, err := v.GetAt("a", 2); !errors.Is(err, mem.ErrOutOfBounds) {
		t.Errorf("expected out of bounds index, got %v", err)
	}
	if _, err := mem.NewStructView(mem.NewArena(1), 0, layout); !errors.Is(err, mem.ErrOutOfBounds) {
		t.Errorf("expected view past arena end to fail, got %v", err)
	}
}
