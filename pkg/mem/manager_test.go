package mem_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"vasm/pkg/mem"

	"github.com/google/go-cmp/cmp"
)

func newManager(size int) (*mem.Arena, *mem.Manager) {
	arena := mem.NewArena(size)
	return arena, mem.NewManager(arena, 16, size)
}

func TestAllocFreeReuse(t *testing.T) {
	for _, n := range []int{1, 3, 8, 100, 4000} {
		_, m := newManager(8192)

		a, err := m.Alloc(n, mem.TypeRaw)
		if err != nil {
			t.Fatalf("alloc %d: %v", n, err)
		}
		if err := m.Free(a); err != nil {
			t.Fatalf("free %d: %v", a, err)
		}

		b, err := m.Alloc(n, mem.TypeRaw)
		if err != nil {
			t.Fatalf("realloc %d: %v", n, err)
		}
		if a != b {
			t.Errorf("size %d: expected reuse of %d, got %d", n, a, b)
		}
	}
}

func TestAllocSplitsLargerBlock(t *testing.T) {
	_, m := newManager(1024)

	big, _ := m.Alloc(64, mem.TypeRaw)
	guard, _ := m.Alloc(8, mem.TypeRaw)
	if err := m.Free(big); err != nil {
		t.Fatal(err)
	}

	small, err := m.Alloc(16, mem.TypeU8)
	if err != nil {
		t.Fatal(err)
	}
	if small != big {
		t.Errorf("expected first fit at %d, got %d", big, small)
	}

	next, err := m.Alloc(48, mem.TypeU8)
	if err != nil {
		t.Fatal(err)
	}
	if next != big+16 {
		t.Errorf("expected remainder block at %d, got %d", big+16, next)
	}
	if next >= guard {
		t.Errorf("remainder %d should sit below guard %d", next, guard)
	}
}

func TestAllocNeverOverlaps(t *testing.T) {
	_, m := newManager(1 << 16)
	rng := rand.New(rand.NewSource(7))

	live := map[int]int{}
	for step := 0; step < 2000; step++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			for addr := range live {
				if err := m.Free(addr); err != nil {
					t.Fatalf("free %d: %v", addr, err)
				}
				delete(live, addr)
				break
			}
			continue
		}

		if step%97 == 0 {
			m.Collect()
		}

		size := 1 + rng.Intn(200)
		addr, err := m.Alloc(size, mem.TypeRaw)
		if errors.Is(err, mem.ErrOutOfMemory) {
			continue
		}
		if err != nil {
			t.Fatal(err)
		}

		for a, n := range live {
			if addr < a+n && a < addr+size {
				t.Fatalf("step %d: [%d,%d) overlaps live [%d,%d)", step, addr, addr+size, a, a+n)
			}
		}
		live[addr] = size
	}

	prev := m.Base()
	for _, b := range m.Blocks() {
		if b.Top != prev {
			t.Fatalf("blocks not contiguous at %d (expected %d)", b.Top, prev)
		}
		prev = b.Bottom
	}
	if prev != m.HighWater() {
		t.Errorf("blocks end at %d, high-water is %d", prev, m.HighWater())
	}
}

func TestAllocOutOfMemory(t *testing.T) {
	_, m := newManager(128)

	if _, err := m.Alloc(100, mem.TypeRaw); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Alloc(100, mem.TypeRaw); !errors.Is(err, mem.ErrOutOfMemory) {
		t.Errorf("expected ErrOutOfMemory, got %v", err)
	}
}

func TestHugeRequestsDoNotWrap(t *testing.T) {
	arena, m := newManager(4096)

	if _, err := m.Alloc(math.MaxInt64, mem.TypeRaw); !errors.Is(err, mem.ErrOutOfMemory) {
		t.Errorf("expected ErrOutOfMemory, got %v", err)
	}

	for _, addr := range []int{math.MaxInt64, math.MaxInt64 - 2, 4094} {
		if _, err := mem.ReadInt(arena, addr, mem.TypeI32); !errors.Is(err, mem.ErrOutOfBounds) {
			t.Errorf("read at %d: expected ErrOutOfBounds, got %v", addr, err)
		}
	}
	if _, err := arena.Slice(16, math.MaxInt64); !errors.Is(err, mem.ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestAllocZeroFillsReusedBlocks(t *testing.T) {
	arena, m := newManager(256)

	a, _ := m.AllocU32(0xdeadbeef)
	_ = m.Free(a)

	b, _ := m.Alloc(4, mem.TypeU32)
	v, err := mem.ReadInt(arena, b, mem.TypeU32)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0 {
		t.Errorf("reused block not zeroed: %#x", v)
	}
}

func TestFreeInvalid(t *testing.T) {
	_, m := newManager(256)

	a, _ := m.Alloc(8, mem.TypeRaw)
	if err := m.Free(a + 1); !errors.Is(err, mem.ErrInvalidFree) {
		t.Errorf("expected ErrInvalidFree for interior address, got %v", err)
	}
	if err := m.Free(a); err != nil {
		t.Fatal(err)
	}
	if err := m.Free(a); !errors.Is(err, mem.ErrInvalidFree) {
		t.Errorf("expected ErrInvalidFree for double free, got %v", err)
	}
}

func TestSizeAndType(t *testing.T) {
	_, m := newManager(256)

	a, _ := m.AllocI16(-2)
	s, _ := m.AllocString("hello")

	if got := m.Size(a); got != 2 {
		t.Errorf("size: expected 2, got %d", got)
	}
	if got := m.Size(s); got != mem.StringHeader+5 {
		t.Errorf("string size: expected %d, got %d", mem.StringHeader+5, got)
	}
	if typ, ok := m.Type(s); !ok || typ != mem.TypeString {
		t.Errorf("type: expected str, got %v (%v)", typ, ok)
	}

	_ = m.Free(a)
	if got := m.Size(a); got != 0 {
		t.Errorf("freed size: expected 0, got %d", got)
	}
	if _, ok := m.Type(a); ok {
		t.Error("freed block should have no type")
	}
}

func TestTypedAllocRoundTrip(t *testing.T) {
	arena, m := newManager(256)

	i8, _ := m.AllocI8(-5)
	u16, _ := m.AllocU16(0xfffe)
	f, _ := m.AllocF32(1.5)
	s, _ := m.AllocString("vasm")

	if v, _ := mem.ReadInt(arena, i8, mem.TypeI8); v != -5 {
		t.Errorf("i8: got %d", v)
	}
	if v, _ := mem.ReadInt(arena, u16, mem.TypeU16); v != 0xfffe {
		t.Errorf("u16: got %d", v)
	}
	if v, _ := mem.ReadFloat(arena, f); v != 1.5 {
		t.Errorf("f32: got %g", v)
	}
	if v, _ := mem.ReadString(arena, s); v != "vasm" {
		t.Errorf("str: got %q", v)
	}
}

func TestCollectCoalescesAndTrims(t *testing.T) {
	_, m := newManager(1024)

	a, _ := m.Alloc(10, mem.TypeRaw)
	b, _ := m.Alloc(10, mem.TypeRaw)
	c, _ := m.Alloc(10, mem.TypeRaw)
	d, _ := m.Alloc(10, mem.TypeRaw)

	_ = m.Free(a)
	_ = m.Free(b)
	_ = m.Free(d)

	if n := m.Collect(); n != 2 {
		t.Errorf("expected 2 records discarded, got %d", n)
	}

	want := []mem.Block{
		{Top: a, Bottom: c, Size: 20},
		{Top: c, Bottom: c + 10, Size: 10, Type: mem.TypeRaw, Used: true},
	}
	if diff := cmp.Diff(want, m.Blocks()); diff != "" {
		t.Errorf("blocks after collect (-want +got):\n%s", diff)
	}
	if m.HighWater() != d {
		t.Errorf("expected high-water %d, got %d", d, m.HighWater())
	}

	e, _ := m.Alloc(20, mem.TypeRaw)
	if e != a {
		t.Errorf("coalesced block should be reused at %d, got %d", a, e)
	}
}
