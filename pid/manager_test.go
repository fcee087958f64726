package pid

import "testing"

func TestAcquireLowestFree(t *testing.T) {
	m := NewManager[uint16](4)

	for i := uint16(1); i <= 4; i++ {
		id, ok := m.Acquire()
		if !ok || id != i {
			t.Fatalf("Acquire() = %d, %v, want %d, true", id, ok, i)
		}
	}
	if _, ok := m.Acquire(); ok {
		t.Fatal("Acquire() on exhausted manager returned ok=true")
	}

	m.Release(2)
	id, ok := m.Acquire()
	if !ok || id != 2 {
		t.Fatalf("Acquire() after releasing 2 = %d, %v, want 2, true", id, ok)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := NewManager[uint16](4)
	id, _ := m.Acquire()
	m.Release(id)
	m.Release(id)
	if m.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", m.Count())
	}
	m.Release(0)
	m.Release(100)
	if m.Count() != 0 {
		t.Fatalf("Count() after releasing out-of-range ids = %d, want 0", m.Count())
	}
}

func TestRegisterClaimsSpecificID(t *testing.T) {
	m := NewManager[uint16](4)
	if err := m.Register(3); err != nil {
		t.Fatalf("Register(3) = %v", err)
	}
	if !m.InUse(3) {
		t.Fatal("InUse(3) = false after Register")
	}
	if err := m.Register(3); err == nil {
		t.Fatal("Register(3) a second time did not error")
	}
	if err := m.Register(0); err == nil {
		t.Fatal("Register(0) did not error")
	}
	if err := m.Register(5); err == nil {
		t.Fatal("Register(5) out of range did not error")
	}

	id, ok := m.Acquire()
	if !ok || id == 3 {
		t.Fatalf("Acquire() = %d, %v, should skip the registered id", id, ok)
	}
}

func TestReleaseAll(t *testing.T) {
	m := NewManager[uint16](8)
	for i := 0; i < 5; i++ {
		m.Acquire()
	}
	m.ReleaseAll()
	if m.Count() != 0 {
		t.Fatalf("Count() after ReleaseAll = %d, want 0", m.Count())
	}
	id, ok := m.Acquire()
	if !ok || id != 1 {
		t.Fatalf("Acquire() after ReleaseAll = %d, %v, want 1, true", id, ok)
	}
}

func TestAcquireWrapsAroundAfterHighReleases(t *testing.T) {
	m := NewManager[uint16](3)
	m.Acquire() // 1
	m.Acquire() // 2
	m.Acquire() // 3
	m.Release(1)
	m.Release(3)

	id, ok := m.Acquire()
	if !ok || id != 1 {
		t.Fatalf("Acquire() = %d, %v, want 1, true", id, ok)
	}
	id, ok = m.Acquire()
	if !ok || id != 3 {
		t.Fatalf("Acquire() = %d, %v, want 3, true", id, ok)
	}
}

func TestWiderIDType(t *testing.T) {
	m := NewManager[uint32](70) // exercises the two-word bitmap path
	var last uint32
	for i := 0; i < 70; i++ {
		id, ok := m.Acquire()
		if !ok {
			t.Fatalf("Acquire() failed at iteration %d", i)
		}
		last = id
	}
	if last != 70 {
		t.Fatalf("last acquired id = %d, want 70", last)
	}
	if _, ok := m.Acquire(); ok {
		t.Fatal("Acquire() on exhausted 70-id manager returned ok=true")
	}
}
