package asnset

import "testing"

func TestAddContains(t *testing.T) {
	s := New()
	members := []uint32{0, 1, 100, 65535, 65536, 4200000001, 4294967295}
	for _, a := range members {
		s.Add(a)
	}
	for _, a := range members {
		if !s.Contains(a) {
			t.Errorf("expected %d to be a member", a)
		}
	}
	for _, a := range []uint32{2, 65534, 65537, 4200000000} {
		if s.Contains(a) {
			t.Errorf("did not expect %d to be a member", a)
		}
	}
}

func TestClearDoesNotAllocate(t *testing.T) {
	s := New()
	s.Clear(700000) // chunk for this ASN was never allocated
	if s.chunks[700000>>chunkBits] != nil {
		t.Fatalf("Clear allocated a chunk it should have left untouched")
	}
}

func TestForEachAscending(t *testing.T) {
	s := New()
	in := []uint32{5000000, 1, 70000, 64500, 2}
	for _, a := range in {
		s.Add(a)
	}

	var got []uint32
	s.ForEach(func(asn uint32) { got = append(got, asn) })

	want := []uint32{1, 2, 64500, 70000, 5000000}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestLen(t *testing.T) {
	s := New()
	for _, a := range []uint32{1, 2, 3, 70000} {
		s.Add(a)
	}
	if got := s.Len(); got != 4 {
		t.Errorf("Len() = %d, want 4", got)
	}
}
