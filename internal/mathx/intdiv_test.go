package mathx

import "testing"

func TestCeilDiv(t *testing.T) {
	if v := CeilDiv(uint32(10), 3); v != 4 {
		t.Fatalf("CeilDiv(10,3) = %d, want 4", v)
	}
	if v := CeilDiv(uint32(9), 3); v != 3 {
		t.Fatalf("CeilDiv(9,3) = %d, want 3", v)
	}
	if v := CeilDiv(uint32(5), 0); v != 0 {
		t.Fatalf("CeilDiv with zero divisor = %d, want 0", v)
	}
}

func TestRoundDiv(t *testing.T) {
	if v := RoundDiv(uint32(7), 2); v != 4 {
		t.Fatalf("RoundDiv(7,2) = %d, want 4", v)
	}
	if v := RoundDiv(uint32(5), 2); v != 3 {
		t.Fatalf("RoundDiv(5,2) = %d, want 3", v)
	}
}
