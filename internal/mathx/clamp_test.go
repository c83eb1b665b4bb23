package mathx

import "testing"

func TestClamp(t *testing.T) {
	if v := Clamp(150, 0, 100); v != 100 {
		t.Fatalf("Clamp(150,0,100) = %d, want 100", v)
	}
	if v := Clamp(-5, 0, 100); v != 0 {
		t.Fatalf("Clamp(-5,0,100) = %d, want 0", v)
	}
	if v := Clamp(50, 0, 100); v != 50 {
		t.Fatalf("Clamp(50,0,100) = %d, want 50", v)
	}
	if v := Clamp(50, 100, 0); v != 50 {
		t.Fatalf("Clamp with swapped bounds = %d, want 50", v)
	}
}

func TestAbs(t *testing.T) {
	if v := Abs(int16(-200)); v != 200 {
		t.Fatalf("Abs(-200) = %d, want 200", v)
	}
	if v := Abs(-12.5); v != 12.5 {
		t.Fatalf("Abs(-12.5) = %v, want 12.5", v)
	}
}

func TestBetween(t *testing.T) {
	if !Between(5, 0, 10) {
		t.Fatal("5 should be between 0 and 10")
	}
	if Between(-1, 0, 10) {
		t.Fatal("-1 should not be between 0 and 10")
	}
}
