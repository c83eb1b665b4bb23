package positioner

import (
	"testing"
	"time"
)

func TestFreqUpdate_AccumulatesDisplacement(t *testing.T) {
	p := New(Config{ResolutionMicrometresPerRev: 10})
	// 600 deciHz = 60Hz = 60 rev/s; over 1s that's 60 revs * 10um/rev = 600um.
	for i := 0; i < 1000; i++ {
		p.FreqUpdate(600, time.Millisecond)
	}
	got := p.Absolute()
	if got < 595 || got > 605 {
		t.Fatalf("absolute = %v, want ~600", got)
	}
}

func TestNotifyAfter_FiresOnThreshold(t *testing.T) {
	p := New(Config{ResolutionMicrometresPerRev: 10})
	ch, cancel := p.NotifyAfter(100)
	defer cancel()

	for i := 0; i < 200 && len(ch) == 0; i++ {
		p.FreqUpdate(1000, time.Millisecond) // 100Hz -> 1000um/s
	}

	select {
	case d := <-ch:
		if d < 100 {
			t.Fatalf("fired early at %v", d)
		}
	default:
		t.Fatal("notify_after never fired")
	}
}

func TestNotifyAfter_NegativeDirection(t *testing.T) {
	p := New(Config{ResolutionMicrometresPerRev: 10})
	ch, cancel := p.NotifyAfter(-50)
	defer cancel()

	for i := 0; i < 200 && len(ch) == 0; i++ {
		p.FreqUpdate(-1000, time.Millisecond)
	}
	select {
	case d := <-ch:
		if d > -50 {
			t.Fatalf("fired too early at %v", d)
		}
	default:
		t.Fatal("notify_after (negative) never fired")
	}
}

func TestHomeAndPositionFromHome(t *testing.T) {
	p := New(Config{ResolutionMicrometresPerRev: 10})
	p.FreqUpdate(1000, 10*time.Millisecond) // advance absolute a bit
	p.Home(p.Absolute())
	if got := p.PositionFromHome(); got != 0 {
		t.Fatalf("position_from_home after homing = %v, want 0", got)
	}
	if !p.Homed() {
		t.Fatal("expected Homed() true")
	}
}

func TestNeedsHoming(t *testing.T) {
	p := New(Config{ResolutionMicrometresPerRev: 10})
	if p.NeedsHoming() == "success" {
		t.Fatal("expected missing-home-reference before first home")
	}
	p.Home(0)
	if p.NeedsHoming() != "success" {
		t.Fatal("expected success after homing")
	}
}

func TestWithinResolution_ImmediateCompletion(t *testing.T) {
	p := New(Config{ResolutionMicrometresPerRev: 10})
	p.Home(0)
	if !p.WithinResolution(5) {
		t.Fatal("5um should be within a 10um resolution band of 0")
	}
	if p.WithinResolution(50) {
		t.Fatal("50um should not be within a 10um resolution band")
	}
}
