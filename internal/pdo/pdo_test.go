package pdo

import "testing"

func TestSpeedratioToDeciHz_Deadband(t *testing.T) {
	cases := []float64{0, 0.5, -0.99, 0.999}
	for _, sr := range cases {
		if got := SpeedratioToDeciHz(sr, 200, 800); got != 0 {
			t.Errorf("SpeedratioToDeciHz(%v) = %d, want 0", sr, got)
		}
	}
}

func TestSpeedratioToDeciHz_Endpoints(t *testing.T) {
	if got := SpeedratioToDeciHz(1, 200, 800); got != 200 {
		t.Errorf("SpeedratioToDeciHz(1%%) = %d, want low speed 200", got)
	}
	if got := SpeedratioToDeciHz(100, 200, 800); got != 800 {
		t.Errorf("SpeedratioToDeciHz(100%%) = %d, want high speed 800", got)
	}
	if got := SpeedratioToDeciHz(-100, 200, 800); got != -800 {
		t.Errorf("SpeedratioToDeciHz(-100%%) = %d, want -800", got)
	}
}

func TestSpeedratioToDeciHz_SignFollowsRequest(t *testing.T) {
	pos := SpeedratioToDeciHz(50, 200, 800)
	neg := SpeedratioToDeciHz(-50, 200, 800)
	if pos <= 0 || neg >= 0 || pos != -neg {
		t.Errorf("SpeedratioToDeciHz(+-50%%) = %d, %d, want symmetric opposite signs", pos, neg)
	}
}
