package fsbw

import (
	"math"
	"testing"
)

func TestParseEmissionDesignatorBwHz(t *testing.T) {
	tests := []struct {
		designator string
		wantHz     float64
		wantOK     bool
	}{
		{"6M00F1D", 6e6, true},
		{"40K0A3E", 40e3, true},
		{"1G00X1X", 1e9, true},
		{"100H0A1A", 100.0, true},
		{"6m00f1d", 6e6, true},
		{"garbage", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseEmissionDesignatorBwHz(tt.designator)
		if ok != tt.wantOK {
			t.Errorf("%q: ok=%v want %v", tt.designator, ok, tt.wantOK)
			continue
		}
		if ok && math.Abs(got-tt.wantHz) > 1e-6 {
			t.Errorf("%q: got %v want %v", tt.designator, got, tt.wantHz)
		}
	}
}

func TestDetermineFSNoiseBwHzPrecedence(t *testing.T) {
	explicit := 15e6
	ul := 10e6

	// designator wins over everything
	got := DetermineFSNoiseBwHz(20e6, "6M00F1D", &explicit, &ul)
	if got != 6e6 {
		t.Errorf("designator precedence: got %v want 6e6", got)
	}

	// explicit wins when designator absent/unparseable
	got = DetermineFSNoiseBwHz(20e6, "", &explicit, &ul)
	if got != 15e6 {
		t.Errorf("explicit precedence: got %v want 15e6", got)
	}

	// ul wins when explicit is nil
	got = DetermineFSNoiseBwHz(20e6, "", nil, &ul)
	if got != 10e6 {
		t.Errorf("ul precedence: got %v want 10e6", got)
	}

	// default wins when nothing else present
	got = DetermineFSNoiseBwHz(20e6, "", nil, nil)
	if got != 20e6 {
		t.Errorf("default precedence: got %v want 20e6", got)
	}

	// zero/negative explicit value should be skipped
	zero := 0.0
	got = DetermineFSNoiseBwHz(20e6, "", &zero, &ul)
	if got != 10e6 {
		t.Errorf("zero explicit should fall through: got %v want 10e6", got)
	}
}
