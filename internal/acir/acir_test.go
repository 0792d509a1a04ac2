package acir

import (
	"math"
	"testing"
)

func TestACIRDbEqualRejection(t *testing.T) {
	got, err := ACIRDb(30, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 30 - 10*math.Log10(2)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %.6f want %.6f", got, want)
	}
}

func TestAdjacentChannelInterferenceDbm(t *testing.T) {
	got, err := AdjacentChannelInterferenceDbm(-80, 30, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	acirDb, _ := ACIRDb(30, 30)
	want := -80 - acirDb
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %.6f want %.6f", got, want)
	}
}

func TestInterpolateMaskDbEmptyIsError(t *testing.T) {
	if _, err := InterpolateMaskDb(10, nil); err == nil {
		t.Fatal("expected error for empty mask table")
	}
}

func TestInterpolateMaskDbFlatExtrapolation(t *testing.T) {
	pts := []MaskPoint{{OffsetMHz: 10, ValueDb: 20}, {OffsetMHz: 40, ValueDb: 35}}
	got, err := InterpolateMaskDb(0, pts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 20 {
		t.Errorf("below range: got %.3f want 20", got)
	}
	got, err = InterpolateMaskDb(1000, pts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 35 {
		t.Errorf("above range: got %.3f want 35", got)
	}
}

func TestInterpolateMaskDbLinear(t *testing.T) {
	pts := []MaskPoint{{OffsetMHz: 0, ValueDb: 0}, {OffsetMHz: 10, ValueDb: 20}}
	got, err := InterpolateMaskDb(5, pts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-10) > 1e-6 {
		t.Fatalf("got %.6f want 10", got)
	}
}

func TestACIRDbFromMasks(t *testing.T) {
	tx := []MaskPoint{{OffsetMHz: 20, ValueDb: 30}}
	rx := []MaskPoint{{OffsetMHz: 20, ValueDb: 30}}
	got, err := ACIRDbFromMasks(20, tx, rx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := ACIRDb(30, 30)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got %.6f want %.6f", got, want)
	}
}

func TestEnsureDefaultsMergesOverProvided(t *testing.T) {
	spec := EnsureDefaults(map[float64]float64{10: 99.0}, nil)
	if spec.ATxDbByOffsetMHz[10] != 99.0 {
		t.Errorf("explicit override not applied: got %.2f", spec.ATxDbByOffsetMHz[10])
	}
	if spec.ATxDbByOffsetMHz[20] != 30.0 {
		t.Errorf("default not preserved for unmentioned offset: got %.2f", spec.ATxDbByOffsetMHz[20])
	}
}

func TestACIRDbFromSpecNearestKey(t *testing.T) {
	spec := EnsureDefaults(nil, nil)
	got, err := ACIRDbFromSpec(15, spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got <= 0 {
		t.Errorf("expected positive ACIR, got %.3f", got)
	}
}
