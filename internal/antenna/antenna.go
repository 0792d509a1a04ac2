// Package antenna implements the directional-discrimination models used to
// derive the effective antenna gain toward an interferer off the main
// boresight: a closed-form parabolic pattern and a piecewise-linear
// radiation-pattern-envelope (RPE) table lookup.
package antenna

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// PatternParams configures the closed-form parabolic antenna model.
type PatternParams struct {
	GMaxDbi          float64
	HPBWAzDeg        float64
	HPBWElDeg        float64
	SidelobeFloorDb  float64
	BacklobeFloorDbi float64
}

// DefaultPatternParams matches the source's dataclass defaults.
func DefaultPatternParams() PatternParams {
	return PatternParams{
		GMaxDbi:          30.0,
		HPBWAzDeg:        3.0,
		HPBWElDeg:        3.0,
		SidelobeFloorDb:  20.0,
		BacklobeFloorDbi: -10.0,
	}
}

// OffAxisAzimuthDeg returns the minimal angular offset in [0,180] between an
// antenna's boresight azimuth and a target bearing.
func OffAxisAzimuthDeg(antennaAzDeg, bearingDeg float64) float64 {
	delta := math.Mod(bearingDeg-antennaAzDeg+180, 360)
	if delta < 0 {
		delta += 360
	}
	return math.Abs(delta - 180)
}

// attenuationParabolic returns min(12*(delta/hpbw)^2, floor); if hpbw<=0 the
// pattern is degenerate and the floor attenuation is returned outright.
func attenuationParabolic(deltaDeg, hpbwDeg, floorDb float64) float64 {
	if hpbwDeg <= 0 {
		return floorDb
	}
	a := 12 * (deltaDeg / hpbwDeg) * (deltaDeg / hpbwDeg)
	if a > floorDb {
		return floorDb
	}
	return a
}

// EffectiveGainDbi returns the closed-form parabolic-pattern gain toward an
// off-boresight azimuth/elevation offset, clamped at the backlobe floor.
func EffectiveGainDbi(p PatternParams, azOffsetDeg, elOffsetDeg float64) float64 {
	aAz := attenuationParabolic(azOffsetDeg, p.HPBWAzDeg, p.SidelobeFloorDb)
	aEl := attenuationParabolic(elOffsetDeg, p.HPBWElDeg, p.SidelobeFloorDb)
	g := p.GMaxDbi - (aAz + aEl)
	if g < p.BacklobeFloorDbi {
		return p.BacklobeFloorDbi
	}
	return g
}

// Point is one (angle degrees off boresight, attenuation dB) sample of a
// radiation-pattern-envelope table.
type Point struct {
	AngleDeg float64
	ValueDb  float64
}

func sortedPoints(points []Point) []Point {
	out := make([]Point, len(points))
	copy(out, points)
	sort.Slice(out, func(i, j int) bool { return out[i].AngleDeg < out[j].AngleDeg })
	deduped := out[:0]
	for i, p := range out {
		if i > 0 && p.AngleDeg == deduped[len(deduped)-1].AngleDeg {
			deduped[len(deduped)-1] = p // last wins
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped
}

// InterpolateRPEDb returns the RPE attenuation at angle, linearly
// interpolating between table entries and flat-extrapolating beyond the
// table's domain. An empty table is not an error: it returns 0.0,
// signifying no discrimination, matching the source's antenna_rpe.py
// behavior (distinct from acir's mask lookup, which does treat an empty
// table as an error).
func InterpolateRPEDb(angleDeg float64, points []Point) float64 {
	if len(points) == 0 {
		return 0.0
	}
	pts := sortedPoints(points)
	if len(pts) == 1 {
		return pts[0].ValueDb
	}

	lo, hi := pts[0], pts[len(pts)-1]
	if angleDeg <= lo.AngleDeg {
		return lo.ValueDb
	}
	if angleDeg >= hi.AngleDeg {
		return hi.ValueDb
	}

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.AngleDeg
		ys[i] = p.ValueDb
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return lo.ValueDb
	}
	return pl.Predict(angleDeg)
}

// CombinedRPEGainDbi returns the gain toward an off-boresight direction
// using separate azimuth and elevation RPE tables, summed as attenuations
// against GMaxDbi and clamped at backlobeFloorDbi.
func CombinedRPEGainDbi(gMaxDbi, azOffsetDeg, elOffsetDeg float64, azPoints, elPoints []Point, backlobeFloorDbi float64) float64 {
	aAz := InterpolateRPEDb(azOffsetDeg, azPoints)
	aEl := InterpolateRPEDb(elOffsetDeg, elPoints)
	g := gMaxDbi - (aAz + aEl)
	if g < backlobeFloorDbi {
		return backlobeFloorDbi
	}
	return g
}
