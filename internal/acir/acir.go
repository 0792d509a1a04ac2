// Package acir computes the adjacent-channel-interference-rejection figure
// used to derate co-channel interference power when the AP and the
// incumbent receiver occupy frequency-offset channels, either from single
// tx/rx discrimination numbers or from frequency-offset mask tables.
package acir

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// InvalidParameterError reports an ACIR input that cannot yield a finite
// result (e.g. an empty mask table), as distinct from an interference
// outcome.
type InvalidParameterError struct {
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("acir: %s", e.Reason)
}

// ACIRDb combines a transmitter's adjacent-channel leakage ratio and a
// receiver's adjacent-channel selectivity into a single combined rejection
// figure: ACIR = -10*log10(10^(-Atx/10) + 10^(-Arx/10)).
func ACIRDb(aTxDb, aRxDb float64) (float64, error) {
	denom := math.Pow(10, -aTxDb/10) + math.Pow(10, -aRxDb/10)
	if denom <= 0 {
		return 0, &InvalidParameterError{Reason: "non-positive ACIR denominator"}
	}
	return 10 * math.Log10(1/denom), nil
}

// AdjacentChannelInterferenceDbm derates co-channel interference power by
// the combined ACIR figure.
func AdjacentChannelInterferenceDbm(iCoDbm, aTxDb, aRxDb float64) (float64, error) {
	acirDb, err := ACIRDb(aTxDb, aRxDb)
	if err != nil {
		return 0, err
	}
	return iCoDbm - acirDb, nil
}

// MaskPoint is one (frequency offset MHz, attenuation dB) sample of a tx
// emission mask or rx selectivity table.
type MaskPoint struct {
	OffsetMHz float64
	ValueDb   float64
}

func sortedPoints(points []MaskPoint) []MaskPoint {
	out := make([]MaskPoint, len(points))
	copy(out, points)
	sort.Slice(out, func(i, j int) bool { return out[i].OffsetMHz < out[j].OffsetMHz })
	deduped := out[:0]
	for i, p := range out {
		if i > 0 && p.OffsetMHz == deduped[len(deduped)-1].OffsetMHz {
			deduped[len(deduped)-1] = p
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped
}

// InterpolateMaskDb looks up the attenuation at a frequency offset,
// interpolating linearly between table points and holding flat beyond the
// table's domain. Unlike antenna.InterpolateRPEDb, an empty table is an
// error here: a mask with no points is not a meaningful default.
func InterpolateMaskDb(offsetMHz float64, points []MaskPoint) (float64, error) {
	if len(points) == 0 {
		return 0, &InvalidParameterError{Reason: "empty mask table"}
	}
	pts := sortedPoints(points)
	if len(pts) == 1 {
		return pts[0].ValueDb, nil
	}

	lo, hi := pts[0], pts[len(pts)-1]
	if offsetMHz <= lo.OffsetMHz {
		return lo.ValueDb, nil
	}
	if offsetMHz >= hi.OffsetMHz {
		return hi.ValueDb, nil
	}

	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i] = p.OffsetMHz
		ys[i] = p.ValueDb
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return 0, fmt.Errorf("acir: fit mask table: %w", err)
	}
	return pl.Predict(offsetMHz), nil
}

// ACIRDbFromMasks looks up the tx and rx masks at offsetMHz and combines
// them into a single ACIR figure.
func ACIRDbFromMasks(offsetMHz float64, txPoints, rxPoints []MaskPoint) (float64, error) {
	aTx, err := InterpolateMaskDb(offsetMHz, txPoints)
	if err != nil {
		return 0, fmt.Errorf("acir: tx mask: %w", err)
	}
	aRx, err := InterpolateMaskDb(offsetMHz, rxPoints)
	if err != nil {
		return 0, fmt.Errorf("acir: rx mask: %w", err)
	}
	return ACIRDb(aTx, aRx)
}

// Spec holds named frequency-offset ACIR tables, keyed by offset in MHz.
type Spec struct {
	ATxDbByOffsetMHz map[float64]float64
	ARxDbByOffsetMHz map[float64]float64
}

// mapToMaskPoints turns an offset-keyed attenuation map into a []MaskPoint
// table suitable for InterpolateMaskDb/ACIRDbFromMasks.
func mapToMaskPoints(m map[float64]float64) []MaskPoint {
	points := make([]MaskPoint, 0, len(m))
	for offset, value := range m {
		points = append(points, MaskPoint{OffsetMHz: offset, ValueDb: value})
	}
	return sortedPoints(points)
}

// TxMaskPoints returns Spec's transmit emission mask as a sorted table,
// for linear interpolation via ACIRDbFromMasks.
func (s Spec) TxMaskPoints() []MaskPoint {
	return mapToMaskPoints(s.ATxDbByOffsetMHz)
}

// RxMaskPoints returns Spec's receiver adjacent-channel-selectivity table
// as a sorted table, for linear interpolation via ACIRDbFromMasks.
func (s Spec) RxMaskPoints() []MaskPoint {
	return mapToMaskPoints(s.ARxDbByOffsetMHz)
}

// nearestKey returns the key in m nearest to target.
func nearestKey(m map[float64]float64, target float64) (float64, bool) {
	if len(m) == 0 {
		return 0, false
	}
	best, bestDist := 0.0, math.Inf(1)
	first := true
	for k := range m {
		d := math.Abs(k - target)
		if first || d < bestDist {
			best, bestDist, first = k, d, false
		}
	}
	return best, true
}

// ACIRDbFromSpec resolves the tx/rx attenuation nearest to offsetMHz in
// Spec's tables and combines them.
func ACIRDbFromSpec(offsetMHz float64, spec Spec) (float64, error) {
	txKey, ok := nearestKey(spec.ATxDbByOffsetMHz, offsetMHz)
	if !ok {
		return 0, &InvalidParameterError{Reason: "empty tx ACIR table"}
	}
	rxKey, ok := nearestKey(spec.ARxDbByOffsetMHz, offsetMHz)
	if !ok {
		return 0, &InvalidParameterError{Reason: "empty rx ACIR table"}
	}
	return ACIRDb(spec.ATxDbByOffsetMHz[txKey], spec.ARxDbByOffsetMHz[rxKey])
}

// DefaultTxMaskDbByOffsetMHz returns the built-in default transmit emission
// mask, keyed by offset in MHz.
func DefaultTxMaskDbByOffsetMHz() map[float64]float64 {
	return map[float64]float64{10: 20.0, 20: 30.0, 30: 33.0, 40: 35.0, 80: 45.0, 120: 50.0}
}

// DefaultRxACSDbByOffsetMHz returns the built-in default receiver
// adjacent-channel-selectivity table, keyed by offset in MHz.
func DefaultRxACSDbByOffsetMHz() map[float64]float64 {
	return map[float64]float64{10: 18.0, 20: 30.0, 30: 32.0, 40: 35.0, 80: 43.0, 120: 48.0}
}

// EnsureDefaults returns a Spec with provided values taking precedence over
// the built-in defaults, merged per offset key.
func EnsureDefaults(aTx, aRx map[float64]float64) Spec {
	tx := DefaultTxMaskDbByOffsetMHz()
	for k, v := range aTx {
		tx[k] = v
	}
	rx := DefaultRxACSDbByOffsetMHz()
	for k, v := range aRx {
		rx[k] = v
	}
	return Spec{ATxDbByOffsetMHz: tx, ARxDbByOffsetMHz: rx}
}
