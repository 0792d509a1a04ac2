// Package linkbudget implements the basic decibel link-budget primitives
// that every downstream AFC computation (propagation, ACIR, allocation)
// builds on: EIRP, thermal noise floor, received interference power, and
// the interference-to-noise ratio derived from them.
package linkbudget

import (
	"fmt"
	"math"
)

// thermalNoiseFloorDbmPerHz is kTB at T0=290K expressed as dBm/Hz, i.e. -174.
const thermalNoiseFloorDbmPerHz = -174.0

// InvalidParameterError reports a link-budget input that is physically
// nonsensical (a non-positive noise bandwidth) rather than an
// interference outcome. It is distinct from the protocol's validation
// response codes: this is a programming error, never returned to a caller
// over the wire.
type InvalidParameterError struct {
	Param string
	Value float64
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("linkbudget: invalid %s: %v", e.Param, e.Value)
}

// ComputeEIRPDbm returns EIRP = Ptx + Gtx - Ltx, all in dB/dBm/dBi.
func ComputeEIRPDbm(pTxDbm, gTxDbi, lTxDb float64) float64 {
	return pTxDbm + gTxDbi - lTxDb
}

// NoisePowerDbm returns the thermal noise power in a given receiver
// bandwidth and noise figure: N = -174 + 10log10(B_Hz) + NF.
func NoisePowerDbm(bRxHz, nfDb float64) (float64, error) {
	if bRxHz <= 0 {
		return 0, &InvalidParameterError{Param: "bRxHz", Value: bRxHz}
	}
	return thermalNoiseFloorDbmPerHz + 10*math.Log10(bRxHz) + nfDb, nil
}

// InterferenceDbm returns the received interference power at a victim
// receiver: I = EIRP - PL + Grx - Lrx - Lpol.
func InterferenceDbm(eirpDbm, pathLossDb, gRxDbi, lRxDb, lPolDb float64) float64 {
	return eirpDbm - pathLossDb + gRxDbi - lRxDb - lPolDb
}

// INRDb returns the interference-to-noise ratio I/N in dB.
func INRDb(iDbm, nDbm float64) float64 {
	return iDbm - nDbm
}

// IThresholdDbm returns the maximum interference power allowed to satisfy
// an I/N limit: I_thresh = N + INR_limit.
func IThresholdDbm(nDbm, inrLimitDb float64) float64 {
	return nDbm + inrLimitDb
}

// InterferenceMarginDb reports the headroom between the allowed threshold
// and actual interference: positive means compliant, negative means the
// limit is exceeded.
func InterferenceMarginDb(iDbm, iThreshDbm float64) float64 {
	return iThreshDbm - iDbm
}

// DbmToMw converts dBm to linear milliwatts.
func DbmToMw(dbm float64) float64 {
	return math.Pow(10, dbm/10)
}

// MwToDbm converts linear milliwatts to dBm.
func MwToDbm(mw float64) float64 {
	return 10 * math.Log10(mw)
}
