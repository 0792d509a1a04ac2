// Package fsbw resolves the noise bandwidth to use for an incumbent fixed-
// service receiver: parsed from its ITU emission designator when present,
// falling back through explicit receiver bandwidth, uplink/channel
// bandwidth, and finally a spec-wide default.
package fsbw

import (
	"regexp"
	"strconv"
)

var unitScale = map[byte]float64{
	'H': 1.0,
	'K': 1e3,
	'M': 1e6,
	'G': 1e9,
}

// designatorPattern matches the bandwidth portion of an ITU emission
// designator: 1-3 digits, a unit letter, then one fractional digit, e.g.
// "6M00" or "40K0".
var designatorPattern = regexp.MustCompile(`(?i)([0-9]{1,3})([HKMG])([0-9])`)

// ParseEmissionDesignatorBwHz extracts the bandwidth in Hz from an ITU
// emission designator string. It returns (0, false) if the designator does
// not contain a recognizable bandwidth field.
func ParseEmissionDesignatorBwHz(designator string) (float64, bool) {
	m := designatorPattern.FindStringSubmatch(designator)
	if m == nil {
		return 0, false
	}
	whole, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	frac, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	unit := byte(m[2][0])
	if unit >= 'a' && unit <= 'z' {
		unit -= 'a' - 'A'
	}
	scale, ok := unitScale[unit]
	if !ok {
		return 0, false
	}
	return (whole + frac/10) * scale, true
}

// DetermineFSNoiseBwHz resolves the noise bandwidth to use for a fixed-
// service receiver, trying in order: the emission designator, an explicit
// receiver bandwidth, the uplink/recorded channel bandwidth, then the
// spec-wide default. The first candidate greater than zero wins.
func DetermineFSNoiseBwHz(specDefaultHz float64, emissionDesignator string, explicitRxBwHz, ulBandwidthHz *float64) float64 {
	if bw, ok := ParseEmissionDesignatorBwHz(emissionDesignator); ok && bw > 0 {
		return bw
	}
	if explicitRxBwHz != nil && *explicitRxBwHz > 0 {
		return *explicitRxBwHz
	}
	if ulBandwidthHz != nil && *ulBandwidthHz > 0 {
		return *ulBandwidthHz
	}
	return specDefaultHz
}
