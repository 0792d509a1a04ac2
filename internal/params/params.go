// Package params holds the AFC decision engine's data model: the
// configurable noise/antenna/regulatory parameters that apply to an
// incumbent class, and the incumbent receiver records (with their optional
// passive repeater sites) a grant computation runs against.
//
// Values are loaded from structured YAML documents (via
// gopkg.in/yaml.v3); this package never parses free-form spec text or
// scrapes incumbent-record files from external registries — that remains
// an external collaborator, per spec.md's Non-goals.
package params

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/afc-engine/internal/acir"
	"github.com/rjboer/afc-engine/internal/antenna"
)

// IncumbentReceiverParams are the default receiver characteristics applied
// to an incumbent when a record does not override them. PolarizationMismatchDb
// is the exception: it is carried in the parameter set but not read by the
// grant or aggregate computations, which take the per-incumbent value from
// Incumbent.ResolvedPolarizationMismatchDb.
type IncumbentReceiverParams struct {
	NoiseFigureDb         float64 `yaml:"noise_figure_db"`
	BandwidthHz           float64 `yaml:"bandwidth_hz"`
	AntennaGainDbi        float64 `yaml:"antenna_gain_dbi"`
	RxLossesDb            float64 `yaml:"rx_losses_db"`
	PolarizationMismatchDb float64 `yaml:"polarization_mismatch_db"`
}

// DefaultIncumbentReceiverParams matches spec_params.py's dataclass
// defaults.
func DefaultIncumbentReceiverParams() IncumbentReceiverParams {
	return IncumbentReceiverParams{
		NoiseFigureDb:          5.0,
		BandwidthHz:            20e6,
		AntennaGainDbi:         30.0,
		RxLossesDb:             1.0,
		PolarizationMismatchDb: 0.0,
	}
}

// RegulatoryLimits caps the maximum EIRP a grant may award regardless of
// the interference calculation.
type RegulatoryLimits struct {
	MaxEIRPDbm float64 `yaml:"max_eirp_dbm"`
}

// DefaultRegulatoryLimits matches WiFiRegulatoryLimits's default.
func DefaultRegulatoryLimits() RegulatoryLimits {
	return RegulatoryLimits{MaxEIRPDbm: 36.0}
}

// ACIRSpec holds the frequency-offset ACIR tables in a YAML-friendly shape
// (keys serialize as strings); Resolve converts it into acir.Spec.
type ACIRSpec struct {
	ATxDbByOffsetMHz map[string]float64 `yaml:"a_tx_db_by_offset_mhz"`
	ARxDbByOffsetMHz map[string]float64 `yaml:"a_rx_db_by_offset_mhz"`
}

// Resolve converts an ACIRSpec into acir.Spec, merged with built-in
// defaults.
func (s ACIRSpec) Resolve() (acir.Spec, error) {
	tx, err := stringKeyedToFloat(s.ATxDbByOffsetMHz)
	if err != nil {
		return acir.Spec{}, fmt.Errorf("params: a_tx_db_by_offset_mhz: %w", err)
	}
	rx, err := stringKeyedToFloat(s.ARxDbByOffsetMHz)
	if err != nil {
		return acir.Spec{}, fmt.Errorf("params: a_rx_db_by_offset_mhz: %w", err)
	}
	return acir.EnsureDefaults(tx, rx), nil
}

func stringKeyedToFloat(m map[string]float64) (map[float64]float64, error) {
	out := make(map[float64]float64, len(m))
	for k, v := range m {
		var offset float64
		if _, err := fmt.Sscanf(k, "%g", &offset); err != nil {
			return nil, fmt.Errorf("invalid offset key %q: %w", k, err)
		}
		out[offset] = v
	}
	return out, nil
}

// ParameterSet bundles the three configurable parameter groups a grant
// computation needs beyond the incumbent records themselves.
type ParameterSet struct {
	Incumbent IncumbentReceiverParams `yaml:"incumbent"`
	WiFiLimits RegulatoryLimits       `yaml:"wifi_limits"`
	ACIR       ACIRSpec               `yaml:"acir"`
}

// DefaultParameterSet returns the built-in defaults for all three groups.
func DefaultParameterSet() ParameterSet {
	return ParameterSet{
		Incumbent:  DefaultIncumbentReceiverParams(),
		WiFiLimits: DefaultRegulatoryLimits(),
	}
}

// PassiveSite is a repeater/relay site fed by an incumbent's primary
// receiver, treated for interference purposes as an independent protected
// point.
type PassiveSite struct {
	Lat               float64          `yaml:"lat"`
	Lon               float64          `yaml:"lon"`
	AntennaGainDbi    *float64         `yaml:"antenna_gain_dbi,omitempty"`
	AntennaAzimuthDeg *float64         `yaml:"antenna_azimuth_deg,omitempty"`
	RPEAzPoints       []antenna.Point  `yaml:"rpe_az,omitempty"`
	RPEElPoints       []antenna.Point  `yaml:"rpe_el,omitempty"`
}

// Incumbent is a registered fixed-service receiver record, optionally with
// passive repeater sites that must independently satisfy the interference
// limit.
type Incumbent struct {
	ID                     string   `yaml:"id"`
	Lat                    float64  `yaml:"lat"`
	Lon                    float64  `yaml:"lon"`
	FrequencyHz            float64  `yaml:"frequency_hz"`
	EmissionDesignator     string   `yaml:"emission_designator,omitempty"`
	RxBandwidthHz          *float64 `yaml:"rx_bandwidth_hz,omitempty"`
	ULBandwidthHz          *float64 `yaml:"ul_bandwidth_hz,omitempty"`
	AntennaGainDbi         *float64 `yaml:"antenna_gain_dbi,omitempty"`
	AntennaAzimuthDeg      *float64 `yaml:"antenna_azimuth_deg,omitempty"`
	RxLossesDb             *float64 `yaml:"rx_losses_db,omitempty"`
	NoiseFigureDb          *float64 `yaml:"noise_figure_db,omitempty"`
	PolarizationTag        string   `yaml:"polarization,omitempty"` // "H" or "V"
	PolarizationMismatchDb *float64        `yaml:"polarization_mismatch_db,omitempty"`
	RPEAzPoints            []antenna.Point `yaml:"rpe_az,omitempty"`
	RPEElPoints            []antenna.Point `yaml:"rpe_el,omitempty"`
	PassiveSites           []PassiveSite   `yaml:"passive_sites,omitempty"`

	// aliases accepted during LoadIncumbents normalization (rx_lat, rx_lon);
	// see Normalize.
	RxLat *float64 `yaml:"rx_lat,omitempty"`
	RxLon *float64 `yaml:"rx_lon,omitempty"`
}

// ResolvedPolarizationMismatchDb returns the explicit override if set,
// else 3dB when a polarization tag is present, else 0 — the
// cross-polarization placeholder supplemented from grant_table.py.
func (inc Incumbent) ResolvedPolarizationMismatchDb() float64 {
	if inc.PolarizationMismatchDb != nil {
		return *inc.PolarizationMismatchDb
	}
	if inc.PolarizationTag == "H" || inc.PolarizationTag == "V" {
		return 3.0
	}
	return 0.0
}

// Normalize applies the alias fallbacks (rx_lat/rx_lon override lat/lon
// when lat/lon are zero-valued and an alias was supplied) and clears the
// alias fields, so downstream code only ever reads the canonical ones.
func (inc Incumbent) Normalize() Incumbent {
	out := inc
	if out.Lat == 0 && out.RxLat != nil {
		out.Lat = *out.RxLat
	}
	if out.Lon == 0 && out.RxLon != nil {
		out.Lon = *out.RxLon
	}
	out.RxLat = nil
	out.RxLon = nil
	return out
}

// LoadParameterSet reads a YAML-encoded ParameterSet from path, applying
// defaults for any group left entirely unset.
func LoadParameterSet(path string) (ParameterSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ParameterSet{}, fmt.Errorf("params: read %s: %w", path, err)
	}
	ps := DefaultParameterSet()
	if err := yaml.Unmarshal(data, &ps); err != nil {
		return ParameterSet{}, fmt.Errorf("params: parse %s: %w", path, err)
	}
	return ps, nil
}

// LoadIncumbents reads a YAML-encoded list of incumbent records from path
// and normalizes field aliases on each.
func LoadIncumbents(path string) ([]Incumbent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("params: read %s: %w", path, err)
	}
	var raw []Incumbent
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("params: parse %s: %w", path, err)
	}
	out := make([]Incumbent, len(raw))
	for i, inc := range raw {
		out[i] = inc.Normalize()
	}
	return out, nil
}
