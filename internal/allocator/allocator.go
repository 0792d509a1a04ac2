// Package allocator implements the single-path allocator (spec component
// H) and the grant-table builder (component I): for every candidate
// (channel center, bandwidth) pair, derive the maximum EIRP an AP may
// transmit without exceeding the I/N protection threshold at any
// registered incumbent protection site, and assemble the resulting grant
// rows.
package allocator

import (
	"fmt"
	"math"
	"strconv"

	"github.com/rjboer/afc-engine/internal/acir"
	"github.com/rjboer/afc-engine/internal/antenna"
	"github.com/rjboer/afc-engine/internal/fsbw"
	"github.com/rjboer/afc-engine/internal/geodesy"
	"github.com/rjboer/afc-engine/internal/linkbudget"
	"github.com/rjboer/afc-engine/internal/params"
	"github.com/rjboer/afc-engine/internal/propagation"
)

// gridOriginMHz anchors the channel-center grid (§4.I): centers are
// enumerated at gridOriginMHz + k*bandwidth.
const gridOriginMHz = 5955.0

// DeviceConstraints are the grant/deny floor values a row's EIRP and PSD
// must clear (§4.I step 9), matching device_constraints.py's defaults.
type DeviceConstraints struct {
	MinEIRPDbm        float64
	MinPSDDbmPerMHz   float64
}

// DefaultDeviceConstraints matches the source dataclass's defaults.
func DefaultDeviceConstraints() DeviceConstraints {
	return DeviceConstraints{MinEIRPDbm: 0.0, MinPSDDbmPerMHz: -10.0}
}

// AllowedEIRPForPath implements the single-path allocator (§4.H): invert
// the I/N inequality to get the maximum EIRP for one protection site,
// given an optional ACIR figure (adjacent-channel only) and an optional
// regulatory cap. The ACIR term is added to the interference threshold
// before inverting, which gives the same value as adding it to the
// co-channel EIRP afterwards, and the regulatory cap is applied once at the
// end (see DESIGN.md's Open Question resolution).
func AllowedEIRPForPath(nDbm, inrLimitDb, pathLossDb, gRxDbi, lRxLossesDb, lPolarizationDb float64, acirDbValue *float64, eirpRegulatoryMaxDbm *float64) float64 {
	iThresh := linkbudget.IThresholdDbm(nDbm, inrLimitDb)
	effectiveIThresh := iThresh
	if acirDbValue != nil {
		effectiveIThresh += *acirDbValue
	}
	eirpAllowed := effectiveIThresh + pathLossDb - gRxDbi + lRxLossesDb + lPolarizationDb
	if eirpRegulatoryMaxDbm != nil && eirpAllowed > *eirpRegulatoryMaxDbm {
		eirpAllowed = *eirpRegulatoryMaxDbm
	}
	return eirpAllowed
}

// PSDDbmPerMHzFromEIRP returns PSD = EIRP - 10*log10(bw_MHz). bwMHz must be
// positive.
func PSDDbmPerMHzFromEIRP(eirpDbm, bwMHz float64) (float64, error) {
	if bwMHz <= 0 {
		return 0, fmt.Errorf("allocator: non-positive bandwidth %v", bwMHz)
	}
	return eirpDbm - 10*math.Log10(bwMHz), nil
}

// EIRPTotalDbmFromPSD is the inverse of PSDDbmPerMHzFromEIRP.
func EIRPTotalDbmFromPSD(psdDbmPerMHz, bwMHz float64) (float64, error) {
	if bwMHz <= 0 {
		return 0, fmt.Errorf("allocator: non-positive bandwidth %v", bwMHz)
	}
	return psdDbmPerMHz + 10*math.Log10(bwMHz), nil
}

// VerifyCompliance reports whether the actual interference iDbm stays
// within the I/N limit given the noise floor and INR limit, with a small
// tolerance for floating-point accumulation.
func VerifyCompliance(iDbm, nDbm, inrLimitDb float64) bool {
	const tol = 1e-9
	thresh := linkbudget.IThresholdDbm(nDbm, inrLimitDb)
	return iDbm <= thresh+tol
}

// EnumerateCentersMHz returns the channel-center grid aligned to
// gridOriginMHz with step bwMHz, restricted to centers whose full channel
// [c-bw/2, c+bw/2] fits inside [lowerMHz, upperMHz].
func EnumerateCentersMHz(lowerMHz, upperMHz, bwMHz float64) []float64 {
	if bwMHz <= 0 {
		return nil
	}
	var centers []float64
	// Walk the grid in both directions from the origin to cover [lower,upper].
	kMin := math.Floor((lowerMHz - gridOriginMHz) / bwMHz)
	kMax := math.Ceil((upperMHz - gridOriginMHz) / bwMHz)
	for k := kMin - 1; k <= kMax+1; k++ {
		c := gridOriginMHz + k*bwMHz
		lo := c - bwMHz/2
		hi := c + bwMHz/2
		if lo >= lowerMHz-1e-9 && hi <= upperMHz+1e-9 {
			centers = append(centers, c)
		}
	}
	return centers
}

// ChannelNumberFromCenterMHz returns the 6 GHz channel number for a center
// frequency: 1 + (center-5955)/5, rounded.
func ChannelNumberFromCenterMHz(centerMHz float64) int {
	return int(math.Round(1 + (centerMHz-gridOriginMHz)/5))
}

// StandardBands returns the two standard 6 GHz sub-bands (UNII-5 and
// UNII-7), excluding the gap between them.
func StandardBands() [][2]float64 {
	return [][2]float64{{5925, 6425}, {6525, 6875}}
}

// GrantRow is one decision entry for one (channel-center, bandwidth) pair,
// per §3's Grant row data model.
type GrantRow struct {
	ChannelNumber        int
	CenterMHz            float64
	BandwidthMHz         float64
	OffsetMHz            float64
	PathLossDb           float64
	NoiseDbm             float64
	AllowedEIRPDbm       float64
	AllowedPSDDbmPerMHz  float64
	Decision             string // "grant" or "deny"
	LimitingIncumbentID  string // "" if none limited (e.g. no incumbents)
	LimitingMode         string // "co", "adj", or ""
	ACIRDbUsed           *float64
	InterferenceMarginDb float64
}

// BuildOptions bundles the inputs to BuildGrantTableWithIncumbents beyond
// the incumbent list itself (§4.I).
type BuildOptions struct {
	ParamSet           params.ParameterSet
	APLat, APLon       float64
	CentersMHz         []float64
	BandwidthsMHz      []float64
	INRLimitDb         float64 // defaults to -6.0 if zero
	Environment        propagation.Environment
	PathModel          string // "auto","fspl","winner2","two_slope","itm"
	DeviceConstraints  DeviceConstraints
	Indoor             bool
	PenetrationDb      *float64
	ProtectionMarginDb float64
}

type protectionSite struct {
	incumbentID       string
	lat, lon          float64
	frequencyHz       float64
	bandwidthHz       float64
	antennaGainDbi    float64
	antennaAzimuthDeg float64
	rxLossesDb        float64
	noiseFigureDb     float64
	polarizationDb    float64
	rpeAzPoints       []antenna.Point
	rpeElPoints       []antenna.Point
}

// expandProtectionSites turns an incumbent record's primary receiver and
// its passive sites into independent protection sites, applying the
// record's field overrides over the parameter set's defaults.
func expandProtectionSites(inc params.Incumbent, defaults params.IncumbentReceiverParams) []protectionSite {
	resolve := func(gainOverride, azOverride, lossOverride, nfOverride *float64, lat, lon float64, az, rpeAz, rpeEl []antenna.Point, pol float64) protectionSite {
		_ = az
		gain := defaults.AntennaGainDbi
		if gainOverride != nil {
			gain = *gainOverride
		}
		azimuth := 0.0
		if azOverride != nil {
			azimuth = *azOverride
		}
		loss := defaults.RxLossesDb
		if lossOverride != nil {
			loss = *lossOverride
		}
		nf := defaults.NoiseFigureDb
		if nfOverride != nil {
			nf = *nfOverride
		}
		return protectionSite{
			lat: lat, lon: lon,
			antennaGainDbi:    gain,
			antennaAzimuthDeg: azimuth,
			rxLossesDb:        loss,
			noiseFigureDb:     nf,
			polarizationDb:    pol,
			rpeAzPoints:       rpeAz,
			rpeElPoints:       rpeEl,
		}
	}

	sites := make([]protectionSite, 0, 1+len(inc.PassiveSites))
	primary := resolve(inc.AntennaGainDbi, inc.AntennaAzimuthDeg, inc.RxLossesDb, inc.NoiseFigureDb,
		inc.Lat, inc.Lon, nil, inc.RPEAzPoints, inc.RPEElPoints, inc.ResolvedPolarizationMismatchDb())
	primary.incumbentID = inc.ID
	primary.frequencyHz = inc.FrequencyHz
	primary.bandwidthHz = fsbw.DetermineFSNoiseBwHz(defaults.BandwidthHz, inc.EmissionDesignator, inc.RxBandwidthHz, inc.ULBandwidthHz)
	sites = append(sites, primary)

	for _, ps := range inc.PassiveSites {
		site := resolve(ps.AntennaGainDbi, ps.AntennaAzimuthDeg, nil, nil, ps.Lat, ps.Lon, nil, ps.RPEAzPoints, ps.RPEElPoints, primary.polarizationDb)
		site.incumbentID = inc.ID
		site.frequencyHz = inc.FrequencyHz
		site.bandwidthHz = primary.bandwidthHz
		sites = append(sites, site)
	}
	return sites
}

func selectModel(name string, env propagation.Environment, indoor bool, penetrationDb *float64) propagation.Model {
	base := propagation.Select(name)
	return propagation.WithExtras{Base: base, Environment: env, Indoor: indoor, PenetrationDb: penetrationDb}
}

// evalSite computes the allowed EIRP at one protection site for one
// candidate (center, bw) pair, returning the mode ("co"/"adj"), the ACIR
// figure used (if adjacent), the path loss, and the noise floor.
func evalSite(site protectionSite, apLat, apLon, centerMHz, bwMHz float64, opts BuildOptions, acirSpec acir.Spec) (eirpDbm float64, mode string, acirUsed *float64, pathLossDb, noiseDbm float64, err error) {
	distM := geodesy.HaversineDistanceM(apLat, apLon, site.lat, site.lon)
	bearingDeg := geodesy.InitialBearingDeg(apLat, apLon, site.lat, site.lon)

	model := selectModel(opts.PathModel, opts.Environment, opts.Indoor, opts.PenetrationDb)
	pathLossDb = model.PathLossDb(distM, centerMHz*1e6)

	// Off-axis azimuth is measured from the receiver's boresight against
	// the reverse bearing (AP as seen from the incumbent), per §4.I step 3.
	reverseBearing := math.Mod(bearingDeg+180, 360)
	azOffset := antenna.OffAxisAzimuthDeg(site.antennaAzimuthDeg, reverseBearing)

	var gEff float64
	if len(site.rpeAzPoints) > 0 || len(site.rpeElPoints) > 0 {
		gEff = antenna.CombinedRPEGainDbi(site.antennaGainDbi, azOffset, 0, site.rpeAzPoints, site.rpeElPoints, -10.0)
	} else {
		p := antenna.DefaultPatternParams()
		p.GMaxDbi = site.antennaGainDbi
		gEff = antenna.EffectiveGainDbi(p, azOffset, 0)
	}

	noiseDbm, err = linkbudget.NoisePowerDbm(site.bandwidthHz, site.noiseFigureDb)
	if err != nil {
		return 0, "", nil, 0, 0, err
	}

	apLoMHz := centerMHz - bwMHz/2
	apHiMHz := centerMHz + bwMHz/2
	fsBwMHz := site.bandwidthHz / 1e6
	fsCenterMHz := site.frequencyHz / 1e6
	fsLoMHz := fsCenterMHz - fsBwMHz/2
	fsHiMHz := fsCenterMHz + fsBwMHz/2

	overlap := math.Min(apHiMHz, fsHiMHz) - math.Max(apLoMHz, fsLoMHz)

	var acirPtr *float64
	if overlap > 0 {
		mode = "co"
	} else {
		mode = "adj"
		offset := math.Abs(centerMHz - fsCenterMHz)
		acirDb, aerr := acir.ACIRDbFromMasks(offset, acirSpec.TxMaskPoints(), acirSpec.RxMaskPoints())
		if aerr != nil {
			return 0, "", nil, 0, 0, fmt.Errorf("allocator: acir lookup: %w", aerr)
		}
		acirPtr = &acirDb
	}

	cap := opts.ParamSet.WiFiLimits.MaxEIRPDbm
	eirpDbm = AllowedEIRPForPath(noiseDbm, opts.INRLimitDb, pathLossDb, gEff, site.rxLossesDb, site.polarizationDb, acirPtr, &cap)
	eirpDbm -= opts.ProtectionMarginDb
	return eirpDbm, mode, acirPtr, pathLossDb, noiseDbm, nil
}

// BuildGrantTableWithIncumbents implements §4.I: for every (center, bw) in
// opts, compute the minimum allowed EIRP across every protection site of
// every incumbent, and assemble the corresponding grant row.
func BuildGrantTableWithIncumbents(incumbents []params.Incumbent, opts BuildOptions) ([]GrantRow, error) {
	inrLimitDb := opts.INRLimitDb
	if inrLimitDb == 0 {
		inrLimitDb = -6.0
	}
	opts.INRLimitDb = inrLimitDb

	acirSpec, err := opts.ParamSet.ACIR.Resolve()
	if err != nil {
		return nil, fmt.Errorf("allocator: resolve acir spec: %w", err)
	}

	var allSites []protectionSite
	for _, inc := range incumbents {
		allSites = append(allSites, expandProtectionSites(inc, opts.ParamSet.Incumbent)...)
	}

	rows := make([]GrantRow, 0, len(opts.CentersMHz)*len(opts.BandwidthsMHz))
	for _, bwMHz := range opts.BandwidthsMHz {
		for _, centerMHz := range opts.CentersMHz {
			row := GrantRow{
				ChannelNumber: ChannelNumberFromCenterMHz(centerMHz),
				CenterMHz:     centerMHz,
				BandwidthMHz:  bwMHz,
				OffsetMHz:     0,
			}

			bestEIRP := math.Inf(1)
			bestMode := ""
			bestIncumbentID := ""
			var bestACIR *float64
			bestPathLoss := 0.0
			bestNoise := 0.0

			for _, site := range allSites {
				eirp, mode, acirUsed, pathLossDb, noiseDbm, err := evalSite(site, opts.APLat, opts.APLon, centerMHz, bwMHz, opts, acirSpec)
				if err != nil {
					return nil, err
				}
				if eirp < bestEIRP {
					bestEIRP = eirp
					bestMode = mode
					bestIncumbentID = site.incumbentID
					bestACIR = acirUsed
					bestPathLoss = pathLossDb
					bestNoise = noiseDbm
				}
			}

			if len(allSites) == 0 {
				bestEIRP = opts.ParamSet.WiFiLimits.MaxEIRPDbm
			}

			psd, err := PSDDbmPerMHzFromEIRP(bestEIRP, bwMHz)
			if err != nil {
				return nil, fmt.Errorf("allocator: psd for channel %d: %w", row.ChannelNumber, err)
			}

			decision := "deny"
			if bestEIRP >= opts.DeviceConstraints.MinEIRPDbm && psd >= opts.DeviceConstraints.MinPSDDbmPerMHz {
				decision = "grant"
			}

			row.PathLossDb = bestPathLoss
			row.NoiseDbm = bestNoise
			row.AllowedEIRPDbm = bestEIRP
			row.AllowedPSDDbmPerMHz = psd
			row.Decision = decision
			row.LimitingIncumbentID = bestIncumbentID
			row.LimitingMode = bestMode
			row.ACIRDbUsed = bestACIR
			row.InterferenceMarginDb = linkbudget.InterferenceMarginDb(bestEIRP-bestPathLoss, linkbudget.IThresholdDbm(bestNoise, inrLimitDb))

			rows = append(rows, row)
		}
	}
	return rows, nil
}

// GrantRowsToTable renders grant rows as a CSV-ready [][]string per §6's
// column list, with a header row first.
func GrantRowsToTable(rows []GrantRow) [][]string {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, []string{
		"channel", "center_mhz", "bw_mhz", "offset_mhz", "path_loss_db",
		"noise_dbm", "allowed_eirp_dbm", "allowed_psd_dBm_per_MHz", "decision",
	})
	for _, r := range rows {
		out = append(out, []string{
			strconv.Itoa(r.ChannelNumber),
			formatFloat(r.CenterMHz),
			formatFloat(r.BandwidthMHz),
			formatFloat(r.OffsetMHz),
			formatFloat(r.PathLossDb),
			formatFloat(r.NoiseDbm),
			formatFloat(r.AllowedEIRPDbm),
			formatFloat(r.AllowedPSDDbmPerMHz),
			r.Decision,
		})
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
