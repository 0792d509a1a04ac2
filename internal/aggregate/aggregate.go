// Package aggregate implements the multi-AP aggregate interference
// evaluator (spec component J): given several simultaneously-transmitting
// AP sites, sum their contributions in linear milliwatts at each incumbent
// receiver and compare against the I/N protection limit.
package aggregate

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/rjboer/afc-engine/internal/acir"
	"github.com/rjboer/afc-engine/internal/antenna"
	"github.com/rjboer/afc-engine/internal/fsbw"
	"github.com/rjboer/afc-engine/internal/geodesy"
	"github.com/rjboer/afc-engine/internal/linkbudget"
	"github.com/rjboer/afc-engine/internal/params"
	"github.com/rjboer/afc-engine/internal/propagation"
)

// APSite is one transmitting access point contributing to the aggregate
// interference at an incumbent.
type APSite struct {
	Lat, Lon float64
	EIRPDbm  float64
}

// IncumbentResult is the per-incumbent outcome of an aggregate evaluation.
type IncumbentResult struct {
	IncumbentID      string
	NoiseDbm         float64
	AggregateIDbm    float64
	INRDb            float64
	Pass             bool
}

// Options configures an aggregate evaluation run.
type Options struct {
	ParamSet    params.ParameterSet
	INRLimitDb  float64 // defaults to -6.0 if zero
	Environment propagation.Environment
	PathModel   string // defaults to "auto" if empty
}

const noiseFigureDb = 4.5 // matches multi_ap.py's hardcoded NF for aggregate evaluation

// EvaluateAggregateINRForChannel implements §4.J: for each incumbent,
// compute the noise floor, sum every AP's interference contribution in
// linear milliwatts, and report the resulting INR against the limit.
func EvaluateAggregateINRForChannel(incumbents []params.Incumbent, apSites []APSite, centerMHz, bwMHz float64, opts Options) ([]IncumbentResult, error) {
	inrLimitDb := opts.INRLimitDb
	if inrLimitDb == 0 {
		inrLimitDb = -6.0
	}
	pathModel := opts.PathModel
	if pathModel == "" {
		pathModel = "auto"
	}

	acirSpec, err := opts.ParamSet.ACIR.Resolve()
	if err != nil {
		return nil, err
	}

	model := propagation.WithExtras{Base: propagation.Select(pathModel), Environment: opts.Environment}

	results := make([]IncumbentResult, 0, len(incumbents))
	for _, inc := range incumbents {
		bwHz := fsbw.DetermineFSNoiseBwHz(opts.ParamSet.Incumbent.BandwidthHz, inc.EmissionDesignator, inc.RxBandwidthHz, inc.ULBandwidthHz)
		nDbm, err := linkbudget.NoisePowerDbm(bwHz, noiseFigureDb)
		if err != nil {
			return nil, err
		}

		contributionsMw := make([]float64, 0, len(apSites))
		fsCenterMHz := inc.FrequencyHz / 1e6
		fsBwMHz := bwHz / 1e6

		for _, ap := range apSites {
			distM := geodesy.HaversineDistanceM(ap.Lat, ap.Lon, inc.Lat, inc.Lon)
			bearingDeg := geodesy.InitialBearingDeg(ap.Lat, ap.Lon, inc.Lat, inc.Lon)
			pathLossDb := model.PathLossDb(distM, centerMHz*1e6)

			reverseBearing := math.Mod(bearingDeg+180, 360)
			azimuth := 0.0
			if inc.AntennaAzimuthDeg != nil {
				azimuth = *inc.AntennaAzimuthDeg
			}
			azOffset := antenna.OffAxisAzimuthDeg(azimuth, reverseBearing)

			gain := opts.ParamSet.Incumbent.AntennaGainDbi
			if inc.AntennaGainDbi != nil {
				gain = *inc.AntennaGainDbi
			}
			var gEff float64
			if len(inc.RPEAzPoints) > 0 {
				gEff = antenna.CombinedRPEGainDbi(gain, azOffset, 0, inc.RPEAzPoints, inc.RPEElPoints, -10.0)
			} else {
				p := antenna.DefaultPatternParams()
				p.GMaxDbi = gain
				gEff = antenna.EffectiveGainDbi(p, azOffset, 0)
			}

			lRx := opts.ParamSet.Incumbent.RxLossesDb
			if inc.RxLossesDb != nil {
				lRx = *inc.RxLossesDb
			}
			lPol := inc.ResolvedPolarizationMismatchDb()

			iDbm := ap.EIRPDbm - pathLossDb + gEff - lRx + lPol

			apLoMHz := centerMHz - bwMHz/2
			apHiMHz := centerMHz + bwMHz/2
			fsLoMHz := fsCenterMHz - fsBwMHz/2
			fsHiMHz := fsCenterMHz + fsBwMHz/2
			overlap := math.Min(apHiMHz, fsHiMHz) - math.Max(apLoMHz, fsLoMHz)
			if overlap <= 0 {
				offset := math.Abs(centerMHz - fsCenterMHz)
				acirDb, err := acir.ACIRDbFromMasks(offset, acirSpec.TxMaskPoints(), acirSpec.RxMaskPoints())
				if err == nil {
					iDbm -= acirDb
				}
			}

			contributionsMw = append(contributionsMw, linkbudget.DbmToMw(iDbm))
		}

		totalMw := floats.Sum(contributionsMw)
		var iAggDbm float64
		if totalMw <= 0 {
			iAggDbm = math.Inf(-1)
		} else {
			iAggDbm = linkbudget.MwToDbm(totalMw)
		}

		inrDb := linkbudget.INRDb(iAggDbm, nDbm)
		results = append(results, IncumbentResult{
			IncumbentID:   inc.ID,
			NoiseDbm:      nDbm,
			AggregateIDbm: iAggDbm,
			INRDb:         inrDb,
			Pass:          inrDb <= inrLimitDb,
		})
	}
	return results, nil
}

// ChannelSummary is the worst-case outcome across a multi-channel
// evaluation run.
type ChannelSummary struct {
	CenterMHz      float64
	BandwidthMHz   float64
	WorstINRDb     float64
	WorstIncumbent string
	Results        []IncumbentResult
}

// EvaluateAggregateAcross runs EvaluateAggregateINRForChannel over a set of
// (center,bw) channel pairs and returns a worst-case summary for each.
func EvaluateAggregateAcross(incumbents []params.Incumbent, apSites []APSite, channels [][2]float64, opts Options) ([]ChannelSummary, error) {
	out := make([]ChannelSummary, 0, len(channels))
	for _, ch := range channels {
		centerMHz, bwMHz := ch[0], ch[1]
		results, err := EvaluateAggregateINRForChannel(incumbents, apSites, centerMHz, bwMHz, opts)
		if err != nil {
			return nil, err
		}
		worst := ChannelSummary{CenterMHz: centerMHz, BandwidthMHz: bwMHz, WorstINRDb: math.Inf(-1), Results: results}
		for _, r := range results {
			if r.INRDb > worst.WorstINRDb {
				worst.WorstINRDb = r.INRDb
				worst.WorstIncumbent = r.IncumbentID
			}
		}
		out = append(out, worst)
	}
	return out, nil
}
