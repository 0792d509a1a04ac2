// Package protocol implements the spectrum-inquiry request/response state
// machine (spec component K): request validation, dispatch to the
// channel-based or frequency-based evaluation path, and response assembly
// with standardized response codes.
package protocol

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/rjboer/afc-engine/internal/allocator"
	"github.com/rjboer/afc-engine/internal/params"
	"github.com/rjboer/afc-engine/internal/propagation"
)

// Response codes, per §4.K.
const (
	ResponseSuccess           = 0
	ResponseDeviceDisallowed  = 101
	ResponseMissingParam      = 102
	ResponseInvalidValue      = 103
	ResponseUnexpectedParam   = 106
	ResponseUnsupportedBasis  = 301
)

// operatingClassToBandwidthMHz maps a global operating class to its
// channel bandwidth in MHz, per §6.
var operatingClassToBandwidthMHz = map[int]float64{
	300: 20, 301: 40, 302: 60, 303: 80, 304: 100,
}

// defaultExpirySeconds is the lookahead used for every success response's
// availabilityExpireTime.
const defaultExpirySeconds = 900

// Location carries a requesting AP's position and an optional uncertainty
// geometry. At most one of the geometry fields may be set.
type Location struct {
	Lat           *float64        `json:"lat,omitempty"`
	Lon           *float64        `json:"lon,omitempty"`
	Ellipse       json.RawMessage `json:"ellipse,omitempty"`
	LinearPolygon json.RawMessage `json:"linearPolygon,omitempty"`
	RadialPolygon json.RawMessage `json:"radialPolygon,omitempty"`
}

// Device carries a nested location, the fallback location source per
// validation step 1.
type Device struct {
	Location *Location `json:"location,omitempty"`
}

// Certification identifies the requesting device for allow/deny checks.
type Certification struct {
	ID           string `json:"id"`
	SerialNumber string `json:"serialNumber,omitempty"`
}

// FrequencyRange is an inclusive [lowMHz, highMHz] band to evaluate.
type FrequencyRange struct {
	LowMHz  float64 `json:"lowMHz"`
	HighMHz float64 `json:"highMHz"`
}

// ChannelItem requests EIRP for a set of channel CFIs sharing a bandwidth.
type ChannelItem struct {
	GlobalOperatingClass *int     `json:"globalOperatingClass,omitempty"`
	BandwidthMHz         *float64 `json:"bandwidthMHz,omitempty"`
	ChannelCfi           []int    `json:"channelCfi"`
}

// Request is the spectrum-inquiry request object, per §6.
type Request struct {
	Location               *Location      `json:"location,omitempty"`
	Device                 *Device        `json:"device,omitempty"`
	Certification          *Certification `json:"certification,omitempty"`
	InquiredFrequencyRange []FrequencyRange `json:"inquiredFrequencyRange,omitempty"`
	InquiredChannels       []ChannelItem    `json:"inquiredChannels,omitempty"`
	Environment            string  `json:"environment,omitempty"`
	PathModel              string  `json:"pathModel,omitempty"`
	ProtectionMarginDb     float64 `json:"protectionMarginDb,omitempty"`
	MergeBins              *bool   `json:"mergeBins,omitempty"`
	MergeToleranceDb       *float64 `json:"mergeToleranceDb,omitempty"`
	MinDesiredPower        *float64 `json:"minDesiredPower,omitempty"`
	BandwidthMHz           *float64 `json:"bandwidthMHz,omitempty"`
}

// SupplementalInfo carries the parameter names implicated by a validation
// failure.
type SupplementalInfo struct {
	MissingParams    []string `json:"missingParams,omitempty"`
	InvalidParams    []string `json:"invalidParams,omitempty"`
	UnexpectedParams []string `json:"unexpectedParams,omitempty"`
}

// FrequencyInfo is one entry of a frequency-based response's availability
// list.
type FrequencyInfo struct {
	FrequencyRange FrequencyRange `json:"frequencyRange"`
	MaxPsd         float64        `json:"maxPsd"`
}

// ChannelInfo is one entry of a channel-based response's availability
// list, echoing the request item's bandwidth designation.
type ChannelInfo struct {
	GlobalOperatingClass *int     `json:"globalOperatingClass,omitempty"`
	BandwidthMHz         *float64 `json:"bandwidthMHz,omitempty"`
	ChannelCfi           []int    `json:"channelCfi"`
	MaxEirp              []float64 `json:"maxEirp"`
}

// Response is the spectrum-inquiry response object, per §6.
type Response struct {
	ResponseCode            int                `json:"responseCode"`
	SupplementalInfo        *SupplementalInfo  `json:"supplementalInfo,omitempty"`
	AvailabilityExpireTime  string             `json:"availabilityExpireTime,omitempty"`
	AvailableFrequencyInfo  []FrequencyInfo    `json:"availableFrequencyInfo,omitempty"`
	AvailableChannelInfo    []ChannelInfo      `json:"availableChannelInfo,omitempty"`
}

// DisallowedPair is an (id, serialNumber) combination denied regardless of
// whether the id alone is allowlisted.
type DisallowedPair struct {
	ID           string
	SerialNumber string
}

// Policy bundles the optional device allow/deny lists consulted during
// certification validation (step 2).
type Policy struct {
	CertifiedIDs    map[string]bool
	DisallowedIDs   map[string]bool
	DisallowedPairs []DisallowedPair
}

func expiryISO8601(seconds int) string {
	if seconds <= 0 {
		seconds = defaultExpirySeconds
	}
	return time.Now().UTC().Add(time.Duration(seconds) * time.Second).Format(time.RFC3339)
}

func resolveLocation(req Request) *Location {
	if req.Location != nil {
		return req.Location
	}
	if req.Device != nil && req.Device.Location != nil {
		return req.Device.Location
	}
	return nil
}

// validate implements §4.K's request validation order (steps 1-3) and
// returns a non-nil failure Response if validation fails.
func validate(req Request, policy Policy) *Response {
	loc := resolveLocation(req)
	if loc == nil || loc.Lat == nil || loc.Lon == nil {
		missing := []string{}
		if loc == nil || loc.Lat == nil {
			missing = append(missing, "location.lat")
		}
		if loc == nil || loc.Lon == nil {
			missing = append(missing, "location.lon")
		}
		return &Response{ResponseCode: ResponseMissingParam, SupplementalInfo: &SupplementalInfo{MissingParams: missing}}
	}

	geometryCount := 0
	if len(loc.Ellipse) > 0 {
		geometryCount++
	}
	if len(loc.LinearPolygon) > 0 {
		geometryCount++
	}
	if len(loc.RadialPolygon) > 0 {
		geometryCount++
	}
	if geometryCount > 1 {
		return &Response{ResponseCode: ResponseUnexpectedParam, SupplementalInfo: &SupplementalInfo{
			UnexpectedParams: []string{"location.ellipse", "location.linearPolygon", "location.radialPolygon"},
		}}
	}

	if req.Certification != nil {
		id := req.Certification.ID
		if policy.CertifiedIDs != nil && !policy.CertifiedIDs[id] {
			return &Response{ResponseCode: ResponseInvalidValue, SupplementalInfo: &SupplementalInfo{InvalidParams: []string{"certification.id"}}}
		}
		if policy.DisallowedIDs != nil && policy.DisallowedIDs[id] {
			return &Response{ResponseCode: ResponseDeviceDisallowed}
		}
		for _, pair := range policy.DisallowedPairs {
			if pair.ID == id && pair.SerialNumber == req.Certification.SerialNumber {
				return &Response{ResponseCode: ResponseDeviceDisallowed}
			}
		}
	}

	if len(req.InquiredFrequencyRange) > 0 && len(req.InquiredChannels) > 0 {
		return &Response{ResponseCode: ResponseUnexpectedParam, SupplementalInfo: &SupplementalInfo{
			UnexpectedParams: []string{"inquiredFrequencyRange", "inquiredChannels"},
		}}
	}

	return nil
}

func environmentTag(req Request) propagation.Environment {
	return propagation.Environment(req.Environment)
}

func pathModelName(req Request) string {
	if req.PathModel == "winner" {
		return "winner2"
	}
	return req.PathModel
}

// HandleAvailableSpectrumInquiry implements §4.K's full state machine:
// validate, dispatch to the frequency-based or channel-based path, and
// assemble the response.
func HandleAvailableSpectrumInquiry(req Request, paramSet params.ParameterSet, incumbents []params.Incumbent, policy Policy) *Response {
	if resp := validate(req, policy); resp != nil {
		return resp
	}

	loc := resolveLocation(req)

	baseOpts := allocator.BuildOptions{
		ParamSet:           paramSet,
		APLat:              *loc.Lat,
		APLon:              *loc.Lon,
		Environment:        environmentTag(req),
		PathModel:          pathModelName(req),
		DeviceConstraints:  allocator.DefaultDeviceConstraints(),
		ProtectionMarginDb: req.ProtectionMarginDb,
	}

	if len(req.InquiredFrequencyRange) > 0 {
		return handleFrequencyBased(req, incumbents, baseOpts)
	}
	if len(req.InquiredChannels) > 0 {
		return handleChannelBased(req, incumbents, baseOpts)
	}
	return &Response{ResponseCode: ResponseUnsupportedBasis}
}

func handleFrequencyBased(req Request, incumbents []params.Incumbent, baseOpts allocator.BuildOptions) *Response {
	if req.MinDesiredPower != nil {
		return &Response{ResponseCode: ResponseUnexpectedParam, SupplementalInfo: &SupplementalInfo{UnexpectedParams: []string{"minDesiredPower"}}}
	}

	type bin struct {
		loMHz, hiMHz float64
		psd          float64
	}
	var bins []bin

	opts := baseOpts
	opts.BandwidthsMHz = []float64{1.0}

	for _, fr := range req.InquiredFrequencyRange {
		lo := math.Floor(fr.LowMHz)
		hi := math.Ceil(fr.HighMHz)
		for f := lo; f < hi; f++ {
			center := f + 0.5
			opts.CentersMHz = []float64{center}
			rows, err := allocator.BuildGrantTableWithIncumbents(incumbents, opts)
			if err != nil || len(rows) == 0 {
				continue
			}
			bins = append(bins, bin{loMHz: f, hiMHz: f + 1, psd: rows[0].AllowedPSDDbmPerMHz})
		}
	}

	sort.Slice(bins, func(i, j int) bool { return bins[i].loMHz < bins[j].loMHz })

	mergeBins := true
	if req.MergeBins != nil {
		mergeBins = *req.MergeBins
	}
	tol := 1e-6
	if req.MergeToleranceDb != nil {
		tol = *req.MergeToleranceDb
	}

	var freqInfo []FrequencyInfo
	for _, b := range bins {
		if mergeBins && len(freqInfo) > 0 {
			last := &freqInfo[len(freqInfo)-1]
			if math.Abs(last.FrequencyRange.HighMHz-b.loMHz) < 1e-9 && math.Abs(last.MaxPsd-b.psd) < tol {
				last.FrequencyRange.HighMHz = b.hiMHz
				continue
			}
		}
		freqInfo = append(freqInfo, FrequencyInfo{FrequencyRange: FrequencyRange{LowMHz: b.loMHz, HighMHz: b.hiMHz}, MaxPsd: b.psd})
	}

	return &Response{
		ResponseCode:           ResponseSuccess,
		AvailabilityExpireTime: expiryISO8601(defaultExpirySeconds),
		AvailableFrequencyInfo: freqInfo,
	}
}

func resolveItemBandwidthMHz(item ChannelItem, req Request) float64 {
	if item.GlobalOperatingClass != nil {
		if bw, ok := operatingClassToBandwidthMHz[*item.GlobalOperatingClass]; ok {
			return bw
		}
	}
	if item.BandwidthMHz != nil {
		return *item.BandwidthMHz
	}
	if req.BandwidthMHz != nil {
		return *req.BandwidthMHz
	}
	return 20.0
}

// cfiToCenterMHz converts a channel frequency index to its center
// frequency, per §6: F_MHz = 3000 + 15*(CFI - 600000)/1000.
func cfiToCenterMHz(cfi int) float64 {
	return 3000.0 + 15.0*(float64(cfi)-600000.0)/1000.0
}

func handleChannelBased(req Request, incumbents []params.Incumbent, baseOpts allocator.BuildOptions) *Response {
	var channelInfo []ChannelInfo

	for _, item := range req.InquiredChannels {
		bwMHz := resolveItemBandwidthMHz(item, req)
		maxEirp := make([]float64, len(item.ChannelCfi))

		for i, cfi := range item.ChannelCfi {
			centerMHz := cfiToCenterMHz(cfi)
			opts := baseOpts
			opts.CentersMHz = []float64{centerMHz}
			opts.BandwidthsMHz = []float64{bwMHz}

			rows, err := allocator.BuildGrantTableWithIncumbents(incumbents, opts)
			if err != nil || len(rows) == 0 {
				maxEirp[i] = 0
				continue
			}
			maxEirp[i] = rows[0].AllowedEIRPDbm
		}

		info := ChannelInfo{ChannelCfi: item.ChannelCfi, MaxEirp: maxEirp}
		if item.GlobalOperatingClass != nil {
			info.GlobalOperatingClass = item.GlobalOperatingClass
		} else if item.BandwidthMHz != nil {
			info.BandwidthMHz = item.BandwidthMHz
		}
		channelInfo = append(channelInfo, info)
	}

	return &Response{
		ResponseCode:           ResponseSuccess,
		AvailabilityExpireTime: expiryISO8601(defaultExpirySeconds),
		AvailableChannelInfo:   channelInfo,
	}
}
