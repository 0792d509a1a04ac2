package protocol

import (
	"testing"

	"github.com/rjboer/afc-engine/internal/params"
)

func ptr(f float64) *float64 { return &f }

// S5: missing lat -> MISSING_PARAM with missingParams=["location.lat"].
func TestHandleMissingLat(t *testing.T) {
	req := Request{Location: &Location{Lon: ptr(29)}}
	resp := HandleAvailableSpectrumInquiry(req, params.DefaultParameterSet(), nil, Policy{})
	if resp.ResponseCode != ResponseMissingParam {
		t.Fatalf("got code %d want %d", resp.ResponseCode, ResponseMissingParam)
	}
	if resp.SupplementalInfo == nil || len(resp.SupplementalInfo.MissingParams) != 1 || resp.SupplementalInfo.MissingParams[0] != "location.lat" {
		t.Fatalf("unexpected supplemental info: %+v", resp.SupplementalInfo)
	}
}

// S6: both inquiredFrequencyRange and inquiredChannels -> UNEXPECTED_PARAM.
func TestHandleMutuallyExclusiveBases(t *testing.T) {
	req := Request{
		Location:               &Location{Lat: ptr(38.9), Lon: ptr(-77.0)},
		InquiredFrequencyRange: []FrequencyRange{{LowMHz: 5925, HighMHz: 5930}},
		InquiredChannels:       []ChannelItem{{ChannelCfi: []int{1}}},
	}
	resp := HandleAvailableSpectrumInquiry(req, params.DefaultParameterSet(), nil, Policy{})
	if resp.ResponseCode != ResponseUnexpectedParam {
		t.Fatalf("got code %d want %d", resp.ResponseCode, ResponseUnexpectedParam)
	}
}

// S7: frequency bin merging across identical PSD should collapse to one entry.
func TestHandleFrequencyBinMerging(t *testing.T) {
	req := Request{
		Location:               &Location{Lat: ptr(38.0), Lon: ptr(-90.0)}, // far from any incumbent
		InquiredFrequencyRange: []FrequencyRange{{LowMHz: 5925, HighMHz: 5930}},
	}
	resp := HandleAvailableSpectrumInquiry(req, params.DefaultParameterSet(), nil, Policy{})
	if resp.ResponseCode != ResponseSuccess {
		t.Fatalf("got code %d want success", resp.ResponseCode)
	}
	if len(resp.AvailableFrequencyInfo) != 1 {
		t.Fatalf("expected merged single entry, got %d: %+v", len(resp.AvailableFrequencyInfo), resp.AvailableFrequencyInfo)
	}
	if resp.AvailableFrequencyInfo[0].FrequencyRange.LowMHz != 5925 || resp.AvailableFrequencyInfo[0].FrequencyRange.HighMHz != 5930 {
		t.Fatalf("unexpected merged range: %+v", resp.AvailableFrequencyInfo[0].FrequencyRange)
	}
}

func TestHandleFrequencyBinNoMerge(t *testing.T) {
	mergeBins := false
	req := Request{
		Location:               &Location{Lat: ptr(38.0), Lon: ptr(-90.0)},
		InquiredFrequencyRange: []FrequencyRange{{LowMHz: 5925, HighMHz: 5930}},
		MergeBins:               &mergeBins,
	}
	resp := HandleAvailableSpectrumInquiry(req, params.DefaultParameterSet(), nil, Policy{})
	if len(resp.AvailableFrequencyInfo) != 5 {
		t.Fatalf("expected 5 unmerged 1MHz entries, got %d", len(resp.AvailableFrequencyInfo))
	}
}

func TestHandleFrequencyBasedRejectsMinDesiredPower(t *testing.T) {
	req := Request{
		Location:               &Location{Lat: ptr(38.0), Lon: ptr(-90.0)},
		InquiredFrequencyRange: []FrequencyRange{{LowMHz: 5925, HighMHz: 5930}},
		MinDesiredPower:         ptr(10),
	}
	resp := HandleAvailableSpectrumInquiry(req, params.DefaultParameterSet(), nil, Policy{})
	if resp.ResponseCode != ResponseUnexpectedParam {
		t.Fatalf("got code %d want %d", resp.ResponseCode, ResponseUnexpectedParam)
	}
}

func TestHandleChannelBasedPreservesOrder(t *testing.T) {
	class := 301
	req := Request{
		Location: &Location{Lat: ptr(38.0), Lon: ptr(-90.0)},
		InquiredChannels: []ChannelItem{
			{GlobalOperatingClass: &class, ChannelCfi: []int{3, 1, 2}},
		},
	}
	resp := HandleAvailableSpectrumInquiry(req, params.DefaultParameterSet(), nil, Policy{})
	if resp.ResponseCode != ResponseSuccess {
		t.Fatalf("got code %d want success", resp.ResponseCode)
	}
	if len(resp.AvailableChannelInfo) != 1 {
		t.Fatalf("expected 1 channel item, got %d", len(resp.AvailableChannelInfo))
	}
	cfi := resp.AvailableChannelInfo[0].ChannelCfi
	if cfi[0] != 3 || cfi[1] != 1 || cfi[2] != 2 {
		t.Fatalf("CFI order not preserved: %v", cfi)
	}
}

func TestHandleDeviceDisallowed(t *testing.T) {
	req := Request{
		Location:      &Location{Lat: ptr(38.0), Lon: ptr(-90.0)},
		Certification: &Certification{ID: "bad-device"},
		InquiredChannels: []ChannelItem{{ChannelCfi: []int{1}}},
	}
	policy := Policy{DisallowedIDs: map[string]bool{"bad-device": true}}
	resp := HandleAvailableSpectrumInquiry(req, params.DefaultParameterSet(), nil, policy)
	if resp.ResponseCode != ResponseDeviceDisallowed {
		t.Fatalf("got code %d want %d", resp.ResponseCode, ResponseDeviceDisallowed)
	}
}

func TestHandleCertificationNotAllowlisted(t *testing.T) {
	req := Request{
		Location:      &Location{Lat: ptr(38.0), Lon: ptr(-90.0)},
		Certification: &Certification{ID: "unknown-device"},
		InquiredChannels: []ChannelItem{{ChannelCfi: []int{1}}},
	}
	policy := Policy{CertifiedIDs: map[string]bool{"good-device": true}}
	resp := HandleAvailableSpectrumInquiry(req, params.DefaultParameterSet(), nil, policy)
	if resp.ResponseCode != ResponseInvalidValue {
		t.Fatalf("got code %d want %d", resp.ResponseCode, ResponseInvalidValue)
	}
}

func TestHandleAmbiguousGeometry(t *testing.T) {
	req := Request{
		Location: &Location{Lat: ptr(38.0), Lon: ptr(-90.0), Ellipse: []byte(`{}`), LinearPolygon: []byte(`{}`)},
	}
	resp := HandleAvailableSpectrumInquiry(req, params.DefaultParameterSet(), nil, Policy{})
	if resp.ResponseCode != ResponseUnexpectedParam {
		t.Fatalf("got code %d want %d", resp.ResponseCode, ResponseUnexpectedParam)
	}
}

func TestHandleNestedDeviceLocation(t *testing.T) {
	req := Request{
		Device:           &Device{Location: &Location{Lat: ptr(38.0), Lon: ptr(-90.0)}},
		InquiredChannels: []ChannelItem{{ChannelCfi: []int{1}}},
	}
	resp := HandleAvailableSpectrumInquiry(req, params.DefaultParameterSet(), nil, Policy{})
	if resp.ResponseCode != ResponseSuccess {
		t.Fatalf("got code %d want success", resp.ResponseCode)
	}
}

func TestHandleUnsupportedBasis(t *testing.T) {
	req := Request{Location: &Location{Lat: ptr(38.0), Lon: ptr(-90.0)}}
	resp := HandleAvailableSpectrumInquiry(req, params.DefaultParameterSet(), nil, Policy{})
	if resp.ResponseCode != ResponseUnsupportedBasis {
		t.Fatalf("got code %d want %d", resp.ResponseCode, ResponseUnsupportedBasis)
	}
}

func TestCfiToCenterMHz(t *testing.T) {
	if got := cfiToCenterMHz(600000); got != 3000.0 {
		t.Fatalf("got %.3f want 3000.0", got)
	}
}

func TestResolveItemBandwidthMHzPrecedence(t *testing.T) {
	class := 301
	item := ChannelItem{GlobalOperatingClass: &class}
	if got := resolveItemBandwidthMHz(item, Request{}); got != 40.0 {
		t.Fatalf("operating class precedence: got %.1f want 40.0", got)
	}

	item2 := ChannelItem{BandwidthMHz: ptr(60)}
	if got := resolveItemBandwidthMHz(item2, Request{}); got != 60.0 {
		t.Fatalf("item bandwidth precedence: got %.1f want 60.0", got)
	}

	item3 := ChannelItem{}
	if got := resolveItemBandwidthMHz(item3, Request{BandwidthMHz: ptr(80)}); got != 80.0 {
		t.Fatalf("request bandwidth precedence: got %.1f want 80.0", got)
	}

	if got := resolveItemBandwidthMHz(ChannelItem{}, Request{}); got != 20.0 {
		t.Fatalf("default precedence: got %.1f want 20.0", got)
	}
}
