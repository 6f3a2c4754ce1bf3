// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/suzhouyl/yuanlin/spatial"
)

const baiduEndpoint = "https://api.map.baidu.com/geocoding/v3/"

// BaiduGeocoder uses the Baidu Maps Geocoding API as an alternative provider.
type BaiduGeocoder struct {
	apiKey     string
	httpClient *http.Client
}

// NewBaiduGeocoder creates a new Baidu geocoder.
func NewBaiduGeocoder(apiKey string, transport http.RoundTripper) *BaiduGeocoder {
	return &BaiduGeocoder{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}
}

type baiduResponse struct {
	Status int    `json:"status"` // 0 on success
	Msg    string `json:"msg"`
	Result struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		Confidence int `json:"confidence"`
	} `json:"result"`
}

func (g *BaiduGeocoder) Geocode(_ string, address string) (*Result, error) {
	if address == "" {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "empty address"}
	}

	params := url.Values{}
	params.Set("address", searchAddress(address))
	params.Set("output", "json")
	params.Set("ak", g.apiKey)
	params.Set("city", "苏州")

	resp, err := g.httpClient.Get(baiduEndpoint + "?" + params.Encode())
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeNetworkError, Message: "geocoding request failed", Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, resp.Status)
	}

	var bdResp baiduResponse
	if err := json.NewDecoder(resp.Body).Decode(&bdResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if bdResp.Status != 0 {
		return nil, classifyBaiduError(&bdResp)
	}

	point := spatial.Point{
		Lat: bdResp.Result.Location.Lat,
		Lng: bdResp.Result.Location.Lng,
	}

	if point.Lat == 0 && point.Lng == 0 {
		return nil, &GeocodingError{
			Type:    ErrorTypeNotFound,
			Message: fmt.Sprintf("no results for address: %s", address),
		}
	}

	if !SuzhouBounds.Contains(point) {
		return nil, &GeocodingError{
			Type:    ErrorTypeNotFound,
			Message: fmt.Sprintf("result (%f, %f) outside the Suzhou bounds", point.Lat, point.Lng),
		}
	}

	return &Result{
		Point:      point.Round6(),
		Confidence: baiduConfidence(bdResp.Result.Confidence),
		Method:     MethodBaidu,
	}, nil
}

func classifyBaiduError(r *baiduResponse) *GeocodingError {
	switch r.Status {
	case 302: // daily quota exhausted
		return &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: "daily quota exceeded"}
	case 401, 402: // concurrency limit
		return &GeocodingError{Type: ErrorTypeRateLimit, Message: "rate limit reached"}
	default:
		return &GeocodingError{
			Type:    ErrorTypeUnknown,
			Message: fmt.Sprintf("baidu status %d: %s", r.Status, r.Msg),
		}
	}
}

// baiduConfidence maps Baidu's 0-100 confidence score to a tier.
func baiduConfidence(score int) string {
	switch {
	case score >= 80:
		return ConfidenceHigh
	case score >= 50:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
