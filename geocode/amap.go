// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/suzhouyl/yuanlin/spatial"
)

const amapEndpoint = "https://restapi.amap.com/v3/geocode/geo"

// AmapGeocoder uses the Amap (Gaode) Geocoding API.
type AmapGeocoder struct {
	apiKey     string
	httpClient *http.Client
}

// NewAmapGeocoder creates a new Amap geocoder. The transport may carry the
// tracing round trippers from utils/httputils.
func NewAmapGeocoder(apiKey string, transport http.RoundTripper) *AmapGeocoder {
	return &AmapGeocoder{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
	}
}

type amapResponse struct {
	Status   string `json:"status"` // "1" on success
	Info     string `json:"info"`
	Infocode string `json:"infocode"`
	Count    string `json:"count"`
	Geocodes []struct {
		FormattedAddress string `json:"formatted_address"`
		Location         string `json:"location"` // "lng,lat"
		Level            string `json:"level"`
	} `json:"geocodes"`
}

// searchAddress prefixes the city when the address doesn't already name the
// area, which improves accuracy for short street addresses.
func searchAddress(address string) string {
	for _, prefix := range []string{"苏州", "常熟", "吴江", "吴中"} {
		if strings.HasPrefix(address, prefix) {
			return address
		}
	}

	return "苏州市" + address
}

func (g *AmapGeocoder) Geocode(_ string, address string) (*Result, error) {
	if address == "" {
		return nil, &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "empty address"}
	}

	params := url.Values{}
	params.Set("address", searchAddress(address))
	params.Set("output", "json")
	params.Set("key", g.apiKey)

	resp, err := g.httpClient.Get(amapEndpoint + "?" + params.Encode())
	if err != nil {
		return nil, &GeocodingError{Type: ErrorTypeNetworkError, Message: "geocoding request failed", Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyHTTPError(resp.StatusCode, resp.Status)
	}

	var amResp amapResponse
	if err := json.NewDecoder(resp.Body).Decode(&amResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if amResp.Status != "1" {
		return nil, classifyAmapError(&amResp)
	}

	if len(amResp.Geocodes) == 0 {
		return nil, &GeocodingError{
			Type:    ErrorTypeNotFound,
			Message: fmt.Sprintf("no results for address: %s", address),
		}
	}

	point, err := parseAmapLocation(amResp.Geocodes[0].Location)
	if err != nil {
		return nil, err
	}

	if !SuzhouBounds.Contains(point) {
		return nil, &GeocodingError{
			Type:    ErrorTypeNotFound,
			Message: fmt.Sprintf("result (%f, %f) outside the Suzhou bounds", point.Lat, point.Lng),
		}
	}

	return &Result{
		Point:      point.Round6(),
		Confidence: amapConfidence(amResp.Geocodes[0].Level),
		Method:     MethodAmap,
		MatchedKey: amResp.Geocodes[0].FormattedAddress,
	}, nil
}

func classifyAmapError(r *amapResponse) *GeocodingError {
	switch r.Infocode {
	case "10003": // DAILY_QUERY_OVER_LIMIT
		return &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: "daily quota exceeded"}
	case "10021": // CUQPS_HAS_EXCEEDED_THE_LIMIT
		return &GeocodingError{Type: ErrorTypeRateLimit, Message: "rate limit reached"}
	default:
		return &GeocodingError{
			Type:    ErrorTypeUnknown,
			Message: fmt.Sprintf("amap status %s: %s (infocode %s)", r.Status, r.Info, r.Infocode),
		}
	}
}

// parseAmapLocation parses Amap's "lng,lat" location string.
func parseAmapLocation(location string) (spatial.Point, error) {
	parts := strings.Split(location, ",")
	if len(parts) != 2 {
		return spatial.Point{}, fmt.Errorf("malformed amap location %q", location)
	}

	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return spatial.Point{}, fmt.Errorf("malformed amap longitude %q: %w", parts[0], err)
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return spatial.Point{}, fmt.Errorf("malformed amap latitude %q: %w", parts[1], err)
	}

	return spatial.Point{Lat: lat, Lng: lng}, nil
}

// amapConfidence maps Amap's level field to a confidence tier. Door number
// and point-of-interest levels resolve to a rooftop-grade coordinate.
func amapConfidence(level string) string {
	switch level {
	case "门牌号", "门址", "兴趣点":
		return ConfidenceHigh
	case "道路", "道路交叉路口", "乡镇":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
