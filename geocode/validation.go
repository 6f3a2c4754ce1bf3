// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"fmt"

	"github.com/suzhouyl/yuanlin/spatial"
)

// SuzhouBounds is the bounding box every assigned coordinate must fall in.
// It covers the Suzhou administrative area from Shengze in the south to
// Changshu in the north.
var SuzhouBounds = spatial.Bounds{
	MinLat: 30.88,
	MaxLat: 31.65,
	MinLng: 120.48,
	MaxLng: 120.75,
}

// ValidateCoordinates verifies that a coordinate pair is a plausible Suzhou
// location. A violation coming from the knowledge base is a data-quality
// defect, not a runtime fault.
func ValidateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90 (got: %f)", lat)
	}

	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude must be between -180 and 180 (got: %f)", lng)
	}

	if !SuzhouBounds.Contains(spatial.Point{Lat: lat, Lng: lng}) {
		return fmt.Errorf("coordinate (%f, %f) outside the Suzhou bounds %s", lat, lng, SuzhouBounds)
	}

	return nil
}

// ValidateResult checks a provider result before it is written to the dataset.
func ValidateResult(r *Result) error {
	if r == nil {
		return fmt.Errorf("nil geocoding result")
	}

	if err := ValidateCoordinates(r.Point.Lat, r.Point.Lng); err != nil {
		return err
	}

	switch r.Confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		return fmt.Errorf("invalid confidence tier: %q", r.Confidence)
	}

	return nil
}
