// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import "github.com/suzhouyl/yuanlin/spatial"

// Confidence tiers. They record the provenance of an assignment, not its
// numeric accuracy: a curated known location beats a district pattern, which
// beats the city-center fallback.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Assignment methods.
const (
	MethodKnownLocation = "known_location"
	MethodPattern       = "pattern"
	MethodDefault       = "default"
	MethodAmap          = "amap"
	MethodBaidu         = "baidu"
	MethodManual        = "manual"
)

// Result represents a geocoding result from any provider.
type Result struct {
	Point      spatial.Point
	Confidence string // high, medium, low
	Method     string
	MatchedKey string // key or token that produced the match, empty for the default branch
}

// Geocoder resolves a garden to a coordinate pair. Implementations must
// return points within the Suzhou bounding box.
type Geocoder interface {
	Geocode(name string, address string) (*Result, error)
}
