// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/suzhouyl/yuanlin/spatial"
	"github.com/suzhouyl/yuanlin/utils/textutils"
)

// Assigner resolves gardens to coordinates from the static knowledge base.
// Rules are evaluated in a fixed order, first match wins:
//
//  1. a known-location key contained in the garden name (high confidence)
//  2. a key or pattern token contained in the address (medium confidence)
//  3. the city-center default plus a deterministic per-record offset
//     (low confidence)
//
// The assignment is a pure function of the garden plus the knowledge base,
// so re-running it on the same input always yields the same output.
type Assigner struct {
	kb *Knowledge
}

// NewAssigner creates an assigner over an immutable knowledge base.
func NewAssigner(kb *Knowledge) *Assigner {
	return &Assigner{kb: kb}
}

// Knowledge returns the lookup base the assigner was built with.
func (a *Assigner) Knowledge() *Knowledge {
	return a.kb
}

// Geocode implements Geocoder. It never fails for a garden with a non-empty
// name: an unmatched or empty address resolves through the default branch.
func (a *Assigner) Geocode(name string, address string) (*Result, error) {
	name = textutils.NormalizeCJK(name)
	address = textutils.NormalizeCJK(address)

	if name == "" && address == "" {
		return nil, fmt.Errorf("garden has neither name nor address")
	}

	for _, kl := range a.kb.KnownLocations {
		if strings.Contains(name, kl.Key) {
			return &Result{
				Point:      kl.Point,
				Confidence: ConfidenceHigh,
				Method:     MethodKnownLocation,
				MatchedKey: kl.Key,
			}, nil
		}
	}

	// Known-location keys also act as address patterns: an address like
	// 拙政园西侧 pins the record even when the name is unknown.
	for _, kl := range a.kb.KnownLocations {
		if address != "" && strings.Contains(address, kl.Key) {
			return &Result{
				Point:      kl.Point,
				Confidence: ConfidenceMedium,
				Method:     MethodPattern,
				MatchedKey: kl.Key,
			}, nil
		}
	}

	for _, p := range a.kb.Patterns {
		if address != "" && strings.Contains(address, p.Token) {
			return &Result{
				Point:      p.Point,
				Confidence: ConfidenceMedium,
				Method:     MethodPattern,
				MatchedKey: p.Token,
			}, nil
		}
	}

	seed := address
	if seed == "" {
		seed = name
	}

	return &Result{
		Point:      a.defaultWithOffset(seed),
		Confidence: ConfidenceLow,
		Method:     MethodDefault,
	}, nil
}

// defaultWithOffset perturbs the city-center default with an offset derived
// from the record's own text, so unmatched records do not collide on a map.
// The offset magnitude is bounded to ±0.00005 degrees, which keeps every
// result inside the Suzhou bounds.
func (a *Assigner) defaultWithOffset(seed string) spatial.Point {
	h := hashSeed(seed)

	fracLat := float64(h%100)/10000.0 - 0.005
	fracLng := float64((h/100)%100)/10000.0 - 0.005

	return spatial.Point{
		Lat: a.kb.DefaultCenter.Lat + fracLat*0.01,
		Lng: a.kb.DefaultCenter.Lng + fracLng*0.01,
	}.Round6()
}

func hashSeed(seed string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))

	return h.Sum64()
}
