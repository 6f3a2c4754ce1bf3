// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/suzhouyl/yuanlin/spatial"
	"github.com/suzhouyl/yuanlin/utils/textutils"
)

// KnownLocation is a manually curated coordinate for a specific named garden.
// The key is matched against the garden's official name; coordinates are the
// published six-decimal values.
type KnownLocation struct {
	Key   string        `json:"key"`
	Point spatial.Point `json:"point"`
	Note  string        `json:"note,omitempty"`
}

// PatternRule pairs a recognizable substring of an address (district, street
// or landmark) with a base coordinate.
type PatternRule struct {
	Token string        `json:"token"`
	Point spatial.Point `json:"point"`
	Note  string        `json:"note,omitempty"`
}

// Knowledge is the static lookup base used by the offline assigner. It is
// loaded once at startup and read-only thereafter; slice order is the rule
// priority order.
type Knowledge struct {
	DefaultCenter  spatial.Point   `json:"default_center"`
	KnownLocations []KnownLocation `json:"known_locations"`
	Patterns       []PatternRule   `json:"patterns"`
}

// LoadKnowledge loads the lookup base from a JSON file. Keys and tokens are
// normalized for matching; every coordinate must fall inside the Suzhou
// bounds or the load fails.
func LoadKnowledge(filepath string) (*Knowledge, error) {
	data, err := os.ReadFile(filepath) // #nosec G304 - filepath is provided by admin
	if err != nil {
		return nil, fmt.Errorf("reading knowledge file: %w", err)
	}

	var kb Knowledge
	if err := json.Unmarshal(data, &kb); err != nil {
		return nil, fmt.Errorf("parsing knowledge JSON: %w", err)
	}

	if err := kb.validate(); err != nil {
		return nil, fmt.Errorf("validating knowledge base: %w", err)
	}

	for i := range kb.KnownLocations {
		kb.KnownLocations[i].Key = textutils.NormalizeCJK(kb.KnownLocations[i].Key)
	}

	for i := range kb.Patterns {
		kb.Patterns[i].Token = textutils.NormalizeCJK(kb.Patterns[i].Token)
	}

	return &kb, nil
}

func (kb *Knowledge) validate() error {
	if err := ValidateCoordinates(kb.DefaultCenter.Lat, kb.DefaultCenter.Lng); err != nil {
		return fmt.Errorf("default center: %w", err)
	}

	seen := make(map[string]bool, len(kb.KnownLocations)+len(kb.Patterns))

	for _, kl := range kb.KnownLocations {
		if kl.Key == "" {
			return fmt.Errorf("known location with empty key")
		}

		if seen[kl.Key] {
			return fmt.Errorf("duplicate known location key %q", kl.Key)
		}

		seen[kl.Key] = true

		if err := ValidateCoordinates(kl.Point.Lat, kl.Point.Lng); err != nil {
			return fmt.Errorf("known location %q: %w", kl.Key, err)
		}
	}

	for _, p := range kb.Patterns {
		if p.Token == "" {
			return fmt.Errorf("pattern rule with empty token")
		}

		if seen[p.Token] {
			return fmt.Errorf("duplicate pattern token %q", p.Token)
		}

		seen[p.Token] = true

		if err := ValidateCoordinates(p.Point.Lat, p.Point.Lng); err != nil {
			return fmt.Errorf("pattern %q: %w", p.Token, err)
		}
	}

	return nil
}
