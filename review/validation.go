// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"fmt"

	"github.com/suzhouyl/yuanlin/geocode"
)

var validMethods = map[string]bool{
	geocode.MethodKnownLocation: true,
	geocode.MethodPattern:       true,
	geocode.MethodDefault:       true,
	geocode.MethodAmap:          true,
	geocode.MethodBaidu:         true,
	geocode.MethodManual:        true,
}

var validConfidences = map[string]bool{
	geocode.ConfidenceHigh:   true,
	geocode.ConfidenceMedium: true,
	geocode.ConfidenceLow:    true,
}

func validateAssignment(a *Assignment) error {
	if a == nil {
		return fmt.Errorf("assignment is nil")
	}

	if len(a.Name) == 0 {
		return fmt.Errorf("assignment has no garden name")
	}

	if a.Point == nil {
		return fmt.Errorf("assignment %q has no point", a.Name)
	}

	if !validMethods[a.Method] {
		return fmt.Errorf("assignment %q has invalid method %q", a.Name, a.Method)
	}

	if !validConfidences[a.Confidence] {
		return fmt.Errorf("assignment %q has invalid confidence %q", a.Name, a.Confidence)
	}

	return geocode.ValidateCoordinates(a.Point.Lat, a.Point.Lng)
}
