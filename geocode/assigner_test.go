// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/suzhouyl/yuanlin/spatial"
)

func testAssigner(t *testing.T) *Assigner {
	t.Helper()

	kb, err := LoadKnowledge("knowledge.json")
	if err != nil {
		t.Fatalf("LoadKnowledge() error = %v", err)
	}

	return NewAssigner(kb)
}

func TestAssignerKnownLocation(t *testing.T) {
	a := testAssigner(t)

	tests := []struct {
		name      string
		garden    string
		address   string
		wantPoint spatial.Point
		wantKey   string
	}{
		{
			name:      "Humble Administrator's Garden",
			garden:    "拙政园",
			address:   "苏州市东北街178号",
			wantPoint: spatial.Point{Lat: 31.324192, Lng: 120.630455},
			wantKey:   "拙政园",
		},
		{
			name:      "Lingering Garden",
			garden:    "留园",
			address:   "留园路338号",
			wantPoint: spatial.Point{Lat: 31.319747, Lng: 120.599545},
			wantKey:   "留园",
		},
		{
			name:      "name containment",
			garden:    "苏州网师园",
			address:   "阔家头巷11号",
			wantPoint: spatial.Point{Lat: 31.299343, Lng: 120.623586},
			wantKey:   "网师园",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Geocode(tt.garden, tt.address)
			if err != nil {
				t.Fatalf("Geocode() error = %v", err)
			}

			if diff := cmp.Diff(tt.wantPoint, got.Point); diff != "" {
				t.Errorf("Geocode() point mismatch (-want +got):\n%s", diff)
			}

			if got.Confidence != ConfidenceHigh {
				t.Errorf("Confidence = %q, want %q", got.Confidence, ConfidenceHigh)
			}

			if got.Method != MethodKnownLocation {
				t.Errorf("Method = %q, want %q", got.Method, MethodKnownLocation)
			}

			if got.MatchedKey != tt.wantKey {
				t.Errorf("MatchedKey = %q, want %q", got.MatchedKey, tt.wantKey)
			}
		})
	}
}

func TestAssignerKnownLocationBeatsPattern(t *testing.T) {
	a := testAssigner(t)

	// The address names Renmin Road, a pattern token, but the garden name
	// matches a curated key. The curated coordinate must win.
	got, err := a.Geocode("网师园", "苏州市人民路48号")
	if err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}

	want := spatial.Point{Lat: 31.299343, Lng: 120.623586}
	if diff := cmp.Diff(want, got.Point); diff != "" {
		t.Errorf("Geocode() point mismatch (-want +got):\n%s", diff)
	}

	if got.Confidence != ConfidenceHigh {
		t.Errorf("Confidence = %q, want %q", got.Confidence, ConfidenceHigh)
	}
}

func TestAssignerPatternMatch(t *testing.T) {
	a := testAssigner(t)

	tests := []struct {
		name      string
		garden    string
		address   string
		wantPoint spatial.Point
		wantKey   string
	}{
		{
			name:      "district token",
			garden:    "启园",
			address:   "苏州市吴中区东山镇启园路",
			wantPoint: spatial.Point{Lat: 31.069242, Lng: 120.483586},
			wantKey:   "吴中区东山",
		},
		{
			name:      "street token",
			garden:    "听枫园",
			address:   "人民路道前街附近",
			wantPoint: spatial.Point{Lat: 31.301869, Lng: 120.616212},
			wantKey:   "人民路",
		},
		{
			name:      "full-width digits in address",
			garden:    "某园",
			address:   "山塘街１２号",
			wantPoint: spatial.Point{Lat: 31.331162, Lng: 120.604192},
			wantKey:   "山塘街",
		},
		{
			name:      "known garden named in address",
			garden:    "某氏故居",
			address:   "拙政园西侧",
			wantPoint: spatial.Point{Lat: 31.324192, Lng: 120.630455},
			wantKey:   "拙政园",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Geocode(tt.garden, tt.address)
			if err != nil {
				t.Fatalf("Geocode() error = %v", err)
			}

			if diff := cmp.Diff(tt.wantPoint, got.Point); diff != "" {
				t.Errorf("Geocode() point mismatch (-want +got):\n%s", diff)
			}

			if got.Confidence != ConfidenceMedium {
				t.Errorf("Confidence = %q, want %q", got.Confidence, ConfidenceMedium)
			}

			if got.Method != MethodPattern {
				t.Errorf("Method = %q, want %q", got.Method, MethodPattern)
			}

			if got.MatchedKey != tt.wantKey {
				t.Errorf("MatchedKey = %q, want %q", got.MatchedKey, tt.wantKey)
			}
		})
	}
}

func TestAssignerDefaultBranch(t *testing.T) {
	a := testAssigner(t)
	center := a.Knowledge().DefaultCenter

	got, err := a.Geocode("某园", "某无名小巷1号")
	if err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}

	if got.Confidence != ConfidenceLow || got.Method != MethodDefault {
		t.Errorf("got tier %q method %q, want %q %q", got.Confidence, got.Method, ConfidenceLow, MethodDefault)
	}

	if got.Point == center {
		t.Error("default branch must offset the city center")
	}

	// Offset magnitude is bounded to ±0.00005 degrees.
	if d := got.Point.Lat - center.Lat; d < -0.00005 || d > 0.00005 {
		t.Errorf("latitude offset %f out of bounds", d)
	}

	if d := got.Point.Lng - center.Lng; d < -0.00005 || d > 0.00005 {
		t.Errorf("longitude offset %f out of bounds", d)
	}

	if !SuzhouBounds.Contains(got.Point) {
		t.Errorf("default branch result %v outside the Suzhou bounds", got.Point)
	}

	want := spatial.Point{Lat: 31.298908, Lng: 120.585317}
	if diff := cmp.Diff(want, got.Point); diff != "" {
		t.Errorf("offset point mismatch (-want +got):\n%s", diff)
	}
}

func TestAssignerDeterminism(t *testing.T) {
	a := testAssigner(t)

	gardens := []struct{ name, address string }{
		{"拙政园", "苏州市东北街178号"},
		{"某园", "某无名小巷1号"},
		{"另一园", "平江区某处"},
		{"空地址园", ""},
	}

	for _, g := range gardens {
		first, err := a.Geocode(g.name, g.address)
		if err != nil {
			t.Fatalf("Geocode(%q) error = %v", g.name, err)
		}

		second, err := a.Geocode(g.name, g.address)
		if err != nil {
			t.Fatalf("Geocode(%q) second run error = %v", g.name, err)
		}

		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Geocode(%q) is not deterministic (-first +second):\n%s", g.name, diff)
		}
	}
}

func TestAssignerDefaultUniqueness(t *testing.T) {
	a := testAssigner(t)

	addresses := []string{
		"某无名小巷1号",
		"无名巷1号",
		"无名巷2号",
		"无名巷3号",
		"无名巷4号",
		"无名巷5号",
		"平江区某处",
		"金阊区某处",
		"姑苏某里",
	}

	seen := make(map[spatial.Point]string, len(addresses))

	for _, addr := range addresses {
		got, err := a.Geocode("无名园", addr)
		if err != nil {
			t.Fatalf("Geocode(%q) error = %v", addr, err)
		}

		if got.Method != MethodDefault {
			t.Fatalf("Geocode(%q) method = %q, want default branch", addr, got.Method)
		}

		if prev, dup := seen[got.Point]; dup {
			t.Errorf("addresses %q and %q collide at %v", prev, addr, got.Point)
		}

		seen[got.Point] = addr
	}
}

func TestAssignerEmptyAddress(t *testing.T) {
	a := testAssigner(t)

	// An empty address still resolves, seeded from the name.
	got, err := a.Geocode("无处园", "")
	if err != nil {
		t.Fatalf("Geocode() error = %v", err)
	}

	if got.Method != MethodDefault {
		t.Errorf("Method = %q, want %q", got.Method, MethodDefault)
	}

	again, err := a.Geocode("无处园", "")
	if err != nil {
		t.Fatalf("Geocode() second run error = %v", err)
	}

	if got.Point != again.Point {
		t.Errorf("empty-address assignment is not deterministic: %v != %v", got.Point, again.Point)
	}
}

func TestAssignerNoIdentity(t *testing.T) {
	a := testAssigner(t)

	if _, err := a.Geocode("", ""); err == nil {
		t.Error("expected an error for a record with neither name nor address")
	}
}

func TestAssignerAllOutputsWithinBounds(t *testing.T) {
	a := testAssigner(t)

	// A mix of every branch.
	gardens := []struct{ name, address string }{
		{"拙政园", "苏州市东北街178号"},
		{"狮子林", "园林路23号"},
		{"严家花园", "吴中区木渎镇山塘街"},
		{"退思园", "吴江区同里镇新填街"},
		{"燕园", "常熟市辛峰巷"},
		{"某园", "某无名小巷1号"},
		{"空地址园", ""},
	}

	for _, g := range gardens {
		got, err := a.Geocode(g.name, g.address)
		if err != nil {
			t.Fatalf("Geocode(%q) error = %v", g.name, err)
		}

		if !SuzhouBounds.Contains(got.Point) {
			t.Errorf("Geocode(%q) = %v outside the Suzhou bounds", g.name, got.Point)
		}
	}
}
