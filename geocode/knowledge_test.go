// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadKnowledge(t *testing.T) {
	kb, err := LoadKnowledge("knowledge.json")
	if err != nil {
		t.Fatalf("LoadKnowledge() error = %v", err)
	}

	if len(kb.KnownLocations) < 15 {
		t.Errorf("expected at least 15 known locations, got %d", len(kb.KnownLocations))
	}

	if len(kb.Patterns) < 30 {
		t.Errorf("expected at least 30 pattern rules, got %d", len(kb.Patterns))
	}

	if kb.DefaultCenter.Lat != 31.2989 || kb.DefaultCenter.Lng != 120.5853 {
		t.Errorf("unexpected default center: %v", kb.DefaultCenter)
	}

	// Priority order is the file order: UNESCO gardens first.
	if kb.KnownLocations[0].Key != "拙政园" {
		t.Errorf("first known location = %q, want 拙政园", kb.KnownLocations[0].Key)
	}

	for _, kl := range kb.KnownLocations {
		if !SuzhouBounds.Contains(kl.Point) {
			t.Errorf("known location %q at %v outside the Suzhou bounds", kl.Key, kl.Point)
		}
	}

	for _, p := range kb.Patterns {
		if !SuzhouBounds.Contains(p.Point) {
			t.Errorf("pattern %q at %v outside the Suzhou bounds", p.Token, p.Point)
		}
	}
}

func TestLoadKnowledgeMissingFile(t *testing.T) {
	if _, err := LoadKnowledge("no-such-file.json"); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func writeKnowledgeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "knowledge.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	return path
}

func TestLoadKnowledgeRejectsOutOfBoundsEntries(t *testing.T) {
	path := writeKnowledgeFile(t, `{
		"default_center": {"latitude": 31.2989, "longitude": 120.5853},
		"known_locations": [
			{"key": "北京园", "point": {"latitude": 39.9, "longitude": 116.4}}
		],
		"patterns": []
	}`)

	if _, err := LoadKnowledge(path); err == nil {
		t.Error("expected an error for an out-of-bounds known location")
	}
}

func TestLoadKnowledgeRejectsDuplicateKeys(t *testing.T) {
	path := writeKnowledgeFile(t, `{
		"default_center": {"latitude": 31.2989, "longitude": 120.5853},
		"known_locations": [
			{"key": "拙政园", "point": {"latitude": 31.324192, "longitude": 120.630455}},
			{"key": "拙政园", "point": {"latitude": 31.324192, "longitude": 120.630455}}
		],
		"patterns": []
	}`)

	if _, err := LoadKnowledge(path); err == nil {
		t.Error("expected an error for duplicate keys")
	}
}

func TestLoadKnowledgeRejectsEmptyToken(t *testing.T) {
	path := writeKnowledgeFile(t, `{
		"default_center": {"latitude": 31.2989, "longitude": 120.5853},
		"known_locations": [],
		"patterns": [
			{"token": "", "point": {"latitude": 31.3, "longitude": 120.6}}
		]
	}`)

	if _, err := LoadKnowledge(path); err == nil {
		t.Error("expected an error for an empty pattern token")
	}
}

func TestLoadKnowledgeRejectsBadDefaultCenter(t *testing.T) {
	path := writeKnowledgeFile(t, `{
		"default_center": {"latitude": 0, "longitude": 0},
		"known_locations": [],
		"patterns": []
	}`)

	if _, err := LoadKnowledge(path); err == nil {
		t.Error("expected an error for a default center outside the Suzhou bounds")
	}
}
