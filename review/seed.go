// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SeedData represents the JSON seed file format. Assignments are exported
// sorted by name so the file diffs cleanly under version control.
type SeedData struct {
	Version     string        `json:"version"`
	LastUpdated time.Time     `json:"last_updated"`
	Assignments []*Assignment `json:"assignments"`
}

// ExportToJSON exports all assignments to a JSON file.
func ExportToJSON(repo AssignmentRepository, filepath string) error {
	assignments, err := repo.GetAllSorted()
	if err != nil {
		return fmt.Errorf("listing assignments: %w", err)
	}

	seed := &SeedData{
		Version:     "1.0",
		LastUpdated: time.Now(),
		Assignments: assignments,
	}

	data, err := json.MarshalIndent(seed, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}

	err = os.WriteFile(filepath, data, 0o600)
	if err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}

// ImportFromJSON imports assignments from a JSON file.
func ImportFromJSON(repo AssignmentRepository, filepath string) (int, error) {
	data, err := os.ReadFile(filepath) // #nosec G304 - filepath is provided by admin
	if err != nil {
		return 0, fmt.Errorf("reading file: %w", err)
	}

	var seed SeedData
	if err := json.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("parsing JSON: %w", err)
	}

	imported := 0

	for _, assignment := range seed.Assignments {
		if err := repo.Save(assignment); err != nil {
			return imported, fmt.Errorf("saving assignment for %s: %w", assignment.Name, err)
		}

		imported++
	}

	return imported, nil
}

// SeedIfEmpty seeds the database from a JSON file if no assignments exist.
func SeedIfEmpty(repo AssignmentRepository, filepath string) (bool, int, error) {
	count, err := repo.Count()
	if err != nil {
		return false, 0, fmt.Errorf("counting assignments: %w", err)
	}

	if count > 0 {
		return false, count, nil
	}
	// Database is empty, try to seed
	if _, err := os.Stat(filepath); os.IsNotExist(err) {
		// No seed file exists, that's okay
		return false, 0, nil
	}

	imported, err := ImportFromJSON(repo, filepath)
	if err != nil {
		return false, 0, err
	}

	return true, imported, nil
}
