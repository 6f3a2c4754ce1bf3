// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/spf13/cobra"
	"github.com/suzhouyl/yuanlin/gardens"
	"github.com/suzhouyl/yuanlin/geocode"
	"github.com/suzhouyl/yuanlin/review"
	"github.com/suzhouyl/yuanlin/utils/textutils"
)

const assignmentsFile = "assignments.json"

var reviewOptions = struct {
	DbPath    string
	Input     string
	Knowledge string
}{}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Manage the interactive assignment review workflow",
}

func openReviewDB(mustExist bool) (*sql.DB, error) {
	if err := os.MkdirAll(reviewOptions.DbPath, 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	dbpath := filepath.Join(reviewOptions.DbPath, "yuanlin.duckdb")

	if mustExist {
		if _, err := os.Stat(dbpath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("database not found at %s - run 'review load' or 'review serve' first", dbpath)
		}
	}

	db, err := sql.Open("duckdb", dbpath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return db, nil
}

// seedFromDataset populates an empty review database by running every garden
// through the knowledge-base assigner.
func seedFromDataset(repo review.AssignmentRepository, assigner *geocode.Assigner) (int, error) {
	ds, err := gardens.Load(reviewOptions.Input, false)
	if err != nil {
		return 0, fmt.Errorf("loading dataset: %w", err)
	}

	seeded := 0

	for _, record := range ds.Records {
		if !record.Valid() {
			continue
		}

		result, err := assigner.Geocode(record.OfficialName, record.Address)
		if err != nil {
			return seeded, fmt.Errorf("assigning %s: %w", record.OfficialName, err)
		}

		assignment := &review.Assignment{
			Name:       record.OfficialName,
			Address:    record.Address,
			Point:      &result.Point,
			Method:     result.Method,
			Confidence: result.Confidence,
			MatchedKey: result.MatchedKey,
		}

		if err := repo.Save(assignment); err != nil {
			return seeded, fmt.Errorf("saving assignment for %s: %w", record.OfficialName, err)
		}

		seeded++
	}

	return seeded, nil
}

var reviewServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interactive review API server (local only)",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		db, err := openReviewDB(false)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := review.NewAssignmentRepository(db)
		if err := repo.CreateSchema(); err != nil {
			return fmt.Errorf("creating assignment schema: %w", err)
		}

		kb, err := geocode.LoadKnowledge(reviewOptions.Knowledge)
		if err != nil {
			return fmt.Errorf("loading knowledge base: %w", err)
		}

		assigner := geocode.NewAssigner(kb)

		seeded, count, err := review.SeedIfEmpty(repo, assignmentsFile)
		if err != nil {
			return fmt.Errorf("seeding assignments: %w", err)
		}

		if seeded {
			log.Printf("✅ Seeded %s assignments from %s", textutils.FormatInt(int64(count)), assignmentsFile)
		}

		if count == 0 {
			derived, err := seedFromDataset(repo, assigner)
			if err != nil {
				return err
			}

			log.Printf("✅ Derived %s assignments from %s", textutils.FormatInt(int64(derived)), reviewOptions.Input)
		}

		server := review.NewServer(repo, assigner)

		fmt.Println("🗺️  Assignment review server starting...")
		fmt.Println("📍 API at http://localhost:8080/api/assignments")
		fmt.Println("🔒 Local only - not exposed to internet")

		return server.Run()
	},
}

var reviewStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Export assignments to a file",
	Long:  `Exports all assignments from the database to a local JSON file. The file is sorted to minimize diffs when checking into version control.`,
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		db, err := openReviewDB(true)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := review.NewAssignmentRepository(db)

		count, err := repo.Count()
		if err != nil {
			return fmt.Errorf("counting assignments: %w", err)
		}

		if err := review.ExportToJSON(repo, assignmentsFile); err != nil {
			return fmt.Errorf("exporting assignments: %w", err)
		}

		fmt.Printf("✅ Exported %s assignments to %s\n", textutils.FormatInt(int64(count)), assignmentsFile)

		return nil
	},
}

var reviewLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Import assignments from a file",
	Long: `Imports assignments from the local JSON file into the database. The import
is skipped when the database holds more assignments than the file, which
means there is unexported local work.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		db, err := openReviewDB(false)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := review.NewAssignmentRepository(db)
		if err := repo.CreateSchema(); err != nil {
			return fmt.Errorf("creating assignment schema: %w", err)
		}

		data, err := os.ReadFile(assignmentsFile)
		if err != nil {
			return fmt.Errorf("reading assignments file: %w", err)
		}

		var seed review.SeedData
		if err := json.Unmarshal(data, &seed); err != nil {
			return fmt.Errorf("parsing assignments file: %w", err)
		}

		dbCount, err := repo.Count()
		if err != nil {
			return fmt.Errorf("counting assignments: %w", err)
		}

		// Do not overwrite local assignments that haven't been exported yet
		if dbCount > len(seed.Assignments) {
			log.Printf("⚠️  Local assignments (%d) exceed file count (%d). Unsaved work detected.", dbCount, len(seed.Assignments))
			log.Println("🛑 Skipping reload to prevent data loss. Run 'review store' first.")

			return nil
		}

		if dbCount > 0 {
			if _, err := db.Exec("DELETE FROM assignments"); err != nil {
				return fmt.Errorf("clearing assignments: %w", err)
			}
		}

		imported, err := review.ImportFromJSON(repo, assignmentsFile)
		if err != nil {
			return fmt.Errorf("importing assignments: %w", err)
		}

		fmt.Printf("✅ Imported %s assignments from %s\n", textutils.FormatInt(int64(imported)), assignmentsFile)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewServeCmd)
	reviewCmd.AddCommand(reviewStoreCmd)
	reviewCmd.AddCommand(reviewLoadCmd)

	reviewCmd.PersistentFlags().StringVar(
		&reviewOptions.DbPath,
		"db-path",
		"db",
		"Base directory for the review database",
	)
	reviewCmd.PersistentFlags().StringVar(
		&reviewOptions.Input,
		"input",
		"data/gardens.json",
		"Path to the dataset snapshot used to seed the review queue",
	)
	reviewCmd.PersistentFlags().StringVar(
		&reviewOptions.Knowledge,
		"knowledge",
		"geocode/knowledge.json",
		"Path to the knowledge base",
	)
}
