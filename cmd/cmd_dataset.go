// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/suzhouyl/yuanlin/gardens"
	"github.com/suzhouyl/yuanlin/geocode"
	"github.com/suzhouyl/yuanlin/spatial"
	"github.com/suzhouyl/yuanlin/utils/textutils"
	"github.com/uber/h3-go/v4"
)

var datasetOptions = struct {
	Input     string
	Output    string
	Knowledge string
	Strict    bool
	DryRun    bool
}{}

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Enrich and inspect the garden dataset snapshot",
}

func loadAssigner() (*geocode.Assigner, error) {
	kb, err := geocode.LoadKnowledge(datasetOptions.Knowledge)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}

	return geocode.NewAssigner(kb), nil
}

var datasetEnrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Assign GPS coordinates to every garden in the dataset",
	Long: `Reads the dataset snapshot, assigns coordinates to each garden from the
knowledge base, and writes the enriched snapshot back. The assignment is
deterministic: re-running on the same input produces the same output.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		assigner, err := loadAssigner()
		if err != nil {
			return err
		}

		ds, err := gardens.Load(datasetOptions.Input, datasetOptions.Strict)
		if err != nil {
			return fmt.Errorf("loading dataset: %w", err)
		}

		var bar *progressbar.ProgressBar
		if isatty.IsTerminal(os.Stderr.Fd()) {
			bar = progressbar.NewOptions(len(ds.Records),
				progressbar.OptionSetDescription("Enriching gardens"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}

		byConfidence := make(map[string]int)
		skipped := 0

		for _, record := range ds.Records {
			if bar != nil {
				_ = bar.Add(1)
			}

			if !record.Valid() {
				skipped++

				log.Printf("⚠️  skipping invalid record (%v)", record.Err)

				continue
			}

			result, err := assigner.Geocode(record.OfficialName, record.Address)
			if err != nil {
				return fmt.Errorf("assigning %s: %w", record.OfficialName, err)
			}

			if err := geocode.ValidateResult(result); err != nil {
				log.Printf("⚠️  %s: computed coordinates rejected: %v", record.OfficialName, err)

				skipped++

				continue
			}

			record.SetGPS(result.Point)
			byConfidence[result.Confidence]++
		}

		fmt.Printf("✅ Assigned coordinates to %s gardens: %s high, %s medium, %s low",
			textutils.FormatInt(int64(byConfidence[geocode.ConfidenceHigh]+byConfidence[geocode.ConfidenceMedium]+byConfidence[geocode.ConfidenceLow])),
			textutils.FormatInt(int64(byConfidence[geocode.ConfidenceHigh])),
			textutils.FormatInt(int64(byConfidence[geocode.ConfidenceMedium])),
			textutils.FormatInt(int64(byConfidence[geocode.ConfidenceLow])))

		if skipped > 0 {
			fmt.Printf(" (%s skipped)", textutils.FormatInt(int64(skipped)))
		}

		fmt.Println()

		if datasetOptions.DryRun {
			fmt.Println("ℹ️  Dry run, nothing written")

			return nil
		}

		output := datasetOptions.Output
		if output == "" {
			output = datasetOptions.Input
		}

		if err := ds.Save(output); err != nil {
			return fmt.Errorf("saving dataset: %w", err)
		}

		fmt.Printf("✅ Wrote %s\n", output)

		return nil
	},
}

var datasetVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check an enriched dataset for coverage, bounds and determinism",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		assigner, err := loadAssigner()
		if err != nil {
			return err
		}

		ds, err := gardens.Load(datasetOptions.Input, false)
		if err != nil {
			return fmt.Errorf("loading dataset: %w", err)
		}

		violations := 0
		defaults := make(map[spatial.Point][]string)

		for _, record := range ds.Records {
			if !record.Valid() {
				continue
			}

			if record.GPS == nil {
				log.Printf("❌ %s: no coordinates assigned", record.OfficialName)

				violations++

				continue
			}

			if !geocode.SuzhouBounds.Contains(*record.GPS) {
				log.Printf("❌ %s: %s outside bounds %s",
					record.OfficialName, record.GPS, geocode.SuzhouBounds)

				violations++
			}

			result, err := assigner.Geocode(record.OfficialName, record.Address)
			if err != nil {
				return fmt.Errorf("re-deriving %s: %w", record.OfficialName, err)
			}

			if result.Point != *record.GPS {
				log.Printf("❌ %s: stored %s differs from derived %s",
					record.OfficialName, record.GPS, result.Point)

				violations++
			}

			if result.Method == geocode.MethodDefault {
				defaults[result.Point] = append(defaults[result.Point], record.OfficialName)
			}
		}

		for point, names := range defaults {
			if len(names) > 1 {
				log.Printf("❌ %d default-branch gardens collide at %s: %v", len(names), point, names)

				violations++
			}
		}

		if violations > 0 {
			return fmt.Errorf("%s violations found", textutils.FormatInt(int64(violations)))
		}

		fmt.Printf("✅ %s records verified: full coverage, within bounds, deterministic\n",
			textutils.FormatInt(int64(len(ds.Records))))

		return nil
	},
}

var datasetStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report assignment tiers, pattern hits and map collisions",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		assigner, err := loadAssigner()
		if err != nil {
			return err
		}

		ds, err := gardens.Load(datasetOptions.Input, false)
		if err != nil {
			return fmt.Errorf("loading dataset: %w", err)
		}

		byConfidence := make(map[string]int)
		byKey := make(map[string]int)
		cells := make(map[h3.Cell][]string)

		for _, record := range ds.Records {
			if !record.Valid() {
				continue
			}

			result, err := assigner.Geocode(record.OfficialName, record.Address)
			if err != nil {
				return fmt.Errorf("assigning %s: %w", record.OfficialName, err)
			}

			byConfidence[result.Confidence]++

			if result.MatchedKey != "" {
				byKey[result.MatchedKey]++
			}

			cell, err := h3.LatLngToCell(h3.NewLatLng(result.Point.Lat, result.Point.Lng), 9)
			if err != nil {
				return fmt.Errorf("computing h3 cell for %s: %w", record.OfficialName, err)
			}

			cells[cell] = append(cells[cell], record.OfficialName)
		}

		fmt.Println("Confidence tiers:")

		for _, tier := range []string{geocode.ConfidenceHigh, geocode.ConfidenceMedium, geocode.ConfidenceLow} {
			fmt.Printf("  %-8s %s\n", tier, textutils.FormatInt(int64(byConfidence[tier])))
		}

		keys := make([]string, 0, len(byKey))
		for key := range byKey {
			keys = append(keys, key)
		}

		sort.Slice(keys, func(i, j int) bool {
			if byKey[keys[i]] != byKey[keys[j]] {
				return byKey[keys[i]] > byKey[keys[j]]
			}

			return keys[i] < keys[j]
		})

		fmt.Println("Matched keys:")

		for _, key := range keys {
			fmt.Printf("  %-16s %s\n", key, textutils.FormatInt(int64(byKey[key])))
		}

		collisions := 0

		for cell, names := range cells {
			if len(names) > 1 {
				collisions++

				fmt.Printf("Collision at H3 cell %s: %v\n", cell, names)
			}
		}

		if collisions == 0 {
			fmt.Println("No H3 res-9 collisions")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(datasetCmd)
	datasetCmd.AddCommand(datasetEnrichCmd)
	datasetCmd.AddCommand(datasetVerifyCmd)
	datasetCmd.AddCommand(datasetStatsCmd)

	datasetCmd.PersistentFlags().StringVar(
		&datasetOptions.Input,
		"input",
		"data/gardens.json",
		"Path to the dataset snapshot",
	)
	datasetCmd.PersistentFlags().StringVar(
		&datasetOptions.Knowledge,
		"knowledge",
		"geocode/knowledge.json",
		"Path to the knowledge base",
	)
	datasetEnrichCmd.PersistentFlags().StringVar(
		&datasetOptions.Output,
		"output",
		"",
		"Path for the enriched snapshot. Defaults to overwriting the input",
	)
	datasetEnrichCmd.PersistentFlags().BoolVar(
		&datasetOptions.Strict,
		"strict",
		false,
		"Abort on the first malformed record instead of skipping it",
	)
	datasetEnrichCmd.PersistentFlags().BoolVar(
		&datasetOptions.DryRun,
		"dry-run",
		false,
		"Assign and report without writing anything",
	)
}
