// Copyright 2025 The Yuanlin Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/suzhouyl/yuanlin/gardens"
	"github.com/suzhouyl/yuanlin/geocode"
	"github.com/suzhouyl/yuanlin/utils/httputils"
	"github.com/suzhouyl/yuanlin/utils/textutils"
)

var geocodeOptions = struct {
	Input               string
	Output              string
	Knowledge           string
	Provider            string
	Delay               time.Duration
	OnlyMissing         bool
	EnableHTTPTrace     bool
	EnableHTTPBodyTrace bool
}{}

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocode the dataset through an online provider",
}

func buildTransport() http.RoundTripper {
	var httpLogWriter io.Writer
	if geocodeOptions.EnableHTTPTrace {
		httpLogWriter = os.Stderr
	}

	loggingTransport := &httputils.LoggingRoundTripper{
		Writer:   httpLogWriter,
		DumpBody: geocodeOptions.EnableHTTPBodyTrace,
		Transport: &http.Transport{
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   4,
			MaxConnsPerHost:       4,
			IdleConnTimeout:       30 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	return &httputils.AppendRequestHeadersRoundTripper{
		Headers: map[string]string{
			"User-Agent": fmt.Sprintf("yuanlin/%s (+https://github.com/suzhouyl/yuanlin)", Version),
			"Accept":     "application/json",
		},
		Transport: loggingTransport,
	}
}

func buildProvider() (geocode.Geocoder, error) {
	// A missing .env file is fine, keys may come from the environment
	_ = godotenv.Load()

	switch geocodeOptions.Provider {
	case "amap":
		apiKey := os.Getenv("AMAP_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("AMAP_API_KEY is not set")
		}

		return geocode.NewAmapGeocoder(apiKey, buildTransport()), nil
	case "baidu":
		apiKey := os.Getenv("BAIDU_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("BAIDU_API_KEY is not set")
		}

		return geocode.NewBaiduGeocoder(apiKey, buildTransport()), nil
	default:
		return nil, fmt.Errorf("unknown provider %q, expected amap or baidu", geocodeOptions.Provider)
	}
}

func geocodeWithRetry(provider geocode.Geocoder, name, address string) (*geocode.Result, error) {
	result, err := provider.Geocode(name, address)
	if err != nil && geocode.IsRateLimitError(err) {
		log.Printf("⏳ rate limited, backing off before retrying %s", name)
		time.Sleep(5 * geocodeOptions.Delay)

		result, err = provider.Geocode(name, address)
	}

	return result, err
}

var geocodeUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Assign coordinates from an online geocoding provider",
	Long: `Resolves garden addresses through the configured provider, falling back to
the local knowledge base when the provider has no answer. Requests are spaced
by the configured delay to stay within provider quotas.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		provider, err := buildProvider()
		if err != nil {
			return err
		}

		kb, err := geocode.LoadKnowledge(geocodeOptions.Knowledge)
		if err != nil {
			return fmt.Errorf("loading knowledge base: %w", err)
		}

		fallback := geocode.NewAssigner(kb)

		ds, err := gardens.Load(geocodeOptions.Input, false)
		if err != nil {
			return fmt.Errorf("loading dataset: %w", err)
		}

		var bar *progressbar.ProgressBar
		if isatty.IsTerminal(os.Stderr.Fd()) {
			bar = progressbar.NewOptions(len(ds.Records),
				progressbar.OptionSetDescription("Geocoding via "+geocodeOptions.Provider),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}

		resolved, fellBack, skipped := 0, 0, 0

		for _, record := range ds.Records {
			if bar != nil {
				_ = bar.Add(1)
			}

			if !record.Valid() {
				skipped++

				continue
			}

			if geocodeOptions.OnlyMissing && record.GPS != nil {
				skipped++

				continue
			}

			result, err := geocodeWithRetry(provider, record.OfficialName, record.Address)
			if err != nil {
				if geocode.IsQuotaExceededError(err) {
					return fmt.Errorf("provider quota exhausted at %s: %w", record.OfficialName, err)
				}

				if geocode.IsNotFoundError(err) {
					log.Printf("ℹ️  %s: provider has no result, using knowledge base", record.OfficialName)
				} else {
					log.Printf("⚠️  %s: provider lookup failed (%v), using knowledge base", record.OfficialName, err)
				}

				result, err = fallback.Geocode(record.OfficialName, record.Address)
				if err != nil {
					return fmt.Errorf("assigning %s: %w", record.OfficialName, err)
				}

				fellBack++
			} else {
				resolved++
			}

			if err := geocode.ValidateResult(result); err != nil {
				log.Printf("⚠️  %s: computed coordinates rejected: %v", record.OfficialName, err)

				skipped++

				continue
			}

			record.SetGPS(result.Point)

			time.Sleep(geocodeOptions.Delay)
		}

		fmt.Printf("✅ Geocoded %s gardens via %s, %s via knowledge base, %s skipped\n",
			textutils.FormatInt(int64(resolved)),
			geocodeOptions.Provider,
			textutils.FormatInt(int64(fellBack)),
			textutils.FormatInt(int64(skipped)))

		output := geocodeOptions.Output
		if output == "" {
			output = geocodeOptions.Input
		}

		if err := ds.Save(output); err != nil {
			return fmt.Errorf("saving dataset: %w", err)
		}

		fmt.Printf("✅ Wrote %s\n", output)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(geocodeCmd)
	geocodeCmd.AddCommand(geocodeUpdateCmd)

	geocodeCmd.PersistentFlags().StringVar(
		&geocodeOptions.Input,
		"input",
		"data/gardens.json",
		"Path to the dataset snapshot",
	)
	geocodeCmd.PersistentFlags().StringVar(
		&geocodeOptions.Output,
		"output",
		"",
		"Path for the enriched snapshot. Defaults to overwriting the input",
	)
	geocodeCmd.PersistentFlags().StringVar(
		&geocodeOptions.Knowledge,
		"knowledge",
		"geocode/knowledge.json",
		"Path to the knowledge base used as fallback",
	)
	geocodeUpdateCmd.PersistentFlags().StringVar(
		&geocodeOptions.Provider,
		"provider",
		"amap",
		"Online geocoding provider (amap or baidu)",
	)
	geocodeUpdateCmd.PersistentFlags().DurationVar(
		&geocodeOptions.Delay,
		"delay",
		500*time.Millisecond,
		"Pause between provider requests",
	)
	geocodeUpdateCmd.PersistentFlags().BoolVar(
		&geocodeOptions.OnlyMissing,
		"only-missing",
		false,
		"Only geocode gardens without coordinates",
	)
	geocodeUpdateCmd.PersistentFlags().BoolVar(
		&geocodeOptions.EnableHTTPTrace,
		"trace-http",
		false,
		"Display HTTP requests-responses",
	)
	geocodeUpdateCmd.PersistentFlags().BoolVar(
		&geocodeOptions.EnableHTTPBodyTrace,
		"trace-http-body",
		false,
		"Display HTTP requests-responses bodies",
	)
}
