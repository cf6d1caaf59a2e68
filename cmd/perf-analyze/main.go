// Command perf-analyze runs the anomaly analysis over a samples file and prints
// the result as JSON.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-perf/internal/engine"
	"github.com/miradorstack/mirador-perf/internal/models"
	"github.com/miradorstack/mirador-perf/internal/utils"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "perf-analyze:", err)
		if errors.Is(err, engine.ErrInsufficientData) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("perf-analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)
	samplesPath := fs.String("samples", "", "JSON file of samples (array, or object with a samples field)")
	settingsPath := fs.String("settings", "", "YAML or JSON analysis settings file")
	runID := fs.String("run-id", "local", "Run identifier to stamp on the result")
	rulesPath := fs.String("rules", "", "Recommendation rule pack")
	parallelism := fs.Int("parallelism", 1, "Transactions analysed concurrently")
	full := fs.Bool("full", false, "Print the full result instead of the events dataset")
	logLevel := fs.String("log-level", "warn", "Log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *samplesPath == "" {
		return errors.New("-samples is required")
	}

	logger := utils.NewLoggerTo(stderr, *logLevel, false)

	samples, err := readSamples(*samplesPath)
	if err != nil {
		return err
	}
	settings, err := readSettings(*settingsPath)
	if err != nil {
		return err
	}
	rules, err := engine.NewRuleEngine(*rulesPath, logger)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	eng := engine.New(logger, engine.WithParallelism(*parallelism), engine.WithRules(rules))
	result, err := eng.Analyze(models.FramesFromSamples(*runID, samples), settings)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if *full {
		return enc.Encode(result)
	}
	events := result.Events
	if events == nil {
		events = []models.ReportEvent{}
	}
	return enc.Encode(events)
}

func readSamples(path string) ([]models.Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var samples []models.Sample
		if err := json.Unmarshal(data, &samples); err != nil {
			return nil, fmt.Errorf("parse samples: %w", err)
		}
		return samples, nil
	}
	var wrapped struct {
		Samples []models.Sample `json:"samples"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse samples: %w", err)
	}
	return wrapped.Samples, nil
}

func readSettings(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	return raw, nil
}
