// Command synth generates synthetic solve scenarios with known ground truth.
//
// It writes a solve request plus a truth sidecar (the exact pose and
// intrinsics the observations were projected from), so solver output can be
// scored against what generated it.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/geofix-app/geofix/internal/synth"
)

func main() {
	out := flag.String("out", "request.json", "request output path")
	truthOut := flag.String("truth", "", "ground truth output path (default: <out> with a .truth.json suffix)")
	seed := flag.Uint64("seed", 1, "scenario seed; identical seeds reproduce identical files")
	points := flag.Int("points", 12, "number of world points")
	spread := flag.Float64("spread-m", 60, "horizontal extent of the point field in meters")
	noise := flag.Float64("noise-px", 0, "gaussian pixel noise sigma")
	outliers := flag.Float64("outlier-rate", 0, "fraction of observations replaced with gross outliers")
	estimateFocal := flag.Bool("estimate-focal", false, "mark focal length as unknown instead of supplying a prior")
	flag.Parse()

	scenario := defaultScenario(*seed, *points, *spread, *noise, *outliers, *estimateFocal)

	req, truth, err := scenario.Generate()
	if err != nil {
		log.Fatalf("failed to generate scenario: %v", err)
	}

	truthPath := *truthOut
	if truthPath == "" {
		truthPath = truthPathFor(*out)
	}

	if err := writeJSON(*out, req); err != nil {
		log.Fatal(err)
	}
	log.Printf("✓ wrote %s (%d correspondences)", *out, len(req.Correspondences))

	if err := writeJSON(truthPath, truth); err != nil {
		log.Fatal(err)
	}
	log.Printf("✓ wrote %s", truthPath)
}

func defaultScenario(seed uint64, points int, spread, noise, outliers float64, estimateFocal bool) synth.Scenario {
	s := synth.Default()
	s.Seed = seed
	s.Points = points
	s.SpreadM = spread
	s.NoisePx = noise
	s.OutlierRate = outliers
	s.Model.EstimateFocal = estimateFocal
	return s
}

// truthPathFor derives the sidecar name: request.json -> request.truth.json.
func truthPathFor(out string) string {
	if strings.HasSuffix(out, ".json") {
		return strings.TrimSuffix(out, ".json") + ".truth.json"
	}
	return out + ".truth.json"
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
