// Command report renders solve diagnostics as PNG plots and an HTML page.
//
// It takes the request/response pair from a solve run and writes a residual
// scatter, a residual histogram and, when the response carries bootstrap
// samples, position and focal spread plots.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/geofix-app/geofix/internal/report"
	"github.com/geofix-app/geofix/internal/solver"
)

func main() {
	requestPath := flag.String("request", "request.json", "solve request JSON")
	responsePath := flag.String("response", "response.json", "solve response JSON")
	outDir := flag.String("out", "report", "output directory for plots")
	htmlPath := flag.String("html", "", "HTML report path (default: <out>/report.html)")
	flag.Parse()

	var req solver.SolveRequest
	if err := readJSON(*requestPath, &req); err != nil {
		log.Fatal(err)
	}
	var resp solver.SolveResponse
	if err := readJSON(*responsePath, &resp); err != nil {
		log.Fatal(err)
	}

	r, err := report.New(&req, &resp)
	if err != nil {
		log.Fatalf("failed to build report: %v", err)
	}

	written, err := r.SavePlots(*outDir)
	if err != nil {
		log.Fatalf("failed to render plots: %v", err)
	}
	for _, path := range written {
		log.Printf("✓ wrote %s", path)
	}

	path := *htmlPath
	if path == "" {
		path = filepath.Join(*outDir, "report.html")
	}
	f, err := os.Create(path)
	if err != nil {
		log.Fatalf("failed to create %s: %v", path, err)
	}
	if err := r.WriteHTML(f); err != nil {
		f.Close()
		log.Fatalf("failed to render HTML report: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("failed to write %s: %v", path, err)
	}
	log.Printf("✓ wrote %s", path)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
