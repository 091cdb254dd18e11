// Command solve runs the camera pose solver on a single request.
//
// It reads a solve request from -in (stdin when omitted), solves either
// in-process or on a remote geofix server, and writes the response to -out
// (stdout when omitted). The exit code identifies the failure class so
// shell pipelines can branch without parsing stderr.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/geofix-app/geofix/internal/client"
	"github.com/geofix-app/geofix/internal/config"
	"github.com/geofix-app/geofix/internal/monitoring"
	"github.com/geofix-app/geofix/internal/solver"
)

// Exit codes are stable for scripting.
const (
	exitOK                = 0
	exitError             = 1 // I/O, encoding or transport failure
	exitInvalidInput      = 2
	exitInsufficientCorrs = 3
	exitDegenerate        = 4
	exitNoConsensus       = 5
)

func main() {
	os.Exit(run())
}

func run() int {
	in := flag.String("in", "", "request JSON path (stdin when empty)")
	out := flag.String("out", "", "response JSON path (stdout when empty)")
	pretty := flag.Bool("pretty", false, "indent the response JSON")
	server := flag.String("server", "", "solve on a remote geofix server at this base URL instead of in-process")
	configPath := flag.String("config", "", "tuning config JSON applied to in-process solves")
	flag.Parse()

	req, err := readRequest(*in)
	if err != nil {
		log.Print(err)
		return exitCode(err)
	}

	start := time.Now()
	var resp *solver.SolveResponse
	if *server != "" {
		resp, err = client.New(*server, nil).Solve(req)
	} else {
		cfg := config.EmptyTuningConfig()
		if *configPath != "" {
			cfg, err = config.LoadTuningConfig(*configPath)
			if err != nil {
				log.Print(err)
				return exitError
			}
		}
		cfg.ApplyDefaults(req)
		resp, err = solver.Solve(req)
	}
	if err != nil {
		log.Print(err)
		return exitCode(err)
	}
	monitoring.Duration("solve", start)
	log.Printf("rmse %.3fpx, inlier ratio %.2f", resp.Diagnostics.RmsePx, resp.Diagnostics.InlierRatio)

	if err := writeResponse(*out, resp, *pretty); err != nil {
		log.Print(err)
		return exitError
	}
	return exitOK
}

// exitCode maps failure kinds onto exit codes. Remote solves carry the
// kind through the client's APIError, so local and remote runs exit the
// same way for the same failure.
func exitCode(err error) int {
	kind := solver.KindOf(err)
	if kind == "" {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			kind = apiErr.Kind
		}
	}
	switch kind {
	case solver.KindInvalidInput:
		return exitInvalidInput
	case solver.KindInsufficientCorrespondences:
		return exitInsufficientCorrs
	case solver.KindDegenerateGeometry:
		return exitDegenerate
	case solver.KindNoConsensus:
		return exitNoConsensus
	default:
		return exitError
	}
}

func readRequest(path string) (*solver.SolveRequest, error) {
	var data []byte
	var err error
	if path == "" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}

	var req solver.SolveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, solver.Errorf(solver.KindInvalidInput, "failed to parse request JSON: %v", err)
	}
	return &req, nil
}

func writeResponse(path string, resp *solver.SolveResponse, pretty bool) error {
	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(resp, "", "  ")
	} else {
		data, err = json.Marshal(resp)
	}
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
