// Package client is a typed HTTP client for a remote geofix server. It
// mirrors the solver package's Solve and ReprojectPoints entry points, so
// callers can switch between in-process and remote solving without
// restructuring.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/geofix-app/geofix/internal/httputil"
	"github.com/geofix-app/geofix/internal/solver"
)

// Client talks to one geofix server.
type Client struct {
	baseURL string
	hc      httputil.HTTPClient
}

// New returns a client for the server at baseURL. A nil hc uses the
// default HTTP client; tests pass a MockHTTPClient.
func New(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), hc: hc}
}

// APIError is a non-2xx reply from the server. Kind carries the solver's
// failure classification when the server provided one, so remote callers
// can branch on it exactly like local ones do with solver.KindOf.
type APIError struct {
	Status int
	Kind   solver.ErrorKind
	Msg    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Kind, e.Msg)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Msg)
}

// Solve submits the request to the server and returns its response.
func (c *Client) Solve(req *solver.SolveRequest) (*solver.SolveResponse, error) {
	var resp solver.SolveResponse
	if err := c.postJSON("/api/solve", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// reprojectPayload matches the server's reproject request body.
type reprojectPayload struct {
	Pose        solver.Pose         `json:"pose"`
	Intrinsics  solver.Intrinsics   `json:"intrinsics"`
	WorldPoints []solver.WorldPoint `json:"worldPoints"`
}

// Reproject maps world points through a solved camera on the server.
func (c *Client) Reproject(pose solver.Pose, intr solver.Intrinsics, points []solver.WorldPoint) ([]solver.ReprojectedPoint, error) {
	var resp struct {
		Points []solver.ReprojectedPoint `json:"points"`
	}
	payload := reprojectPayload{Pose: pose, Intrinsics: intr, WorldPoints: points}
	if err := c.postJSON("/api/reproject", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Points, nil
}

// Version reports the server's build identification.
func (c *Client) Version() (map[string]string, error) {
	resp, err := c.hc.Get(c.baseURL + "/api/version")
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read server response: %w", err)
	}
	if resp.StatusCode != 200 {
		return nil, apiError(resp.StatusCode, body)
	}

	var version map[string]string
	if err := json.Unmarshal(body, &version); err != nil {
		return nil, fmt.Errorf("failed to decode version response: %w", err)
	}
	return version, nil
}

func (c *Client) postJSON(path string, payload, out interface{}) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.hc.Post(c.baseURL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read server response: %w", err)
	}
	if resp.StatusCode != 200 {
		return apiError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode server response: %w", err)
	}
	return nil
}

// apiError recovers the structured {error, kind} body the server writes
// for failures; anything unparseable is reported verbatim.
func apiError(status int, body []byte) *APIError {
	var parsed struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error == "" {
		return &APIError{Status: status, Msg: strings.TrimSpace(string(body))}
	}
	return &APIError{Status: status, Kind: solver.ErrorKind(parsed.Kind), Msg: parsed.Error}
}
