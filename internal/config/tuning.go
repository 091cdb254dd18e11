package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/geofix-app/geofix/internal/solver"
)

// DefaultConfigPath is the path to the canonical tuning defaults file,
// relative to the repository root. This is the single source of truth for
// the service-wide solver defaults.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the service-level solver tuning. The schema matches the
// /api/config endpoint so the same JSON describes both startup
// configuration and the effective values reported at runtime. All fields
// are pointers so a partial file overrides only what it names.
type TuningConfig struct {
	// Consensus-search defaults applied to requests that omit their ransac
	// block.
	RansacMaxIters   *int     `json:"ransac_max_iters,omitempty"`
	RansacInlierPx   *float64 `json:"ransac_inlier_px,omitempty"`
	RansacTargetProb *float64 `json:"ransac_target_prob,omitempty"`

	// Refinement defaults applied to requests that omit their refine block.
	RefineMaxIters   *int     `json:"refine_max_iters,omitempty"`
	RefineLoss       *string  `json:"refine_loss,omitempty"` // "none" or "huber"
	RefineHuberDelta *float64 `json:"refine_huber_delta,omitempty"`

	// Observation uncertainty assumed for correspondences that carry none.
	SigmaPx *float64 `json:"sigma_px,omitempty"`
	SigmaM  *float64 `json:"sigma_m,omitempty"`

	// Bootstrap resample count for requests that enable bootstrap without
	// choosing one.
	BootstrapSamples *int `json:"bootstrap_samples,omitempty"`

	// HTTP service limits.
	RequestTimeout  *string `json:"request_timeout,omitempty"` // duration string like "30s"
	MaxRequestBytes *int64  `json:"max_request_bytes,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into an empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.RansacMaxIters != nil && *c.RansacMaxIters < 0 {
		return fmt.Errorf("ransac_max_iters must be non-negative, got %d", *c.RansacMaxIters)
	}
	if c.RansacInlierPx != nil && *c.RansacInlierPx <= 0 {
		return fmt.Errorf("ransac_inlier_px must be positive, got %f", *c.RansacInlierPx)
	}
	if c.RansacTargetProb != nil && (*c.RansacTargetProb <= 0 || *c.RansacTargetProb >= 1) {
		return fmt.Errorf("ransac_target_prob must be in (0, 1), got %f", *c.RansacTargetProb)
	}
	if c.RefineMaxIters != nil && *c.RefineMaxIters < 0 {
		return fmt.Errorf("refine_max_iters must be non-negative, got %d", *c.RefineMaxIters)
	}
	if c.RefineLoss != nil && !solver.RobustLoss(*c.RefineLoss).IsValid() {
		return fmt.Errorf("refine_loss must be one of none, huber; got %q", *c.RefineLoss)
	}
	if c.RefineHuberDelta != nil && *c.RefineHuberDelta <= 0 {
		return fmt.Errorf("refine_huber_delta must be positive, got %f", *c.RefineHuberDelta)
	}
	if c.SigmaPx != nil && *c.SigmaPx <= 0 {
		return fmt.Errorf("sigma_px must be positive, got %f", *c.SigmaPx)
	}
	if c.SigmaM != nil && *c.SigmaM <= 0 {
		return fmt.Errorf("sigma_m must be positive, got %f", *c.SigmaM)
	}
	if c.BootstrapSamples != nil && *c.BootstrapSamples < 0 {
		return fmt.Errorf("bootstrap_samples must be non-negative, got %d", *c.BootstrapSamples)
	}
	if c.RequestTimeout != nil && *c.RequestTimeout != "" {
		if _, err := time.ParseDuration(*c.RequestTimeout); err != nil {
			return fmt.Errorf("invalid request_timeout '%s': %w", *c.RequestTimeout, err)
		}
	}
	if c.MaxRequestBytes != nil && *c.MaxRequestBytes <= 0 {
		return fmt.Errorf("max_request_bytes must be positive, got %d", *c.MaxRequestBytes)
	}
	return nil
}

// GetRansacMaxIters returns the ransac_max_iters value or the solver default.
func (c *TuningConfig) GetRansacMaxIters() int {
	if c.RansacMaxIters == nil {
		return solver.DefaultRansacMaxIters
	}
	return *c.RansacMaxIters
}

// GetRansacInlierPx returns the ransac_inlier_px value or the solver default.
func (c *TuningConfig) GetRansacInlierPx() float64 {
	if c.RansacInlierPx == nil {
		return solver.DefaultInlierPx
	}
	return *c.RansacInlierPx
}

// GetRansacTargetProb returns the ransac_target_prob value or the solver default.
func (c *TuningConfig) GetRansacTargetProb() float64 {
	if c.RansacTargetProb == nil {
		return solver.DefaultTargetProb
	}
	return *c.RansacTargetProb
}

// GetRefineMaxIters returns the refine_max_iters value or the solver default.
func (c *TuningConfig) GetRefineMaxIters() int {
	if c.RefineMaxIters == nil {
		return solver.DefaultRefineMaxIters
	}
	return *c.RefineMaxIters
}

// GetRefineLoss returns the refine_loss value or the solver default.
func (c *TuningConfig) GetRefineLoss() string {
	if c.RefineLoss == nil || *c.RefineLoss == "" {
		return string(solver.RobustLossHuber)
	}
	return *c.RefineLoss
}

// GetRefineHuberDelta returns the refine_huber_delta value or the solver default.
func (c *TuningConfig) GetRefineHuberDelta() float64 {
	if c.RefineHuberDelta == nil {
		return solver.DefaultHuberDelta
	}
	return *c.RefineHuberDelta
}

// GetSigmaPx returns the sigma_px value or the solver default.
func (c *TuningConfig) GetSigmaPx() float64 {
	if c.SigmaPx == nil {
		return solver.DefaultSigmaPx
	}
	return *c.SigmaPx
}

// GetSigmaM returns the sigma_m value or the solver default.
func (c *TuningConfig) GetSigmaM() float64 {
	if c.SigmaM == nil {
		return solver.DefaultSigmaM
	}
	return *c.SigmaM
}

// GetBootstrapSamples returns the bootstrap_samples value or the solver default.
func (c *TuningConfig) GetBootstrapSamples() int {
	if c.BootstrapSamples == nil {
		return solver.DefaultBootstrapSamples
	}
	return *c.BootstrapSamples
}

// GetRequestTimeout parses and returns the RequestTimeout as a time.Duration.
func (c *TuningConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout == nil || *c.RequestTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetMaxRequestBytes returns the max_request_bytes value or the default (8MB).
func (c *TuningConfig) GetMaxRequestBytes() int64 {
	if c.MaxRequestBytes == nil {
		return 8 << 20
	}
	return *c.MaxRequestBytes
}

// ApplyDefaults fills the tunable blocks a request omitted, so one solve
// sees the same effective settings whether they came from the request or
// from service configuration. Explicit request values always win.
func (c *TuningConfig) ApplyDefaults(req *solver.SolveRequest) {
	if req == nil {
		return
	}
	if req.Ransac == nil {
		req.Ransac = &solver.RansacConfig{
			MaxIters:   c.GetRansacMaxIters(),
			InlierPx:   c.GetRansacInlierPx(),
			TargetProb: c.GetRansacTargetProb(),
		}
	}
	if req.Refine == nil {
		delta := c.GetRefineHuberDelta()
		req.Refine = &solver.RefineConfig{
			MaxIters:   c.GetRefineMaxIters(),
			RobustLoss: solver.RobustLoss(c.GetRefineLoss()),
			HuberDelta: &delta,
		}
	}
	if req.Uncertainty != nil && req.Uncertainty.Bootstrap.Enabled && req.Uncertainty.Bootstrap.Samples == 0 {
		req.Uncertainty.Bootstrap.Samples = c.GetBootstrapSamples()
	}
	for i := range req.Correspondences {
		if req.Correspondences[i].Pixel.SigmaPx == nil {
			v := c.GetSigmaPx()
			req.Correspondences[i].Pixel.SigmaPx = &v
		}
		if req.Correspondences[i].World.SigmaM == nil {
			v := c.GetSigmaM()
			req.Correspondences[i].World.SigmaM = &v
		}
	}
}
