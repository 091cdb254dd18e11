package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/geofix-app/geofix/internal/solver"
)

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "ransac_max_iters": 5000,
  "ransac_inlier_px": 3.0,
  "ransac_target_prob": 0.99,
  "refine_max_iters": 100,
  "refine_loss": "none",
  "refine_huber_delta": 2.0,
  "sigma_px": 0.5,
  "sigma_m": 0.25,
  "bootstrap_samples": 500,
  "request_timeout": "60s",
  "max_request_bytes": 1048576
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetRansacMaxIters() != 5000 {
		t.Errorf("GetRansacMaxIters() = %d, want 5000", cfg.GetRansacMaxIters())
	}
	if cfg.GetRansacInlierPx() != 3.0 {
		t.Errorf("GetRansacInlierPx() = %f, want 3.0", cfg.GetRansacInlierPx())
	}
	if cfg.GetRansacTargetProb() != 0.99 {
		t.Errorf("GetRansacTargetProb() = %f, want 0.99", cfg.GetRansacTargetProb())
	}
	if cfg.GetRefineMaxIters() != 100 {
		t.Errorf("GetRefineMaxIters() = %d, want 100", cfg.GetRefineMaxIters())
	}
	if cfg.GetRefineLoss() != "none" {
		t.Errorf("GetRefineLoss() = %q, want none", cfg.GetRefineLoss())
	}
	if cfg.GetRefineHuberDelta() != 2.0 {
		t.Errorf("GetRefineHuberDelta() = %f, want 2.0", cfg.GetRefineHuberDelta())
	}
	if cfg.GetSigmaPx() != 0.5 {
		t.Errorf("GetSigmaPx() = %f, want 0.5", cfg.GetSigmaPx())
	}
	if cfg.GetSigmaM() != 0.25 {
		t.Errorf("GetSigmaM() = %f, want 0.25", cfg.GetSigmaM())
	}
	if cfg.GetBootstrapSamples() != 500 {
		t.Errorf("GetBootstrapSamples() = %d, want 500", cfg.GetBootstrapSamples())
	}
	if cfg.GetRequestTimeout() != 60*time.Second {
		t.Errorf("GetRequestTimeout() = %v, want 60s", cfg.GetRequestTimeout())
	}
	if cfg.GetMaxRequestBytes() != 1048576 {
		t.Errorf("GetMaxRequestBytes() = %d, want 1048576", cfg.GetMaxRequestBytes())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("Expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "ransac_inlier_px": "invalid"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error when loading invalid JSON, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name: "negative ransac iters",
			cfg: &TuningConfig{
				RansacMaxIters: ptrInt(-1),
			},
			wantErr: true,
		},
		{
			name: "zero inlier threshold",
			cfg: &TuningConfig{
				RansacInlierPx: ptrFloat64(0),
			},
			wantErr: true,
		},
		{
			name: "target prob at one",
			cfg: &TuningConfig{
				RansacTargetProb: ptrFloat64(1.0),
			},
			wantErr: true,
		},
		{
			name: "unknown loss",
			cfg: &TuningConfig{
				RefineLoss: ptrString("cauchy"),
			},
			wantErr: true,
		},
		{
			name: "negative sigma",
			cfg: &TuningConfig{
				SigmaPx: ptrFloat64(-1),
			},
			wantErr: true,
		},
		{
			name: "invalid request timeout",
			cfg: &TuningConfig{
				RequestTimeout: ptrString("invalid"),
			},
			wantErr: true,
		},
		{
			name: "zero max request bytes",
			cfg: &TuningConfig{
				MaxRequestBytes: ptrInt64(0),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetterDefaults(t *testing.T) {
	// An empty config falls back to the solver package defaults.
	cfg := &TuningConfig{}

	if cfg.GetRansacMaxIters() != solver.DefaultRansacMaxIters {
		t.Errorf("GetRansacMaxIters() = %d, want %d", cfg.GetRansacMaxIters(), solver.DefaultRansacMaxIters)
	}
	if cfg.GetRansacInlierPx() != solver.DefaultInlierPx {
		t.Errorf("GetRansacInlierPx() = %f, want %f", cfg.GetRansacInlierPx(), solver.DefaultInlierPx)
	}
	if cfg.GetRefineLoss() != string(solver.RobustLossHuber) {
		t.Errorf("GetRefineLoss() = %q, want huber", cfg.GetRefineLoss())
	}
	if cfg.GetBootstrapSamples() != solver.DefaultBootstrapSamples {
		t.Errorf("GetBootstrapSamples() = %d, want %d", cfg.GetBootstrapSamples(), solver.DefaultBootstrapSamples)
	}
	if cfg.GetRequestTimeout() != 30*time.Second {
		t.Errorf("GetRequestTimeout() = %v, want 30s", cfg.GetRequestTimeout())
	}
	if cfg.GetMaxRequestBytes() != 8<<20 {
		t.Errorf("GetMaxRequestBytes() = %d, want %d", cfg.GetMaxRequestBytes(), int64(8<<20))
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.defaults.json")
	if err != nil {
		t.Fatalf("Failed to load defaults: %v", err)
	}
	if cfg.GetRansacMaxIters() != 2000 {
		t.Errorf("Expected 2000, got %d", cfg.GetRansacMaxIters())
	}
	if cfg.GetRefineLoss() != "huber" {
		t.Errorf("Expected huber, got %q", cfg.GetRefineLoss())
	}
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.example.json")
	if err != nil {
		t.Fatalf("Failed to load example: %v", err)
	}
	if cfg.GetRansacInlierPx() != 3.0 {
		t.Errorf("Expected 3.0, got %f", cfg.GetRansacInlierPx())
	}
	if cfg.GetBootstrapSamples() != 200 {
		t.Errorf("Expected 200, got %d", cfg.GetBootstrapSamples())
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	// Partial config: only override the inlier threshold; everything else
	// should keep defaults.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "ransac_inlier_px": 4.0
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	if cfg.GetRansacInlierPx() != 4.0 {
		t.Errorf("Expected overridden inlier threshold 4.0, got %f", cfg.GetRansacInlierPx())
	}
	if cfg.GetRansacMaxIters() != solver.DefaultRansacMaxIters {
		t.Errorf("Expected default max iters, got %d", cfg.GetRansacMaxIters())
	}
	if cfg.GetRequestTimeout() != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", cfg.GetRequestTimeout())
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	largeData := make([]byte, 2*1024*1024) // 2MB
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("Failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for file size > 1MB, got nil")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &TuningConfig{
		RansacMaxIters:   ptrInt(800),
		RansacInlierPx:   ptrFloat64(2.5),
		RefineLoss:       ptrString("none"),
		SigmaPx:          ptrFloat64(0.7),
		BootstrapSamples: ptrInt(64),
	}
	req := &solver.SolveRequest{
		Image: solver.ImageSize{Width: 1000, Height: 750},
		Correspondences: []solver.Correspondence{
			{ID: "a", Pixel: solver.PixelObservation{U: 1, V: 2}},
		},
		Uncertainty: &solver.UncertaintyConfig{Bootstrap: solver.BootstrapConfig{Enabled: true}},
	}

	cfg.ApplyDefaults(req)

	if req.Ransac == nil || req.Ransac.MaxIters != 800 || req.Ransac.InlierPx != 2.5 {
		t.Errorf("ransac block not filled from config: %+v", req.Ransac)
	}
	if req.Refine == nil || req.Refine.RobustLoss != solver.RobustLossNone {
		t.Errorf("refine block not filled from config: %+v", req.Refine)
	}
	if req.Uncertainty.Bootstrap.Samples != 64 {
		t.Errorf("bootstrap samples = %d, want 64", req.Uncertainty.Bootstrap.Samples)
	}
	if req.Correspondences[0].Pixel.SigmaPx == nil || *req.Correspondences[0].Pixel.SigmaPx != 0.7 {
		t.Errorf("sigmaPx not filled from config")
	}
	if req.Correspondences[0].World.SigmaM == nil || *req.Correspondences[0].World.SigmaM != solver.DefaultSigmaM {
		t.Errorf("sigmaM not filled from config default")
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &TuningConfig{RansacMaxIters: ptrInt(800)}
	req := &solver.SolveRequest{
		Ransac: &solver.RansacConfig{MaxIters: 123},
	}

	cfg.ApplyDefaults(req)

	if req.Ransac.MaxIters != 123 {
		t.Errorf("explicit ransac.maxIters overwritten: %d", req.Ransac.MaxIters)
	}
}
