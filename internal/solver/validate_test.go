package solver

import (
	"errors"
	"math"
	"strings"
	"testing"
)

// validRequest builds the smallest request that passes validation: four
// well-formed fixed-focal correspondences with the focal prior supplied.
func validRequest() *SolveRequest {
	corrs := make([]Correspondence, 4)
	for i := range corrs {
		corrs[i] = Correspondence{
			ID:    string(rune('a' + i)),
			Pixel: PixelObservation{U: 100 + 50*float64(i), V: 200 + 30*float64(i)},
			World: WorldPoint{Lat: 47.6 + 0.001*float64(i), Lon: -122.3 + 0.0015*float64(i)},
		}
	}
	return &SolveRequest{
		Image:           ImageSize{Width: 1000, Height: 750},
		Correspondences: corrs,
		Priors:          &Priors{FocalPx: &Prior{Mean: 1000, Sigma: 100}},
	}
}

func TestValidateRequest(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SolveRequest)
		want   string // substring of the error message, empty when valid
	}{
		{"valid", func(r *SolveRequest) {}, ""},
		{"zero width", func(r *SolveRequest) { r.Image.Width = 0 }, "image dimensions"},
		{"nan height", func(r *SolveRequest) { r.Image.Height = math.NaN() }, "image dimensions"},
		{"empty id", func(r *SolveRequest) { r.Correspondences[1].ID = "" }, "empty id"},
		{"duplicate id", func(r *SolveRequest) { r.Correspondences[2].ID = "a" }, "duplicate"},
		{"nan pixel", func(r *SolveRequest) { r.Correspondences[0].Pixel.U = math.NaN() }, "non-finite pixel"},
		{"zero sigmaPx", func(r *SolveRequest) { r.Correspondences[0].Pixel.SigmaPx = floatPtr(0) }, "sigmaPx"},
		{"lat out of range", func(r *SolveRequest) { r.Correspondences[3].World.Lat = 91 }, "latitude"},
		{"lon out of range", func(r *SolveRequest) { r.Correspondences[3].World.Lon = -181 }, "longitude"},
		{"infinite alt", func(r *SolveRequest) { r.Correspondences[0].World.Alt = floatPtr(math.Inf(1)) }, "altitude"},
		{"negative sigmaM", func(r *SolveRequest) { r.Correspondences[0].World.SigmaM = floatPtr(-1) }, "sigmaM"},
		{"missing focal prior", func(r *SolveRequest) { r.Priors = nil }, "focalPx is absent"},
		{"non-positive focal mean", func(r *SolveRequest) { r.Priors.FocalPx.Mean = -5 }, "must be positive"},
		{"zero prior sigma", func(r *SolveRequest) { r.Priors.FocalPx.Sigma = 0 }, "sigma must be positive"},
		{"bad alt prior", func(r *SolveRequest) {
			r.Priors.CameraAlt = &Prior{Mean: math.NaN(), Sigma: 1}
		}, "mean must be finite"},
		{"inverted bounds", func(r *SolveRequest) {
			r.Priors.Bounds = &Bounds{MinLat: 48, MaxLat: 47, MinLon: -123, MaxLon: -122}
		}, "latitude range"},
		{"bad bounds sigma", func(r *SolveRequest) {
			r.Priors.Bounds = &Bounds{MinLat: 47, MaxLat: 48, MinLon: -123, MaxLon: -122, SigmaM: floatPtr(-1)}
		}, "bounds.sigmaM"},
		{"negative ransac iters", func(r *SolveRequest) { r.Ransac = &RansacConfig{MaxIters: -1} }, "maxIters"},
		{"nan inlier threshold", func(r *SolveRequest) { r.Ransac = &RansacConfig{InlierPx: math.NaN()} }, "inlierPx"},
		{"target prob one", func(r *SolveRequest) { r.Ransac = &RansacConfig{TargetProb: 1} }, "targetProb"},
		{"unknown loss", func(r *SolveRequest) { r.Refine = &RefineConfig{RobustLoss: "tukey"} }, "robustLoss"},
		{"zero huber delta", func(r *SolveRequest) { r.Refine = &RefineConfig{HuberDelta: floatPtr(0)} }, "huberDelta"},
		{"negative bootstrap samples", func(r *SolveRequest) {
			r.Uncertainty = &UncertaintyConfig{Bootstrap: BootstrapConfig{Samples: -1}}
		}, "bootstrap.samples"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(req)
			err := validateRequest(req)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("validateRequest() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("validateRequest() = nil, want error containing %q", tc.want)
			}
			if got := KindOf(err); got != KindInvalidInput {
				t.Errorf("KindOf() = %q, want %q", got, KindInvalidInput)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateNilRequest(t *testing.T) {
	if err := validateRequest(nil); KindOf(err) != KindInvalidInput {
		t.Fatalf("validateRequest(nil) = %v, want invalid_input", err)
	}
}

func TestKindOfForeignError(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != "" {
		t.Fatalf("KindOf(plain error) = %q, want empty", got)
	}
	if got := KindOf(nil); got != "" {
		t.Fatalf("KindOf(nil) = %q, want empty", got)
	}
}
