// Package synth builds solve scenarios with known ground truth: a camera
// placed at a chosen pose photographs a randomized point pattern, and the
// observations come back as a ready-to-solve request plus the truth needed
// to measure recovery error. The acceptance tests, cmd/synth, and demo
// fixtures all draw scenarios from here.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/geofix-app/geofix/internal/camera"
	"github.com/geofix-app/geofix/internal/geodesy"
	"github.com/geofix-app/geofix/internal/solver"
	"github.com/geofix-app/geofix/internal/units"
)

// edgeMarginPx keeps generated observations away from the image border,
// where real correspondences are rarely placed.
const edgeMarginPx = 20

// maxDrawFactor bounds rejection sampling: a scenario whose camera cannot
// see its own point area fails instead of spinning.
const maxDrawFactor = 200

// Scenario configures one synthetic solve setup. All randomness derives
// from Seed, so equal scenarios generate byte-identical requests.
type Scenario struct {
	Seed   uint64
	Anchor geodesy.LLA

	// True camera placement, in the anchor's ENU frame and degrees.
	CameraENU r3.Vector
	YawDeg    float64
	PitchDeg  float64
	RollDeg   float64

	// True optics. The principal point sits at the image center.
	FocalPx float64
	Image   solver.ImageSize

	// Point pattern: Points samples over a SpreadM half-extent square at
	// heights in [0, HeightM).
	Points  int
	SpreadM float64
	HeightM float64

	// Corruption. NoisePx is Gaussian pixel noise per axis; OutlierRate is
	// the fraction of observations replaced with uniform random pixels.
	NoisePx     float64
	OutlierRate float64

	// Request shape. Fixed-focal models get the true focal as a prior with
	// FocalPriorSigma spread.
	Model           solver.SolverModel
	FocalPriorSigma float64
}

// Default returns a moderate scenario: a fixed-focal camera 80 m south of
// a 60 m point spread, clean observations.
func Default() Scenario {
	return Scenario{
		Anchor:          geodesy.LLA{Lat: 47.6205, Lon: -122.3493, Alt: 56},
		CameraENU:       r3.Vector{X: 0, Y: -80, Z: 4},
		YawDeg:          4,
		PitchDeg:        -2,
		RollDeg:         0.5,
		FocalPx:         1000,
		Image:           solver.ImageSize{Width: 1000, Height: 750},
		Points:          12,
		SpreadM:         60,
		HeightM:         25,
		FocalPriorSigma: 50,
	}
}

// Truth is the ground truth behind a generated request.
type Truth struct {
	Pose       solver.Pose       `json:"pose"`
	Intrinsics solver.Intrinsics `json:"intrinsics"`
	CameraENU  r3.Vector         `json:"cameraEnu"`
	AnchorLat  float64           `json:"anchorLat"`
	AnchorLon  float64           `json:"anchorLon"`
	AnchorAlt  float64           `json:"anchorAlt"`
	OutlierIDs []string          `json:"outlierIds,omitempty"`
}

// Generate builds the request and its ground truth. It fails only when the
// camera cannot see enough of the configured point area.
func (s Scenario) Generate() (*solver.SolveRequest, *Truth, error) {
	if s.Points <= 0 {
		return nil, nil, fmt.Errorf("synth: scenario needs a positive point count, got %d", s.Points)
	}
	if s.FocalPx <= 0 || s.Image.Width <= 0 || s.Image.Height <= 0 {
		return nil, nil, fmt.Errorf("synth: focal and image dimensions must be positive")
	}

	src := rand.NewPCG(s.Seed, s.Seed^0x9e3779b97f4a7c15)
	rng := rand.New(src)
	noise := distuv.Normal{Mu: 0, Sigma: s.NoisePx, Src: src}

	frame := geodesy.NewFrame(s.Anchor)
	pose := camera.NewPose(s.CameraENU,
		units.Radians(s.YawDeg), units.Radians(s.PitchDeg), units.Radians(s.RollDeg))
	intr := camera.Intrinsics{FocalPx: s.FocalPx, Cx: s.Image.Width / 2, Cy: s.Image.Height / 2}

	world := make([]r3.Vector, 0, s.Points)
	pixels := make([][2]float64, 0, s.Points)
	for attempts := 0; len(world) < s.Points; attempts++ {
		if attempts >= s.Points*maxDrawFactor {
			return nil, nil, fmt.Errorf("synth: camera at %v sees too little of the %g m point area; drew %d candidates for %d accepted",
				s.CameraENU, s.SpreadM, attempts, len(world))
		}
		p := r3.Vector{
			X: (rng.Float64() - 0.5) * 2 * s.SpreadM,
			Y: (rng.Float64() - 0.5) * 2 * s.SpreadM,
			Z: rng.Float64() * s.HeightM,
		}
		u, v, ok := camera.Project(pose, intr, p)
		if !ok || u < edgeMarginPx || u > s.Image.Width-edgeMarginPx ||
			v < edgeMarginPx || v > s.Image.Height-edgeMarginPx {
			continue
		}
		world = append(world, p)
		pixels = append(pixels, [2]float64{u, v})
	}

	if s.NoisePx > 0 {
		for i := range pixels {
			pixels[i][0] += noise.Rand()
			pixels[i][1] += noise.Rand()
		}
	}

	var outlierIDs []string
	if s.OutlierRate > 0 {
		n := int(math.Round(s.OutlierRate * float64(s.Points)))
		for _, i := range rng.Perm(s.Points)[:n] {
			pixels[i][0] = edgeMarginPx + rng.Float64()*(s.Image.Width-2*edgeMarginPx)
			pixels[i][1] = edgeMarginPx + rng.Float64()*(s.Image.Height-2*edgeMarginPx)
			outlierIDs = append(outlierIDs, pointID(i))
		}
	}

	corrs := make([]solver.Correspondence, s.Points)
	for i := range corrs {
		lla := frame.ToLLA(world[i])
		alt := lla.Alt
		sigmaM := 0.05
		corrs[i] = solver.Correspondence{
			ID:    pointID(i),
			Pixel: solver.PixelObservation{U: pixels[i][0], V: pixels[i][1]},
			World: solver.WorldPoint{Lat: lla.Lat, Lon: lla.Lon, Alt: &alt, SigmaM: &sigmaM},
		}
		if s.NoisePx > 0 {
			sigmaPx := s.NoisePx
			corrs[i].Pixel.SigmaPx = &sigmaPx
		}
	}

	seed := s.Seed
	req := &solver.SolveRequest{
		Image:           s.Image,
		Correspondences: corrs,
		Model:           s.Model,
		Seed:            &seed,
	}
	if !s.Model.EstimateFocal {
		sigma := s.FocalPriorSigma
		if sigma <= 0 {
			sigma = 50
		}
		req.Priors = &solver.Priors{FocalPx: &solver.Prior{Mean: s.FocalPx, Sigma: sigma}}
	}

	camLLA := frame.ToLLA(s.CameraENU)
	truth := &Truth{
		Pose: solver.Pose{
			Lat: camLLA.Lat, Lon: camLLA.Lon, Alt: camLLA.Alt,
			YawDeg: s.YawDeg, PitchDeg: s.PitchDeg, RollDeg: s.RollDeg,
		},
		Intrinsics: solver.Intrinsics{FocalPx: s.FocalPx, Cx: intr.Cx, Cy: intr.Cy},
		CameraENU:  s.CameraENU,
		AnchorLat:  s.Anchor.Lat,
		AnchorLon:  s.Anchor.Lon,
		AnchorAlt:  s.Anchor.Alt,
		OutlierIDs: outlierIDs,
	}
	return req, truth, nil
}

// PositionErrorM measures the 3D distance in meters between a solved pose
// and this truth.
func (t *Truth) PositionErrorM(p solver.Pose) float64 {
	frame := geodesy.NewFrame(geodesy.LLA{Lat: t.AnchorLat, Lon: t.AnchorLon, Alt: t.AnchorAlt})
	got := frame.ToENU(geodesy.LLA{Lat: p.Lat, Lon: p.Lon, Alt: p.Alt})
	return got.Sub(t.CameraENU).Norm()
}

// AngleErrorsDeg measures seam-safe absolute orientation differences.
func (t *Truth) AngleErrorsDeg(p solver.Pose) (yaw, pitch, roll float64) {
	yaw = math.Abs(units.AngleDiffDeg(p.YawDeg, t.Pose.YawDeg))
	pitch = math.Abs(units.AngleDiffDeg(p.PitchDeg, t.Pose.PitchDeg))
	roll = math.Abs(units.AngleDiffDeg(p.RollDeg, t.Pose.RollDeg))
	return
}

func pointID(i int) string { return fmt.Sprintf("pt-%03d", i) }
