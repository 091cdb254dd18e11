package solver

// Request/response types for the two solver operations. Field names follow
// the camelCase wire format consumed by the front end; optional scalars are
// pointers with Get accessors supplying documented defaults, so absent and
// zero are distinguishable after a JSON round-trip.

// Defaults applied when optional request fields are absent.
const (
	// DefaultSigmaPx is the assumed pixel-observation standard deviation.
	DefaultSigmaPx = 1.0
	// DefaultSigmaM is the assumed world-position standard deviation in meters.
	DefaultSigmaM = 1.0
	// DefaultRansacMaxIters caps consensus-search iterations.
	DefaultRansacMaxIters = 2000
	// DefaultInlierPx is the reprojection-error inlier threshold in pixels.
	DefaultInlierPx = 2.0
	// DefaultTargetProb is the adaptive-stopping confidence target.
	DefaultTargetProb = 0.999
	// DefaultRefineMaxIters caps Levenberg-Marquardt iterations.
	DefaultRefineMaxIters = 50
	// DefaultHuberDelta is the Huber loss transition point in sigma-normalized
	// residual units.
	DefaultHuberDelta = 1.0
	// DefaultBootstrapSamples is the bootstrap resample count.
	DefaultBootstrapSamples = 100
	// DefaultBoundsSigmaM weights the geographic-bounds prior penalty:
	// meters outside the box per unit of normalized residual.
	DefaultBoundsSigmaM = 50.0
)

// Minimum enabled correspondences per solver variant. Both sit above the
// strict mathematical minimum (3 and 4) so hypotheses are testable against
// points outside the minimal set.
const (
	MinCorrespondencesFixedFocal = 4
	MinCorrespondencesFreeFocal  = 6
)

// ResidualSentinelPx marks correspondences with no defined reprojection
// (behind the camera) in per-point residual output. JSON cannot carry
// +Inf/NaN, so a large finite sentinel is used instead.
const ResidualSentinelPx = 1e9

// ImageSize is the pixel extent of the photograph being solved.
type ImageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PixelObservation is an observed image location with optional uncertainty.
type PixelObservation struct {
	U       float64  `json:"u"`
	V       float64  `json:"v"`
	SigmaPx *float64 `json:"sigmaPx,omitempty"`
}

// GetSigmaPx returns the observation standard deviation, defaulting to
// DefaultSigmaPx.
func (p PixelObservation) GetSigmaPx() float64 {
	if p.SigmaPx == nil || *p.SigmaPx <= 0 {
		return DefaultSigmaPx
	}
	return *p.SigmaPx
}

// WorldPoint is a geodetic location with optional altitude and uncertainty.
type WorldPoint struct {
	Lat    float64  `json:"lat"`
	Lon    float64  `json:"lon"`
	Alt    *float64 `json:"alt,omitempty"`
	SigmaM *float64 `json:"sigmaM,omitempty"`
}

// GetAlt returns the altitude in meters, defaulting to 0 (ellipsoid surface)
// when absent.
func (w WorldPoint) GetAlt() float64 {
	if w.Alt == nil {
		return 0
	}
	return *w.Alt
}

// GetSigmaM returns the world-position standard deviation, defaulting to
// DefaultSigmaM.
func (w WorldPoint) GetSigmaM() float64 {
	if w.SigmaM == nil || *w.SigmaM <= 0 {
		return DefaultSigmaM
	}
	return *w.SigmaM
}

// Correspondence links one pixel observation to one world location. Inputs
// are immutable; disabling excludes a correspondence from solving without
// deleting it.
type Correspondence struct {
	ID      string           `json:"id"`
	Pixel   PixelObservation `json:"pixel"`
	World   WorldPoint       `json:"world"`
	Enabled *bool            `json:"enabled,omitempty"`
}

// IsEnabled reports whether the correspondence participates in solving.
// Absent means enabled.
func (c Correspondence) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SolverModel selects which camera parameters are estimated. Position and
// orientation are always estimated; intrinsics join the parameter vector
// per these flags. EstimateTangential extends EstimateDistortion with the
// tangential pair p1, p2 and is ignored when EstimateDistortion is false.
type SolverModel struct {
	EstimateFocal          bool `json:"estimateFocal"`
	EstimatePrincipalPoint bool `json:"estimatePrincipalPoint"`
	EstimateDistortion     bool `json:"estimateDistortion"`
	EstimateTangential     bool `json:"estimateTangential,omitempty"`
}

// MinCorrespondences returns the smallest enabled-correspondence count the
// model can be solved from: the focal-variant floor, raised further when
// estimated distortion/principal-point parameters would otherwise leave the
// system underdetermined (each correspondence contributes two constraints).
func (m SolverModel) MinCorrespondences() int {
	min := MinCorrespondencesFixedFocal
	if m.EstimateFocal {
		min = MinCorrespondencesFreeFocal
	}
	if overdet := (newParamLayout(m).Dim()+1)/2 + 1; overdet > min {
		min = overdet
	}
	return min
}

// Prior is a soft Gaussian constraint on one scalar parameter.
type Prior struct {
	Mean  float64 `json:"mean"`
	Sigma float64 `json:"sigma"`
}

// Bounds is a soft geographic box constraint on the camera position. The
// penalty grows with the distance outside the box, in meters, scaled by
// SigmaM (DefaultBoundsSigmaM when unset). Inside the box there is no
// penalty.
type Bounds struct {
	MinLat float64  `json:"minLat"`
	MaxLat float64  `json:"maxLat"`
	MinLon float64  `json:"minLon"`
	MaxLon float64  `json:"maxLon"`
	SigmaM *float64 `json:"sigmaM,omitempty"`
}

// GetSigmaM returns the bounds penalty scale in meters.
func (b Bounds) GetSigmaM() float64 {
	if b.SigmaM == nil || *b.SigmaM <= 0 {
		return DefaultBoundsSigmaM
	}
	return *b.SigmaM
}

// Priors are optional soft constraints added to the refinement objective.
// A nil entry contributes no penalty term.
type Priors struct {
	FocalPx   *Prior  `json:"focalPx,omitempty"`
	CameraAlt *Prior  `json:"cameraAlt,omitempty"`
	Bounds    *Bounds `json:"bounds,omitempty"`
}

// RansacConfig governs the consensus search. Zero/absent fields take the
// package defaults; methods are nil-safe so a request may omit the whole
// block.
type RansacConfig struct {
	MaxIters   int     `json:"maxIters,omitempty"`
	InlierPx   float64 `json:"inlierPx,omitempty"`
	TargetProb float64 `json:"targetProb,omitempty"`
}

// GetMaxIters returns the iteration cap.
func (c *RansacConfig) GetMaxIters() int {
	if c == nil || c.MaxIters <= 0 {
		return DefaultRansacMaxIters
	}
	return c.MaxIters
}

// GetInlierPx returns the inlier reprojection threshold in pixels.
func (c *RansacConfig) GetInlierPx() float64 {
	if c == nil || c.InlierPx <= 0 {
		return DefaultInlierPx
	}
	return c.InlierPx
}

// GetTargetProb returns the adaptive-stopping confidence, clamped below 1.
func (c *RansacConfig) GetTargetProb() float64 {
	if c == nil || c.TargetProb <= 0 {
		return DefaultTargetProb
	}
	if c.TargetProb >= 1 {
		return DefaultTargetProb
	}
	return c.TargetProb
}

// RobustLoss selects the refinement loss function.
type RobustLoss string

// Supported robust losses.
const (
	RobustLossNone  RobustLoss = "none"
	RobustLossHuber RobustLoss = "huber"
)

// IsValid reports whether the loss name is recognized.
func (l RobustLoss) IsValid() bool {
	return l == RobustLossNone || l == RobustLossHuber
}

// RefineConfig governs Levenberg-Marquardt refinement.
type RefineConfig struct {
	MaxIters   int        `json:"maxIters,omitempty"`
	RobustLoss RobustLoss `json:"robustLoss,omitempty"`
	HuberDelta *float64   `json:"huberDelta,omitempty"`
}

// GetMaxIters returns the LM iteration cap.
func (c *RefineConfig) GetMaxIters() int {
	if c == nil || c.MaxIters <= 0 {
		return DefaultRefineMaxIters
	}
	return c.MaxIters
}

// GetRobustLoss returns the configured loss, defaulting to Huber.
func (c *RefineConfig) GetRobustLoss() RobustLoss {
	if c == nil || c.RobustLoss == "" {
		return RobustLossHuber
	}
	return c.RobustLoss
}

// GetHuberDelta returns the Huber transition point.
func (c *RefineConfig) GetHuberDelta() float64 {
	if c == nil || c.HuberDelta == nil || *c.HuberDelta <= 0 {
		return DefaultHuberDelta
	}
	return *c.HuberDelta
}

// BootstrapConfig governs bootstrap resampling.
type BootstrapConfig struct {
	Enabled bool    `json:"enabled"`
	Samples int     `json:"samples,omitempty"`
	Seed    *uint64 `json:"seed,omitempty"`
}

// GetSamples returns the resample count.
func (c *BootstrapConfig) GetSamples() int {
	if c == nil || c.Samples <= 0 {
		return DefaultBootstrapSamples
	}
	return c.Samples
}

// UncertaintyConfig selects uncertainty estimators beyond the always-on
// analytic covariance.
type UncertaintyConfig struct {
	Bootstrap BootstrapConfig `json:"bootstrap"`
}

// Pose is the solved camera placement: geodetic position plus orientation.
// Yaw is the azimuth of the viewing direction clockwise from north, pitch
// the elevation above the horizon, roll the rotation about the viewing axis
// (positive tips the camera's right side down). All in degrees.
type Pose struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Alt      float64 `json:"alt"`
	YawDeg   float64 `json:"yawDeg"`
	PitchDeg float64 `json:"pitchDeg"`
	RollDeg  float64 `json:"rollDeg"`
}

// Intrinsics is the solved camera interior: focal length and principal
// point in pixels, plus Brown-Conrady distortion coefficients when the
// model estimates them.
type Intrinsics struct {
	FocalPx float64  `json:"focalPx"`
	Cx      float64  `json:"cx"`
	Cy      float64  `json:"cy"`
	K1      *float64 `json:"k1,omitempty"`
	K2      *float64 `json:"k2,omitempty"`
	P1      *float64 `json:"p1,omitempty"`
	P2      *float64 `json:"p2,omitempty"`
}

// Covariance is the parameter covariance at the refinement optimum,
// flattened row-major. Labels name the parameter per row/column, in the
// same fixed order as the internal parameter vector.
type Covariance struct {
	Matrix []float64 `json:"matrix"`
	Labels []string  `json:"labels"`
}

// Dim returns the parameter-vector dimension, or 0 for an empty covariance.
func (c Covariance) Dim() int { return len(c.Labels) }

// Diagnostics reports fit quality for one solve. ResidualsPx holds one
// entry per enabled correspondence in request order; entries with no
// defined projection carry ResidualSentinelPx. Warnings collect the
// non-fatal conditions of the run.
type Diagnostics struct {
	RmsePx      float64   `json:"rmsePx"`
	InlierRatio float64   `json:"inlierRatio"`
	ResidualsPx []float64 `json:"residualsPx"`
	InlierIDs   []string  `json:"inlierIds"`
	Warnings    []string  `json:"warnings"`
}

// BootstrapSummary aggregates the per-sample estimates into scalar spreads.
// PositionStdM is the root-mean-square 3D distance of the resampled camera
// positions from the full-solve position; angle spreads are standard
// deviations of the seam-safe angular differences from the full solve.
type BootstrapSummary struct {
	PositionStdM float64 `json:"positionStdM"`
	YawStdDeg    float64 `json:"yawStdDeg"`
	PitchStdDeg  float64 `json:"pitchStdDeg"`
	RollStdDeg   float64 `json:"rollStdDeg"`
	FocalStdPx   float64 `json:"focalStdPx"`
}

// Bootstrap carries the empirical parameter distributions from resampling.
// Arrays are parallel, one entry per successful resample; failed resamples
// (degenerate draws) are dropped and counted in Samples-Succeeded.
type Bootstrap struct {
	Samples   int              `json:"samples"`
	Succeeded int              `json:"succeeded"`
	Lat       []float64        `json:"lat"`
	Lon       []float64        `json:"lon"`
	Alt       []float64        `json:"alt"`
	YawDeg    []float64        `json:"yawDeg"`
	PitchDeg  []float64        `json:"pitchDeg"`
	RollDeg   []float64        `json:"rollDeg"`
	FocalPx   []float64        `json:"focalPx"`
	Summary   BootstrapSummary `json:"summary"`
}

// SolveRequest is the full input to one solve call. Seed makes the run
// reproducible; when absent a fresh seed is drawn and a warning is added to
// the diagnostics, since results then vary run to run.
type SolveRequest struct {
	Image           ImageSize          `json:"image"`
	Correspondences []Correspondence   `json:"correspondences"`
	Model           SolverModel        `json:"model"`
	Priors          *Priors            `json:"priors,omitempty"`
	Ransac          *RansacConfig      `json:"ransac,omitempty"`
	Refine          *RefineConfig      `json:"refine,omitempty"`
	Uncertainty     *UncertaintyConfig `json:"uncertainty,omitempty"`
	Seed            *uint64            `json:"seed,omitempty"`
}

// SolveResponse is the successful output of one solve call.
type SolveResponse struct {
	Pose        Pose        `json:"pose"`
	Intrinsics  Intrinsics  `json:"intrinsics"`
	Covariance  Covariance  `json:"covariance"`
	Bootstrap   *Bootstrap  `json:"bootstrap,omitempty"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// ReprojectedPoint is one world point mapped to pixels. Visible is false
// when the point is behind the camera, in which case U and V are zero.
type ReprojectedPoint struct {
	U       float64 `json:"u"`
	V       float64 `json:"v"`
	Visible bool    `json:"visible"`
}
