// Package solver estimates where a photograph was taken from. Given pixel
// observations of known geographic points, it recovers the camera's
// position and orientation, and optionally its intrinsics.
//
// The pipeline is robust least squares in a local tangent frame:
//
//  1. Validate the request and lift the enabled correspondences into an
//     east/north/up frame anchored at their centroid.
//  2. Search for a consensus hypothesis with seeded RANSAC: P3P when the
//     focal length is fixed, linear resection when it is estimated.
//  3. Refine the winner with Levenberg-Marquardt under a robust loss,
//     honoring any soft priors.
//  4. Report the analytic covariance, per-correspondence diagnostics, and
//     optionally a bootstrap spread.
//
// All randomness derives from the request seed, so identical requests
// produce identical responses.
package solver

import (
	"math"
	"runtime"

	"github.com/golang/geo/r3"

	"github.com/geofix-app/geofix/internal/camera"
	"github.com/geofix-app/geofix/internal/geodesy"
	"github.com/geofix-app/geofix/internal/units"
)

// problem is the solve-ready form of a request: the enabled correspondences
// lifted into the local tangent frame, in request order.
type problem struct {
	world   []r3.Vector
	pixels  [][2]float64
	sigmaPx []float64
	sigmaM  []float64
	ids     []string
	base    camera.Intrinsics
	model   SolverModel
	frame   geodesy.Frame
	priors  *Priors
}

// buildProblem filters to enabled correspondences, anchors the tangent
// frame at their centroid, and fixes the base intrinsics the model does not
// estimate.
func buildProblem(req *SolveRequest) (*problem, error) {
	var enabled []Correspondence
	for _, c := range req.Correspondences {
		if c.IsEnabled() {
			enabled = append(enabled, c)
		}
	}
	if min := req.Model.MinCorrespondences(); len(enabled) < min {
		return nil, Errorf(KindInsufficientCorrespondences,
			"model needs at least %d enabled correspondences, got %d", min, len(enabled))
	}

	llas := make([]geodesy.LLA, len(enabled))
	for i, c := range enabled {
		llas[i] = geodesy.LLA{Lat: c.World.Lat, Lon: c.World.Lon, Alt: c.World.GetAlt()}
	}
	frame := geodesy.NewFrameAtCentroid(llas)

	prob := &problem{
		world:   frame.ToENUAll(llas),
		pixels:  make([][2]float64, len(enabled)),
		sigmaPx: make([]float64, len(enabled)),
		sigmaM:  make([]float64, len(enabled)),
		ids:     make([]string, len(enabled)),
		model:   req.Model,
		frame:   frame,
		priors:  req.Priors,
	}
	for i, c := range enabled {
		prob.pixels[i] = [2]float64{c.Pixel.U, c.Pixel.V}
		prob.sigmaPx[i] = c.Pixel.GetSigmaPx()
		prob.sigmaM[i] = c.World.GetSigmaM()
		prob.ids[i] = c.ID
	}

	if line, _ := spreadRatios(prob.world); line < CollinearityRatio {
		return nil, Errorf(KindDegenerateGeometry,
			"enabled world points are collinear or coincident; the camera position is unobservable")
	}

	prob.base = camera.Intrinsics{Cx: req.Image.Width / 2, Cy: req.Image.Height / 2}
	if req.Priors != nil && req.Priors.FocalPx != nil {
		prob.base.FocalPx = req.Priors.FocalPx.Mean
	} else {
		// Focal is estimated here (validation enforces the prior otherwise);
		// the base value only seeds paths that have not solved for it yet.
		prob.base.FocalPx = math.Hypot(req.Image.Width, req.Image.Height)
	}
	return prob, nil
}

// Solve runs the full pipeline on one request.
func Solve(req *SolveRequest) (*SolveResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	prob, err := buildProblem(req)
	if err != nil {
		return nil, err
	}

	var warnings []string
	var seed uint64
	if req.Seed != nil {
		seed = *req.Seed
	} else {
		seed = freshSeed()
		warnings = append(warnings, WarnUnseeded)
	}

	workers := runtime.GOMAXPROCS(0)
	cons, err := runRansac(prob, req.Ransac, seed, workers)
	if err != nil {
		return nil, err
	}

	layout := newParamLayout(req.Model)
	res := refinePose(prob, layout, cons.inlierIdx, cons.hyp, req.Refine)
	if !res.converged {
		warnings = append(warnings, WarnNonConvergence(res.iterations))
	}

	cov, covWarnings := estimateCovariance(layout, res.jacobianW)
	warnings = append(warnings, covWarnings...)

	thresholdPx := req.Ransac.GetInlierPx()
	diag := diagnose(prob, res, thresholdPx, warnings)

	var boot *Bootstrap
	if req.Uncertainty != nil && req.Uncertainty.Bootstrap.Enabled {
		// Resample the inlier set as it stands after refinement; if the
		// refined pose somehow shed inliers below the model minimum, fall
		// back to the consensus set that produced it.
		inliers := collectInliers(prob, hypothesis{pose: res.pose, intr: res.intr}, thresholdPx)
		if len(inliers) < req.Model.MinCorrespondences() {
			inliers = cons.inlierIdx
		}
		var bootWarnings []string
		boot, bootWarnings = runBootstrap(prob, layout, res, inliers, req, seed, workers)
		diag.Warnings = append(diag.Warnings, bootWarnings...)
	}

	pos := prob.frame.ToLLA(res.pose.Center)
	yaw, pitch, roll := res.pose.R.YawPitchRoll()
	return &SolveResponse{
		Pose: Pose{
			Lat:      pos.Lat,
			Lon:      pos.Lon,
			Alt:      pos.Alt,
			YawDeg:   units.Degrees(yaw),
			PitchDeg: units.Degrees(pitch),
			RollDeg:  units.Degrees(roll),
		},
		Intrinsics:  wireIntrinsics(res.intr, req.Model),
		Covariance:  cov,
		Bootstrap:   boot,
		Diagnostics: diag,
	}, nil
}

// diagnose measures fit quality at the refined solution. Residuals are in
// raw pixels, one per enabled correspondence in request order; RMSE and the
// inlier ratio are computed over the same threshold the consensus search
// used.
func diagnose(prob *problem, res *refineResult, thresholdPx float64, warnings []string) Diagnostics {
	n := len(prob.world)
	residuals := make([]float64, n)
	var inlierIDs []string
	var sumSq float64
	inliers := 0
	for i := range prob.world {
		u, v, ok := camera.Project(res.pose, res.intr, prob.world[i])
		if !ok {
			residuals[i] = ResidualSentinelPx
			continue
		}
		e := math.Hypot(u-prob.pixels[i][0], v-prob.pixels[i][1])
		residuals[i] = e
		if e <= thresholdPx {
			inliers++
			sumSq += e * e
			inlierIDs = append(inlierIDs, prob.ids[i])
		}
	}
	d := Diagnostics{
		InlierRatio: float64(inliers) / float64(n),
		ResidualsPx: residuals,
		InlierIDs:   inlierIDs,
		Warnings:    warnings,
	}
	if inliers > 0 {
		d.RmsePx = math.Sqrt(sumSq / float64(inliers))
	}
	return d
}

// wireIntrinsics reports distortion coefficients only when the model
// estimated them, so a fixed-distortion response does not imply zeros were
// solved for.
func wireIntrinsics(intr camera.Intrinsics, model SolverModel) Intrinsics {
	out := Intrinsics{FocalPx: intr.FocalPx, Cx: intr.Cx, Cy: intr.Cy}
	if model.EstimateDistortion {
		k1, k2 := intr.K1, intr.K2
		out.K1, out.K2 = &k1, &k2
		if model.EstimateTangential {
			p1, p2 := intr.P1, intr.P2
			out.P1, out.P2 = &p1, &p2
		}
	}
	return out
}

// cameraFromWire rebuilds internal camera types from wire pose and
// intrinsics, with the tangent frame anchored at the camera position.
func cameraFromWire(pose Pose, intr Intrinsics) (camera.Pose, camera.Intrinsics, geodesy.Frame) {
	frame := geodesy.NewFrame(geodesy.LLA{Lat: pose.Lat, Lon: pose.Lon, Alt: pose.Alt})
	cam := camera.NewPose(r3.Vector{},
		units.Radians(pose.YawDeg), units.Radians(pose.PitchDeg), units.Radians(pose.RollDeg))
	ci := camera.Intrinsics{FocalPx: intr.FocalPx, Cx: intr.Cx, Cy: intr.Cy}
	if intr.K1 != nil {
		ci.K1 = *intr.K1
	}
	if intr.K2 != nil {
		ci.K2 = *intr.K2
	}
	if intr.P1 != nil {
		ci.P1 = *intr.P1
	}
	if intr.P2 != nil {
		ci.P2 = *intr.P2
	}
	return cam, ci, frame
}

// ReprojectPoints projects world points through a previously solved pose,
// typically to render overlays. Points behind the camera come back with
// Visible=false rather than failing the call.
func ReprojectPoints(pose Pose, intr Intrinsics, points []WorldPoint) ([]ReprojectedPoint, error) {
	if err := validateReprojectInputs(pose, intr, points); err != nil {
		return nil, err
	}
	cam, ci, frame := cameraFromWire(pose, intr)
	out := make([]ReprojectedPoint, len(points))
	for i, p := range points {
		w := frame.ToENU(geodesy.LLA{Lat: p.Lat, Lon: p.Lon, Alt: p.GetAlt()})
		if u, v, ok := camera.Project(cam, ci, w); ok {
			out[i] = ReprojectedPoint{U: u, V: v, Visible: true}
		}
	}
	return out, nil
}
