package solver

import "math"

// Input validation. Everything here runs before any computation and returns
// KindInvalidInput on the first malformed field found. Pixel coordinates are
// only checked for finiteness: whether a point lies within the image is the
// caller's concern, since correspondences may legitimately sit slightly
// outside the frame while dragging.

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validLat(lat float64) bool { return isFinite(lat) && lat >= -90 && lat <= 90 }
func validLon(lon float64) bool { return isFinite(lon) && lon >= -180 && lon <= 180 }

func validateRequest(req *SolveRequest) error {
	if req == nil {
		return Errorf(KindInvalidInput, "nil request")
	}
	if !isFinite(req.Image.Width) || !isFinite(req.Image.Height) ||
		req.Image.Width <= 0 || req.Image.Height <= 0 {
		return Errorf(KindInvalidInput, "image dimensions must be positive, got %gx%g",
			req.Image.Width, req.Image.Height)
	}

	seen := make(map[string]struct{}, len(req.Correspondences))
	for i, c := range req.Correspondences {
		if c.ID == "" {
			return Errorf(KindInvalidInput, "correspondence %d has an empty id", i)
		}
		if _, dup := seen[c.ID]; dup {
			return Errorf(KindInvalidInput, "duplicate correspondence id %q", c.ID)
		}
		seen[c.ID] = struct{}{}

		if !isFinite(c.Pixel.U) || !isFinite(c.Pixel.V) {
			return Errorf(KindInvalidInput, "correspondence %q has non-finite pixel coordinates", c.ID)
		}
		if c.Pixel.SigmaPx != nil && (!isFinite(*c.Pixel.SigmaPx) || *c.Pixel.SigmaPx <= 0) {
			return Errorf(KindInvalidInput, "correspondence %q has non-positive sigmaPx", c.ID)
		}
		if !validLat(c.World.Lat) {
			return Errorf(KindInvalidInput, "correspondence %q has latitude %g outside [-90, 90]", c.ID, c.World.Lat)
		}
		if !validLon(c.World.Lon) {
			return Errorf(KindInvalidInput, "correspondence %q has longitude %g outside [-180, 180]", c.ID, c.World.Lon)
		}
		if c.World.Alt != nil && !isFinite(*c.World.Alt) {
			return Errorf(KindInvalidInput, "correspondence %q has non-finite altitude", c.ID)
		}
		if c.World.SigmaM != nil && (!isFinite(*c.World.SigmaM) || *c.World.SigmaM <= 0) {
			return Errorf(KindInvalidInput, "correspondence %q has non-positive sigmaM", c.ID)
		}
	}

	if err := validatePriors(req.Priors); err != nil {
		return err
	}

	// A fixed-focal model has no way to learn the focal length, so the
	// request must supply it through the focal prior.
	if !req.Model.EstimateFocal && (req.Priors == nil || req.Priors.FocalPx == nil) {
		return Errorf(KindInvalidInput, "model holds focalPx fixed but priors.focalPx is absent")
	}
	if req.Priors != nil && req.Priors.FocalPx != nil && req.Priors.FocalPx.Mean <= 0 {
		return Errorf(KindInvalidInput, "priors.focalPx.mean must be positive, got %g", req.Priors.FocalPx.Mean)
	}

	if r := req.Ransac; r != nil {
		if r.MaxIters < 0 {
			return Errorf(KindInvalidInput, "ransac.maxIters must be non-negative, got %d", r.MaxIters)
		}
		if !isFinite(r.InlierPx) || r.InlierPx < 0 {
			return Errorf(KindInvalidInput, "ransac.inlierPx must be non-negative, got %g", r.InlierPx)
		}
		if !isFinite(r.TargetProb) || r.TargetProb < 0 || r.TargetProb >= 1 {
			return Errorf(KindInvalidInput, "ransac.targetProb must be in [0, 1), got %g", r.TargetProb)
		}
	}

	if r := req.Refine; r != nil {
		if r.MaxIters < 0 {
			return Errorf(KindInvalidInput, "refine.maxIters must be non-negative, got %d", r.MaxIters)
		}
		if r.RobustLoss != "" && !r.RobustLoss.IsValid() {
			return Errorf(KindInvalidInput, "refine.robustLoss %q is not one of none, huber", r.RobustLoss)
		}
		if r.HuberDelta != nil && (!isFinite(*r.HuberDelta) || *r.HuberDelta <= 0) {
			return Errorf(KindInvalidInput, "refine.huberDelta must be positive")
		}
	}

	if u := req.Uncertainty; u != nil && u.Bootstrap.Samples < 0 {
		return Errorf(KindInvalidInput, "uncertainty.bootstrap.samples must be non-negative, got %d", u.Bootstrap.Samples)
	}

	return nil
}

func validatePriors(p *Priors) error {
	if p == nil {
		return nil
	}
	if err := validatePrior("priors.focalPx", p.FocalPx); err != nil {
		return err
	}
	if err := validatePrior("priors.cameraAlt", p.CameraAlt); err != nil {
		return err
	}
	if b := p.Bounds; b != nil {
		if !validLat(b.MinLat) || !validLat(b.MaxLat) || b.MinLat > b.MaxLat {
			return Errorf(KindInvalidInput, "priors.bounds latitude range [%g, %g] is invalid", b.MinLat, b.MaxLat)
		}
		if !validLon(b.MinLon) || !validLon(b.MaxLon) || b.MinLon > b.MaxLon {
			return Errorf(KindInvalidInput, "priors.bounds longitude range [%g, %g] is invalid", b.MinLon, b.MaxLon)
		}
		if b.SigmaM != nil && (!isFinite(*b.SigmaM) || *b.SigmaM <= 0) {
			return Errorf(KindInvalidInput, "priors.bounds.sigmaM must be positive")
		}
	}
	return nil
}

func validatePrior(name string, p *Prior) error {
	if p == nil {
		return nil
	}
	if !isFinite(p.Mean) {
		return Errorf(KindInvalidInput, "%s.mean must be finite", name)
	}
	if !isFinite(p.Sigma) || p.Sigma <= 0 {
		return Errorf(KindInvalidInput, "%s.sigma must be positive, got %g", name, p.Sigma)
	}
	return nil
}

// validateReprojectInputs guards the standalone reprojector. Behind-camera
// points are not an error (they are flagged per point); only malformed
// numbers are.
func validateReprojectInputs(pose Pose, intr Intrinsics, points []WorldPoint) error {
	for _, v := range []float64{pose.Lat, pose.Lon, pose.Alt, pose.YawDeg, pose.PitchDeg, pose.RollDeg} {
		if !isFinite(v) {
			return Errorf(KindInvalidInput, "pose contains non-finite fields")
		}
	}
	if !validLat(pose.Lat) || !validLon(pose.Lon) {
		return Errorf(KindInvalidInput, "pose position (%g, %g) outside valid latitude/longitude range", pose.Lat, pose.Lon)
	}
	if !isFinite(intr.FocalPx) || intr.FocalPx <= 0 {
		return Errorf(KindInvalidInput, "intrinsics.focalPx must be positive, got %g", intr.FocalPx)
	}
	if !isFinite(intr.Cx) || !isFinite(intr.Cy) {
		return Errorf(KindInvalidInput, "intrinsics principal point is non-finite")
	}
	for _, k := range []*float64{intr.K1, intr.K2, intr.P1, intr.P2} {
		if k != nil && !isFinite(*k) {
			return Errorf(KindInvalidInput, "intrinsics distortion coefficients must be finite")
		}
	}
	for i, p := range points {
		if !validLat(p.Lat) || !validLon(p.Lon) {
			return Errorf(KindInvalidInput, "world point %d position (%g, %g) outside valid range", i, p.Lat, p.Lon)
		}
		if p.Alt != nil && !isFinite(*p.Alt) {
			return Errorf(KindInvalidInput, "world point %d has non-finite altitude", i)
		}
	}
	return nil
}
