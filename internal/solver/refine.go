package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/geofix-app/geofix/internal/camera"
	"github.com/geofix-app/geofix/internal/geodesy"
)

// Levenberg-Marquardt refinement of the consensus hypothesis.
//
// The objective is nonlinear least squares over the parameter vector defined
// by paramLayout: two sigma-normalized pixel residuals per inlier, plus one
// normalized penalty row per active prior (focal length, camera altitude,
// geographic bounds). The Huber loss enters through iteratively reweighted
// least squares: each observation's rows and residuals are scaled by the
// square root of its Huber weight before the normal equations are formed,
// with the weights held fixed while a step is evaluated. Steps solve the
// damped system (JᵀWJ + λ diag(JᵀWJ)) δ = JᵀWr by Cholesky, falling back to
// an SVD pseudo-inverse when damping leaves the system indefinite. Only
// cost-reducing steps are accepted, so the final iterate is also the best
// one seen.
const (
	// lmLambdaInit is the starting damping factor.
	lmLambdaInit = 1e-3
	// lmLambdaUp scales the damping factor after a rejected step.
	lmLambdaUp = 10.0
	// lmLambdaDown relaxes the damping factor after an accepted step.
	lmLambdaDown = 10.0
	// lmLambdaMax aborts the iteration: no step helps even under near
	// gradient-descent damping.
	lmLambdaMax = 1e12
	// lmLambdaMin keeps an accepted run from driving damping to zero.
	lmLambdaMin = 1e-12
	// lmStepRel and lmStepAbs size the central finite-difference step per
	// parameter: relative to the parameter magnitude with an absolute floor.
	lmStepRel = 1e-6
	lmStepAbs = 1e-6
	// lmCostFloor declares convergence outright when the robust cost is
	// numerically zero, as on noise-free input.
	lmCostFloor = 1e-18
	// lmGradTol declares convergence when the infinity norm of the weighted
	// gradient JᵀWr falls below it.
	lmGradTol = 1e-10
	// lmCostRelTol declares convergence on relative cost decrease.
	lmCostRelTol = 1e-12
	// lmDiagFloor keeps the Marquardt diagonal scaling away from zero for
	// parameters the residuals are momentarily insensitive to.
	lmDiagFloor = 1e-12
	// nonProjectablePenalty replaces the residual rows of an inlier that a
	// trial step pushed behind the camera. It is constant, so such steps
	// raise the cost and are rejected rather than followed.
	nonProjectablePenalty = 1e6
	// metersPerDegreeLat approximates one degree of latitude on the mean
	// Earth sphere. Bounds penalties are soft constraints, so the spherical
	// figure is accurate enough.
	metersPerDegreeLat = 6371000 * math.Pi / 180
)

// refineResult is the refinement output. jacobianW is the sigma-normalized,
// sqrt-weighted Jacobian evaluated at the solution; covariance estimation
// reuses it so the two stages cannot disagree on weighting.
type refineResult struct {
	pose       camera.Pose
	intr       camera.Intrinsics
	theta      []float64
	jacobianW  *mat.Dense
	converged  bool
	iterations int
}

// refiner evaluates the refinement objective for a fixed inlier set.
type refiner struct {
	prob    *problem
	layout  paramLayout
	inliers []int
	// sigmaEff folds each inlier's world uncertainty into pixel units using
	// the initial pose: sigmaM meters at range d subtend about
	// focal*sigmaM/d pixels. Computed once so the objective stays fixed
	// while it is minimized.
	sigmaEff []float64
	loss     RobustLoss
	delta    float64
	nObs     int
	rows     int
}

func newRefiner(prob *problem, layout paramLayout, inliers []int, init hypothesis, cfg *RefineConfig) *refiner {
	rf := &refiner{
		prob:     prob,
		layout:   layout,
		inliers:  inliers,
		sigmaEff: make([]float64, len(inliers)),
		loss:     cfg.GetRobustLoss(),
		delta:    cfg.GetHuberDelta(),
		nObs:     len(inliers),
	}
	for i, j := range inliers {
		d := prob.world[j].Sub(init.pose.Center).Norm()
		if d < camera.MinDepthMeters {
			d = camera.MinDepthMeters
		}
		sp := prob.sigmaPx[j]
		sw := init.intr.FocalPx * prob.sigmaM[j] / d
		rf.sigmaEff[i] = math.Sqrt(sp*sp + sw*sw)
	}
	rf.rows = 2*rf.nObs + countPriorRows(layout, prob.priors)
	return rf
}

func countPriorRows(layout paramLayout, priors *Priors) int {
	if priors == nil {
		return 0
	}
	n := 0
	if priors.FocalPx != nil && layout.focal >= 0 {
		n++
	}
	if priors.CameraAlt != nil {
		n++
	}
	if priors.Bounds != nil {
		n++
	}
	return n
}

// residuals fills out (length rows) with the unweighted normalized residual
// vector at theta.
func (rf *refiner) residuals(theta []float64, out []float64) {
	pose, intr := rf.layout.Unpack(theta, rf.prob.base)
	for i, j := range rf.inliers {
		u, v, ok := camera.Project(pose, intr, rf.prob.world[j])
		if !ok {
			out[2*i] = nonProjectablePenalty
			out[2*i+1] = nonProjectablePenalty
			continue
		}
		out[2*i] = (u - rf.prob.pixels[j][0]) / rf.sigmaEff[i]
		out[2*i+1] = (v - rf.prob.pixels[j][1]) / rf.sigmaEff[i]
	}

	priors := rf.prob.priors
	if priors == nil {
		return
	}
	i := 2 * rf.nObs
	if priors.FocalPx != nil && rf.layout.focal >= 0 {
		out[i] = (theta[rf.layout.focal] - priors.FocalPx.Mean) / priors.FocalPx.Sigma
		i++
	}
	if priors.CameraAlt != nil {
		alt := rf.prob.frame.ToLLA(pose.Center).Alt
		out[i] = (alt - priors.CameraAlt.Mean) / priors.CameraAlt.Sigma
		i++
	}
	if priors.Bounds != nil {
		pos := rf.prob.frame.ToLLA(pose.Center)
		out[i] = boundsPenaltyMeters(pos, priors.Bounds) / priors.Bounds.GetSigmaM()
	}
}

// boundsPenaltyMeters is the distance from a position to the bounds box, in
// meters, or 0 inside the box.
func boundsPenaltyMeters(p geodesy.LLA, b *Bounds) float64 {
	var dLat, dLon float64
	switch {
	case p.Lat < b.MinLat:
		dLat = b.MinLat - p.Lat
	case p.Lat > b.MaxLat:
		dLat = p.Lat - b.MaxLat
	}
	switch {
	case p.Lon < b.MinLon:
		dLon = b.MinLon - p.Lon
	case p.Lon > b.MaxLon:
		dLon = p.Lon - b.MaxLon
	}
	if dLat == 0 && dLon == 0 {
		return 0
	}
	east := dLon * metersPerDegreeLat * math.Cos(p.Lat*math.Pi/180)
	return math.Hypot(dLat*metersPerDegreeLat, east)
}

// rootWeights fills w with the square roots of the IRLS weights implied by
// the residuals in r: the Huber weight per measurement pair, 1 for prior
// rows. With the "none" loss every weight is 1.
func (rf *refiner) rootWeights(r []float64, w []float64) {
	for i := 0; i < rf.nObs; i++ {
		sw := 1.0
		if rf.loss == RobustLossHuber {
			if e := math.Hypot(r[2*i], r[2*i+1]); e > rf.delta {
				sw = math.Sqrt(rf.delta / e)
			}
		}
		w[2*i] = sw
		w[2*i+1] = sw
	}
	for i := 2 * rf.nObs; i < rf.rows; i++ {
		w[i] = 1
	}
}

// cost is the robust objective: Huber rho of each observation's residual
// norm plus squared prior rows.
func (rf *refiner) cost(r []float64) float64 {
	var total float64
	for i := 0; i < rf.nObs; i++ {
		e := math.Hypot(r[2*i], r[2*i+1])
		if rf.loss == RobustLossHuber && e > rf.delta {
			total += rf.delta * (2*e - rf.delta)
		} else {
			total += e * e
		}
	}
	for i := 2 * rf.nObs; i < rf.rows; i++ {
		total += r[i] * r[i]
	}
	return total
}

// jacobian fills jac with central finite differences of the unweighted
// residual vector.
func (rf *refiner) jacobian(theta []float64, jac *mat.Dense) {
	dim := rf.layout.Dim()
	plus := make([]float64, rf.rows)
	minus := make([]float64, rf.rows)
	probe := make([]float64, dim)
	for j := 0; j < dim; j++ {
		h := lmStepRel * math.Abs(theta[j])
		if h < lmStepAbs {
			h = lmStepAbs
		}
		copy(probe, theta)
		probe[j] = theta[j] + h
		rf.residuals(probe, plus)
		probe[j] = theta[j] - h
		rf.residuals(probe, minus)
		inv := 1 / (2 * h)
		for i := 0; i < rf.rows; i++ {
			jac.Set(i, j, (plus[i]-minus[i])*inv)
		}
	}
}

// weighted builds the sqrt-weighted Jacobian and residual used by the
// normal equations.
func (rf *refiner) weighted(jac *mat.Dense, r, rootW []float64) (*mat.Dense, *mat.VecDense) {
	dim := rf.layout.Dim()
	jw := mat.NewDense(rf.rows, dim, nil)
	rw := mat.NewVecDense(rf.rows, nil)
	for i := 0; i < rf.rows; i++ {
		rw.SetVec(i, rootW[i]*r[i])
		for j := 0; j < dim; j++ {
			jw.Set(i, j, rootW[i]*jac.At(i, j))
		}
	}
	return jw, rw
}

// refinePose minimizes the robust reprojection objective starting from the
// consensus hypothesis. It always returns a usable result; converged=false
// means the iteration cap or damping limit was hit first.
func refinePose(prob *problem, layout paramLayout, inliers []int, init hypothesis, cfg *RefineConfig) *refineResult {
	rf := newRefiner(prob, layout, inliers, init, cfg)
	dim := layout.Dim()
	theta := layout.Pack(init.pose, init.intr)

	r := make([]float64, rf.rows)
	trial := make([]float64, rf.rows)
	rootW := make([]float64, rf.rows)
	thetaTrial := make([]float64, dim)
	jac := mat.NewDense(rf.rows, dim, nil)

	rf.residuals(theta, r)
	cost := rf.cost(r)
	lambda := lmLambdaInit
	converged := cost <= lmCostFloor
	iters := 0

	for !converged && iters < cfg.GetMaxIters() {
		iters++
		rf.rootWeights(r, rootW)
		rf.jacobian(theta, jac)
		jw, rw := rf.weighted(jac, r, rootW)

		var jtj mat.Dense
		jtj.Mul(jw.T(), jw)
		var jtr mat.VecDense
		jtr.MulVec(jw.T(), rw)

		if normInf(&jtr) <= lmGradTol {
			converged = true
			break
		}

		// Raise damping until a step reduces the cost or the damping limit
		// says none will.
		accepted := false
		for lambda <= lmLambdaMax {
			step, ok := solveDamped(&jtj, &jtr, lambda)
			if !ok {
				lambda *= lmLambdaUp
				continue
			}
			for j := 0; j < dim; j++ {
				thetaTrial[j] = theta[j] - step[j]
			}
			rf.residuals(thetaTrial, trial)
			trialCost := rf.cost(trial)
			if trialCost < cost {
				copy(theta, thetaTrial)
				copy(r, trial)
				prev := cost
				cost = trialCost
				lambda /= lmLambdaDown
				if lambda < lmLambdaMin {
					lambda = lmLambdaMin
				}
				accepted = true
				if cost <= lmCostFloor || prev-cost <= lmCostRelTol*(1+cost) {
					converged = true
				}
				break
			}
			lambda *= lmLambdaUp
		}
		if !accepted {
			// No downhill step exists under any damping: the iterate is at
			// a stationary point as far as the quadratic model can tell.
			converged = normInf(&jtr) <= math.Sqrt(lmGradTol)
			break
		}
	}

	rf.residuals(theta, r)
	rf.rootWeights(r, rootW)
	rf.jacobian(theta, jac)
	jw, _ := rf.weighted(jac, r, rootW)

	pose, intr := layout.Unpack(theta, prob.base)
	return &refineResult{
		pose:       pose,
		intr:       intr,
		theta:      theta,
		jacobianW:  jw,
		converged:  converged,
		iterations: iters,
	}
}

func normInf(v *mat.VecDense) float64 {
	var m float64
	for i := 0; i < v.Len(); i++ {
		if a := math.Abs(v.AtVec(i)); a > m {
			m = a
		}
	}
	return m
}

// solveDamped solves (A + lambda*diag(A)) x = b by Cholesky, falling back
// to an SVD pseudo-inverse when the damped system is not positive definite.
func solveDamped(a *mat.Dense, b *mat.VecDense, lambda float64) ([]float64, bool) {
	n, _ := a.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (a.At(i, j) + a.At(j, i)) / 2
			if i == j {
				d := a.At(i, i)
				if d < lmDiagFloor {
					d = lmDiagFloor
				}
				v = a.At(i, i) + lambda*d
			}
			sym.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if chol.Factorize(sym) {
		var x mat.VecDense
		if err := chol.SolveVecTo(&x, b); err == nil {
			out := make([]float64, n)
			for i := range out {
				out[i] = x.AtVec(i)
			}
			return out, true
		}
	}

	var svd mat.SVD
	if !svd.Factorize(sym, mat.SVDFull) {
		return nil, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		if s[k] <= s[0]*1e-12 {
			continue
		}
		var dot float64
		for i := 0; i < n; i++ {
			dot += u.At(i, k) * b.AtVec(i)
		}
		dot /= s[k]
		for i := 0; i < n; i++ {
			out[i] += v.At(i, k) * dot
		}
	}
	return out, true
}
