package solver

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/geofix-app/geofix/internal/camera"
)

// Perspective-three-point solver, Grunert's formulation.
//
// Given three world points P1..P3 and the unit bearing rays j1..j3 through
// their pixels, the camera-to-point ranges s1..s3 satisfy the law-of-cosines
// system
//
//	s2² + s3² - 2·s2·s3·cos(α) = a²     a = |P2-P3|, cos(α) = j2·j3
//	s1² + s3² - 2·s1·s3·cos(β) = b²     b = |P1-P3|, cos(β) = j1·j3
//	s1² + s2² - 2·s1·s2·cos(γ) = c²     c = |P1-P2|, cos(γ) = j1·j2
//
// Substituting s2 = u·s1, s3 = v·s1 eliminates s1 and then u, leaving a
// quartic in v with up to four real solutions, each yielding a range triple
// and, through absolute orientation on the three recovered camera-frame
// points, a candidate pose. The quartic coefficients are recovered
// numerically by evaluating the polynomial at v ∈ {0, ±1, ±2} rather than
// from expanded closed forms, which keeps the code auditable against the
// three equations above.
//
// Callers screen subsets with subsetDegenerate first; the solver still
// guards its own divisions and returns no candidates when the geometry is
// unusable.

// rayParallelSin is the smallest usable sine of the angle between two
// bearing rays; below it the pixel observations are effectively coincident.
const rayParallelSin = 1e-6

// lawOfCosinesRelTol filters spurious quartic roots: each recovered range
// triple must satisfy all three law-of-cosines equations to this relative
// tolerance.
const lawOfCosinesRelTol = 1e-6

// p3pCandidates returns up to four camera poses consistent with three
// world/ray pairs. An empty result means the subset is degenerate or no
// geometrically valid solution exists.
func p3pCandidates(world [3]r3.Vector, rays [3]r3.Vector) []camera.Pose {
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			if rays[i].Cross(rays[j]).Norm() < rayParallelSin {
				return nil
			}
		}
	}

	a := world[1].Sub(world[2]).Norm()
	b := world[0].Sub(world[2]).Norm()
	c := world[0].Sub(world[1]).Norm()
	if a < MinPointSeparationMeters || b < MinPointSeparationMeters || c < MinPointSeparationMeters {
		return nil
	}

	cosAlpha := rays[1].Dot(rays[2])
	cosBeta := rays[0].Dot(rays[2])
	cosGamma := rays[0].Dot(rays[1])

	aSq, bSq, cSq := a*a, b*b, c*c
	acRatio := (aSq - cSq) / bSq
	cbRatio := cSq / bSq

	// G(v) is the quartic left after eliminating s1 and u; q(v) = (b/s1)²
	// and u(v) = n(v)/d(v) are reused per root below.
	quartic := func(v float64) float64 {
		q := 1 + v*v - 2*v*cosBeta
		n := 1 - v*v + acRatio*q
		d := 2 * (cosGamma - v*cosAlpha)
		return n*n - 2*cosGamma*n*d + d*d*(1-cbRatio*q)
	}

	g0 := quartic(0)
	evenSum1 := (quartic(1)+quartic(-1))/2 - g0  // g4 + g2
	oddSum1 := (quartic(1) - quartic(-1)) / 2    // g3 + g1
	evenSum2 := (quartic(2)+quartic(-2))/2 - g0  // 16·g4 + 4·g2
	oddSum2 := (quartic(2) - quartic(-2)) / 2    // 8·g3 + 2·g1
	g4 := (evenSum2 - 4*evenSum1) / 12
	g2 := evenSum1 - g4
	g3 := (oddSum2 - 2*oddSum1) / 6
	g1 := oddSum1 - g3

	var poses []camera.Pose
	for _, v := range realPolynomialRoots([]float64{g0, g1, g2, g3, g4}) {
		if v <= 0 {
			continue
		}
		q := 1 + v*v - 2*v*cosBeta
		if q <= 0 {
			continue
		}
		d := 2 * (cosGamma - v*cosAlpha)
		if math.Abs(d) < 1e-12 {
			continue
		}
		u := (1 - v*v + acRatio*q) / d
		if u <= 0 {
			continue
		}

		s1 := b / math.Sqrt(q)
		s2 := u * s1
		s3 := v * s1

		scale := aSq + bSq + cSq
		r1 := s2*s2 + s3*s3 - 2*s2*s3*cosAlpha - aSq
		r2 := s1*s1 + s3*s3 - 2*s1*s3*cosBeta - bSq
		r3v := s1*s1 + s2*s2 - 2*s1*s2*cosGamma - cSq
		if math.Abs(r1) > lawOfCosinesRelTol*scale ||
			math.Abs(r2) > lawOfCosinesRelTol*scale ||
			math.Abs(r3v) > lawOfCosinesRelTol*scale {
			continue
		}

		camPts := []r3.Vector{rays[0].Mul(s1), rays[1].Mul(s2), rays[2].Mul(s3)}
		rot, center, ok := absoluteOrientation(world[:], camPts)
		if !ok || !rot.IsValid(camera.RotationValidationTolerance) {
			continue
		}

		pose := camera.Pose{Center: center, R: rot}
		if !containsSimilarPose(poses, pose) {
			poses = append(poses, pose)
		}
	}
	return poses
}

// containsSimilarPose dedupes candidates arising from near-double quartic
// roots: same center within a micron and same viewing direction.
func containsSimilarPose(poses []camera.Pose, p camera.Pose) bool {
	for _, q := range poses {
		if q.Center.Sub(p.Center).Norm() < 1e-6 &&
			q.R.Forward().Sub(p.R.Forward()).Norm() < 1e-9 {
			return true
		}
	}
	return false
}

// absoluteOrientation solves the rigid alignment camPts[i] = R*(world[i]-C)
// by the Kabsch SVD construction: R = V·diag(1,1,det(V·Uᵀ))·Uᵀ where
// U·S·Vᵀ is the SVD of the world-to-camera cross-covariance.
func absoluteOrientation(worldPts, camPts []r3.Vector) (camera.Rotation, r3.Vector, bool) {
	n := float64(len(worldPts))
	var wBar, cBar r3.Vector
	for i := range worldPts {
		wBar = wBar.Add(worldPts[i])
		cBar = cBar.Add(camPts[i])
	}
	wBar = wBar.Mul(1 / n)
	cBar = cBar.Mul(1 / n)

	var h [9]float64
	for i := range worldPts {
		w := [3]float64{worldPts[i].X - wBar.X, worldPts[i].Y - wBar.Y, worldPts[i].Z - wBar.Z}
		c := [3]float64{camPts[i].X - cBar.X, camPts[i].Y - cBar.Y, camPts[i].Z - cBar.Z}
		for r := 0; r < 3; r++ {
			for col := 0; col < 3; col++ {
				h[r*3+col] += w[r] * c[col]
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(3, 3, h[:]), mat.SVDFull) {
		return camera.Rotation{}, r3.Vector{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vut mat.Dense
	vut.Mul(&v, u.T())
	sign := 1.0
	if mat.Det(&vut) < 0 {
		sign = -1
	}

	var corrected, rm mat.Dense
	corrected.Mul(&v, mat.NewDiagDense(3, []float64{1, 1, sign}))
	rm.Mul(&corrected, u.T())

	rot := camera.Rotation{
		rm.At(0, 0), rm.At(0, 1), rm.At(0, 2),
		rm.At(1, 0), rm.At(1, 1), rm.At(1, 2),
		rm.At(2, 0), rm.At(2, 1), rm.At(2, 2),
	}
	center := wBar.Sub(rot.ApplyTranspose(cBar))
	return rot, center, true
}

// realPolynomialRoots returns the real roots of a polynomial given its
// coefficients in ascending-degree order, via eigenvalues of the companion
// matrix. Leading coefficients that vanish relative to the largest
// coefficient are trimmed first, so a numerically cubic quartic is solved
// as a cubic.
func realPolynomialRoots(coeffs []float64) []float64 {
	maxAbs := 0.0
	for _, c := range coeffs {
		if a := math.Abs(c); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return nil
	}
	deg := len(coeffs) - 1
	for deg > 0 && math.Abs(coeffs[deg]) < 1e-12*maxAbs {
		deg--
	}
	switch deg {
	case 0:
		return nil
	case 1:
		return []float64{-coeffs[0] / coeffs[1]}
	}

	// Companion matrix: subdiagonal ones, last column -c_i/c_deg.
	data := make([]float64, deg*deg)
	lead := coeffs[deg]
	for i := 0; i < deg; i++ {
		if i > 0 {
			data[i*deg+i-1] = 1
		}
		data[i*deg+deg-1] = -coeffs[i] / lead
	}

	var eig mat.Eigen
	if !eig.Factorize(mat.NewDense(deg, deg, data), mat.EigenNone) {
		return nil
	}

	var roots []float64
	for _, z := range eig.Values(nil) {
		if math.Abs(imag(z)) <= 1e-8*math.Max(1, math.Abs(real(z))) {
			roots = append(roots, real(z))
		}
	}
	return roots
}
