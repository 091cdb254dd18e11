package solver

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/geofix-app/geofix/internal/camera"
)

// Focal-unknown resection. Two linear paths share the work of producing a
// pose plus focal-length estimate from one sampled subset:
//
//   - general scenes: direct linear transform of the full 3x4 projection
//     matrix from 6+ points (Hartley-normalized on both sides), camera
//     center from the null space, then an RQ split of the leading 3x3 into
//     intrinsics and rotation via three Givens rotations;
//   - coplanar scenes, where the 3x4 DLT is rank-deficient: a plane-to-image
//     homography, focal length from the two orthonormality constraints on
//     its columns (the single-image core of Zhang's method, principal point
//     held at its assumed value), then rotation/translation from the scaled
//     columns.
//
// Both paths are hypothesis generators: their output seeds consensus
// scoring and refinement, so marginal accuracy is acceptable but wrong
// cheirality or reflections are not, and those are rejected here.

// Acceptance gates on the recovered calibration. The model assumes square
// pixels and zero skew, so a subset whose linear solution strays far from
// that is noise-dominated and is rejected rather than scored.
const (
	maxAspectDeviation = 0.2
	maxSkewRatio       = 0.05
)

// solveFocalUnknown produces a hypothesis from a sampled subset when focal
// length is being estimated, dispatching on the subset's planarity.
func solveFocalUnknown(world []r3.Vector, pixels [][2]float64, base camera.Intrinsics, model SolverModel) (hypothesis, bool) {
	if _, plane := spreadRatios(world); plane < PlanarityRatio {
		return solvePlanarFocal(world, pixels, base)
	}
	return solveDLT(world, pixels, base, model)
}

// solveDLT recovers pose and intrinsics from 6+ points in general position.
func solveDLT(world []r3.Vector, pixels [][2]float64, base camera.Intrinsics, model SolverModel) (hypothesis, bool) {
	normPx, tPx := normalizePixels(pixels)
	normW, tW := normalizeWorld(world)
	if normPx == nil || normW == nil {
		return hypothesis{}, false
	}

	n := len(world)
	a := mat.NewDense(2*n, 12, nil)
	for i := 0; i < n; i++ {
		x, y, z := normW[i].X, normW[i].Y, normW[i].Z
		u, v := normPx[i][0], normPx[i][1]
		a.SetRow(2*i, []float64{x, y, z, 1, 0, 0, 0, 0, -u * x, -u * y, -u * z, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, 0, x, y, z, 1, -v * x, -v * y, -v * z, -v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return hypothesis{}, false
	}
	var vm mat.Dense
	svd.VTo(&vm)

	// Projection matrix from the null vector, then undo both normalizations.
	pHat := mat.NewDense(3, 4, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			pHat.Set(r, c, vm.At(4*r+c, 11))
		}
	}
	var tPxInv mat.Dense
	if err := tPxInv.Inverse(tPx); err != nil {
		return hypothesis{}, false
	}
	var tmp, p mat.Dense
	tmp.Mul(&tPxInv, pHat)
	p.Mul(&tmp, tW)

	// Cheirality: every sampled point must sit in front of the camera. The
	// null vector's sign is arbitrary, so flip once if all depths are
	// negative; mixed signs mean the solution is not a physical camera.
	negatives := 0
	for i := 0; i < n; i++ {
		w := p.At(2, 0)*world[i].X + p.At(2, 1)*world[i].Y + p.At(2, 2)*world[i].Z + p.At(2, 3)
		if w < 0 {
			negatives++
		}
	}
	if negatives == n {
		p.Scale(-1, &p)
	} else if negatives != 0 {
		return hypothesis{}, false
	}

	var m [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[r*3+c] = p.At(r, c)
		}
	}

	// Camera center: P·(C,1)ᵀ = 0 ⇒ C = -M⁻¹·p4.
	var mInv mat.Dense
	if err := mInv.Inverse(mat.NewDense(3, 3, m[:])); err != nil {
		return hypothesis{}, false
	}
	p4 := [3]float64{p.At(0, 3), p.At(1, 3), p.At(2, 3)}
	center := r3.Vector{
		X: -(mInv.At(0, 0)*p4[0] + mInv.At(0, 1)*p4[1] + mInv.At(0, 2)*p4[2]),
		Y: -(mInv.At(1, 0)*p4[0] + mInv.At(1, 1)*p4[1] + mInv.At(1, 2)*p4[2]),
		Z: -(mInv.At(2, 0)*p4[0] + mInv.At(2, 1)*p4[1] + mInv.At(2, 2)*p4[2]),
	}

	k, rotRaw, ok := rq3(m)
	if !ok {
		return hypothesis{}, false
	}
	rot := camera.Rotation(rotRaw)
	// A reflection in place of a rotation (negative det M) survives the RQ
	// sign fixing as an invalid rotation and is rejected here.
	if !rot.IsValid(camera.RotationValidationTolerance) {
		return hypothesis{}, false
	}

	fx, fy, skew := k[0], k[4], k[1]
	if fx <= 0 || fy <= 0 {
		return hypothesis{}, false
	}
	if math.Abs(fx-fy) > maxAspectDeviation*math.Max(fx, fy) {
		return hypothesis{}, false
	}
	if math.Abs(skew) > maxSkewRatio*fx {
		return hypothesis{}, false
	}

	intr := base
	intr.FocalPx = (fx + fy) / 2
	if model.EstimatePrincipalPoint {
		intr.Cx, intr.Cy = k[2], k[5]
	}
	return hypothesis{pose: camera.Pose{Center: center, R: rot}, intr: intr}, true
}

// solvePlanarFocal recovers pose and focal length when the sampled world
// points are coplanar, from the plane-to-image homography. The principal
// point is held at its assumed value: a single plane cannot determine it.
func solvePlanarFocal(world []r3.Vector, pixels [][2]float64, base camera.Intrinsics) (hypothesis, bool) {
	origin, e1, e2, ok := planeBasis(world)
	if !ok {
		return hypothesis{}, false
	}

	planePts := make([][2]float64, len(world))
	centered := make([][2]float64, len(world))
	for i, w := range world {
		d := w.Sub(origin)
		planePts[i] = [2]float64{e1.Dot(d), e2.Dot(d)}
		centered[i] = [2]float64{pixels[i][0] - base.Cx, pixels[i][1] - base.Cy}
	}

	h, ok := homographyDLT(planePts, centered)
	if !ok {
		return hypothesis{}, false
	}
	h1 := [3]float64{h.At(0, 0), h.At(1, 0), h.At(2, 0)}
	h2 := [3]float64{h.At(0, 1), h.At(1, 1), h.At(2, 1)}
	h3 := [3]float64{h.At(0, 2), h.At(1, 2), h.At(2, 2)}

	// Both orthonormality constraints on r1, r2 are linear in 1/f²; solve
	// the 2x1 system by least squares. A fronto-parallel plane zeroes both
	// coefficients and carries no focal information.
	a1 := h1[0]*h2[0] + h1[1]*h2[1]
	b1 := -h1[2] * h2[2]
	a2 := h1[0]*h1[0] + h1[1]*h1[1] - h2[0]*h2[0] - h2[1]*h2[1]
	b2 := h2[2]*h2[2] - h1[2]*h1[2]
	hScale := math.Abs(h1[0]) + math.Abs(h1[1]) + math.Abs(h2[0]) + math.Abs(h2[1])
	denom := a1*a1 + a2*a2
	if denom < 1e-12*hScale*hScale*hScale*hScale {
		return hypothesis{}, false
	}
	invFSq := (a1*b1 + a2*b2) / denom
	if invFSq <= 0 || math.IsNaN(invFSq) {
		return hypothesis{}, false
	}
	f := 1 / math.Sqrt(invFSq)

	// Scale columns by the calibrated norms to recover rotation columns and
	// translation; flip the pair if the plane lands behind the camera.
	kInv := func(h [3]float64) r3.Vector {
		return r3.Vector{X: h[0] / f, Y: h[1] / f, Z: h[2]}
	}
	c1, c2, c3 := kInv(h1), kInv(h2), kInv(h3)
	n1, n2 := c1.Norm(), c2.Norm()
	if n1 == 0 || n2 == 0 {
		return hypothesis{}, false
	}
	lambda := 2 / (n1 + n2)
	r1 := c1.Mul(lambda)
	r2 := c2.Mul(lambda)
	t := c3.Mul(lambda)
	if t.Z < 0 {
		r1, r2, t = r1.Mul(-1), r2.Mul(-1), t.Mul(-1)
	}
	r3col := r1.Cross(r2)

	// Columns of the plane-to-camera rotation, orthonormalized to the
	// nearest rotation since noise leaves r1, r2 only approximately unit
	// and orthogonal.
	approx := [9]float64{
		r1.X, r2.X, r3col.X,
		r1.Y, r2.Y, r3col.Y,
		r1.Z, r2.Z, r3col.Z,
	}
	planeToCam, ok := nearestRotation(approx)
	if !ok {
		return hypothesis{}, false
	}

	// Compose with the world-to-plane basis change: rows e1, e2, e1xe2.
	e3 := e1.Cross(e2)
	basis := [9]float64{
		e1.X, e1.Y, e1.Z,
		e2.X, e2.Y, e2.Z,
		e3.X, e3.Y, e3.Z,
	}
	rot := camera.Rotation(mul3(planeToCam, basis))
	if !rot.IsValid(camera.RotationValidationTolerance) {
		return hypothesis{}, false
	}
	center := origin.Sub(rot.ApplyTranspose(t))

	intr := base
	intr.FocalPx = f
	return hypothesis{pose: camera.Pose{Center: center, R: rot}, intr: intr}, true
}

// planeBasis returns the centroid and the two in-plane principal directions
// of a near-coplanar point set. ok is false when the set is collinear and
// spans no plane.
func planeBasis(world []r3.Vector) (origin, e1, e2 r3.Vector, ok bool) {
	var c r3.Vector
	for _, w := range world {
		c = c.Add(w)
	}
	c = c.Mul(1 / float64(len(world)))

	var m [9]float64
	for _, w := range world {
		d := [3]float64{w.X - c.X, w.Y - c.Y, w.Z - c.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				m[i*3+j] += d[i] * d[j]
			}
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(mat.NewSymDense(3, m[:]), true) {
		return r3.Vector{}, r3.Vector{}, r3.Vector{}, false
	}
	vals := eig.Values(nil)
	if vals[2] <= 0 || math.Sqrt(math.Max(vals[1], 0)/vals[2]) < CollinearityRatio {
		return r3.Vector{}, r3.Vector{}, r3.Vector{}, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// Ascending eigenvalues: columns 2 and 1 span the plane.
	e1 = r3.Vector{X: vecs.At(0, 2), Y: vecs.At(1, 2), Z: vecs.At(2, 2)}
	e2 = r3.Vector{X: vecs.At(0, 1), Y: vecs.At(1, 1), Z: vecs.At(2, 1)}
	return c, e1, e2, true
}

// homographyDLT fits the 3x3 homography mapping src to dst (both
// Hartley-normalized internally) and returns it denormalized.
func homographyDLT(src, dst [][2]float64) (*mat.Dense, bool) {
	normSrc, tSrc := normalizePixels(src)
	normDst, tDst := normalizePixels(dst)
	if normSrc == nil || normDst == nil {
		return nil, false
	}

	n := len(src)
	a := mat.NewDense(2*n, 9, nil)
	for i := 0; i < n; i++ {
		x, y := normSrc[i][0], normSrc[i][1]
		u, v := normDst[i][0], normDst[i][1]
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y, -u})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y, -v})
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, false
	}
	var vm mat.Dense
	svd.VTo(&vm)
	hHat := mat.NewDense(3, 3, nil)
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			hHat.Set(r, c, vm.At(3*r+c, 8))
		}
	}

	var tDstInv mat.Dense
	if err := tDstInv.Inverse(tDst); err != nil {
		return nil, false
	}
	var tmp, h mat.Dense
	tmp.Mul(&tDstInv, hHat)
	h.Mul(&tmp, tSrc)
	return &h, true
}

// normalizePixels applies Hartley normalization to 2D points: centroid to
// the origin, mean radius to sqrt(2). Returns nil for a collapsed set.
func normalizePixels(px [][2]float64) ([][2]float64, *mat.Dense) {
	var cu, cv float64
	for _, p := range px {
		cu += p[0]
		cv += p[1]
	}
	n := float64(len(px))
	cu /= n
	cv /= n

	var meanDist float64
	for _, p := range px {
		meanDist += math.Hypot(p[0]-cu, p[1]-cv)
	}
	meanDist /= n
	if meanDist < 1e-12 {
		return nil, nil
	}
	s := math.Sqrt2 / meanDist

	out := make([][2]float64, len(px))
	for i, p := range px {
		out[i] = [2]float64{(p[0] - cu) * s, (p[1] - cv) * s}
	}
	return out, mat.NewDense(3, 3, []float64{s, 0, -s * cu, 0, s, -s * cv, 0, 0, 1})
}

// normalizeWorld applies the 3D analogue: centroid to the origin, mean
// radius to sqrt(3).
func normalizeWorld(pts []r3.Vector) ([]r3.Vector, *mat.Dense) {
	var c r3.Vector
	for _, p := range pts {
		c = c.Add(p)
	}
	n := float64(len(pts))
	c = c.Mul(1 / n)

	var meanDist float64
	for _, p := range pts {
		meanDist += p.Sub(c).Norm()
	}
	meanDist /= n
	if meanDist < 1e-12 {
		return nil, nil
	}
	s := math.Sqrt(3) / meanDist

	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = p.Sub(c).Mul(s)
	}
	t := mat.NewDense(4, 4, []float64{
		s, 0, 0, -s * c.X,
		0, s, 0, -s * c.Y,
		0, 0, s, -s * c.Z,
		0, 0, 0, 1,
	})
	return out, t
}

// rq3 factors a 3x3 matrix as K·R with K upper triangular and R a product
// of Givens rotations, zeroing the below-diagonal entries of K in the order
// (2,1), (2,0), (1,0). K's lower-right diagonal entries come out positive
// by construction; the top-left sign is fixed afterwards, K is scaled so
// K[2][2] = 1, and R absorbs the compensating sign flip.
func rq3(m [9]float64) (k [9]float64, rot [9]float64, ok bool) {
	k = m
	rot = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

	// Each step right-multiplies K by a Givens rotation G mixing two
	// columns and left-multiplies the accumulated R by Gᵀ.
	apply := func(colA, colB int, c, s float64) {
		for r := 0; r < 3; r++ {
			ka, kb := k[r*3+colA], k[r*3+colB]
			k[r*3+colA] = ka*c + kb*s
			k[r*3+colB] = -ka*s + kb*c
		}
		// G has (colA,colA)=c, (colA,colB)=-s, (colB,colA)=s, (colB,colB)=c;
		// Gᵀ·rot mixes rows colA and colB.
		for col := 0; col < 3; col++ {
			ra, rb := rot[colA*3+col], rot[colB*3+col]
			rot[colA*3+col] = ra*c + rb*s
			rot[colB*3+col] = -ra*s + rb*c
		}
	}

	// Zero k[2][1] mixing columns 1,2.
	r := math.Hypot(k[7], k[8])
	if r < 1e-15 {
		return k, rot, false
	}
	apply(1, 2, k[8]/r, -k[7]/r)

	// Zero k[2][0] mixing columns 0,2.
	r = math.Hypot(k[6], k[8])
	if r < 1e-15 {
		return k, rot, false
	}
	apply(0, 2, k[8]/r, -k[6]/r)

	// Zero k[1][0] mixing columns 0,1.
	r = math.Hypot(k[3], k[4])
	if r < 1e-15 {
		return k, rot, false
	}
	apply(0, 1, k[4]/r, -k[3]/r)

	// Make K[0][0] positive: negate K's first column and R's first row.
	if k[0] < 0 {
		k[0], k[3], k[6] = -k[0], -k[3], -k[6]
		rot[0], rot[1], rot[2] = -rot[0], -rot[1], -rot[2]
	}
	if k[8] <= 0 {
		return k, rot, false
	}
	for i := range k {
		k[i] /= k[8]
	}
	k[8] = 1
	return k, rot, true
}

// nearestRotation projects an approximate rotation matrix onto SO(3) via
// SVD: R = U·diag(1,1,det(U·Vᵀ))·Vᵀ.
func nearestRotation(m [9]float64) ([9]float64, bool) {
	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(3, 3, m[:]), mat.SVDFull) {
		return m, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var uvt mat.Dense
	uvt.Mul(&u, v.T())
	sign := 1.0
	if mat.Det(&uvt) < 0 {
		sign = -1
	}
	var corrected, out mat.Dense
	corrected.Mul(&u, mat.NewDiagDense(3, []float64{1, 1, sign}))
	out.Mul(&corrected, v.T())

	var res [9]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			res[r*3+c] = out.At(r, c)
		}
	}
	return res, true
}

// mul3 multiplies two row-major 3x3 matrices.
func mul3(a, b [9]float64) [9]float64 {
	var out [9]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i*3+j] = a[i*3]*b[j] + a[i*3+1]*b[3+j] + a[i*3+2]*b[6+j]
		}
	}
	return out
}
