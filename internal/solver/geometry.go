package solver

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Degeneracy thresholds for sampled world-point subsets.
const (
	// MinPointSeparationMeters is the smallest usable distance between two
	// sampled world points; closer pairs are treated as coincident.
	MinPointSeparationMeters = 1e-3
	// CollinearityRatio is the line/spread ratio below which a subset is
	// treated as collinear and rejected for hypothesis generation.
	CollinearityRatio = 1e-4
	// PlanarityRatio is the plane/spread ratio below which a subset is
	// treated as coplanar, switching the focal-unknown solver from the
	// general 3D resection to the planar homography path.
	PlanarityRatio = 0.02
)

// spreadRatios measures how far a point set is from being collinear or
// coplanar. It eigendecomposes the centered second-moment matrix and returns
// sqrt(lambda_mid/lambda_max) (near 0 for collinear sets) and
// sqrt(lambda_min/lambda_max) (near 0 for coplanar sets). A fully coincident
// set returns (0, 0).
func spreadRatios(pts []r3.Vector) (line, plane float64) {
	var c r3.Vector
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(pts)))

	var m [9]float64
	for _, p := range pts {
		d := [3]float64{p.X - c.X, p.Y - c.Y, p.Z - c.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				m[i*3+j] += d[i] * d[j]
			}
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(mat.NewSymDense(3, m[:]), false) {
		return 0, 0
	}
	// Eigenvalues in ascending order; clamp tiny negatives from roundoff.
	vals := eig.Values(nil)
	for i := range vals {
		if vals[i] < 0 {
			vals[i] = 0
		}
	}
	if vals[2] <= 0 {
		return 0, 0
	}
	return math.Sqrt(vals[1] / vals[2]), math.Sqrt(vals[0] / vals[2])
}

// pointsCoincident reports whether any two points sit closer than minSep.
func pointsCoincident(pts []r3.Vector, minSep float64) bool {
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			if pts[i].Sub(pts[j]).Norm() < minSep {
				return true
			}
		}
	}
	return false
}

// subsetDegenerate reports whether a sampled world subset cannot generate a
// hypothesis: coincident points or a collinear layout.
func subsetDegenerate(pts []r3.Vector) bool {
	if pointsCoincident(pts, MinPointSeparationMeters) {
		return true
	}
	line, _ := spreadRatios(pts)
	return line < CollinearityRatio
}
