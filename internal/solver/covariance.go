package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Parameter covariance at the refinement optimum.
//
// Under the Gauss-Newton approximation the parameter covariance is (JᵀWJ)⁻¹
// with J the sigma-normalized Jacobian and W the robust weights at the
// solution; refinement hands over that Jacobian already sqrt-weighted. The
// inverse goes through an SVD pseudo-inverse so a rank-deficient normal
// matrix still yields its well-determined block instead of failing outright.

// covCondLimit is the normal-matrix condition number above which the
// covariance is reported but flagged as ill conditioned.
const covCondLimit = 1e12

// machineEps is the double-precision unit roundoff used in the
// pseudo-inverse cutoff.
const machineEps = 2.220446049250313e-16

// estimateCovariance returns the parameter covariance in wire units plus
// any warnings. Orientation runs in radians internally but degrees on the
// wire, so those rows and columns are rescaled by WireScale.
func estimateCovariance(layout paramLayout, jacobianW *mat.Dense) (Covariance, []string) {
	dim := layout.Dim()
	labels := layout.Labels()

	var jtj mat.Dense
	jtj.Mul(jacobianW.T(), jacobianW)

	var warnings []string
	var svd mat.SVD
	if !svd.Factorize(&jtj, mat.SVDFull) {
		warnings = append(warnings, WarnIllConditioned(math.Inf(1)))
		return Covariance{Matrix: make([]float64, dim*dim), Labels: labels}, warnings
	}
	s := svd.Values(nil)

	cond := math.Inf(1)
	if s[dim-1] > 0 {
		cond = s[0] / s[dim-1]
	}
	if cond > covCondLimit {
		warnings = append(warnings, WarnIllConditioned(cond))
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// cov = V S⁺ Uᵀ, dropping singular values below the numerical-rank
	// cutoff so near-null directions report zero variance instead of noise.
	cutoff := float64(dim) * machineEps * s[0]
	cov := make([]float64, dim*dim)
	for k := 0; k < dim; k++ {
		if s[k] <= cutoff {
			continue
		}
		inv := 1 / s[k]
		for i := 0; i < dim; i++ {
			vik := v.At(i, k) * inv
			for j := 0; j < dim; j++ {
				cov[i*dim+j] += vik * u.At(j, k)
			}
		}
	}
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			cov[i*dim+j] *= layout.WireScale(i) * layout.WireScale(j)
		}
	}
	return Covariance{Matrix: cov, Labels: labels}, warnings
}
