package solver

import (
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestEstimateCovarianceDiagonal(t *testing.T) {
	layout := newParamLayout(SolverModel{})
	jac := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		jac.Set(i, i, float64(i+1))
	}

	cov, warns := estimateCovariance(layout, jac)
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if got := cov.Dim(); got != 6 {
		t.Fatalf("Dim() = %d, want 6", got)
	}
	for i := 0; i < 6; i++ {
		scale := layout.WireScale(i)
		want := scale * scale / math.Pow(float64(i+1), 2)
		got := cov.Matrix[i*6+i]
		if math.Abs(got-want) > 1e-9*want {
			t.Errorf("cov[%d][%d] = %g, want %g", i, i, got, want)
		}
		for j := 0; j < 6; j++ {
			if j != i && math.Abs(cov.Matrix[i*6+j]) > 1e-12 {
				t.Errorf("cov[%d][%d] = %g, want 0", i, j, cov.Matrix[i*6+j])
			}
		}
	}
}

func TestEstimateCovarianceAngleScaling(t *testing.T) {
	layout := newParamLayout(SolverModel{})
	jac := mat.NewDense(6, 6, nil)
	for i := 0; i < 6; i++ {
		jac.Set(i, i, 1)
	}
	cov, _ := estimateCovariance(layout, jac)

	degSq := (180 / math.Pi) * (180 / math.Pi)
	if got := cov.Matrix[0]; math.Abs(got-1) > 1e-12 {
		t.Errorf("position variance = %g, want 1 (meters stay 1:1)", got)
	}
	if got := cov.Matrix[idxYaw*6+idxYaw]; math.Abs(got-degSq) > 1e-6 {
		t.Errorf("yaw variance = %g, want %g (radians squared scaled to degrees squared)", got, degSq)
	}
}

func TestEstimateCovarianceRankDeficient(t *testing.T) {
	layout := newParamLayout(SolverModel{})
	// Column 5 is identically zero: one parameter is unobservable.
	jac := mat.NewDense(8, 6, nil)
	for i := 0; i < 8; i++ {
		for j := 0; j < 5; j++ {
			jac.Set(i, j, float64((i+2)*(j+1)%7)+0.5)
		}
	}

	_, warns := estimateCovariance(layout, jac)
	found := false
	for _, w := range warns {
		if strings.Contains(w, "ill-conditioned") {
			found = true
		}
	}
	if !found {
		t.Fatalf("rank-deficient jacobian produced no ill-conditioning warning, got %v", warns)
	}
}
