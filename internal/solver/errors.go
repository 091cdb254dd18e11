package solver

import (
	"errors"
	"fmt"
)

// ErrorKind classifies fatal solve failures. Non-fatal conditions
// (non-convergence, ill-conditioning) are reported as diagnostics warnings
// on a successful response instead.
type ErrorKind string

const (
	// KindInsufficientCorrespondences: fewer enabled correspondences than
	// the model's minimum.
	KindInsufficientCorrespondences ErrorKind = "insufficient_correspondences"
	// KindDegenerateGeometry: every attempted minimal subset was
	// degenerate (collinear or coincident points).
	KindDegenerateGeometry ErrorKind = "degenerate_geometry"
	// KindNoConsensus: the consensus search exhausted its iterations
	// without a viable hypothesis.
	KindNoConsensus ErrorKind = "no_consensus"
	// KindInvalidInput: malformed request, rejected before any computation.
	KindInvalidInput ErrorKind = "invalid_input"
)

// Error is a classified solve failure.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Errorf builds a classified error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the classification from an error, or "" when the error is
// not a solver error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Warning strings surfaced in Diagnostics.Warnings. These are part of the
// observable behavior (the front end renders them), so the wording is fixed
// here rather than scattered across call sites.

// WarnUnseeded notes that the run drew a fresh seed and is therefore not
// reproducible.
const WarnUnseeded = "no seed supplied; drew a fresh seed, results will vary between runs"

// WarnNonConvergence reports refinement stopping at its iteration cap with
// the best parameters found so far.
func WarnNonConvergence(iters int) string {
	return fmt.Sprintf("refinement reached max iterations (%d) before converging; returning best parameters found", iters)
}

// WarnIllConditioned reports a near-singular normal matrix; the returned
// covariance is an SVD pseudo-inverse and should be read qualitatively.
func WarnIllConditioned(cond float64) string {
	return fmt.Sprintf("ill-conditioned system (condition number %.3g); covariance is a pseudo-inverse and may be unreliable", cond)
}

// WarnBootstrapFailures reports resamples that failed to solve and were
// dropped from the empirical distributions.
func WarnBootstrapFailures(failed, total int) string {
	return fmt.Sprintf("bootstrap: %d of %d resamples failed to solve and were dropped", failed, total)
}
