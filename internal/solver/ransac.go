package solver

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/geofix-app/geofix/internal/camera"
)

// RANSAC consensus search.
//
// Each iteration draws a minimal subset with an RNG derived from (seed,
// iteration index), generates hypotheses, and scores them by reprojecting
// every enabled correspondence. The best candidate is kept under a total
// order (most inliers, then lowest mean inlier residual, then earliest
// iteration, then earliest hypothesis within the iteration) so the winner
// is a pure function of the inputs. Iterations run in fixed-size batches
// striped across workers; each worker keeps a local best and batches merge
// in worker order after all workers join, which keeps the result
// independent of goroutine completion order. The adaptive stopping rule is
// evaluated at batch boundaries: once the iterations performed exceed
// log(1-targetProb)/log(1-ratio^k) for the best inlier ratio seen, the
// search ends early.

// ransacBatchSize is the number of iterations scheduled between adaptive
// stopping checks. Fixed, rather than derived from worker count, so the
// search trajectory depends only on the seed and configuration.
const ransacBatchSize = 256

// consensus is the search output: the winning hypothesis, the indices of
// its inliers among the enabled correspondences, and bookkeeping for
// diagnostics.
type consensus struct {
	hyp          hypothesis
	inlierIdx    []int
	meanResidual float64
	iterations   int
}

// candidate is one scored hypothesis in the running comparison.
type candidate struct {
	hyp          hypothesis
	inliers      int
	meanResidual float64
	iter         int
	hypIdx       int
	valid        bool
}

// better reports whether c beats other under the deterministic total order.
func (c candidate) better(other candidate) bool {
	if !c.valid || !other.valid {
		return c.valid
	}
	if c.inliers != other.inliers {
		return c.inliers > other.inliers
	}
	if c.meanResidual != other.meanResidual {
		return c.meanResidual < other.meanResidual
	}
	if c.iter != other.iter {
		return c.iter < other.iter
	}
	return c.hypIdx < other.hypIdx
}

// sampleSize is the minimal-subset draw per iteration: six points feed the
// linear focal-recovering resection, four feed P3P plus its disambiguator.
func sampleSize(model SolverModel) int {
	if model.EstimateFocal {
		return MinCorrespondencesFreeFocal
	}
	return MinCorrespondencesFixedFocal
}

// runRansac searches for the hypothesis with the largest consensus set.
// The enabled-correspondence count must already meet the model minimum.
func runRansac(prob *problem, cfg *RansacConfig, seed uint64, workers int) (*consensus, error) {
	n := len(prob.world)
	k := sampleSize(prob.model)
	maxIters := cfg.GetMaxIters()
	thresholdPx := cfg.GetInlierPx()
	targetProb := cfg.GetTargetProb()
	minViable := prob.model.MinCorrespondences()
	if workers < 1 {
		workers = 1
	}

	var best candidate
	degenerate := 0
	performed := 0

	for start := 0; start < maxIters; start += ransacBatchSize {
		end := start + ransacBatchSize
		if end > maxIters {
			end = maxIters
		}

		locals := make([]candidate, workers)
		degs := make([]int, workers)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				scratch := make([]int, n)
				subWorld := make([]r3.Vector, k)
				subPixels := make([][2]float64, k)
				var local candidate
				for iter := start + w; iter < end; iter += workers {
					rng := newRand(deriveSeed(seed, seedDomainRansac, uint64(iter)))
					idx := sampleIndices(rng, scratch, k)
					for i, j := range idx {
						subWorld[i] = prob.world[j]
						subPixels[i] = prob.pixels[j]
					}
					hyps := generateHypotheses(subWorld, subPixels, prob.base, prob.model)
					if len(hyps) == 0 {
						degs[w]++
						continue
					}
					for hi, h := range hyps {
						inliers, mean := scoreHypothesis(prob, h, thresholdPx)
						if inliers < minViable {
							continue
						}
						c := candidate{hyp: h, inliers: inliers, meanResidual: mean, iter: iter, hypIdx: hi, valid: true}
						if c.better(local) {
							local = c
						}
					}
				}
				locals[w] = local
			}(w)
		}
		wg.Wait()

		for w := 0; w < workers; w++ {
			degenerate += degs[w]
			if locals[w].better(best) {
				best = locals[w]
			}
		}
		performed = end

		if best.valid && itersNeeded(best.inliers, n, k, targetProb) <= float64(performed) {
			break
		}
	}

	if !best.valid {
		if degenerate == performed {
			return nil, Errorf(KindDegenerateGeometry,
				"all %d sampled subsets were degenerate (collinear or coincident world points)", performed)
		}
		return nil, Errorf(KindNoConsensus,
			"no hypothesis reached the minimum viable consensus of %d inliers in %d iterations", minViable, performed)
	}

	return &consensus{
		hyp:          best.hyp,
		inlierIdx:    collectInliers(prob, best.hyp, thresholdPx),
		meanResidual: best.meanResidual,
		iterations:   performed,
	}, nil
}

// itersNeeded is the adaptive-RANSAC iteration bound: how many draws are
// required so that, with probability targetProb, at least one subset was
// all inliers given the observed inlier ratio.
func itersNeeded(inliers, n, k int, targetProb float64) float64 {
	ratio := float64(inliers) / float64(n)
	pAllInliers := math.Pow(ratio, float64(k))
	if pAllInliers >= 1 {
		return 1
	}
	if pAllInliers <= 0 {
		return math.Inf(1)
	}
	return math.Log(1-targetProb) / math.Log(1-pAllInliers)
}

// scoreHypothesis counts correspondences whose reprojection error is within
// thresholdPx and returns their mean error. Points behind the camera never
// count as inliers.
func scoreHypothesis(prob *problem, h hypothesis, thresholdPx float64) (inliers int, meanResidual float64) {
	var sum float64
	for i := range prob.world {
		u, v, ok := camera.Project(h.pose, h.intr, prob.world[i])
		if !ok {
			continue
		}
		if e := math.Hypot(u-prob.pixels[i][0], v-prob.pixels[i][1]); e <= thresholdPx {
			inliers++
			sum += e
		}
	}
	if inliers > 0 {
		meanResidual = sum / float64(inliers)
	}
	return inliers, meanResidual
}

// collectInliers returns the indices of the consensus set for a hypothesis.
func collectInliers(prob *problem, h hypothesis, thresholdPx float64) []int {
	var idx []int
	for i := range prob.world {
		u, v, ok := camera.Project(h.pose, h.intr, prob.world[i])
		if !ok {
			continue
		}
		if math.Hypot(u-prob.pixels[i][0], v-prob.pixels[i][1]) <= thresholdPx {
			idx = append(idx, i)
		}
	}
	return idx
}
