package solver

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/geofix-app/geofix/internal/camera"
)

// hypothesis pairs a candidate pose with the intrinsics it was generated
// under, so scoring always reprojects with the focal length that produced
// the pose.
type hypothesis struct {
	pose camera.Pose
	intr camera.Intrinsics
}

// generateHypotheses turns one sampled minimal subset into candidate poses.
// Fixed-focal models run P3P on the first three points and use the fourth
// to pick among the up-to-four solutions; when the fourth point cannot rank
// them (behind every candidate camera) all candidates are returned for
// consensus scoring to sort out. Focal-estimating models run the linear
// resection on the whole subset. A nil result means the subset was
// degenerate and the iteration should be retried with a different draw.
func generateHypotheses(world []r3.Vector, pixels [][2]float64, base camera.Intrinsics, model SolverModel) []hypothesis {
	if subsetDegenerate(world) {
		return nil
	}

	if model.EstimateFocal {
		h, ok := solveFocalUnknown(world, pixels, base, model)
		if !ok {
			return nil
		}
		return []hypothesis{h}
	}

	var rays [3]r3.Vector
	for i := 0; i < 3; i++ {
		rays[i] = camera.Ray(base, pixels[i][0], pixels[i][1])
	}
	poses := p3pCandidates([3]r3.Vector{world[0], world[1], world[2]}, rays)
	if len(poses) == 0 {
		return nil
	}

	if len(world) >= 4 {
		if best, ok := disambiguateByPoint(poses, base, world[3], pixels[3]); ok {
			return []hypothesis{{pose: best, intr: base}}
		}
	}
	out := make([]hypothesis, 0, len(poses))
	for _, p := range poses {
		out = append(out, hypothesis{pose: p, intr: base})
	}
	return out
}

// disambiguateByPoint picks the candidate pose that reprojects the holdout
// point with the smallest error. ok is false when the point is behind every
// candidate camera.
func disambiguateByPoint(poses []camera.Pose, intr camera.Intrinsics, world r3.Vector, px [2]float64) (camera.Pose, bool) {
	best := -1
	bestErr := math.Inf(1)
	for i, p := range poses {
		u, v, visible := camera.Project(p, intr, world)
		if !visible {
			continue
		}
		if e := math.Hypot(u-px[0], v-px[1]); e < bestErr {
			bestErr = e
			best = i
		}
	}
	if best < 0 {
		return camera.Pose{}, false
	}
	return poses[best], true
}
