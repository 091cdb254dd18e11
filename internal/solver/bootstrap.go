package solver

import (
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/geofix-app/geofix/internal/geodesy"
	"github.com/geofix-app/geofix/internal/units"
)

// Bootstrap uncertainty estimation.
//
// Each resample draws the full-solve inlier set with replacement, then runs
// the whole pipeline (consensus search plus refinement) on the resampled
// correspondences. The spread of the resulting poses is an empirical
// uncertainty estimate that, unlike the analytic covariance, reflects the
// pipeline's own nonlinearities. Resamples are seeded independently through
// deriveSeed so the set of samples is reproducible and order-independent;
// a resample whose draw collapses to degenerate geometry simply fails and
// is counted, not retried.

// bootstrapMinSummary is the smallest successful-sample count for which the
// spread summary is computed.
const bootstrapMinSummary = 2

type bootstrapSample struct {
	ok               bool
	lat, lon, alt    float64
	yaw, pitch, roll float64
	focal            float64
	enu              r3.Vector
}

// runBootstrap resamples the inlier set and aggregates the per-sample
// estimates. full is the refinement result of the complete solve; its pose
// anchors the spread summary.
func runBootstrap(prob *problem, layout paramLayout, full *refineResult, inliers []int, req *SolveRequest, runSeed uint64, workers int) (*Bootstrap, []string) {
	cfg := &req.Uncertainty.Bootstrap
	samples := cfg.GetSamples()
	seed := runSeed
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	if workers < 1 {
		workers = 1
	}

	results := make([]bootstrapSample, samples)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j] = resampleOnce(prob, layout, inliers, req, deriveSeed(seed, seedDomainBootstrap, uint64(j)))
			}
		}()
	}
	for j := 0; j < samples; j++ {
		jobs <- j
	}
	close(jobs)
	wg.Wait()

	out := &Bootstrap{Samples: samples}
	for _, s := range results {
		if !s.ok {
			continue
		}
		out.Succeeded++
		out.Lat = append(out.Lat, s.lat)
		out.Lon = append(out.Lon, s.lon)
		out.Alt = append(out.Alt, s.alt)
		out.YawDeg = append(out.YawDeg, s.yaw)
		out.PitchDeg = append(out.PitchDeg, s.pitch)
		out.RollDeg = append(out.RollDeg, s.roll)
		out.FocalPx = append(out.FocalPx, s.focal)
	}

	var warnings []string
	if failed := samples - out.Succeeded; failed > 0 {
		warnings = append(warnings, WarnBootstrapFailures(failed, samples))
	}
	if out.Succeeded >= bootstrapMinSummary {
		out.Summary = summarizeBootstrap(results, full, prob.frame)
	}
	return out, warnings
}

// resampleOnce runs the pipeline on one with-replacement draw of the inlier
// set. The consensus search runs single-threaded here; parallelism lives at
// the resample level.
func resampleOnce(prob *problem, layout paramLayout, inliers []int, req *SolveRequest, sampleSeed uint64) bootstrapSample {
	rng := newRand(sampleSeed)
	n := len(inliers)
	sub := &problem{
		world:   make([]r3.Vector, n),
		pixels:  make([][2]float64, n),
		sigmaPx: make([]float64, n),
		sigmaM:  make([]float64, n),
		base:    prob.base,
		model:   prob.model,
		frame:   prob.frame,
		priors:  prob.priors,
	}
	for i := 0; i < n; i++ {
		j := inliers[rng.Intn(n)]
		sub.world[i] = prob.world[j]
		sub.pixels[i] = prob.pixels[j]
		sub.sigmaPx[i] = prob.sigmaPx[j]
		sub.sigmaM[i] = prob.sigmaM[j]
	}

	cons, err := runRansac(sub, req.Ransac, sampleSeed, 1)
	if err != nil {
		return bootstrapSample{}
	}
	res := refinePose(sub, layout, cons.inlierIdx, cons.hyp, req.Refine)

	pos := prob.frame.ToLLA(res.pose.Center)
	yaw, pitch, roll := res.pose.R.YawPitchRoll()
	return bootstrapSample{
		ok:    true,
		lat:   pos.Lat,
		lon:   pos.Lon,
		alt:   pos.Alt,
		yaw:   units.Degrees(yaw),
		pitch: units.Degrees(pitch),
		roll:  units.Degrees(roll),
		focal: res.intr.FocalPx,
		enu:   res.pose.Center,
	}
}

// summarizeBootstrap reduces the successful samples to scalar spreads around
// the full-solve estimate. Yaw differences are folded through AngleDiffDeg
// so headings straddling the +/-180 seam do not inflate the spread.
func summarizeBootstrap(results []bootstrapSample, full *refineResult, frame geodesy.Frame) BootstrapSummary {
	fullYaw, fullPitch, fullRoll := full.pose.R.YawPitchRoll()
	fy, fp, fr := units.Degrees(fullYaw), units.Degrees(fullPitch), units.Degrees(fullRoll)

	var sqDist float64
	var yawDiff, pitchDiff, rollDiff, focal []float64
	for _, s := range results {
		if !s.ok {
			continue
		}
		sqDist += s.enu.Sub(full.pose.Center).Norm2()
		yawDiff = append(yawDiff, units.AngleDiffDeg(s.yaw, fy))
		pitchDiff = append(pitchDiff, units.AngleDiffDeg(s.pitch, fp))
		rollDiff = append(rollDiff, units.AngleDiffDeg(s.roll, fr))
		focal = append(focal, s.focal)
	}
	n := len(focal)
	return BootstrapSummary{
		PositionStdM: math.Sqrt(sqDist / float64(n)),
		YawStdDeg:    stat.StdDev(yawDiff, nil),
		PitchStdDeg:  stat.StdDev(pitchDiff, nil),
		RollStdDeg:   stat.StdDev(rollDiff, nil),
		FocalStdPx:   stat.StdDev(focal, nil),
	}
}
