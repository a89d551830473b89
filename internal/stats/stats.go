// Package stats aggregates per-cell sample streams and compares cells with
// Welch's t-test plus a bootstrap confidence interval on the mean
// difference.
package stats

import (
	"math"
	"math/rand/v2"

	montana "github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/subliminal-labs/roleprobe/internal/model"
)

// Summarize aggregates one cell's sample records. A cell where every sample
// was skipped reports NoData rather than zero-valued rates, so downstream
// comparisons never mistake an empty cell for a true zero.
func Summarize(cell model.CellKey, records []model.SampleRecord, skipped int) model.CellSummary {
	sum := model.CellSummary{
		CellKey: cell,
		Count:   len(records),
		Skipped: skipped,
	}
	if len(records) == 0 {
		sum.NoData = true
		return sum
	}

	probTotal := 0.0
	for _, r := range records {
		if r.Detected {
			sum.Detected++
		}
		probTotal += r.TargetProb
	}
	sum.DetectionRate = float64(sum.Detected) / float64(sum.Count)
	sum.MeanTargetProb = probTotal / float64(sum.Count)

	if cell.Mode == model.ModeUnrestricted {
		hall := 1 - sum.DetectionRate
		sum.HallucinationRate = &hall
	}
	return sum
}

// TargetProbs extracts the per-sample target probabilities from a cell's
// records, in record order, as Compare input.
func TargetProbs(records []model.SampleRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.TargetProb
	}
	return out
}

// CompareOptions tune the statistical comparison.
type CompareOptions struct {
	// Resamples is the bootstrap resample count; 0 means 2000.
	Resamples int
	// Confidence is the CI level in (0,1); 0 means 0.95.
	Confidence float64
	// Seed drives the bootstrap resampler.
	Seed int64
}

func (o CompareOptions) withDefaults() CompareOptions {
	if o.Resamples <= 0 {
		o.Resamples = 2000
	}
	if o.Confidence <= 0 || o.Confidence >= 1 {
		o.Confidence = 0.95
	}
	return o
}

// Compare runs Welch's unequal-variance t-test between two cells'
// per-sample target probabilities and bootstraps a confidence interval on
// the difference of means (other minus base). Both sides need at least two
// samples.
func Compare(baseKey, otherKey model.CellKey, base, other []float64, opts CompareOptions) (*model.ComparisonResult, error) {
	opts = opts.withDefaults()

	if len(base) < 2 {
		return nil, eris.Errorf("stats: cell %s has %d samples, need at least 2", baseKey, len(base))
	}
	if len(other) < 2 {
		return nil, eris.Errorf("stats: cell %s has %d samples, need at least 2", otherKey, len(other))
	}

	baseMean, baseVar := meanVariance(base)
	otherMean, otherVar := meanVariance(other)
	diff := otherMean - baseMean

	res := &model.ComparisonResult{
		Base:           baseKey,
		Other:          otherKey,
		BaseMean:       baseMean,
		OtherMean:      otherMean,
		MeanDifference: diff,
		Confidence:     opts.Confidence,
		Resamples:      opts.Resamples,
	}

	sb := baseVar / float64(len(base))
	so := otherVar / float64(len(other))
	if sb+so == 0 {
		if diff != 0 {
			return nil, eris.Errorf("stats: zero variance on both sides with unequal means (%s vs %s)", baseKey, otherKey)
		}
		// Identical constant samples: no evidence of any effect.
		res.TStat = 0
		res.DF = float64(len(base) + len(other) - 2)
		res.PValue = 1
		return res, nil
	}

	res.TStat = diff / math.Sqrt(sb+so)
	res.DF = math.Pow(sb+so, 2) /
		(math.Pow(sb, 2)/float64(len(base)-1) + math.Pow(so, 2)/float64(len(other)-1))

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: res.DF}
	res.PValue = 2 * dist.CDF(-math.Abs(res.TStat))

	lo, hi, err := bootstrapCI(base, other, opts)
	if err != nil {
		return nil, err
	}
	res.CILow = lo
	res.CIHigh = hi
	res.ExcludesZero = lo > 0 || hi < 0
	return res, nil
}

func meanVariance(xs []float64) (mean, variance float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs) - 1)
	return mean, variance
}

// bootstrapCI resamples both sides with replacement and takes percentile
// bounds of the resulting mean differences. Seeded, so identical inputs
// give identical intervals.
func bootstrapCI(base, other []float64, opts CompareOptions) (lo, hi float64, err error) {
	rng := rand.New(rand.NewPCG(uint64(opts.Seed), uint64(opts.Resamples)))

	diffs := make([]float64, opts.Resamples)
	for i := range diffs {
		diffs[i] = resampleMean(rng, other) - resampleMean(rng, base)
	}

	alpha := (1 - opts.Confidence) / 2
	lo, err = montana.Percentile(diffs, 100*alpha)
	if err != nil {
		return 0, 0, eris.Wrap(err, "stats: lower percentile")
	}
	hi, err = montana.Percentile(diffs, 100*(1-alpha))
	if err != nil {
		return 0, 0, eris.Wrap(err, "stats: upper percentile")
	}
	return lo, hi, nil
}

func resampleMean(rng *rand.Rand, xs []float64) float64 {
	total := 0.0
	for range xs {
		total += xs[rng.IntN(len(xs))]
	}
	return total / float64(len(xs))
}
