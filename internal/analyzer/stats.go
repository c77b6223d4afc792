package analyzer

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// proportionZTest compares two sample proportions (hits1/n1 vs hits2/n2) with
// a pooled two-sample z-test and returns the two-sided p-value. Degenerate
// samples return p = 1 so they can never pass the gate.
func proportionZTest(hits1, n1, hits2, n2 int) float64 {
	if n1 == 0 || n2 == 0 {
		return 1
	}
	p1 := float64(hits1) / float64(n1)
	p2 := float64(hits2) / float64(n2)
	pooled := float64(hits1+hits2) / float64(n1+n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 1
	}
	z := (p1 - p2) / se
	return 2 * stdNormal.Survival(math.Abs(z))
}

// benjaminiHochberg adjusts p-values to control the false-discovery rate.
// Input order is preserved in the output.
func benjaminiHochberg(pvalues []float64) []float64 {
	m := len(pvalues)
	if m == 0 {
		return nil
	}

	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return pvalues[order[a]] < pvalues[order[b]] })

	adjusted := make([]float64, m)
	prev := 1.0
	for rank := m - 1; rank >= 0; rank-- {
		idx := order[rank]
		adj := pvalues[idx] * float64(m) / float64(rank+1)
		if adj > prev {
			adj = prev
		}
		prev = adj
		adjusted[idx] = adj
	}
	return adjusted
}

const bootstrapResamples = 10_000

// bootstrapLiftCI estimates a 95% CI for the lift of one phrase by resampling
// both corpora. missed and notMissed are per-title phrase-presence indicators.
// The RNG is seeded per call so identical inputs reproduce identical CIs.
func bootstrapLiftCI(missed, notMissed []bool) (lo, hi float64) {
	if len(missed) == 0 || len(notMissed) == 0 {
		return 0, 0
	}
	rng := rand.New(rand.NewSource(int64(len(missed))<<32 | int64(len(notMissed))))

	lifts := make([]float64, 0, bootstrapResamples)
	for i := 0; i < bootstrapResamples; i++ {
		pm := resampleRate(rng, missed)
		pn := resampleRate(rng, notMissed)
		if pn == 0 {
			// Smooth the empty denominator instead of discarding the draw.
			pn = 0.5 / float64(len(notMissed))
		}
		lifts = append(lifts, pm/pn)
	}
	sort.Float64s(lifts)
	return lifts[int(0.025*float64(len(lifts)))], lifts[int(0.975*float64(len(lifts)))-1]
}

func resampleRate(rng *rand.Rand, present []bool) float64 {
	hits := 0
	for i := 0; i < len(present); i++ {
		if present[rng.Intn(len(present))] {
			hits++
		}
	}
	return float64(hits) / float64(len(present))
}
