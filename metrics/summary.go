package metrics

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Summary aggregates a run.
type Summary struct {
	Total  int
	Passed int
	Failed int
	Mean   time.Duration
	StdDev time.Duration
	P95    time.Duration
	Max    time.Duration
}

// Summarize computes pass counts and duration statistics of res.
func Summarize(res []CheckResult) Summary {
	s := Summary{Total: len(res)}
	if len(res) == 0 {
		return s
	}
	xs := make([]float64, 0, len(res))
	for _, r := range res {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		xs = append(xs, float64(r.Duration))
	}
	sort.Float64s(xs)
	s.Mean = time.Duration(stat.Mean(xs, nil))
	if len(xs) > 1 {
		s.StdDev = time.Duration(stat.StdDev(xs, nil))
	}
	s.P95 = time.Duration(stat.Quantile(0.95, stat.Empirical, xs, nil))
	s.Max = time.Duration(xs[len(xs)-1])
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d checks, %d passed, %d failed (mean %v, stddev %v, p95 %v, max %v)",
		s.Total, s.Passed, s.Failed,
		s.Mean.Round(time.Millisecond), s.StdDev.Round(time.Millisecond),
		s.P95.Round(time.Millisecond), s.Max.Round(time.Millisecond))
}
