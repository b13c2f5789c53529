// Package aggregate reduces a collection of evaluation results into summary
// statistics. The output shape is fixed: every metric key is always present,
// with an explicit null for anything uncomputable, so downstream deltas can
// distinguish "no data" from "zero".
package aggregate

import (
	"math"
	"sort"

	"github.com/adjudex/adjudex/pkg/evaluator"
)

// Well-known summary metric keys.
const (
	MetricScoreMean      = "score_mean"
	MetricCalibrationMAE = "calibration_mae"
	MetricCoverageRate   = "coverage_rate"
	MetricAbstainRate    = "abstain_rate"
)

// Summary is the fixed-shape reduction of a result set. Pointer fields are
// nil (JSON null) when the metric could not be computed.
type Summary struct {
	Total          int                 `json:"total"`
	StatusCounts   map[string]int      `json:"status_counts"`
	ScoreMean      *float64            `json:"score_mean"`
	CalibrationMAE *float64            `json:"calibration_mae"`
	CoverageRate   *float64            `json:"coverage_rate"`
	AbstainRate    *float64            `json:"abstain_rate"`
	Metrics        map[string]*float64 `json:"metrics"`
}

// Aggregate reduces results. extraMetrics names metric keys that must appear
// in the output even when no result carries them (explicit null).
func Aggregate(results []evaluator.Result, extraMetrics ...string) Summary {
	s := Summary{
		Total:        len(results),
		StatusCounts: map[string]int{},
		Metrics:      map[string]*float64{},
	}
	for _, key := range extraMetrics {
		s.Metrics[key] = nil
	}
	if len(results) == 0 {
		return s
	}

	scoreSum := 0.0
	decided := 0   // HIT + MISS
	abstained := 0 // ABSTAIN + UNKNOWN

	metricSums := map[string]float64{}
	metricCounts := map[string]int{}

	calWeighted := 0.0
	calWeight := 0.0

	for _, r := range results {
		s.StatusCounts[string(r.Status)]++
		scoreSum += r.Score

		switch r.Status {
		case evaluator.StatusHit, evaluator.StatusMiss:
			decided++
		case evaluator.StatusAbstain, evaluator.StatusUnknown:
			abstained++
		}

		for key, v := range r.Metrics {
			metricSums[key] += v
			metricCounts[key]++
		}

		if err, weight, ok := calibrationError(r); ok {
			calWeighted += err * weight
			calWeight += weight
		}
	}

	mean := scoreSum / float64(len(results))
	s.ScoreMean = &mean

	coverage := float64(decided) / float64(len(results))
	s.CoverageRate = &coverage

	abstainRate := float64(abstained) / float64(len(results))
	s.AbstainRate = &abstainRate

	if calWeight > 0 {
		mae := calWeighted / calWeight
		s.CalibrationMAE = &mae
	}

	// Per-metric means ignore results where the metric is absent.
	keys := make([]string, 0, len(metricSums))
	for key := range metricSums {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		m := metricSums[key] / float64(metricCounts[key])
		s.Metrics[key] = &m
	}
	return s
}

// calibrationError derives one result's mean-absolute calibration error and
// its sample-size weight, from bins when present or a direct value
// otherwise.
func calibrationError(r evaluator.Result) (err float64, weight float64, ok bool) {
	if len(r.CalibrationBins) > 0 {
		total := 0
		sum := 0.0
		for _, bin := range r.CalibrationBins {
			if bin.Count <= 0 {
				continue
			}
			sum += math.Abs(bin.Forecast-bin.Observed) * float64(bin.Count)
			total += bin.Count
		}
		if total == 0 {
			return 0, 0, false
		}
		return sum / float64(total), float64(total), true
	}
	if r.CalibrationError != nil {
		w := float64(r.SampleSize)
		if w <= 0 {
			w = 1
		}
		return *r.CalibrationError, w, true
	}
	return 0, 0, false
}

// Named returns the summary's value for a well-known or discovered metric
// key, nil when uncomputed.
func (s Summary) Named(key string) *float64 {
	switch key {
	case MetricScoreMean:
		return s.ScoreMean
	case MetricCalibrationMAE:
		return s.CalibrationMAE
	case MetricCoverageRate:
		return s.CoverageRate
	case MetricAbstainRate:
		return s.AbstainRate
	default:
		return s.Metrics[key]
	}
}

// MetricKeys returns every key present in the summary, well-known first.
func (s Summary) MetricKeys() []string {
	keys := []string{MetricScoreMean, MetricCalibrationMAE, MetricCoverageRate, MetricAbstainRate}
	extra := make([]string, 0, len(s.Metrics))
	for key := range s.Metrics {
		extra = append(extra, key)
	}
	sort.Strings(extra)
	return append(keys, extra...)
}

// ImprovementSign returns +1 for metrics where larger is better and -1 for
// metrics where smaller is better, so deltas can be sign-adjusted to always
// mean "positive = improved".
func ImprovementSign(key string) float64 {
	switch key {
	case MetricCalibrationMAE, MetricAbstainRate:
		return -1
	default:
		return 1
	}
}

// Deltas computes per-metric after − before, sign-adjusted so positive
// always means "improved". A metric uncomputable on either side yields an
// explicit nil, never a missing key.
func Deltas(before, after Summary) map[string]*float64 {
	deltas := make(map[string]*float64)
	for _, key := range before.MetricKeys() {
		b := before.Named(key)
		a := after.Named(key)
		if b == nil || a == nil {
			deltas[key] = nil
			continue
		}
		d := ImprovementSign(key) * (*a - *b)
		deltas[key] = &d
	}
	return deltas
}
