package jls

import "math"

// SummaryEntry is one row of the decimation pyramid: the statistics of one
// fixed window of raw samples (or of lower-level entries).
type SummaryEntry struct {
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// Statistics accumulates streaming mean, min, max, and variance over a run
// of samples. Mean and variance use Welford's method so that windows of
// millions of samples neither overflow nor lose precision; variance from
// two disjoint runs merges exactly via the parallel combination formula.
type Statistics struct {
	Count uint64
	Mean  float64
	Min   float64
	Max   float64

	// m2 is the running sum of squared deviations from the mean.
	m2 float64
}

// Reset returns the accumulator to the empty state.
func (s *Statistics) Reset() {
	s.Count = 0
	s.Mean = 0
	s.m2 = 0
	s.Min = math.MaxFloat64
	s.Max = -math.MaxFloat64
}

// Add accumulates a single sample.
func (s *Statistics) Add(x float64) {
	if s.Count == 0 {
		s.Min = math.MaxFloat64
		s.Max = -math.MaxFloat64
	}
	s.Count++
	meanOld := s.Mean
	s.Mean += (x - meanOld) / float64(s.Count)
	s.m2 += (x - meanOld) * (x - s.Mean)
	if x < s.Min {
		s.Min = x
	}
	if x > s.Max {
		s.Max = x
	}
}

// Var returns the sample variance (N-1 definition), or 0 for fewer than two
// samples.
func (s *Statistics) Var() float64 {
	if s.Count <= 1 {
		return 0
	}
	return s.m2 / float64(s.Count-1)
}

// Std returns the sample standard deviation, or 0 for fewer than two samples.
func (s *Statistics) Std() float64 {
	return math.Sqrt(s.Var())
}

// Combine merges other into s. The merged mean is the count-weighted
// combination of the two means; the squared deviations merge by the parallel
// variance formula, so higher pyramid levels never re-read raw samples.
func (s *Statistics) Combine(other *Statistics) {
	if other.Count == 0 {
		return
	}
	if s.Count == 0 {
		*s = *other
		return
	}
	total := s.Count + other.Count
	f := float64(s.Count) / float64(total)
	mean := f*s.Mean + (1-f)*other.Mean
	da := s.Mean - mean
	db := other.Mean - mean
	s.m2 = (s.m2 + float64(s.Count)*da*da) + (other.m2 + float64(other.Count)*db*db)
	s.Mean = mean
	if other.Min < s.Min {
		s.Min = other.Min
	}
	if other.Max > s.Max {
		s.Max = other.Max
	}
	s.Count = total
}

// Summary returns the accumulated statistics as one pyramid entry.
func (s *Statistics) Summary() SummaryEntry {
	if s.Count == 0 {
		nan := math.NaN()
		return SummaryEntry{Mean: nan, Std: nan, Min: nan, Max: nan}
	}
	return SummaryEntry{
		Mean: s.Mean,
		Std:  s.Std(),
		Min:  s.Min,
		Max:  s.Max,
	}
}

// computeStatistics computes the statistics of one window in a single pass.
func computeStatistics(values []float64) Statistics {
	var s Statistics
	s.Reset()
	if len(values) == 0 {
		return s
	}
	sum := 0.0
	s.Min = values[0]
	s.Max = values[0]
	for _, v := range values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	mean := sum / float64(len(values))
	m2 := 0.0
	for _, v := range values {
		d := v - mean
		m2 += d * d
	}
	s.Count = uint64(len(values))
	s.Mean = mean
	s.m2 = m2
	return s
}

// statisticsFromSummary reconstructs an accumulator from a stored pyramid
// entry and its known sample count.
func statisticsFromSummary(e SummaryEntry, count uint64) Statistics {
	s := Statistics{
		Count: count,
		Mean:  e.Mean,
		Min:   e.Min,
		Max:   e.Max,
	}
	if count > 1 {
		s.m2 = e.Std * e.Std * float64(count-1)
	}
	return s
}
