package jls

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	if a == b {
		return true
	}
	return math.Abs(a-b) <= tol*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func TestStatisticsAdd(t *testing.T) {
	var s Statistics
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		s.Add(v)
	}
	if s.Count != 8 {
		t.Fatalf("count = %d, want 8", s.Count)
	}
	if !almostEqual(s.Mean, 5, 1e-12) {
		t.Errorf("mean = %v, want 5", s.Mean)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Errorf("min/max = %v/%v, want 2/9", s.Min, s.Max)
	}
	// Sample variance of the classic example is 32/7.
	if !almostEqual(s.Var(), 32.0/7.0, 1e-12) {
		t.Errorf("var = %v, want %v", s.Var(), 32.0/7.0)
	}
}

func TestStatisticsSingleSample(t *testing.T) {
	var s Statistics
	s.Add(42)
	if s.Std() != 0 {
		t.Errorf("std of one sample = %v, want 0", s.Std())
	}
	if s.Min != 42 || s.Max != 42 {
		t.Errorf("min/max = %v/%v, want 42/42", s.Min, s.Max)
	}
}

func TestStatisticsCombineMatchesSequential(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = math.Sin(float64(i) / 7)
	}
	var whole Statistics
	for _, v := range values {
		whole.Add(v)
	}
	var a, b Statistics
	for _, v := range values[:337] {
		a.Add(v)
	}
	for _, v := range values[337:] {
		b.Add(v)
	}
	a.Combine(&b)
	if a.Count != whole.Count {
		t.Fatalf("combined count = %d, want %d", a.Count, whole.Count)
	}
	if !almostEqual(a.Mean, whole.Mean, 1e-12) {
		t.Errorf("combined mean = %v, want %v", a.Mean, whole.Mean)
	}
	if !almostEqual(a.Var(), whole.Var(), 1e-9) {
		t.Errorf("combined var = %v, want %v", a.Var(), whole.Var())
	}
	if a.Min != whole.Min || a.Max != whole.Max {
		t.Errorf("combined min/max = %v/%v, want %v/%v", a.Min, a.Max, whole.Min, whole.Max)
	}
}

func TestStatisticsCombineEmpty(t *testing.T) {
	var a, b Statistics
	b.Add(3)
	b.Add(5)
	a.Combine(&b)
	if a.Count != 2 || a.Mean != 4 {
		t.Errorf("empty.Combine(b) = count %d mean %v, want 2/4", a.Count, a.Mean)
	}
	var empty Statistics
	a.Combine(&empty)
	if a.Count != 2 || a.Mean != 4 {
		t.Errorf("a.Combine(empty) changed: count %d mean %v", a.Count, a.Mean)
	}
}

func TestComputeStatisticsMatchesStreaming(t *testing.T) {
	values := []float64{1.5, -2.25, 8, 0, 3.125, 7, -1}
	got := computeStatistics(values)
	var want Statistics
	for _, v := range values {
		want.Add(v)
	}
	if got.Count != want.Count || got.Min != want.Min || got.Max != want.Max {
		t.Fatalf("count/min/max = %d/%v/%v, want %d/%v/%v",
			got.Count, got.Min, got.Max, want.Count, want.Min, want.Max)
	}
	if !almostEqual(got.Mean, want.Mean, 1e-12) {
		t.Errorf("mean = %v, want %v", got.Mean, want.Mean)
	}
	if !almostEqual(got.Var(), want.Var(), 1e-9) {
		t.Errorf("var = %v, want %v", got.Var(), want.Var())
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	var s Statistics
	for i := 0; i < 100; i++ {
		s.Add(float64(i) * 1.25)
	}
	entry := s.Summary()
	back := statisticsFromSummary(entry, s.Count)
	if !almostEqual(back.Var(), s.Var(), 1e-9) {
		t.Errorf("reconstructed var = %v, want %v", back.Var(), s.Var())
	}
	if back.Mean != entry.Mean || back.Min != entry.Min || back.Max != entry.Max {
		t.Errorf("reconstructed fields do not match entry")
	}
}

func TestSummaryEmptyIsNaN(t *testing.T) {
	var s Statistics
	e := s.Summary()
	if !math.IsNaN(e.Mean) || !math.IsNaN(e.Std) || !math.IsNaN(e.Min) || !math.IsNaN(e.Max) {
		t.Errorf("empty summary = %+v, want all NaN", e)
	}
}
