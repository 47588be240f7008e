package services

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Rating is one rater's slot for one sample. A zero Rating is missing.
type Rating[T cmp.Ordered] struct {
	Value   T
	Present bool
}

// Rated returns a present rating holding v.
func Rated[T cmp.Ordered](v T) Rating[T] {
	return Rating[T]{Value: v, Present: true}
}

// Missing returns an absent rating.
func Missing[T cmp.Ordered]() Rating[T] {
	return Rating[T]{}
}

// Metric is the distance between two rating values.
type Metric[T cmp.Ordered] func(a, b T) float64

// IdentityMetric is the nominal distance: 0 when a equals b, 1 otherwise.
func IdentityMetric[T cmp.Ordered](a, b T) float64 {
	if a == b {
		return 0
	}
	return 1
}

// AlphaReport carries the intermediate quantities of one alpha computation.
// Coincidence is indexed by position in Values; a nil cell means no sample
// produced that pair of values.
type AlphaReport[T cmp.Ordered] struct {
	Values      []T
	Coincidence [][]*float64
	ValueCounts []int
	Pairable    float64
	Observed    float64
	Expected    float64
	Alpha       float64
}

// DistinctValues returns the present rating values of matrix in ascending order.
// The matrix is shaped as [nRaters][nSamples]; rows may be ragged.
func DistinctValues[T cmp.Ordered](matrix [][]Rating[T]) []T {
	seen := map[T]struct{}{}
	out := []T{}
	for _, row := range matrix {
		for _, r := range row {
			if !r.Present {
				continue
			}
			if _, ok := seen[r.Value]; ok {
				continue
			}
			seen[r.Value] = struct{}{}
			out = append(out, r.Value)
		}
	}
	slices.Sort(out)
	return out
}

// CoincidenceMatrix returns the symmetric coincidence matrix of matrix over
// the values returned by DistinctValues.
func CoincidenceMatrix[T cmp.Ordered](matrix [][]Rating[T]) [][]*float64 {
	co, _ := coincidences(matrix, DistinctValues(matrix))
	return co
}

// Alpha computes Krippendorff's alpha for matrix under metric. A nil metric
// selects IdentityMetric. Degenerate input (no pairable ratings, or zero
// expected disagreement) yields NaN or ±Inf rather than an error.
func Alpha[T cmp.Ordered](matrix [][]Rating[T], metric Metric[T]) float64 {
	return Analyze(matrix, metric).Alpha
}

// Analyze runs the full alpha pipeline and keeps every intermediate result.
func Analyze[T cmp.Ordered](matrix [][]Rating[T], metric Metric[T]) *AlphaReport[T] {
	if metric == nil {
		metric = IdentityMetric[T]
	}
	values := DistinctValues(matrix)
	co, valueCounts := coincidences(matrix, values)

	mass := make([]float64, len(values))
	for i, n := range valueCounts {
		mass[i] = float64(n)
	}
	total := floats.Sum(mass)

	var observed, expected float64
	for i := range values {
		for j := i; j < len(values); j++ {
			d := metric(values[i], values[j])
			if co[i][j] != nil {
				observed += *co[i][j] * d
			}
			expected += mass[i] * mass[j] * d
		}
	}
	expected /= total - 1

	return &AlphaReport[T]{
		Values:      values,
		Coincidence: co,
		ValueCounts: valueCounts,
		Pairable:    total,
		Observed:    observed,
		Expected:    expected,
		Alpha:       1 - observed/expected,
	}
}

// coincidences builds the coincidence matrix and the per-value counts n(v) in
// one pass over samples in column order. A sample rated c >= 2 times adds
// pairs/(c-1) to each value pair it contains, where pairs counts ordered pairs
// of distinct raters; samples rated fewer than twice contribute nothing.
func coincidences[T cmp.Ordered](matrix [][]Rating[T], values []T) ([][]*float64, []int) {
	k := len(values)
	index := make(map[T]int, k)
	for i, v := range values {
		index[v] = i
	}
	out := make([][]*float64, k)
	for i := range out {
		out[i] = make([]*float64, k)
	}
	valueCounts := make([]int, k)

	type group struct{ value, n int }
	present := make([]int, 0, len(matrix))
	groups := make([]group, 0, len(matrix))
	for s, c := range sampleRatingCounts(matrix) {
		if c < 2 {
			continue
		}
		present = present[:0]
		for _, row := range matrix {
			v, ok := ratingAt(row, s)
			if !ok {
				continue
			}
			// NaN never equals itself, so it never forms a pair.
			if vi, ok := index[v]; ok {
				present = append(present, vi)
			}
		}
		slices.Sort(present)
		groups = groups[:0]
		for _, vi := range present {
			if n := len(groups); n > 0 && groups[n-1].value == vi {
				groups[n-1].n++
				continue
			}
			groups = append(groups, group{value: vi, n: 1})
		}

		for a, ga := range groups {
			valueCounts[ga.value] += ga.n
			for _, gb := range groups[a:] {
				pairs := ga.n * gb.n
				if ga.value == gb.value {
					pairs = ga.n * (ga.n - 1)
				}
				if pairs == 0 {
					continue
				}
				cell := out[ga.value][gb.value]
				if cell == nil {
					cell = new(float64)
					out[ga.value][gb.value] = cell
				}
				*cell += float64(pairs) / float64(c-1)
			}
		}
	}

	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			if out[i][j] != nil {
				lower := *out[i][j]
				out[j][i] = &lower
			}
		}
	}
	return out, valueCounts
}

// ratingAt treats an index past the end of row as missing.
func ratingAt[T cmp.Ordered](row []Rating[T], sample int) (T, bool) {
	if sample < len(row) && row[sample].Present {
		return row[sample].Value, true
	}
	var zero T
	return zero, false
}

func sampleCount[T cmp.Ordered](matrix [][]Rating[T]) int {
	n := 0
	for _, row := range matrix {
		n = max(n, len(row))
	}
	return n
}

func sampleRatingCount[T cmp.Ordered](matrix [][]Rating[T], sample int) int {
	n := 0
	for _, row := range matrix {
		if _, ok := ratingAt(row, sample); ok {
			n++
		}
	}
	return n
}

func sampleRatingCounts[T cmp.Ordered](matrix [][]Rating[T]) []int {
	counts := make([]int, sampleCount(matrix))
	for s := range counts {
		counts[s] = sampleRatingCount(matrix, s)
	}
	return counts
}
