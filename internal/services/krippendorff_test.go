package services

import (
	"cmp"
	"math"
	"testing"
	"time"

	gocmp "github.com/google/go-cmp/cmp"
)

// ints builds a rating matrix where 0 marks a missing rating.
func ints(rows ...[]int) [][]Rating[int] {
	out := make([][]Rating[int], 0, len(rows))
	for _, row := range rows {
		r := make([]Rating[int], 0, len(row))
		for _, v := range row {
			if v == 0 {
				r = append(r, Missing[int]())
				continue
			}
			r = append(r, Rated(v))
		}
		out = append(out, r)
	}
	return out
}

func wikipediaMatrix() [][]Rating[int] {
	return ints(
		[]int{0, 0, 0, 0, 0, 3, 4, 1, 2, 1, 1, 3, 3, 0, 3},
		[]int{1, 0, 2, 1, 3, 3, 4, 3, 0, 0, 0, 0, 0, 0, 0},
		[]int{0, 0, 2, 1, 3, 4, 4, 0, 2, 1, 1, 3, 3, 0, 4},
	)
}

func weight(v float64) *float64 { return &v }

// pairCount counts ordered pairs of distinct raters (i, j) where rater i gave
// a and rater j gave b on sample.
func pairCount[T cmp.Ordered](matrix [][]Rating[T], sample int, a, b T) int {
	n := 0
	for i, ri := range matrix {
		va, ok := ratingAt(ri, sample)
		if !ok || va != a {
			continue
		}
		for j, rj := range matrix {
			if i == j {
				continue
			}
			if vb, ok := ratingAt(rj, sample); ok && vb == b {
				n++
			}
		}
	}
	return n
}

// definitionMatrix evaluates every coincidence cell straight from pairCount,
// summing samples in column order.
func definitionMatrix[T cmp.Ordered](matrix [][]Rating[T]) ([][]*float64, []int) {
	values := DistinctValues(matrix)
	counts := sampleRatingCounts(matrix)
	out := make([][]*float64, len(values))
	for i := range out {
		out[i] = make([]*float64, len(values))
	}
	for i := range values {
		for j := i; j < len(values); j++ {
			var freq float64
			defined := false
			for s, c := range counts {
				if c < 2 {
					continue
				}
				if pairs := pairCount(matrix, s, values[i], values[j]); pairs > 0 {
					freq += float64(pairs) / float64(c-1)
					defined = true
				}
			}
			if defined {
				upper, lower := freq, freq
				out[i][j], out[j][i] = &upper, &lower
			}
		}
	}
	valueCounts := make([]int, len(values))
	for i, v := range values {
		for s, c := range counts {
			if c < 2 {
				continue
			}
			for _, row := range matrix {
				if got, ok := ratingAt(row, s); ok && got == v {
					valueCounts[i]++
				}
			}
		}
	}
	return out, valueCounts
}

func TestAlpha_SimpleMatrix(t *testing.T) {
	got := Alpha(ints([]int{1, 2, 1}, []int{1, 1, 1}, []int{1, 2, 3}), nil)
	if math.Abs(got-0.2) > 1e-9 {
		t.Fatalf("alpha expected ~0.2, got %f", got)
	}
}

func TestAlpha_StringLabelsMatchNumbers(t *testing.T) {
	labels := [][]Rating[string]{
		{Rated("a"), Rated("b"), Rated("a")},
		{Rated("a"), Rated("a"), Rated("a")},
		{Rated("a"), Rated("b"), Rated("c")},
	}
	got := Alpha(labels, IdentityMetric[string])
	want := Alpha(ints([]int{1, 2, 1}, []int{1, 1, 1}, []int{1, 2, 3}), IdentityMetric[int])
	if got != want {
		t.Fatalf("string alpha %v != numeric alpha %v", got, want)
	}
}

func TestCoincidenceMatrix_Wikipedia(t *testing.T) {
	m := wikipediaMatrix()
	if diff := gocmp.Diff([]int{1, 2, 3, 4}, DistinctValues(m)); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	want := [][]*float64{
		{weight(6), nil, weight(1), nil},
		{nil, weight(4), nil, nil},
		{weight(1), nil, weight(7), weight(2)},
		{nil, nil, weight(2), weight(3)},
	}
	if diff := gocmp.Diff(want, CoincidenceMatrix(m)); diff != "" {
		t.Fatalf("coincidence mismatch (-want +got):\n%s", diff)
	}
}

func TestAlpha_Wikipedia(t *testing.T) {
	got := Alpha(wikipediaMatrix(), nil)
	if math.Round(got*1000)/1000 != 0.691 {
		t.Fatalf("alpha expected ~0.691, got %f", got)
	}
}

func TestAlpha_CustomIntervalMetric(t *testing.T) {
	squared := func(a, b int) float64 {
		d := float64(a - b)
		return d * d
	}
	got := Alpha(wikipediaMatrix(), squared)
	if math.Round(got*1000)/1000 != 0.811 {
		t.Fatalf("interval alpha expected ~0.811, got %f", got)
	}
}

func TestAnalyze_Intermediates(t *testing.T) {
	r := Analyze(wikipediaMatrix(), nil)
	if diff := gocmp.Diff([]int{7, 4, 10, 5}, r.ValueCounts); diff != "" {
		t.Fatalf("value counts mismatch (-want +got):\n%s", diff)
	}
	if r.Pairable != 26 {
		t.Fatalf("pairable expected 26, got %v", r.Pairable)
	}
	if r.Observed != 3 {
		t.Fatalf("observed expected 3, got %v", r.Observed)
	}
	if math.Abs(r.Expected-9.72) > 1e-9 {
		t.Fatalf("expected disagreement ~9.72, got %v", r.Expected)
	}
	if r.Alpha != Alpha(wikipediaMatrix(), nil) {
		t.Fatalf("Analyze and Alpha disagree")
	}
}

func TestCoincidenceMatrix_Symmetric(t *testing.T) {
	cases := [][][]Rating[int]{
		wikipediaMatrix(),
		ints([]int{1, 2, 1}, []int{1, 1, 1}, []int{1, 2, 3}),
		ints([]int{5, 4, 3, 2, 1}, []int{1, 2, 3, 4, 5}, []int{3, 3, 3}),
	}
	for n, m := range cases {
		co := CoincidenceMatrix(m)
		for i := range co {
			for j := range co {
				if diff := gocmp.Diff(co[i][j], co[j][i]); diff != "" {
					t.Fatalf("case %d: cell (%d,%d) not symmetric:\n%s", n, i, j, diff)
				}
			}
		}
	}
}

func TestAlpha_Deterministic(t *testing.T) {
	a := Alpha(wikipediaMatrix(), nil)
	b := Alpha(wikipediaMatrix(), nil)
	if math.Float64bits(a) != math.Float64bits(b) {
		t.Fatalf("alpha not deterministic: %v vs %v", a, b)
	}
}

func TestAlpha_PerfectAgreement(t *testing.T) {
	got := Alpha(ints([]int{1, 2, 3, 4}, []int{1, 2, 3, 4}, []int{1, 2, 3, 4}), nil)
	if got != 1 {
		t.Fatalf("alpha expected 1, got %f", got)
	}
}

func TestAlpha_SingleRatingSamplesExcluded(t *testing.T) {
	base := ints([]int{1, 2, 1}, []int{1, 1, 1}, []int{1, 2, 3})
	for _, lone := range []int{1, 2, 3, 9} {
		m := ints([]int{1, 2, 1, lone}, []int{1, 1, 1}, []int{1, 2, 3})
		r := Analyze(m, nil)
		if r.Pairable != 9 {
			t.Fatalf("lone %d: pairable expected 9, got %v", lone, r.Pairable)
		}
		if got, want := r.Alpha, Alpha(base, nil); got != want {
			t.Fatalf("lone %d: alpha %v, want %v", lone, got, want)
		}
	}
}

func TestCoincidenceMatrix_LoneValueUndefined(t *testing.T) {
	// 9 only appears on a sample with a single rating.
	co := CoincidenceMatrix(ints([]int{1, 2, 9}, []int{1, 2}))
	if len(co) != 3 {
		t.Fatalf("expected 3 values, got %d", len(co))
	}
	for i := range co {
		if co[2][i] != nil || co[i][2] != nil {
			t.Fatalf("expected row/column for lone value to be undefined")
		}
	}
}

func TestAlpha_ZeroMetricIsNaN(t *testing.T) {
	zero := func(a, b int) float64 { return 0 }
	if got := Alpha(wikipediaMatrix(), zero); !math.IsNaN(got) {
		t.Fatalf("expected NaN, got %v", got)
	}
}

func TestAlpha_DegenerateInputs(t *testing.T) {
	cases := []struct {
		name string
		m    [][]Rating[int]
	}{
		{"empty", nil},
		{"all missing", ints([]int{0, 0}, []int{0, 0})},
		{"single rater", ints([]int{1, 2, 3})},
		{"identical ratings", ints([]int{2, 2}, []int{2, 2})},
	}
	for _, c := range cases {
		got := Alpha(c.m, nil)
		if !math.IsNaN(got) && !math.IsInf(got, 0) {
			t.Fatalf("%s: expected non-finite alpha, got %v", c.name, got)
		}
	}
}

func TestAlpha_RaggedRowsTreatedAsMissing(t *testing.T) {
	ragged := ints([]int{1, 2}, []int{1, 2, 3, 3}, []int{1, 1, 3, 3})
	padded := ints([]int{1, 2, 0, 0}, []int{1, 2, 3, 3}, []int{1, 1, 3, 3})
	if diff := gocmp.Diff(CoincidenceMatrix(padded), CoincidenceMatrix(ragged)); diff != "" {
		t.Fatalf("ragged rows differ from padded rows:\n%s", diff)
	}
	if a, b := Alpha(ragged, nil), Alpha(padded, nil); a != b {
		t.Fatalf("ragged alpha %v != padded alpha %v", a, b)
	}
}

func TestAlpha_DoesNotMutateInput(t *testing.T) {
	m := wikipediaMatrix()
	before := wikipediaMatrix()
	_ = Analyze(m, nil)
	if diff := gocmp.Diff(before, m); diff != "" {
		t.Fatalf("input mutated:\n%s", diff)
	}
}

func TestCoincidenceMatrix_MatchesPairwiseDefinition(t *testing.T) {
	cases := [][][]Rating[int]{
		wikipediaMatrix(),
		ints([]int{1, 2, 1}, []int{1, 1, 1}, []int{1, 2, 3}),
		ints([]int{5, 4, 3, 2, 1}, []int{1, 2, 3, 4, 5}, []int{3, 3, 3}),
		ints([]int{1, 1, 2, 0}, []int{1, 2, 2, 7}, []int{2, 1, 2, 7}, []int{1, 1, 0, 7}, []int{3}),
		ints([]int{1, 2, 9}, []int{1, 2}),
	}
	for n, m := range cases {
		wantCo, wantCounts := definitionMatrix(m)
		gotCo, gotCounts := coincidences(m, DistinctValues(m))
		if diff := gocmp.Diff(wantCounts, gotCounts); diff != "" {
			t.Fatalf("case %d: value counts mismatch (-want +got):\n%s", n, diff)
		}
		for i := range wantCo {
			for j := range wantCo[i] {
				w, g := wantCo[i][j], gotCo[i][j]
				if (w == nil) != (g == nil) {
					t.Fatalf("case %d: cell (%d,%d) defined mismatch", n, i, j)
				}
				if w != nil && math.Float64bits(*w) != math.Float64bits(*g) {
					t.Fatalf("case %d: cell (%d,%d) = %v, want %v", n, i, j, *g, *w)
				}
			}
		}
	}
}

func TestCoincidenceMatrix_NaNNeverPairs(t *testing.T) {
	nan := math.NaN()
	m := [][]Rating[float64]{
		{Rated(1.0), Rated(nan)},
		{Rated(1.0), Rated(nan)},
	}
	r := Analyze(m, nil)
	if len(r.Values) != 3 {
		t.Fatalf("expected 1 and two NaN values, got %v", r.Values)
	}
	for i, v := range r.Values {
		if math.IsNaN(v) && r.ValueCounts[i] != 0 {
			t.Fatalf("NaN value counted %d times", r.ValueCounts[i])
		}
	}
	if r.Pairable != 2 {
		t.Fatalf("pairable expected 2, got %v", r.Pairable)
	}
}

func TestAnalyze_ManyDistinctValuesIsFast(t *testing.T) {
	const samples = 2000
	a := make([]Rating[int], samples)
	b := make([]Rating[int], samples)
	for s := 0; s < samples; s++ {
		a[s] = Rated(2 * s)
		b[s] = Rated(2*s + 1)
	}
	start := time.Now()
	r := Analyze([][]Rating[int]{a, b}, nil)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Analyze took %v for %d samples", elapsed, samples)
	}
	if len(r.Values) != 2*samples || r.Pairable != 2*samples {
		t.Fatalf("unexpected shape: values=%d pairable=%v", len(r.Values), r.Pairable)
	}
	// Every sample is one disagreeing pair, counted once in the upper triangle.
	if r.Observed != samples {
		t.Fatalf("observed expected %d, got %v", samples, r.Observed)
	}
	if r.Coincidence[0][1] == nil || *r.Coincidence[0][1] != 1 || r.Coincidence[1][2] != nil {
		t.Fatalf("unexpected coincidence cells")
	}
}

func TestPairCount(t *testing.T) {
	m := ints([]int{1}, []int{1}, []int{2}, []int{2}, []int{0})
	cases := []struct {
		a, b, want int
	}{
		{1, 1, 2},
		{1, 2, 4},
		{2, 1, 4},
		{2, 2, 2},
		{3, 1, 0},
	}
	for _, c := range cases {
		if got := pairCount(m, 0, c.a, c.b); got != c.want {
			t.Fatalf("pairCount(%d,%d)=%d, want %d", c.a, c.b, got, c.want)
		}
	}
	if got := sampleRatingCount(m, 0); got != 4 {
		t.Fatalf("sampleRatingCount=%d, want 4", got)
	}
	if got := sampleRatingCount(m, 3); got != 0 {
		t.Fatalf("out-of-range sample should count 0, got %d", got)
	}
}
