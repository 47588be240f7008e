package services

import (
	"cmp"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

type MatrixKind string

const (
	KindNumeric MatrixKind = "numeric"
	KindLabel   MatrixKind = "label"
)

// Matrix is a decoded rating matrix. Exactly one of Numbers or Labels is set,
// selected by Kind.
type Matrix struct {
	Kind    MatrixKind
	Numbers [][]Rating[float64]
	Labels  [][]Rating[string]
}

// Raters returns the number of rater rows.
func (m *Matrix) Raters() int {
	if m.Kind == KindLabel {
		return len(m.Labels)
	}
	return len(m.Numbers)
}

// Samples returns the length of the longest rater row.
func (m *Matrix) Samples() int {
	if m.Kind == KindLabel {
		return sampleCount(m.Labels)
	}
	return sampleCount(m.Numbers)
}

// DistinctValues returns the number of distinct present values.
func (m *Matrix) DistinctValues() int {
	if m.Kind == KindLabel {
		return countDistinct(m.Labels)
	}
	return countDistinct(m.Numbers)
}

func countDistinct[T cmp.Ordered](matrix [][]Rating[T]) int {
	seen := map[T]struct{}{}
	for _, row := range matrix {
		for _, r := range row {
			if r.Present {
				seen[r.Value] = struct{}{}
			}
		}
	}
	return len(seen)
}

// DecodeMatrix converts JSON-decoded cells into a typed rating matrix.
// A cell is a number (float64 or json.Number), a string, or null (missing).
// Mixing numbers and strings is rejected, as is an integer too large to be
// held exactly by a float64. A matrix with no present cell decodes as numeric.
func DecodeMatrix(raw [][]any) (*Matrix, error) {
	numbers := make([][]Rating[float64], len(raw))
	sawNumber, sawLabel := false, false
	for i, row := range raw {
		numbers[i] = make([]Rating[float64], len(row))
		for j, cell := range row {
			switch v := cell.(type) {
			case nil:
			case float64:
				sawNumber = true
				numbers[i][j] = Rated(v)
			case json.Number:
				f, err := exactFloat(v)
				if err != nil {
					return nil, NewInvalidError(fmt.Sprintf("rating [%d][%d]: %v", i, j, err))
				}
				sawNumber = true
				numbers[i][j] = Rated(f)
			case string:
				sawLabel = true
			default:
				return nil, NewInvalidError(fmt.Sprintf("rating [%d][%d]: expected number, string or null", i, j))
			}
		}
	}
	if sawNumber && sawLabel {
		return nil, NewInvalidError("mixed numeric and string ratings are not supported")
	}
	if !sawLabel {
		return &Matrix{Kind: KindNumeric, Numbers: numbers}, nil
	}

	rows := make([][]Rating[string], len(raw))
	for i, row := range raw {
		rows[i] = make([]Rating[string], len(row))
		for j, cell := range row {
			if s, ok := cell.(string); ok {
				rows[i][j] = Rated(s)
			}
		}
	}
	return &Matrix{Kind: KindLabel, Labels: rows}, nil
}

// maxExactInt is the largest magnitude below which every integer is a float64.
const maxExactInt = 1 << 53

// exactFloat parses n, rejecting integer literals that would round when
// stored as float64 and so merge with a neighbouring category.
func exactFloat(n json.Number) (float64, error) {
	if !strings.ContainsAny(n.String(), ".eE") {
		i, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil || i > maxExactInt || i < -maxExactInt {
			return 0, fmt.Errorf("integer %s exceeds float64 precision", n)
		}
		return float64(i), nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("number %s out of range", n)
	}
	return f, nil
}

var longHeader = []string{"rater_id", "unit_id", "value"}

// ParseLongCSV reads a long-format CSV (rater_id,unit_id,value) into a matrix.
// Raters and units are indexed in order of first appearance and an empty value
// is a missing rating. When every present value parses as a number the matrix
// is numeric, otherwise all values are kept as labels. Integers beyond float64
// precision count as labels.
func ParseLongCSV(r io.Reader) (*Matrix, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(longHeader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, NewInvalidError("csv is empty")
	}
	if _, ok := AsServiceError(err); ok {
		return nil, err
	}
	if err != nil {
		return nil, NewInvalidError(fmt.Sprintf("csv header: %v", err))
	}
	for i, want := range longHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), want) {
			return nil, NewInvalidError("csv header must be rater_id,unit_id,value")
		}
	}

	type cell struct {
		rater, unit int
		value       string
	}
	raters := map[string]int{}
	units := map[string]int{}
	seen := map[[2]int]struct{}{}
	var cells []cell
	numeric := true
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if _, ok := AsServiceError(err); ok {
			return nil, err
		}
		if err != nil {
			return nil, NewInvalidError(fmt.Sprintf("csv line %d: %v", line, err))
		}
		raterID, unitID, value := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1]), strings.TrimSpace(rec[2])
		if raterID == "" || unitID == "" {
			return nil, NewInvalidError(fmt.Sprintf("csv line %d: rater_id and unit_id required", line))
		}
		ri, ok := raters[raterID]
		if !ok {
			ri = len(raters)
			raters[raterID] = ri
		}
		ui, ok := units[unitID]
		if !ok {
			ui = len(units)
			units[unitID] = ui
		}
		key := [2]int{ri, ui}
		if _, dup := seen[key]; dup {
			return nil, NewInvalidError(fmt.Sprintf("csv line %d: duplicate rating for rater %q on unit %q", line, raterID, unitID))
		}
		seen[key] = struct{}{}
		if value == "" {
			continue
		}
		if f, err := exactFloat(json.Number(value)); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			numeric = false
		}
		cells = append(cells, cell{rater: ri, unit: ui, value: value})
	}

	if !numeric {
		rows := make([][]Rating[string], len(raters))
		for i := range rows {
			rows[i] = make([]Rating[string], len(units))
		}
		for _, c := range cells {
			rows[c.rater][c.unit] = Rated(c.value)
		}
		return &Matrix{Kind: KindLabel, Labels: rows}, nil
	}
	rows := make([][]Rating[float64], len(raters))
	for i := range rows {
		rows[i] = make([]Rating[float64], len(units))
	}
	for _, c := range cells {
		f, _ := exactFloat(json.Number(c.value))
		rows[c.rater][c.unit] = Rated(f)
	}
	return &Matrix{Kind: KindNumeric, Numbers: rows}, nil
}
