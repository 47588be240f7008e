package services

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/soaringjerry/kalpha/internal/logger"
)

const MetricNominal = "nominal"

// DefaultMaxDistinctValues bounds the k×k coincidence matrix a single request
// may produce.
const DefaultMaxDistinctValues = 1000

// AgreementRequest is a wide rating matrix shaped as [nRaters][nSamples].
// Cells are numbers, strings or null.
type AgreementRequest struct {
	Ratings [][]any `json:"ratings"`
	Metric  string  `json:"metric,omitempty"`
}

// AgreementResult is the JSON form of an alpha computation. Non-finite
// quantities are reported as null.
type AgreementResult struct {
	ID          string       `json:"id"`
	Kind        MatrixKind   `json:"kind"`
	Metric      string       `json:"metric"`
	Raters      int          `json:"raters"`
	Samples     int          `json:"samples"`
	Values      []any        `json:"values"`
	ValueCounts []int        `json:"value_counts"`
	Coincidence [][]*float64 `json:"coincidence"`
	Pairable    int          `json:"pairable"`
	Observed    float64      `json:"observed_disagreement"`
	Expected    *float64     `json:"expected_disagreement"`
	Alpha       *float64     `json:"alpha"`
	Finite      bool         `json:"finite"`
}

type AgreementService struct {
	log       *logger.Logger
	idGen     func() string
	maxValues int
}

func NewAgreementService(log *logger.Logger) *AgreementService {
	if log == nil {
		log = logger.NewNop()
	}
	return &AgreementService{log: log, idGen: uuid.NewString, maxValues: DefaultMaxDistinctValues}
}

// WithMaxDistinctValues overrides DefaultMaxDistinctValues; n <= 0 keeps the default.
func (s *AgreementService) WithMaxDistinctValues(n int) *AgreementService {
	if n > 0 {
		s.maxValues = n
	}
	return s
}

func (s *AgreementService) Compute(req *AgreementRequest) (*AgreementResult, error) {
	if req == nil || len(req.Ratings) == 0 {
		return nil, NewInvalidError("ratings required")
	}
	metric, err := normalizeMetric(req.Metric)
	if err != nil {
		return nil, err
	}
	m, err := DecodeMatrix(req.Ratings)
	if err != nil {
		return nil, err
	}
	return s.analyze(m, metric)
}

// ComputeLongCSV computes alpha from a long-format CSV body.
func (s *AgreementService) ComputeLongCSV(r io.Reader) (*AgreementResult, error) {
	m, err := ParseLongCSV(r)
	if err != nil {
		return nil, err
	}
	if m.Raters() == 0 {
		return nil, NewInvalidError("ratings required")
	}
	return s.analyze(m, MetricNominal)
}

func normalizeMetric(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MetricNominal:
		return MetricNominal, nil
	default:
		return "", NewInvalidError("unsupported metric: only nominal is available")
	}
}

func (s *AgreementService) analyze(m *Matrix, metric string) (*AgreementResult, error) {
	if n := m.DistinctValues(); n > s.maxValues {
		return nil, NewInvalidError(fmt.Sprintf("too many distinct values: %d (limit %d)", n, s.maxValues))
	}
	var res *AgreementResult
	if m.Kind == KindLabel {
		res = buildResult(Analyze(m.Labels, IdentityMetric[string]))
	} else {
		res = buildResult(Analyze(m.Numbers, IdentityMetric[float64]))
	}
	res.ID = s.idGen()
	res.Kind = m.Kind
	res.Metric = metric
	res.Raters = m.Raters()
	res.Samples = m.Samples()
	s.log.Debug("alpha computed",
		"report_id", res.ID,
		"kind", res.Kind,
		"raters", res.Raters,
		"samples", res.Samples,
		"values", len(res.Values),
		"finite", res.Finite,
	)
	return res, nil
}

func buildResult[T cmp.Ordered](r *AlphaReport[T]) *AgreementResult {
	values := make([]any, 0, len(r.Values))
	for _, v := range r.Values {
		values = append(values, v)
	}
	alpha := finiteOrNil(r.Alpha)
	return &AgreementResult{
		Values:      values,
		ValueCounts: r.ValueCounts,
		Coincidence: r.Coincidence,
		Pairable:    int(r.Pairable),
		Observed:    r.Observed,
		Expected:    finiteOrNil(r.Expected),
		Alpha:       alpha,
		Finite:      alpha != nil,
	}
}

// finiteOrNil drops NaN and ±Inf, which encoding/json cannot represent.
func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
