package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
)

// ExportCoincidenceCSV renders the coincidence matrix of res as CSV: a header
// of "value" followed by every distinct value, then one row per value.
// Undefined cells are left empty so they stay distinct from a weight of 0.
func ExportCoincidenceCSV(res *AgreementResult) ([]byte, error) {
	labels := make([]string, 0, len(res.Values))
	for _, v := range res.Values {
		labels = append(labels, formatValue(v))
	}

	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write(append([]string{"value"}, labels...))
	for i, row := range res.Coincidence {
		rec := make([]string, 0, 1+len(row))
		rec = append(rec, labels[i])
		for _, cell := range row {
			if cell == nil {
				rec = append(rec, "")
				continue
			}
			rec = append(rec, strconv.FormatFloat(*cell, 'g', -1, 64))
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportSummaryCSV renders per-value counts followed by the summary figures.
func ExportSummaryCSV(res *AgreementResult) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"value", "count"})
	for i, v := range res.Values {
		if err := w.Write([]string{formatValue(v), strconv.Itoa(res.ValueCounts[i])}); err != nil {
			return nil, err
		}
	}
	_ = w.Write([]string{"pairable", strconv.Itoa(res.Pairable)})
	_ = w.Write([]string{"observed_disagreement", formatFloat(&res.Observed)})
	_ = w.Write([]string{"expected_disagreement", formatFloat(res.Expected)})
	_ = w.Write([]string{"alpha", formatFloat(res.Alpha)})
	w.Flush()
	return buf.Bytes(), w.Error()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}

// formatFloat leaves non-finite (nil) figures empty.
func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
