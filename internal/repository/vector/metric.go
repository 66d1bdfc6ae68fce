package vector

import (
	"fmt"
	"math"
)

// Metric selects how cosine similarity is turned into a score.
type Metric string

const (
	// MetricAbsolute scores |cos|, so a vector and its negation both score 1.0.
	MetricAbsolute Metric = "absolute"
	// MetricSigned scores plain cos in [-1, 1].
	MetricSigned Metric = "signed"
)

// ParseMetric maps a config value to a Metric. Empty means MetricAbsolute.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case "", MetricAbsolute:
		return MetricAbsolute, nil
	case MetricSigned:
		return MetricSigned, nil
	default:
		return "", fmt.Errorf("unknown similarity metric %q", s)
	}
}

// Score returns the similarity of two equal-length vectors. Zero vectors score 0.
func (m Metric) Score(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if m == MetricSigned {
		return cos
	}
	return math.Abs(cos)
}
