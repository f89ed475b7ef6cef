package facematch

import (
	"errors"
	"fmt"
	"math"
)

// ErrLengthMismatch is returned when two descriptors of different length are compared.
var ErrLengthMismatch = errors.New("descriptor lengths do not match")

// EuclideanDistance computes the Euclidean norm of a-b.
func EuclideanDistance(a, b Descriptor) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}

	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum), nil
}

// Normalize returns a unit-length copy of d. Zero vectors are returned unchanged.
func Normalize(d Descriptor) Descriptor {
	var norm float64
	for _, x := range d {
		norm += float64(x) * float64(x)
	}
	out := make(Descriptor, len(d))
	if norm == 0 {
		copy(out, d)
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range d {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Matches reports whether the distance between a and b is strictly below threshold.
func Matches(a, b Descriptor, threshold float64) (bool, error) {
	d, err := EuclideanDistance(a, b)
	if err != nil {
		return false, err
	}
	return d < threshold, nil
}

// Scorer applies the configured normalization and threshold to descriptor comparisons.
// The same Scorer must be used for every comparison so that stored and probe
// descriptors are always prepared identically.
type Scorer struct {
	Threshold float64
	Normalize bool
}

// NewScorer creates a scorer.
func NewScorer(threshold float64, normalize bool) Scorer {
	return Scorer{Threshold: threshold, Normalize: normalize}
}

// Prepare returns d in the representation used for distance computation.
func (s Scorer) Prepare(d Descriptor) Descriptor {
	if s.Normalize {
		return Normalize(d)
	}
	return d
}

// Distance computes the dissimilarity between a and b.
func (s Scorer) Distance(a, b Descriptor) (float64, error) {
	return EuclideanDistance(s.Prepare(a), s.Prepare(b))
}

// IsMatch reports whether a and b are the same face under the configured threshold.
func (s Scorer) IsMatch(a, b Descriptor) (bool, error) {
	d, err := s.Distance(a, b)
	if err != nil {
		return false, err
	}
	return s.Accepts(d), nil
}

// Accepts reports whether a distance clears the threshold.
func (s Scorer) Accepts(distance float64) bool {
	return distance < s.Threshold
}
