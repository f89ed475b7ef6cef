// Package facematch validates face descriptors and finds the enrolled identity closest to a probe.
package facematch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Descriptor is a face embedding produced by the external detection model.
type Descriptor []float32

// Validation errors.
var (
	ErrNotAnArray = errors.New("descriptor is not a one-dimensional array")
	ErrEmpty      = errors.New("descriptor is empty")
	ErrNonNumeric = errors.New("descriptor contains a non-numeric value")
	ErrTooShort   = errors.New("descriptor is shorter than the model dimension")
)

// IsValidationError reports whether err is one of the descriptor validation errors.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNotAnArray) || errors.Is(err, ErrEmpty) ||
		errors.Is(err, ErrNonNumeric) || errors.Is(err, ErrTooShort)
}

// Validator checks descriptors against the embedding model's dimensionality.
type Validator struct {
	MinDim int
}

// NewValidator creates a validator for descriptors of at least minDim elements.
func NewValidator(minDim int) Validator {
	return Validator{MinDim: minDim}
}

// Validate checks values and converts them to a Descriptor.
func (v Validator) Validate(values []float64) (Descriptor, error) {
	if values == nil {
		return nil, ErrNotAnArray
	}
	if len(values) == 0 {
		return nil, ErrEmpty
	}

	d := make(Descriptor, len(values))
	for i, x := range values {
		// float32 overflow would turn a finite float64 into Inf.
		if math.IsNaN(x) || math.IsInf(x, 0) || math.Abs(x) > math.MaxFloat32 {
			return nil, fmt.Errorf("%w at index %d", ErrNonNumeric, i)
		}
		d[i] = float32(x)
	}

	if len(d) < v.MinDim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrTooShort, len(d), v.MinDim)
	}
	return d, nil
}

// Check validates a descriptor that is already in its stored representation.
func (v Validator) Check(d Descriptor) error {
	if d == nil {
		return ErrNotAnArray
	}
	if len(d) == 0 {
		return ErrEmpty
	}
	for i, x := range d {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w at index %d", ErrNonNumeric, i)
		}
	}
	if len(d) < v.MinDim {
		return fmt.Errorf("%w: got %d, want %d", ErrTooShort, len(d), v.MinDim)
	}
	return nil
}

// Parse decodes a JSON value into a validated Descriptor.
func (v Validator) Parse(raw json.RawMessage) (Descriptor, error) {
	values, err := decodeValues(raw)
	if err != nil {
		return nil, err
	}
	return v.Validate(values)
}

// decodeValues accepts only a flat JSON array of numbers.
func decodeValues(raw json.RawMessage) ([]float64, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotAnArray
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, ErrNotAnArray
	}
	if len(items) == 0 {
		return nil, ErrEmpty
	}

	values := make([]float64, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '[' {
			return nil, ErrNotAnArray
		}
		if err := json.Unmarshal(item, &values[i]); err != nil {
			return nil, fmt.Errorf("%w at index %d", ErrNonNumeric, i)
		}
		// json.Unmarshal leaves null as zero without error.
		if bytes.Equal(item, []byte("null")) {
			return nil, fmt.Errorf("%w at index %d", ErrNonNumeric, i)
		}
	}
	return values, nil
}
