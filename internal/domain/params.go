package domain

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Format identifies the animation container the backend should produce.
type Format string

// Supported output formats
const (
	FormatMP4 Format = "mp4"
	FormatGIF Format = "gif"
)

// ParameterSet is the immutable set of processing parameters attached to a
// single submission. It is validated before every submission and never
// mutated after creation. Field order matters: violations are reported for
// the first failing field only.
type ParameterSet struct {
	Size     int     `json:"size"     validate:"gte=32,lte=512"`
	FPS      int     `json:"fps"      validate:"gte=1,lte=60"`
	Duration float64 `json:"duration" validate:"gte=1,lte=10"`
	Scale    int     `json:"scale"    validate:"gte=1,lte=16"`
	Seed     int     `json:"seed"     validate:"gte=0,lte=999999"`
	Format   Format  `json:"format"   validate:"oneof=mp4 gif"`
}

// DefaultParameters returns the parameter set the original pipeline uses
// when nothing is specified.
func DefaultParameters() ParameterSet {
	return ParameterSet{
		Size:     128,
		FPS:      30,
		Duration: 4.0,
		Scale:    8,
		Seed:     42,
		Format:   FormatMP4,
	}
}

// parameterBounds maps struct field names to the human-readable reason
// reported when the field's range check fails.
var parameterBounds = map[string]string{
	"Size":     "must be between 32 and 512",
	"FPS":      "must be between 1 and 60",
	"Duration": "must be between 1 and 10 seconds",
	"Scale":    "must be between 1 and 16",
	"Seed":     "must be between 0 and 999999",
	"Format":   "must be one of mp4, gif",
}

// formFields maps struct field names to the form field names of the upload
// request.
var formFields = map[string]string{
	"Size":     "size",
	"FPS":      "fps",
	"Duration": "duration",
	"Scale":    "scale",
	"Seed":     "seed",
	"Format":   "format",
}

var paramValidate = validator.New()

// ValidateParameters checks p against the declared ranges. Checks run in
// field declaration order and the first violation wins; remaining rules are
// not reported. Returns nil on success, or a *ValidationError describing
// the first violation. Deterministic, no side effects.
func ValidateParameters(p ParameterSet) error {
	err := paramValidate.Struct(p)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return fmt.Errorf("parameter validation failed: %w", err)
	}

	// The validator visits fields in declaration order, so the first
	// entry is the first violation.
	first := errs[0]
	return &ValidationError{
		Field:  formFields[first.StructField()],
		Value:  fmt.Sprintf("%v", first.Value()),
		Reason: parameterBounds[first.StructField()],
	}
}

// FormValues renders the parameter set as the string-encoded form fields
// expected by the upload endpoint.
func (p ParameterSet) FormValues() map[string]string {
	return map[string]string{
		"size":     strconv.Itoa(p.Size),
		"fps":      strconv.Itoa(p.FPS),
		"duration": strconv.FormatFloat(p.Duration, 'f', -1, 64),
		"scale":    strconv.Itoa(p.Scale),
		"seed":     strconv.Itoa(p.Seed),
		"format":   string(p.Format),
	}
}
