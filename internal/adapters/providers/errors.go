package providers

import "errors"

var (
	// ErrMalformedOutput is returned when a model answer holds no usable JSON object.
	ErrMalformedOutput = errors.New("providers: malformed model output")
	// ErrMissingField is returned when a required key is absent from the answer.
	ErrMissingField = errors.New("providers: missing required field")
)
