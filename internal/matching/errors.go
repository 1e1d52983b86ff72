package matching

import "errors"

var (
	// ErrInvalidWeights is returned when a weight set is out of range or does
	// not sum to 1.0 within WeightSumTolerance.
	ErrInvalidWeights = errors.New("weight configuration invalid")

	// ErrCandidateFetch wraps failures of the candidate-supply collaborator.
	ErrCandidateFetch = errors.New("candidate fetch failed")

	// ErrModelCallFailed is returned by model-backed scorers when the
	// completion request itself fails.
	ErrModelCallFailed = errors.New("external model call failed")

	// ErrModelResponseMalformed is returned when the model reply is not the
	// expected JSON document.
	ErrModelResponseMalformed = errors.New("external model response malformed")
)
