package selection

import "errors"

var (
	ErrEmptyCatalog      = errors.New("model catalog is empty")
	ErrUnknownModel      = errors.New("model not in catalog")
	ErrInvalidWeights    = errors.New("invalid weights")
	ErrInvalidConstraint = errors.New("invalid constraint")
	ErrInvalidCatalog    = errors.New("invalid catalog entry")
)
