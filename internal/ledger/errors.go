package ledger

import "errors"

var (
	// ErrAlreadyExists is returned when registering a meter id that is taken
	ErrAlreadyExists = errors.New("ledger: meter already exists")
	// ErrNotFound is returned when operating on an unknown meter id
	ErrNotFound = errors.New("ledger: meter not found")
	// ErrInvalidInput is returned for malformed readings or identifiers
	ErrInvalidInput = errors.New("ledger: invalid input")
)
