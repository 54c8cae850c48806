package specialist

import "errors"

// Sentinel errors for specialist records.
var (
	ErrNotFound      = errors.New("specialist not found")
	ErrExists        = errors.New("specialist already exists")
	ErrInvalidPillar = errors.New("invalid pillar")
	ErrInvalid       = errors.New("invalid specialist")
	ErrCorrupt       = errors.New("corrupt specialist document")
)
