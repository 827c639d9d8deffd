// Package service contains the service layer for the Marketcore API
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownToken is returned when an update or query references a token
	// outside the loaded instrument universe.
	ErrUnknownToken = errors.New("unknown instrument token")

	// ErrNoData is returned when a token is valid but has never received an
	// update. Absence is distinct from a zero value.
	ErrNoData = errors.New("no market data for token")

	// ErrNoGeneration is returned when a query runs before the first
	// successful master load.
	ErrNoGeneration = errors.New("no instrument generation loaded")

	// ErrEmptyUpdate is returned for an update that names no field group.
	ErrEmptyUpdate = errors.New("update carries no field groups")
)

// LoadError reports a rejected master load. The previous generation is
// retained whenever a LoadError is returned.
type LoadError struct {
	Duplicates int
	Malformed  int
	Reason     string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("master load rejected: %s (duplicates=%d, malformed=%d)",
		e.Reason, e.Duplicates, e.Malformed)
}
