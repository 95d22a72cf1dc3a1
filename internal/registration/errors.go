package registration

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("invalid application registration")
	ErrLookup     = errors.New("application lookup failed")
)

// ValidationError rejects a registration before anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type LookupError struct {
	Name   string
	Reason string
}

func (e *LookupError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %s", ErrLookup, e.Reason)
	}
	return fmt.Sprintf("%s: %s %q", ErrLookup, e.Reason, e.Name)
}

func (e *LookupError) Is(target error) bool {
	return target == ErrLookup
}
