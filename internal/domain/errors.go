package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPosition    = errors.New("invalid celestial position")
	ErrTooManySubscribers = errors.New("too many subscribers")
)

// BindError is returned when the listening endpoint cannot be established.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}
