package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionAlreadyActive is returned when starting while a session is active.
	ErrSessionAlreadyActive = errors.New("a session is already active")

	// ErrNoActiveSession is returned when ending or cancelling while idle.
	ErrNoActiveSession = errors.New("no active session")

	// ErrInsufficientTime is returned when a session start exceeds remaining time.
	ErrInsufficientTime = errors.New("insufficient time remaining")

	ErrUnknownActivity  = errors.New("unknown bonus activity")
	ErrUnknownCategory  = errors.New("unknown device category")
	ErrInvalidMinutes   = errors.New("minutes must be positive")
	ErrActivityNotFound = errors.New("activity not found")
)

// InsufficientTimeError carries the amounts behind ErrInsufficientTime.
type InsufficientTimeError struct {
	Requested int
	Available int
	Message   string
}

func (e *InsufficientTimeError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = ErrInsufficientTime.Error()
	}
	return fmt.Sprintf("%s (requested %d minutes, %d available)", msg, e.Requested, e.Available)
}

// Is makes errors.Is(err, ErrInsufficientTime) match.
func (e *InsufficientTimeError) Is(target error) bool {
	return target == ErrInsufficientTime
}
