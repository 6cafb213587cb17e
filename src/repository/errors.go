package repository

import "errors"

var (
	ErrAlertInactive = errors.New("alert is not active")
	ErrNotTerminal   = errors.New("position is not in a terminal state")
	ErrStaleState    = errors.New("stored position state changed")
)
