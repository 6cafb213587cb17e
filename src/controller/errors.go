package controller

import "errors"

var (
	// ErrUnprotectedFill marks a filled entry without an accepted protective
	// order. It is surfaced every pass until the position is protected.
	ErrUnprotectedFill = errors.New("filled position has no protective order")

	ErrPositionNotFound = errors.New("position not found")
	ErrPositionClosed   = errors.New("position already closed")

	errMarketSell = errors.New("market sell")
)
