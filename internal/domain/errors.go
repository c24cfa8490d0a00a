package domain

import "errors"

var (
	// ErrInsufficientData means an indicator window is not satisfied.
	// Callers skip the symbol for this iteration; never fatal.
	ErrInsufficientData = errors.New("insufficient data for indicator window")

	// ErrDataUnavailable means an exchange read failed. Skip the
	// iteration and retry on the next loop.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrOrderRejected means the exchange refused a placement.
	ErrOrderRejected = errors.New("order rejected")

	// ErrAlreadyOpen guards the one-position-per-symbol invariant.
	// Hitting it indicates an ordering bug upstream.
	ErrAlreadyOpen = errors.New("position already open for symbol")

	// ErrRiskHalted is a control-flow signal, not a fault: no new
	// entries are permitted until the halt is reset.
	ErrRiskHalted = errors.New("trading halted by risk limits")
)
