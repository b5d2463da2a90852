package model

import "errors"

// Sentinel errors returned across the engine boundary. The handler
// layer maps these to HTTP status codes.
var (
	// Admission rejections — no state is created.
	ErrInsufficientBalance  = errors.New("insufficient_balance")
	ErrInsufficientShares   = errors.New("insufficient_shares")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrInvalidOfferingState = errors.New("invalid_offering_state")
	ErrOfferingNotFound     = errors.New("offering_not_found")
	ErrOfferingExists       = errors.New("offering_exists")

	// Terminal-state conflicts on cancellation.
	ErrOrderNotFound   = errors.New("order_not_found")
	ErrAlreadyTerminal = errors.New("order_already_terminal")
	ErrForbidden       = errors.New("forbidden")
)
