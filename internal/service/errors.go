package service

import "errors"

// Checkout error taxonomy. Handlers map these to HTTP statuses; everything
// else is treated as an internal persistence error.
var (
	// ErrValidation covers malformed or missing request fields. Raised
	// before any gateway or repository call.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidSignature is the security rejection. Log lines and
	// responses carry no expected digest.
	ErrInvalidSignature = errors.New("invalid payment signature")

	// ErrGateway means the upstream create-order call failed. No local
	// state is created.
	ErrGateway = errors.New("payment gateway error")

	// ErrNotFound means the order id does not exist.
	ErrNotFound = errors.New("order not found")

	// ErrInvalidStatus means a status value outside the enum.
	ErrInvalidStatus = errors.New("invalid order status")

	// ErrPersistenceConflict means order-number generation kept colliding
	// past the retry budget.
	ErrPersistenceConflict = errors.New("could not allocate a unique order number")
)
