package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrStockExceeded indicates a quantity above the catalog stock for a standard line.
	ErrStockExceeded = errors.New("stock exceeded")
	// ErrCartExpired indicates a cached cart snapshot past its TTL.
	ErrCartExpired = errors.New("cart snapshot expired")
	// ErrLineNotFound indicates the referenced cart line is not in the cart.
	ErrLineNotFound = errors.New("cart line not found")
)
