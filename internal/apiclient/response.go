package apiclient

import (
	"encoding/json"
	"fmt"

	"bassinshop-storefront/internal/domain"
)

// CartPayloadKind tags the shape a cart endpoint answered with. The
// backend sometimes returns the cart directly and sometimes wraps it in a
// {"cart": ...} envelope; call sites never guess structurally.
type CartPayloadKind int

const (
	DirectCart CartPayloadKind = iota + 1
	WrappedCart
	UnknownPayload
)

// DecodeCartResponse adapts either payload shape into a domain cart.
func DecodeCartResponse(raw []byte) (*domain.Cart, CartPayloadKind, error) {
	var shape struct {
		ID   *int64          `json:"id"`
		Cart json.RawMessage `json:"cart"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, UnknownPayload, fmt.Errorf("cart payload: %w", err)
	}

	switch {
	case shape.ID != nil:
		var cart domain.Cart
		if err := json.Unmarshal(raw, &cart); err != nil {
			return nil, UnknownPayload, fmt.Errorf("direct cart: %w", err)
		}
		normalize(&cart)
		return &cart, DirectCart, nil
	case len(shape.Cart) > 0 && string(shape.Cart) != "null":
		var cart domain.Cart
		if err := json.Unmarshal(shape.Cart, &cart); err != nil {
			return nil, UnknownPayload, fmt.Errorf("wrapped cart: %w", err)
		}
		normalize(&cart)
		return &cart, WrappedCart, nil
	}
	return nil, UnknownPayload, fmt.Errorf("cart payload: unrecognized shape")
}

func normalize(cart *domain.Cart) {
	if cart.Lines == nil {
		cart.Lines = []domain.CartLine{}
	}
	cart.RecomputeTotal()
}
