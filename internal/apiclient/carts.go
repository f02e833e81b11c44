package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"bassinshop-storefront/internal/domain"
)

// AddItemRequest posts one line to the server cart. Standard items carry
// only BassinID and Quantity; customized items attach the configuration.
type AddItemRequest struct {
	BassinID      int64                 `json:"bassinId"`
	Quantity      int                   `json:"quantity"`
	IsCustomized  bool                  `json:"isCustomized"`
	Customization *domain.Customization `json:"customization,omitempty"`
}

// FetchCart loads the caller's cart (session or bearer scoped).
func (c *Client) FetchCart(ctx context.Context) (*domain.Cart, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, "/cart", nil)
	if err != nil {
		return nil, err
	}
	cart, _, err := DecodeCartResponse(raw)
	return cart, err
}

// CreateCart creates an empty server cart for the caller.
func (c *Client) CreateCart(ctx context.Context) (*domain.Cart, error) {
	raw, err := c.doRaw(ctx, http.MethodPost, "/cart", nil)
	if err != nil {
		return nil, err
	}
	cart, _, err := DecodeCartResponse(raw)
	return cart, err
}

// AddItem posts a line and returns the full replacement cart state.
func (c *Client) AddItem(ctx context.Context, req AddItemRequest) (*domain.Cart, error) {
	raw, err := c.doRaw(ctx, http.MethodPost, "/cart/items", req)
	if err != nil {
		return nil, err
	}
	cart, _, err := DecodeCartResponse(raw)
	return cart, err
}

// UpdateQuantity sets the quantity of one line.
func (c *Client) UpdateQuantity(ctx context.Context, lineID int64, quantity int) (*domain.Cart, error) {
	body := struct {
		Quantity int `json:"quantity"`
	}{Quantity: quantity}
	raw, err := c.doRaw(ctx, http.MethodPut, fmt.Sprintf("/cart/items/%d/quantity", lineID), body)
	if err != nil {
		return nil, err
	}
	cart, _, err := DecodeCartResponse(raw)
	return cart, err
}

// RemoveItem deletes one line.
func (c *Client) RemoveItem(ctx context.Context, lineID int64) (*domain.Cart, error) {
	raw, err := c.doRaw(ctx, http.MethodDelete, fmt.Sprintf("/cart/items/%d", lineID), nil)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	cart, _, err := DecodeCartResponse(raw)
	return cart, err
}

// ClearCart empties the caller's cart.
func (c *Client) ClearCart(ctx context.Context) error {
	_, err := c.doRaw(ctx, http.MethodDelete, "/cart", nil)
	return err
}

// MigrateCart asks the server to absorb the anonymous session cart into
// the authenticated user's cart and returns the merged result.
func (c *Client) MigrateCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	body := struct {
		SessionID string `json:"sessionId"`
	}{SessionID: sessionID}
	raw, err := c.doRaw(ctx, http.MethodPost, "/cart/migrate", body)
	if err != nil {
		return nil, err
	}
	cart, _, err := DecodeCartResponse(raw)
	return cart, err
}
