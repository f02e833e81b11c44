package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"bassinshop-storefront/internal/domain"
)

// ClientInfo is the buyer identity block of an order request.
type ClientInfo struct {
	FirstName string `json:"prenom"`
	LastName  string `json:"nom"`
	Email     string `json:"email"`
	Phone     string `json:"telephone"`
}

// DeliveryInfo is the address block of an order request.
type DeliveryInfo struct {
	Address    string `json:"adresse"`
	City       string `json:"ville"`
	PostalCode string `json:"codePostal"`
	Region     string `json:"region,omitempty"`
	Comment    string `json:"commentaire,omitempty"`
}

// OrderRequest is the order-creation payload.
type OrderRequest struct {
	Client         ClientInfo         `json:"client"`
	Delivery       DeliveryInfo       `json:"livraison"`
	Lines          []domain.OrderLine `json:"items"`
	Subtotal       float64            `json:"sousTotal"`
	VAT            float64            `json:"tva"`
	Shipping       float64            `json:"fraisLivraison"`
	Total          float64            `json:"montantTotal"`
	IdempotencyKey string             `json:"idempotencyKey,omitempty"`
}

// CreateOrder posts the order and returns the created pending order.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	var order domain.Order
	if err := c.do(ctx, http.MethodPost, "/orders", req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder fetches an order by numeric id or human-readable number.
func (c *Client) GetOrder(ctx context.Context, idOrNumber string) (*domain.Order, error) {
	var order domain.Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+idOrNumber, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus sets the status of an order.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	body := struct {
		Status string `json:"status"`
	}{Status: status}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/orders/%d/status", orderID), body, nil)
}

// CancelOrder cancels a pending order by its human-readable number.
func (c *Client) CancelOrder(ctx context.Context, number string) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/orders/%s/cancel", number), nil, nil)
}
