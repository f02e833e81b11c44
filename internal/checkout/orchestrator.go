// Package checkout validates the checkout forms, maps the cart to an
// order-creation request and computes the order totals.
package checkout

import (
	"context"
	"fmt"
	"log"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bassinshop-storefront/internal/apiclient"
	"bassinshop-storefront/internal/domain"
)

// maxFieldLen caps free-text strings sent to the order API.
const maxFieldLen = 255

type orderAPI interface {
	CreateOrder(ctx context.Context, req apiclient.OrderRequest) (*domain.Order, error)
}

// Config carries the totals parameters. The VAT rate varies by deployment
// (0.18 or 0.19); shipping is a flat cost.
type Config struct {
	VATRate      float64
	ShippingCost float64
}

// Totals is the computed money breakdown of an order.
type Totals struct {
	Subtotal float64 `json:"sousTotal"`
	VAT      float64 `json:"tva"`
	Shipping float64 `json:"fraisLivraison"`
	Total    float64 `json:"montantTotal"`
}

// Orchestrator drives the checkout step: forms, request building, order
// creation.
type Orchestrator struct {
	api      orderAPI
	validate *validator.Validate
	cfg      Config
	logger   *log.Logger
}

// New builds an Orchestrator. A zero VAT rate defaults to 0.19.
func New(api orderAPI, cfg Config, logger *log.Logger) *Orchestrator {
	if cfg.VATRate <= 0 {
		cfg.VATRate = 0.19
	}
	return &Orchestrator{
		api:      api,
		validate: newValidator(),
		cfg:      cfg,
		logger:   logger,
	}
}

// ValidateForms checks the two forms sequentially; the first invalid form
// blocks progression.
func (o *Orchestrator) ValidateForms(client ClientForm, delivery DeliveryForm) error {
	if err := o.validate.Struct(client); err != nil {
		return describeFieldErrors("client", err)
	}
	if err := o.validate.Struct(delivery); err != nil {
		return describeFieldErrors("delivery", err)
	}
	return nil
}

// ComputeTotals applies subtotal, VAT and flat shipping to the cart.
func (o *Orchestrator) ComputeTotals(cart *domain.Cart) Totals {
	var subtotal decimal.Decimal
	for _, line := range cart.Lines {
		unit := decimal.NewFromFloat(line.EffectivePrice())
		subtotal = subtotal.Add(unit.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	subtotal = subtotal.Round(2)
	vat := subtotal.Mul(decimal.NewFromFloat(o.cfg.VATRate)).Round(2)
	shipping := decimal.NewFromFloat(o.cfg.ShippingCost)
	total := subtotal.Add(vat).Add(shipping).Round(2)

	sub, _ := subtotal.Float64()
	v, _ := vat.Float64()
	sh, _ := shipping.Float64()
	tot, _ := total.Float64()
	return Totals{Subtotal: sub, VAT: v, Shipping: sh, Total: tot}
}

// BuildOrderRequest maps the cart and forms into the order-creation
// payload. Overlong strings are truncated, optional fields null-coalesced,
// and customized lines are always forced to SUR_COMMANDE.
func (o *Orchestrator) BuildOrderRequest(cart *domain.Cart, client ClientForm, delivery DeliveryForm) apiclient.OrderRequest {
	totals := o.ComputeTotals(cart)
	lines := make([]domain.OrderLine, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		line := domain.OrderLine{
			BassinID:  l.BassinID,
			Nom:       truncate(l.Nom),
			Quantity:  l.Quantity,
			UnitPrice: l.EffectivePrice(),
			Status:    l.Status,
		}
		if l.IsCustomized {
			line.IsCustomized = true
			line.Status = domain.CartStatusSurCommande
			if c := l.Customization; c != nil {
				line.MaterialName = truncate(c.MaterialName)
				line.DimensionName = truncate(c.DimensionName)
				line.Color = truncate(c.Color)
				line.ManufacturingDays = c.ManufacturingDays
			}
		}
		lines = append(lines, line)
	}

	return apiclient.OrderRequest{
		Client: apiclient.ClientInfo{
			FirstName: truncate(client.FirstName),
			LastName:  truncate(client.LastName),
			Email:     truncate(client.Email),
			Phone:     client.Phone,
		},
		Delivery: apiclient.DeliveryInfo{
			Address:    truncate(delivery.Address),
			City:       truncate(delivery.City),
			PostalCode: delivery.PostalCode,
			Region:     truncate(delivery.Region),
			Comment:    truncate(delivery.Comment),
		},
		Lines:          lines,
		Subtotal:       totals.Subtotal,
		VAT:            totals.VAT,
		Shipping:       totals.Shipping,
		Total:          totals.Total,
		IdempotencyKey: uuid.NewString(),
	}
}

// PlaceOrder validates both forms, builds the request and creates the
// pending order.
func (o *Orchestrator) PlaceOrder(ctx context.Context, cart *domain.Cart, client ClientForm, delivery DeliveryForm) (*domain.Order, error) {
	if cart == nil || len(cart.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	if err := o.ValidateForms(client, delivery); err != nil {
		return nil, err
	}
	req := o.BuildOrderRequest(cart, client, delivery)
	order, err := o.api.CreateOrder(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	o.logger.Printf("order %s created (total %.2f)", order.Number, order.Total)
	return order, nil
}

// truncate caps s at maxFieldLen bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxFieldLen {
		return s
	}
	cut := s[:maxFieldLen]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
