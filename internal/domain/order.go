package domain

import "time"

// Order statuses used by the storefront. The backend owns the full set.
const (
	OrderStatusPending   = "EN_ATTENTE"
	OrderStatusValidated = "VALIDEE"
	OrderStatusCancelled = "ANNULEE"
)

// OrderLine is the order-creation DTO for one cart line.
type OrderLine struct {
	BassinID          int64   `json:"bassinId"`
	Nom               string  `json:"nomBassin"`
	Quantity          int     `json:"quantity"`
	UnitPrice         float64 `json:"prixUnitaire"`
	Status            string  `json:"status"`
	IsCustomized      bool    `json:"isCustomized"`
	MaterialName      string  `json:"materiau,omitempty"`
	DimensionName     string  `json:"dimension,omitempty"`
	Color             string  `json:"couleur,omitempty"`
	ManufacturingDays int     `json:"dureeFabrication,omitempty"`
}

// Order as returned by the order API.
type Order struct {
	ID          int64       `json:"id"`
	Number      string      `json:"numeroCommande"`
	Status      string      `json:"status"`
	Lines       []OrderLine `json:"items"`
	Subtotal    float64     `json:"sousTotal"`
	VAT         float64     `json:"tva"`
	Shipping    float64     `json:"fraisLivraison"`
	Total       float64     `json:"montantTotal"`
	ClientEmail string      `json:"emailClient,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}
