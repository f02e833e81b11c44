package domain

import "time"

// Bassin is a catalog water-basin product.
type Bassin struct {
	ID           int64      `json:"id"`
	Nom          string     `json:"nom"`
	Description  string     `json:"description,omitempty"`
	PrixOriginal float64    `json:"prixOriginal"`
	Stock        int        `json:"stock"`
	Promotion    *Promotion `json:"promotion,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// Accessoire is an add-on selectable when customizing a bassin.
type Accessoire struct {
	ID   int64   `json:"id"`
	Nom  string  `json:"nom"`
	Prix float64 `json:"prix"`
}

// Customization captures the made-to-order configuration of a cart line.
type Customization struct {
	MaterialName       string       `json:"materiauSelectionne"`
	MaterialSurcharge  float64      `json:"prixMateriau"`
	DimensionName      string       `json:"dimensionSelectionnee"`
	DimensionSurcharge float64      `json:"prixDimension"`
	Color              string       `json:"couleurSelectionnee"`
	BasePrice          float64      `json:"prixEstime"`
	Accessories        []Accessoire `json:"accessoires,omitempty"`
	ManufacturingDays  int          `json:"dureeFabrication,omitempty"`
}

// AccessoriesSum returns the combined price of all selected accessories.
func (c Customization) AccessoriesSum() float64 {
	var sum float64
	for _, a := range c.Accessories {
		sum += a.Prix
	}
	return round2(sum)
}
