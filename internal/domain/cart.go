package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// CartStatusSurCommande marks made-to-order lines; every customized line
// carries it regardless of catalog availability.
const CartStatusSurCommande = "SUR_COMMANDE"

// UnassignedCartID is the sentinel for a cart not yet created server-side.
const UnassignedCartID int64 = -1

// Cart is owned by exactly one of UserID (authenticated) or SessionID
// (anonymous). TotalPrice is derived and must be recomputed after every
// mutation.
type Cart struct {
	ID         int64      `json:"id"`
	UserID     *int64     `json:"userId,omitempty"`
	SessionID  *string    `json:"sessionId,omitempty"`
	Lines      []CartLine `json:"items"`
	TotalPrice float64    `json:"totalPrice"`
	UpdatedAt  time.Time  `json:"updatedAt,omitempty"`
}

// CartLine is either a standard catalog item or a customized one.
// Promotion fields are denormalized from the referenced bassin and must be
// recomputed whenever its promotion window changes. Version increments on
// every local mutation and guards against stale in-flight responses.
type CartLine struct {
	ID              int64          `json:"id"`
	BassinID        int64          `json:"bassinId"`
	Nom             string         `json:"nomBassin,omitempty"`
	Quantity        int            `json:"quantity"`
	PrixOriginal    float64        `json:"prixOriginal"`
	Stock           int            `json:"stock,omitempty"`
	Status          string         `json:"status,omitempty"`
	IsCustomized    bool           `json:"isCustomized"`
	Customization   *Customization `json:"customization,omitempty"`
	PromotionActive bool           `json:"promotionActive"`
	TauxReduction   float64        `json:"tauxReduction,omitempty"`
	PrixPromo       float64        `json:"prixPromo,omitempty"`
	Promotion       *Promotion     `json:"promotion,omitempty"`
	Version         int64          `json:"-"`
}

// BasePrice returns the pre-promotion unit price.
func (l CartLine) BasePrice() float64 {
	if l.IsCustomized && l.Customization != nil {
		c := l.Customization
		return round2(c.BasePrice + c.MaterialSurcharge + c.DimensionSurcharge + c.AccessoriesSum())
	}
	return l.PrixOriginal
}

// EffectivePrice returns the unit price with the promotion applied when
// active: customized lines take the reduction on the composed price,
// standard lines on prixOriginal.
func (l CartLine) EffectivePrice() float64 {
	base := l.BasePrice()
	if l.PromotionActive && l.TauxReduction > 0 {
		return applyReduction(base, l.TauxReduction)
	}
	return round2(base)
}

// LineTotal returns EffectivePrice × Quantity.
func (l CartLine) LineTotal() float64 {
	return mulQty(l.EffectivePrice(), l.Quantity)
}

// CustomizationKey builds the identity of a customized line:
// (bassinId, material, dimension, color, sorted accessory ids). Accessory
// order must not affect the comparison.
func (l CartLine) CustomizationKey() string {
	if !l.IsCustomized || l.Customization == nil {
		return ""
	}
	c := l.Customization
	ids := make([]int64, 0, len(c.Accessories))
	for _, a := range c.Accessories {
		ids = append(ids, a.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return fmt.Sprintf("%d|%s|%s|%s|%s", l.BassinID, c.MaterialName, c.DimensionName, c.Color, strings.Join(parts, ","))
}

// RefreshPromotion re-evaluates the denormalized promotion fields against
// the line's bound promotion window. Returns true when anything changed;
// repeated evaluation with an unchanged clock is idempotent.
func (l *CartLine) RefreshPromotion(now time.Time) bool {
	active := false
	rate := 0.0
	if l.Promotion != nil && l.Promotion.ActiveAt(now) {
		active = true
		rate = l.Promotion.TauxReduction
	}
	if l.PromotionActive == active && l.TauxReduction == rate {
		return false
	}
	l.PromotionActive = active
	l.TauxReduction = rate
	if active {
		l.PrixPromo = applyReduction(l.BasePrice(), rate)
	} else {
		l.PrixPromo = 0
	}
	return true
}

// RecomputeTotal restores the invariant totalPrice == Σ effective × qty.
func (c *Cart) RecomputeTotal() {
	var sum float64
	for i := range c.Lines {
		sum += c.Lines[i].LineTotal()
	}
	c.TotalPrice = round2(sum)
}

// FindLine returns the line with the given id, or nil.
func (c *Cart) FindLine(lineID int64) *CartLine {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			return &c.Lines[i]
		}
	}
	return nil
}

// FindCustomizedMatch returns an existing line with an identical
// customization identity, or nil.
func (c *Cart) FindCustomizedMatch(candidate CartLine) *CartLine {
	key := candidate.CustomizationKey()
	if key == "" {
		return nil
	}
	for i := range c.Lines {
		if c.Lines[i].CustomizationKey() == key {
			return &c.Lines[i]
		}
	}
	return nil
}

// RemoveLine drops the line with the given id, preserving order.
func (c *Cart) RemoveLine(lineID int64) bool {
	for i := range c.Lines {
		if c.Lines[i].ID == lineID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy used as a rollback snapshot.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Lines = make([]CartLine, len(c.Lines))
	for i, l := range c.Lines {
		cl := l
		if l.Customization != nil {
			cust := *l.Customization
			cust.Accessories = append([]Accessoire(nil), l.Customization.Accessories...)
			cl.Customization = &cust
		}
		if l.Promotion != nil {
			promo := *l.Promotion
			cl.Promotion = &promo
		}
		out.Lines[i] = cl
	}
	if c.UserID != nil {
		v := *c.UserID
		out.UserID = &v
	}
	if c.SessionID != nil {
		v := *c.SessionID
		out.SessionID = &v
	}
	return &out
}

// EmptyCart returns a cart with the unassigned sentinel id.
func EmptyCart() *Cart {
	return &Cart{ID: UnassignedCartID, Lines: []CartLine{}}
}
