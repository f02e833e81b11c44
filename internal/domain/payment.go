package domain

import "time"

// Transaction is the payment-side record returned by the initiation
// endpoint; its id drives the verification steps.
type Transaction struct {
	ID         int64     `json:"id"`
	OrderID    int64     `json:"commandeId"`
	Status     string    `json:"status"`
	Reference  string    `json:"reference,omitempty"`
	CodeExpiry time.Time `json:"codeExpiry,omitempty"`
}

// CardDetails is the card-entry form. Never persisted.
type CardDetails struct {
	Number      string `json:"cardNumber"`
	Holder      string `json:"cardHolder"`
	ExpiryMonth int    `json:"expiryMonth"`
	ExpiryYear  int    `json:"expiryYear"`
	CVV         string `json:"cvv"`
}

// ExpiryValid reports whether the card expiry is not in the past, end of
// month inclusive.
func (c CardDetails) ExpiryValid(now time.Time) bool {
	if c.ExpiryMonth < 1 || c.ExpiryMonth > 12 {
		return false
	}
	endOfMonth := time.Date(c.ExpiryYear, time.Month(c.ExpiryMonth), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 1, 0).Add(-time.Second)
	return !endOfMonth.Before(now)
}

// PendingOrder is the session-scoped record that lets a payment flow
// survive a reload. Soft expiry ~30 minutes; past it the order is
// cancellable garbage.
type PendingOrder struct {
	OrderID       int64     `json:"orderId"`
	OrderNumber   string    `json:"orderNumber"`
	TransactionID int64     `json:"transactionId,omitempty"`
	State         string    `json:"state"`
	ResendCount   int       `json:"resendCount"`
	ExpiresAt     time.Time `json:"expiresAt"`
}
