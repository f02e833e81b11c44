package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bassinshop-storefront/internal/domain"
)

// InitiatePaymentRequest submits card data for a pending order.
type InitiatePaymentRequest struct {
	OrderID int64              `json:"commandeId"`
	Card    domain.CardDetails `json:"carte"`
}

// VerifyResult is the outcome of a code submission.
type VerifyResult struct {
	Validated bool   `json:"validated"`
	Reference string `json:"reference,omitempty"`
}

// InitiatePayment starts the card transaction and returns its record.
func (c *Client) InitiatePayment(ctx context.Context, req InitiatePaymentRequest) (*domain.Transaction, error) {
	var tx domain.Transaction
	if err := c.do(ctx, http.MethodPost, "/payments/initiate", req, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// VerifyCode submits the 6-digit verification code.
func (c *Client) VerifyCode(ctx context.Context, transactionID int64, code string) (*VerifyResult, error) {
	body := struct {
		TransactionID int64  `json:"transactionId"`
		Code          string `json:"code"`
	}{TransactionID: transactionID, Code: code}
	var res VerifyResult
	if err := c.do(ctx, http.MethodPost, "/payments/verify", body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ResendCode asks for a fresh verification code.
func (c *Client) ResendCode(ctx context.Context, transactionID int64) error {
	body := struct {
		TransactionID int64 `json:"transactionId"`
	}{TransactionID: transactionID}
	return c.do(ctx, http.MethodPost, "/payments/resend-code", body, nil)
}

// CodeExpiry returns the server-side expiry of the current code.
func (c *Client) CodeExpiry(ctx context.Context, transactionID int64) (time.Time, error) {
	var payload struct {
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/payments/code-expiry/%d", transactionID), nil, &payload); err != nil {
		return time.Time{}, err
	}
	return payload.ExpiresAt, nil
}

// PaymentStatus fetches the transaction status.
func (c *Client) PaymentStatus(ctx context.Context, transactionID int64) (string, error) {
	var payload struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/payments/%d/status", transactionID), nil, &payload); err != nil {
		return "", err
	}
	return payload.Status, nil
}

// CancelPayment aborts the transaction server-side.
func (c *Client) CancelPayment(ctx context.Context, transactionID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/payments/%d/cancel", transactionID), nil, nil)
}
