package apiclient

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyKinds(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{0, KindNetwork},
		{400, KindValidation},
		{401, KindAuthorization},
		{403, KindAuthorization},
		{404, KindNotFound},
		{500, KindServer},
		{502, KindServer},
	}
	for _, tc := range cases {
		if got := classify(tc.status, "").Kind; got != tc.want {
			t.Fatalf("status %d: got %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestKindOfUnwrapsChain(t *testing.T) {
	err := fmt.Errorf("load cart: %w", classify(404, "no cart"))
	if !IsNotFound(err) {
		t.Fatal("expected 404 through the wrap chain")
	}
	if IsNotFound(errors.New("plain")) {
		t.Fatal("plain errors are not 404s")
	}
}

func TestIsNonUniqueResult(t *testing.T) {
	if !IsNonUniqueResult(classify(500, "query did not return a unique result: Non-unique result found")) {
		t.Fatal("expected non-unique signature match")
	}
	if IsNonUniqueResult(classify(500, "boom")) {
		t.Fatal("generic 500 is not the non-unique case")
	}
	if IsNonUniqueResult(classify(400, "non-unique result")) {
		t.Fatal("only 500s qualify")
	}
}

func TestPaymentFailureClassification(t *testing.T) {
	cases := []struct {
		msg  string
		want PaymentFailure
	}{
		{"Code invalide", PaymentCodeInvalid},
		{"verification code incorrect", PaymentCodeInvalid},
		{"code expired", PaymentCodeExpired},
		{"Code expiré", PaymentCodeExpired},
		{"maximum resend attempts reached", PaymentMaxResends},
		{"max verification attempts exceeded", PaymentMaxAttempts},
		{"something else", PaymentUnknown},
	}
	for _, tc := range cases {
		if got := PaymentFailureOf(classify(400, tc.msg)); got != tc.want {
			t.Fatalf("%q: got %s, want %s", tc.msg, got, tc.want)
		}
	}
	if PaymentFailureOf(classify(500, "code invalide")) != PaymentUnknown {
		t.Fatal("only validation errors carry a payment sub-case")
	}
}
