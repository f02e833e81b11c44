package checkout

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	phonePattern  = regexp.MustCompile(`^[0-9]{8}$`)
	postalPattern = regexp.MustCompile(`^[0-9]{4}$`)
)

// ClientForm is the buyer identity step.
type ClientForm struct {
	FirstName string `json:"prenom" validate:"required,max=100"`
	LastName  string `json:"nom" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"telephone" validate:"required,phone8"`
}

// DeliveryForm is the address step.
type DeliveryForm struct {
	Address    string `json:"adresse" validate:"required,max=255"`
	City       string `json:"ville" validate:"required,max=100"`
	PostalCode string `json:"codePostal" validate:"required,postal4"`
	Region     string `json:"region,omitempty" validate:"max=100"`
	Comment    string `json:"commentaire,omitempty" validate:"max=500"`
}

var (
	// ErrFormInvalid wraps field-level validation failures.
	ErrFormInvalid = errors.New("form invalid")
	// ErrEmptyCart rejects checkout on a cart with no lines.
	ErrEmptyCart = errors.New("cart is empty")
)

func newValidator() *validator.Validate {
	v := validator.New()
	// An eight-digit local phone number and a four-digit postal code.
	_ = v.RegisterValidation("phone8", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("postal4", func(fl validator.FieldLevel) bool {
		return postalPattern.MatchString(fl.Field().String())
	})
	return v
}

func describeFieldErrors(form string, err error) error {
	var invalid validator.ValidationErrors
	if errors.As(err, &invalid) && len(invalid) > 0 {
		first := invalid[0]
		return fmt.Errorf("%w: %s field %s fails %s", ErrFormInvalid, form, first.Field(), first.Tag())
	}
	return fmt.Errorf("%w: %s: %v", ErrFormInvalid, form, err)
}
