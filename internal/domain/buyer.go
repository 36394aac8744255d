package domain

import (
	"strings"

	"github.com/go-playground/validator/v10"
	idcheck "github.com/prohmpiriya/ticket-storefront/internal/validator"
)

// Buyer is the identity supplied with a purchase
type Buyer struct {
	Name       string `json:"name" validate:"required,min=2,max=200"`
	Email      string `json:"email" validate:"required,email,max=254"`
	NationalID string `json:"national_id" validate:"required"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims the free-text fields and strips ID punctuation
func (b *Buyer) Normalize() {
	b.Name = strings.TrimSpace(b.Name)
	b.Email = strings.ToLower(strings.TrimSpace(b.Email))
	b.NationalID = idcheck.NormalizeNationalID(b.NationalID)
	b.Phone = strings.TrimSpace(b.Phone)
}

// Validate returns a ValidationError for the first bad field
func (b *Buyer) Validate() error {
	if err := validate.Struct(b); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return buyerFieldError(verrs[0])
		}
		return NewValidationError("buyer", err.Error())
	}
	if !idcheck.ValidateNationalID(b.NationalID) {
		return NewValidationError("buyer.national_id", "invalid national id")
	}
	return nil
}

func buyerFieldError(fe validator.FieldError) *ValidationError {
	field := "buyer." + fieldName(fe.Field())
	switch fe.Tag() {
	case "required":
		return NewValidationError(field, "is required")
	case "email":
		return NewValidationError(field, "invalid email")
	case "min":
		return NewValidationError(field, "must be at least "+fe.Param()+" characters")
	case "max":
		return NewValidationError(field, "must be at most "+fe.Param()+" characters")
	default:
		return NewValidationError(field, "is invalid")
	}
}

func fieldName(goName string) string {
	switch goName {
	case "NationalID":
		return "national_id"
	default:
		return strings.ToLower(goName)
	}
}
