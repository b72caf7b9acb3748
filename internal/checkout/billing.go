package checkout

import (
	"fmt"
	"strings"

	"github.com/Skotchmaster/storefront/internal/models"
)

func ValidateBilling(f models.BillingForm) error {
	required := []struct {
		name, value string
	}{
		{"name", f.Name},
		{"email", f.Email},
		{"address", f.Address},
		{"city", f.City},
		{"postal_code", f.PostalCode},
		{"country", f.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, r.name)
		}
	}
	if !strings.Contains(f.Email, "@") {
		return fmt.Errorf("%w: email is not valid", ErrValidation)
	}
	return nil
}

func trimForm(f models.BillingForm) models.BillingForm {
	return models.BillingForm{
		Name:       strings.TrimSpace(f.Name),
		Email:      strings.TrimSpace(f.Email),
		Address:    strings.TrimSpace(f.Address),
		City:       strings.TrimSpace(f.City),
		PostalCode: strings.TrimSpace(f.PostalCode),
		Country:    strings.TrimSpace(f.Country),
	}
}
