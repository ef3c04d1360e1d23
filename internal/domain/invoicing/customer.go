package invoicing

import (
	"net/mail"
	"strings"

	"github.com/invoicing/backend/internal/domain/shared"
)

// Customer is the party an invoice is billed to
type Customer struct {
	shared.BaseEntity
	Name  string
	Email string
}

// NewCustomer creates a customer. Email is optional but must parse when given.
func NewCustomer(name, email string) (*Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewValidationError("Customer name cannot be empty")
	}
	if len(name) > 200 {
		return nil, NewValidationError("Customer name cannot exceed 200 characters")
	}
	email = strings.TrimSpace(email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, NewValidationError("Invalid customer email: %s", email)
		}
	}
	return &Customer{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
		Email:      email,
	}, nil
}
