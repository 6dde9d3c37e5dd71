package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role says which side of a fund request an account can take
type Role string

const (
	RoleParent Role = "PARENT"
	RoleChild  Role = "CHILD"
)

func (r Role) Valid() bool {
	return r == RoleParent || r == RoleChild
}

// Account is a household member's balance
type Account struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Role      Role            `json:"role"`
	Balance   decimal.Decimal `json:"balance"` // never negative
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
