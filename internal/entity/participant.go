package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// Participant roles.
const (
	RoleBuyer    = "buyer"
	RoleSupplier = "supplier"
)

// Participant is a directory entry for a buyer or supplier.
type Participant struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Email     string    `bun:"email,notnull,unique"`
	Role      string    `bun:"role,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
}
