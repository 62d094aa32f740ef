package models

import (
	"github.com/google/uuid"
)

const (
	RoleWasher = "washer"
	RoleAdmin  = "admin"
)

// Authenticated caller
type Identity struct {
	UserID uuid.UUID
	Role   string
}
