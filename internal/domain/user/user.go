package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = errors.New("user not found")

// User is a client account that places orders.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Repository defines read operations for user accounts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
