package storage

import (
	"context"
	"time"
)

type User struct {
	ID           string    `bson:"_id" json:"id"`
	Username     string    `bson:"username" json:"username"`
	PasswordHash string    `bson:"password" json:"-"`
	CreatedAt    time.Time `bson:"created_at" json:"-"`
}

// UserStore backs registration and login. Usernames are unique; Create
// reports errs.ErrRecordExists on a duplicate and the finders report
// errs.ErrRecordNotFound.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	List(ctx context.Context) ([]*User, error)
}
