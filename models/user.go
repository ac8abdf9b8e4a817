package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u" bson:"-" json:"-"`

	ID        string    `bun:"id,pk" json:"id" bson:"_id"`
	Email     string    `bun:"email,notnull,unique" json:"email" bson:"email"`
	FirstName string    `bun:"first_name,notnull" json:"first_name" bson:"first_name"`
	LastName  string    `bun:"last_name,notnull" json:"last_name" bson:"last_name"`
	Password  string    `bun:"password,notnull" json:"-" bson:"password"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at" bson:"created_at"`
}

// Person is what an email verifier knows about the owner of an address.
type Person struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
