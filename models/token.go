package models

import (
	"time"

	"github.com/uptrace/bun"
)

// RevokedToken is an entry of the revocation list. Every issued token gets
// one; logging out flips Revoked instead of deleting the row.
type RevokedToken struct {
	bun.BaseModel `bun:"table:token_blacklist,alias:t" bson:"-" json:"-"`

	ID           string    `bun:"id,pk" json:"token_id" bson:"_id"`
	JTI          string    `bun:"jti,notnull,unique" json:"jti" bson:"jti"`
	TokenType    string    `bun:"token_type,notnull" json:"token_type" bson:"token_type"`
	UserIdentity string    `bun:"user_identity,notnull" json:"user_identity" bson:"user_identity"`
	Revoked      bool      `bun:"revoked,notnull" json:"revoked" bson:"revoked"`
	Expires      time.Time `bun:"expires,notnull" json:"expires" bson:"expires"`
}

// Expired reports whether the token's lifetime ended before now.
func (t *RevokedToken) Expired(now time.Time) bool {
	return now.After(t.Expires)
}
