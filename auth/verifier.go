package auth

import (
	"context"
	"errors"

	"recipebox/models"
)

// ErrUndeliverable is returned by a Verifier for addresses that cannot
// receive mail.
var ErrUndeliverable = errors.New("undeliverable email address")

// Verifier looks up the person behind an email address with an external
// service.
type Verifier interface {
	Verify(ctx context.Context, email string) (models.Person, error)
}

// NopVerifier accepts every address and knows nothing about its owner.
type NopVerifier struct{}

func (NopVerifier) Verify(_ context.Context, email string) (models.Person, error) {
	return models.Person{Email: email}, nil
}
