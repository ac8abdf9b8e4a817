package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"recipebox/apperr"
	"recipebox/db"
	"recipebox/models"
	"recipebox/mq"
)

type RegisterInput struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

// Credentials owns user records and password checks.
type Credentials struct {
	store    db.Store
	sessions *Sessions
	verifier Verifier
	emitter  mq.Emitter
	cost     int
}

type CredentialOption func(*Credentials)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) CredentialOption {
	return func(c *Credentials) { c.cost = cost }
}

func WithUserEmitter(e mq.Emitter) CredentialOption {
	return func(c *Credentials) { c.emitter = e }
}

func NewCredentials(store db.Store, sessions *Sessions, verifier Verifier, opts ...CredentialOption) *Credentials {
	if verifier == nil {
		verifier = NopVerifier{}
	}
	c := &Credentials{
		store:    store,
		sessions: sessions,
		verifier: verifier,
		emitter:  mq.Nop,
		cost:     bcrypt.DefaultCost,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register stores a new user with a hashed password.
func (c *Credentials) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.Email == "" || in.FirstName == "" || in.LastName == "" || in.Password == "" {
		return nil, apperr.Validation("Invalid request")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), c.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, apperr.Validation("Password is too long")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}

	u := &models.User{
		ID:        uuid.NewString(),
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Password:  string(hash),
		CreatedAt: time.Now().UTC(),
	}
	err = c.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		if _, err := tx.UserByEmail(ctx, u.Email); err == nil {
			return db.ErrDuplicate
		} else if !errors.Is(err, db.ErrNotFound) {
			return err
		}
		return tx.CreateUser(ctx, u)
	})
	if errors.Is(err, db.ErrDuplicate) {
		return nil, apperr.Conflict("User already exists")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("register %s: %w", u.Email, err))
	}
	c.emitter.Emit(ctx, mq.Event{EntityType: "user", Method: "register", EntityID: u.ID, UserID: u.ID})
	authLog().Info("user registered", "user", u.ID)
	return u, nil
}

// Verify returns the user with this email if password matches its hash.
func (c *Credentials) Verify(ctx context.Context, email, password string) (*models.User, error) {
	u, err := c.store.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("User does not exist")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("lookup user: %w", err))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, apperr.Forbidden("Invalid credentials")
	}
	return u, nil
}

// Login verifies the credentials and issues a token pair.
func (c *Credentials) Login(ctx context.Context, email, password string) (TokenPair, error) {
	u, err := c.Verify(ctx, email, password)
	if err != nil {
		return TokenPair{}, err
	}
	return c.sessions.Issue(ctx, u.ID)
}

// Check asks the verifier who owns email.
func (c *Credentials) Check(ctx context.Context, email string) (models.Person, error) {
	email = normalizeEmail(email)
	if email == "" {
		return models.Person{}, apperr.Validation("Invalid email")
	}
	p, err := c.verifier.Verify(ctx, email)
	if errors.Is(err, ErrUndeliverable) {
		return models.Person{}, apperr.Validation("Invalid email")
	}
	if err != nil {
		return models.Person{}, apperr.Internal(fmt.Errorf("verify %s: %w", email, err))
	}
	return p, nil
}
