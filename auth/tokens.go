package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"recipebox/apperr"
	"recipebox/db"
	"recipebox/globals"
	"recipebox/models"
	"recipebox/mq"
)

const logoutFailed = "Logout unsuccessful"

func authLog() *log.Logger { return log.Default().WithPrefix("auth") }

// Claims are the JWT claims of both token kinds. ID is the jti and Subject
// the user id.
type Claims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Identity is what a validated token proves about its bearer.
type Identity struct {
	UserID    string
	JTI       string
	Kind      string
	ExpiresAt time.Time
}

// RevocationCache is a fast lookup of revoked token ids. It may miss
// revocations, so the store is always consulted on a miss.
type RevocationCache interface {
	MarkRevoked(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type SessionConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Sessions issues, validates and revokes tokens. Every issued token is
// recorded; a token without a record is treated as revoked.
type Sessions struct {
	store   db.Store
	cfg     SessionConfig
	cache   RevocationCache
	emitter mq.Emitter
	now     func() time.Time
}

type SessionOption func(*Sessions)

func WithRevocationCache(c RevocationCache) SessionOption {
	return func(s *Sessions) { s.cache = c }
}

func WithEmitter(e mq.Emitter) SessionOption {
	return func(s *Sessions) { s.emitter = e }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Sessions) { s.now = now }
}

func NewSessions(store db.Store, cfg SessionConfig, opts ...SessionOption) (*Sessions, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: empty signing secret")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	s := &Sessions{store: store, cfg: cfg, emitter: mq.Nop, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Issue creates an access and a refresh token for userID and records both
// in one transaction.
func (s *Sessions) Issue(ctx context.Context, userID string) (TokenPair, error) {
	var pair TokenPair
	err := s.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		if pair.AccessToken, err = s.mint(ctx, tx, userID, globals.AccessToken); err != nil {
			return err
		}
		pair.RefreshToken, err = s.mint(ctx, tx, userID, globals.RefreshToken)
		return err
	})
	if err != nil {
		return TokenPair{}, apperr.Internal(fmt.Errorf("issue tokens for %s: %w", userID, err))
	}
	authLog().Debug("tokens issued", "user", userID)
	return pair, nil
}

func (s *Sessions) mint(ctx context.Context, tx db.Tx, userID, kind string) (string, error) {
	now := s.now()
	ttl := s.cfg.AccessTTL
	if kind == globals.RefreshToken {
		ttl = s.cfg.RefreshTTL
	}
	claims := Claims{
		Type: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", err
	}
	err = tx.CreateToken(ctx, &models.RevokedToken{
		ID:           uuid.NewString(),
		JTI:          claims.ID,
		TokenType:    kind,
		UserIdentity: userID,
		Expires:      claims.ExpiresAt.Time.UTC(),
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

// Decode checks the signature, algorithm and expiry of raw and returns its
// claims. It does not look at the revocation list.
func (s *Sessions) Decode(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// IsRevoked fails closed: a token counts as revoked unless the store has a
// live, unrevoked record matching its jti, kind and subject.
func (s *Sessions) IsRevoked(ctx context.Context, c *Claims) bool {
	if c == nil || c.ID == "" {
		return true
	}
	if s.cache != nil {
		if hit, err := s.cache.IsRevoked(ctx, c.ID); err != nil {
			authLog().Warn("revocation cache lookup failed", "err", err)
		} else if hit {
			return true
		}
	}
	t, err := s.store.TokenByJTI(ctx, c.ID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			authLog().Error("revocation lookup failed", "jti", c.ID, "err", err)
		}
		return true
	}
	if t.Revoked || t.Expired(s.now()) {
		return true
	}
	return t.TokenType != c.Type || t.UserIdentity != c.Subject
}

// Validate accepts raw only if it decodes, has the wanted kind and is not
// revoked.
func (s *Sessions) Validate(ctx context.Context, raw, kind string) (Identity, error) {
	if raw == "" {
		return Identity{}, apperr.Unauthorized("Missing token")
	}
	c, err := s.Decode(raw)
	if err != nil {
		return Identity{}, apperr.Unauthorized("Invalid token")
	}
	if c.Type != kind {
		return Identity{}, apperr.Unauthorized("Invalid token")
	}
	if s.IsRevoked(ctx, c) {
		return Identity{}, apperr.Unauthorized("Token has been revoked")
	}
	return Identity{
		UserID:    c.Subject,
		JTI:       c.ID,
		Kind:      c.Type,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// Revoke marks jti revoked on behalf of requester. Revoking an already
// revoked token succeeds.
func (s *Sessions) Revoke(ctx context.Context, jti, requester string) error {
	var expires time.Time
	err := s.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		t, err := tx.TokenByJTI(ctx, jti)
		if err != nil {
			return err
		}
		if t.UserIdentity != requester {
			return apperr.Forbidden("You cannot revoke this token")
		}
		expires = t.Expires
		if t.Revoked {
			return nil
		}
		return tx.RevokeToken(ctx, jti)
	})
	switch {
	case err == nil:
	case apperr.KindOf(err) == apperr.KindForbidden:
		return err
	case errors.Is(err, db.ErrNotFound):
		return apperr.NotFound(logoutFailed)
	default:
		authLog().Error("revoke failed", "jti", jti, "err", err)
		return apperr.NotFound(logoutFailed)
	}
	if s.cache != nil {
		if err := s.cache.MarkRevoked(ctx, jti, expires); err != nil {
			authLog().Warn("failed to cache revocation", "jti", jti, "err", err)
		}
	}
	return nil
}

// Logout revokes the presented token. Tokens that do not decode fail the
// same way as unknown ones.
func (s *Sessions) Logout(ctx context.Context, raw, requester string) error {
	c, err := s.Decode(raw)
	if err != nil || c.ID == "" {
		return apperr.NotFound(logoutFailed)
	}
	if err := s.Revoke(ctx, c.ID, requester); err != nil {
		return err
	}
	s.emitter.Emit(ctx, mq.Event{EntityType: "session", Method: "logout", EntityID: c.ID, UserID: requester})
	authLog().Info("user logged out", "user", requester)
	return nil
}

// Refresh trades a valid refresh token for a new, recorded access token.
func (s *Sessions) Refresh(ctx context.Context, refreshRaw string) (string, error) {
	id, err := s.Validate(ctx, refreshRaw, globals.RefreshToken)
	if err != nil {
		return "", err
	}
	var access string
	err = s.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		access, err = s.mint(ctx, tx, id.UserID, globals.AccessToken)
		return err
	})
	if err != nil {
		return "", apperr.Internal(fmt.Errorf("refresh for %s: %w", id.UserID, err))
	}
	return access, nil
}
