// Package db is the persistence layer. A Store is opened once at startup
// and handed to every component; nothing in here is package-global.
package db

import (
	"context"
	"fmt"
	"time"

	"recipebox/models"
)

// SearchFilter is an OR of the supplied substring filters. Empty fields are
// not part of the predicate.
type SearchFilter struct {
	Name        string
	Text        string
	Ingredients []string
}

// Empty reports whether no filter was supplied.
func (f SearchFilter) Empty() bool {
	return f.Name == "" && f.Text == "" && len(f.Ingredients) == 0
}

// Tx is the set of store operations. The same methods run inside and
// outside a transaction.
type Tx interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateIngredient(ctx context.Context, ing *models.Ingredient) error
	IngredientByName(ctx context.Context, name string) (*models.Ingredient, error)

	// CreateRecipe stores r and links it to r.Ingredients in order.
	CreateRecipe(ctx context.Context, r *models.Recipe) error
	RecipeByID(ctx context.Context, id string) (*models.Recipe, error)
	// AddRating folds rating into the stored average and count in a single
	// update, so concurrent calls never lose a rating.
	AddRating(ctx context.Context, id string, rating int) error
	RecipesByUser(ctx context.Context, userID string) ([]models.Recipe, error)
	Recipes(ctx context.Context) ([]models.Recipe, error)

	TopIngredients(ctx context.Context, n int) ([]models.IngredientUsage, error)
	// IngredientCountBounds returns the largest and smallest
	// num_of_ingredients; ok is false when there are no recipes.
	IngredientCountBounds(ctx context.Context) (maxCount, minCount int, ok bool, err error)
	RecipesWithIngredientCount(ctx context.Context, counts ...int) ([]models.Recipe, error)
	SearchRecipes(ctx context.Context, f SearchFilter) ([]models.Recipe, error)

	CreateToken(ctx context.Context, t *models.RevokedToken) error
	TokenByJTI(ctx context.Context, jti string) (*models.RevokedToken, error)
	RevokeToken(ctx context.Context, jti string) error
}

// Store is a Tx that can also open transactions.
type Store interface {
	Tx
	// WithTx runs fn in a transaction. fn must use the ctx and Tx it is
	// given. Returning an error rolls everything back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Migrate creates tables, indexes and constraints that do not exist yet.
	Migrate(ctx context.Context) error
	Close() error
}

// Options selects and tunes a backend.
type Options struct {
	Type     string // sqlite, postgres, mysql or mongo
	DSN      string
	Database string // mongo only

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// Open connects to the configured backend and migrates it.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch opts.Type {
	case "sqlite", "postgres", "mysql":
		s, err = openSQL(opts)
	case "mongo", "mongodb":
		s, err = openMongo(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported database type: %q", opts.Type)
	}
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to migrate %s store: %w", opts.Type, err)
	}
	dbLog().Debug("migrations applied", "type", opts.Type, "took", time.Since(start))
	return s, nil
}
