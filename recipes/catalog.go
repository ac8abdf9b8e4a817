// Package recipes manages recipes, their ingredients and ratings.
package recipes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"recipebox/apperr"
	"recipebox/db"
	"recipebox/models"
	"recipebox/mq"
	"recipebox/utils"
)

const (
	minRating = 1
	maxRating = 5

	// addAttempts bounds retries of AddRecipe after another request created
	// one of its new ingredients first.
	addAttempts = 3
)

func recipeLog() *log.Logger { return log.Default().WithPrefix("recipes") }

type RecipeInput struct {
	Name        string   `json:"name"`
	Preparation string   `json:"preparation"`
	Ingredients []string `json:"ingredients"`
}

// Catalog is the recipe and ingredient service.
type Catalog struct {
	store   db.Store
	emitter mq.Emitter
}

func NewCatalog(store db.Store, emitter mq.Emitter) *Catalog {
	if emitter == nil {
		emitter = mq.Nop
	}
	return &Catalog{store: store, emitter: emitter}
}

// AddIngredient creates a named ingredient. Names are unique.
func (c *Catalog) AddIngredient(ctx context.Context, name string) (*models.Ingredient, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("Ingredient name not provided")
	}
	ing := &models.Ingredient{ID: uuid.NewString(), Name: name}
	err := c.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		if _, err := tx.IngredientByName(ctx, name); err == nil {
			return db.ErrDuplicate
		} else if !errors.Is(err, db.ErrNotFound) {
			return err
		}
		return tx.CreateIngredient(ctx, ing)
	})
	if errors.Is(err, db.ErrDuplicate) {
		return nil, apperr.Conflict("Ingredient already exists")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("add ingredient %q: %w", name, err))
	}
	c.emitter.Emit(ctx, mq.Event{EntityType: "ingredient", Method: "create", EntityID: ing.ID})
	return ing, nil
}

// distinctNames trims names and drops blanks and repeats, keeping the first
// occurrence order.
func distinctNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// AddRecipe stores a recipe owned by ownerID, reusing existing ingredients
// and creating missing ones, all in one transaction.
func (c *Catalog) AddRecipe(ctx context.Context, in RecipeInput, ownerID string) (*models.Recipe, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("Recipe name not provided")
	}
	if !utils.IsUUID(ownerID) {
		return nil, apperr.Validation("Invalid user")
	}
	names := distinctNames(in.Ingredients)

	var (
		r   *models.Recipe
		err error
	)
	for attempt := 1; attempt <= addAttempts; attempt++ {
		r = &models.Recipe{
			ID:               uuid.NewString(),
			Name:             name,
			Preparation:      in.Preparation,
			UserID:           ownerID,
			NumOfIngredients: len(names),
			CreatedAt:        time.Now().UTC(),
		}
		err = c.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
			if _, err := tx.UserByID(ctx, ownerID); err != nil {
				return err
			}
			for _, n := range names {
				ing, err := tx.IngredientByName(ctx, n)
				if errors.Is(err, db.ErrNotFound) {
					ing = &models.Ingredient{ID: uuid.NewString(), Name: n}
					err = tx.CreateIngredient(ctx, ing)
				}
				if err != nil {
					return err
				}
				r.Ingredients = append(r.Ingredients, *ing)
			}
			return tx.CreateRecipe(ctx, r)
		})
		if !errors.Is(err, db.ErrDuplicate) {
			break
		}
		recipeLog().Debug("ingredient created concurrently, retrying", "recipe", name, "attempt", attempt)
	}
	switch {
	case err == nil:
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.Validation("Invalid user")
	default:
		return nil, apperr.Internal(fmt.Errorf("add recipe %q: %w", name, err))
	}

	c.emitter.Emit(ctx, mq.Event{EntityType: "recipe", Method: "create", EntityID: r.ID, UserID: ownerID})
	recipeLog().Info("recipe created", "recipe", r.ID, "user", ownerID, "ingredients", len(names))
	return r, nil
}

// Rate folds rating into the recipe's running average. The store applies
// it as one update against the current row, so concurrent ratings queue on
// the row instead of overwriting each other.
func (c *Catalog) Rate(ctx context.Context, recipeID string, rating int, raterID string) (*models.Recipe, error) {
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" || raterID == "" {
		return nil, apperr.Validation("Invalid request")
	}
	if rating < minRating || rating > maxRating {
		return nil, apperr.Validation("Rating out of range")
	}

	var rated *models.Recipe
	err := c.store.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		r, err := tx.RecipeByID(ctx, recipeID)
		if err != nil {
			return err
		}
		if r.UserID == raterID {
			return apperr.Validation("Users cannot rate their own recipes")
		}
		if err := tx.AddRating(ctx, r.ID, rating); err != nil {
			return err
		}
		rated, err = tx.RecipeByID(ctx, r.ID)
		return err
	})
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, apperr.Validation("Recipe not found")
	case apperr.KindOf(err) == apperr.KindValidation:
		return nil, err
	case err != nil:
		return nil, apperr.Internal(fmt.Errorf("rate recipe %s: %w", recipeID, err))
	}
	c.emitter.Emit(ctx, mq.Event{EntityType: "recipe", Method: "rate", EntityID: recipeID, UserID: raterID})
	return rated, nil
}

// ListByUser returns the recipes owned by userID.
func (c *Catalog) ListByUser(ctx context.Context, userID string) ([]models.Recipe, error) {
	if !utils.IsUUID(userID) {
		return nil, apperr.Validation("Invalid user")
	}
	if _, err := c.store.UserByID(ctx, userID); errors.Is(err, db.ErrNotFound) {
		return nil, apperr.Validation("Invalid user")
	} else if err != nil {
		return nil, apperr.Internal(err)
	}
	recipes, err := c.store.RecipesByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("recipes of %s: %w", userID, err))
	}
	return recipes, nil
}

func (c *Catalog) ListAll(ctx context.Context) ([]models.Recipe, error) {
	recipes, err := c.store.Recipes(ctx)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list recipes: %w", err))
	}
	return recipes, nil
}

func (c *Catalog) Get(ctx context.Context, recipeID string) (*models.Recipe, error) {
	r, err := c.store.RecipeByID(ctx, recipeID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("Recipe not found")
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get recipe %s: %w", recipeID, err))
	}
	return r, nil
}
