// Package search answers the read-only catalogue queries: ingredient
// popularity, ingredient-count extremes and substring search.
package search

import (
	"context"
	"fmt"
	"strings"

	"recipebox/apperr"
	"recipebox/db"
	"recipebox/models"
	"recipebox/utils"
)

const (
	defaultTopN = 5
	maxTopN     = 100
)

// SearchInput holds the raw query values. Ingredients is a comma separated
// list.
type SearchInput struct {
	Name        string
	Text        string
	Ingredients string
}

type Engine struct {
	store db.Tx
}

// NewEngine accepts any store handle, including one inside a transaction.
func NewEngine(store db.Tx) *Engine {
	return &Engine{store: store}
}

// TopIngredients ranks ingredients by the number of recipes using them.
// n <= 0 means the default of five.
func (e *Engine) TopIngredients(ctx context.Context, n int) ([]models.IngredientUsage, error) {
	if n <= 0 {
		n = defaultTopN
	}
	if n > maxTopN {
		n = maxTopN
	}
	top, err := e.store.TopIngredients(ctx, n)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("top ingredients: %w", err))
	}
	return top, nil
}

// FilterExtremes returns the recipes with the most and with the fewest
// ingredients.
func (e *Engine) FilterExtremes(ctx context.Context) ([]models.Recipe, error) {
	maxN, minN, ok, err := e.store.IngredientCountBounds(ctx)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("ingredient count bounds: %w", err))
	}
	if !ok {
		return []models.Recipe{}, nil
	}
	counts := []int{maxN}
	if minN != maxN {
		counts = append(counts, minN)
	}
	recipes, err := e.store.RecipesWithIngredientCount(ctx, counts...)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("recipes with %v ingredients: %w", counts, err))
	}
	return recipes, nil
}

// Search returns recipes matching any supplied filter, case-insensitively.
// Nothing is returned when no filter is supplied.
func (e *Engine) Search(ctx context.Context, in SearchInput) ([]models.Recipe, error) {
	f := db.SearchFilter{
		Name:        strings.TrimSpace(in.Name),
		Text:        strings.TrimSpace(in.Text),
		Ingredients: utils.SplitCSV(in.Ingredients),
	}
	if f.Empty() {
		return []models.Recipe{}, nil
	}
	recipes, err := e.store.SearchRecipes(ctx, f)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("search recipes: %w", err))
	}
	return recipes, nil
}
