package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Ingredient struct {
	bun.BaseModel `bun:"table:ingredients,alias:i" bson:"-" json:"-"`

	ID   string `bun:"id,pk" json:"id" bson:"_id"`
	Name string `bun:"name,notnull,unique" json:"name" bson:"name"`
}

// IngredientUsage is an ingredient together with the number of distinct
// recipes that reference it.
type IngredientUsage struct {
	Ingredient
	Uses int `json:"uses"`
}

type Recipe struct {
	bun.BaseModel `bun:"table:recipes,alias:r" bson:"-" json:"-"`

	ID               string    `bun:"id,pk" json:"id" bson:"_id"`
	Name             string    `bun:"name,notnull" json:"name" bson:"name"`
	Preparation      string    `bun:"preparation,type:text" json:"preparation" bson:"preparation"`
	Rating           float64   `bun:"rating,notnull" json:"rating" bson:"rating"`
	NumOfRatings     int       `bun:"num_of_ratings,notnull" json:"num_of_ratings" bson:"num_of_ratings"`
	NumOfIngredients int       `bun:"num_of_ingredients,notnull" json:"num_of_ingredients" bson:"num_of_ingredients"`
	UserID           string    `bun:"user_id,notnull" json:"user_id" bson:"user_id"`
	CreatedAt        time.Time `bun:"created_at,notnull" json:"created_at" bson:"created_at"`

	// IngredientIDs is the ordered ingredient list as stored by document
	// backends; SQL backends keep it in recipe_ingredients instead.
	IngredientIDs []string     `bun:"-" json:"-" bson:"ingredient_ids"`
	Ingredients   []Ingredient `bun:"-" json:"ingredients" bson:"-"`
}

// IngredientNames returns the names of the loaded ingredients in order.
func (r *Recipe) IngredientNames() []string {
	names := make([]string, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		names = append(names, ing.Name)
	}
	return names
}

// RecipeIngredient is the association row between a recipe and one of its
// ingredients. Position keeps the order the ingredients were submitted in.
type RecipeIngredient struct {
	bun.BaseModel `bun:"table:recipe_ingredients,alias:ri"`

	RecipeID     string `bun:"recipe_id,pk"`
	IngredientID string `bun:"ingredient_id,pk"`
	Position     int    `bun:"position,notnull"`
}
