package db_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"recipebox/db"
	"recipebox/models"
	"recipebox/testutil"
)

func addUser(t *testing.T, s db.Store, email string) *models.User {
	t.Helper()
	u := &models.User{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: "Test",
		LastName:  "User",
		Password:  "hash",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return u
}

// addRecipe creates the recipe and any ingredient it names that is missing.
func addRecipe(t *testing.T, s db.Store, owner, name, prep string, ingredients ...string) *models.Recipe {
	t.Helper()
	ctx := context.Background()
	r := &models.Recipe{
		ID:               uuid.NewString(),
		Name:             name,
		Preparation:      prep,
		UserID:           owner,
		NumOfIngredients: len(ingredients),
		CreatedAt:        time.Now().UTC(),
	}
	for _, n := range ingredients {
		ing, err := s.IngredientByName(ctx, n)
		if errors.Is(err, db.ErrNotFound) {
			ing = &models.Ingredient{ID: uuid.NewString(), Name: n}
			err = s.CreateIngredient(ctx, ing)
		}
		if err != nil {
			t.Fatalf("ingredient %s: %v", n, err)
		}
		r.Ingredients = append(r.Ingredients, *ing)
	}
	if err := s.CreateRecipe(ctx, r); err != nil {
		t.Fatalf("CreateRecipe(%s): %v", name, err)
	}
	return r
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := testutil.NewStore(t)
	addUser(t, s, "e@x.com")

	dup := &models.User{ID: uuid.NewString(), Email: "e@x.com", FirstName: "a", LastName: "b", Password: "p", CreatedAt: time.Now()}
	err := s.CreateUser(context.Background(), dup)
	if !errors.Is(err, db.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := s.UserByID(context.Background(), dup.ID); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected second user to be absent, got %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		if err := tx.CreateIngredient(ctx, &models.Ingredient{ID: uuid.NewString(), Name: "Salt"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.IngredientByName(ctx, "Salt"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected rolled back ingredient to be absent, got %v", err)
	}
}

func TestRecipeIngredientsKeepOrder(t *testing.T) {
	s := testutil.NewStore(t)
	u := addUser(t, s, "a@x.com")
	r := addRecipe(t, s, u.ID, "Pork", "Everybodys favorite dish", "Pork", "Oil", "Seasoning", "Beer")

	got, err := s.RecipeByID(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("RecipeByID: %v", err)
	}
	want := []string{"Pork", "Oil", "Seasoning", "Beer"}
	names := got.IngredientNames()
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
	if got.Rating != 0 || got.NumOfRatings != 0 || got.NumOfIngredients != 4 {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestRecipeByIDMissing(t *testing.T) {
	s := testutil.NewStore(t)
	if _, err := s.RecipeByID(context.Background(), uuid.NewString()); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddRating(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	u := addUser(t, s, "a@x.com")
	r := addRecipe(t, s, u.ID, "Soup", "boil water", "Water")

	for _, v := range []int{4, 2, 5} {
		if err := s.AddRating(ctx, r.ID, v); err != nil {
			t.Fatalf("AddRating(%d): %v", v, err)
		}
	}
	got, _ := s.RecipeByID(ctx, r.ID)
	if got.NumOfRatings != 3 || math.Abs(got.Rating-11.0/3) > 1e-9 {
		t.Fatalf("expected 11/3 over 3 ratings, got %v/%d", got.Rating, got.NumOfRatings)
	}
	if err := s.AddRating(ctx, uuid.NewString(), 3); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing recipe, got %v", err)
	}
}

func TestAddRatingConcurrentOnFile(t *testing.T) {
	s := testutil.NewFileStore(t)
	ctx := context.Background()
	u := addUser(t, s, "a@x.com")
	r := addRecipe(t, s, u.ID, "Soup", "boil water", "Water")

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			errs <- s.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
				if _, err := tx.RecipeByID(ctx, r.ID); err != nil {
					return err
				}
				return tx.AddRating(ctx, r.ID, v)
			})
		}(i%5 + 1)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent rating failed: %v", err)
		}
	}
	got, _ := s.RecipeByID(ctx, r.ID)
	// 1..5 repeated: 1+2+3+4+5+1+2+3+4+5+1+2 = 33
	if got.NumOfRatings != n || math.Abs(got.Rating-33.0/n) > 1e-9 {
		t.Fatalf("expected 33/%d over %d ratings, got %v/%d", n, n, got.Rating, got.NumOfRatings)
	}
}

func TestCreateUserConcurrentOnFile(t *testing.T) {
	s := testutil.NewFileStore(t)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := fmt.Sprintf("user%d@x.com", i)
			errs <- s.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
				if _, err := tx.UserByEmail(ctx, email); !errors.Is(err, db.ErrNotFound) {
					return fmt.Errorf("lookup %s: %w", email, err)
				}
				return tx.CreateUser(ctx, &models.User{
					ID: uuid.NewString(), Email: email, FirstName: "F", LastName: "L",
					Password: "hash", CreatedAt: time.Now().UTC(),
				})
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent insert failed: %v", err)
		}
	}
}

func TestTopIngredients(t *testing.T) {
	s := testutil.NewStore(t)
	u := addUser(t, s, "a@x.com")
	for i := 0; i < 10; i++ {
		ings := []string{"Salt"}
		if i < 3 {
			ings = append(ings, "Sugar")
		}
		addRecipe(t, s, u.ID, "Dish", "cook", ings...)
	}
	addRecipe(t, s, u.ID, "Tea", "steep", "Leaves")

	top, err := s.TopIngredients(context.Background(), 5)
	if err != nil {
		t.Fatalf("TopIngredients: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 ingredients, got %d", len(top))
	}
	if top[0].Name != "Salt" || top[0].Uses != 10 {
		t.Fatalf("expected Salt x10 first, got %+v", top[0])
	}
	if top[1].Name != "Sugar" || top[1].Uses != 3 {
		t.Fatalf("expected Sugar x3 second, got %+v", top[1])
	}
}

func TestIngredientCountBounds(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	if _, _, ok, err := s.IngredientCountBounds(ctx); err != nil || ok {
		t.Fatalf("expected no bounds on empty store, ok=%v err=%v", ok, err)
	}

	u := addUser(t, s, "a@x.com")
	addRecipe(t, s, u.ID, "One", "", "A")
	addRecipe(t, s, u.ID, "Three", "", "A", "B", "C")
	addRecipe(t, s, u.ID, "Two", "", "A", "B")

	maxN, minN, ok, err := s.IngredientCountBounds(ctx)
	if err != nil || !ok {
		t.Fatalf("IngredientCountBounds: ok=%v err=%v", ok, err)
	}
	if maxN != 3 || minN != 1 {
		t.Fatalf("expected 3/1, got %d/%d", maxN, minN)
	}

	recipes, err := s.RecipesWithIngredientCount(ctx, maxN, minN)
	if err != nil {
		t.Fatalf("RecipesWithIngredientCount: %v", err)
	}
	if len(recipes) != 2 || recipes[0].Name != "Three" || recipes[1].Name != "One" {
		t.Fatalf("unexpected recipes: %+v", recipes)
	}
}

func TestSearchRecipes(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	u := addUser(t, s, "a@x.com")
	addRecipe(t, s, u.ID, "Tomato Soup", "boil water", "Tomato", "Water")
	addRecipe(t, s, u.ID, "Pancakes", "whisk 100% of the flour", "Flour", "Milk")
	addRecipe(t, s, u.ID, "Salad", "chop", "Lettuce")

	cases := []struct {
		name   string
		filter db.SearchFilter
		want   []string
	}{
		{"no filter", db.SearchFilter{}, nil},
		{"name", db.SearchFilter{Name: "soup"}, []string{"Tomato Soup"}},
		{"text", db.SearchFilter{Text: "100%"}, []string{"Pancakes"}},
		{"percent is literal", db.SearchFilter{Text: "%"}, []string{"Pancakes"}},
		{"ingredient", db.SearchFilter{Ingredients: []string{"lett"}}, []string{"Salad"}},
		{"or across fields", db.SearchFilter{Name: "salad", Ingredients: []string{"milk", "tomato"}}, []string{"Pancakes", "Salad", "Tomato Soup"}},
		{"no match", db.SearchFilter{Name: "pizza"}, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := s.SearchRecipes(ctx, c.filter)
			if err != nil {
				t.Fatalf("SearchRecipes: %v", err)
			}
			if len(got) != len(c.want) {
				t.Fatalf("expected %v, got %d recipes", c.want, len(got))
			}
			for i := range c.want {
				if got[i].Name != c.want[i] {
					t.Fatalf("expected %v at %d, got %s", c.want[i], i, got[i].Name)
				}
			}
		})
	}
}

func TestTokens(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()

	tok := &models.RevokedToken{
		ID:           uuid.NewString(),
		JTI:          uuid.NewString(),
		TokenType:    "access",
		UserIdentity: "user-1",
		Expires:      time.Now().Add(time.Hour).UTC(),
	}
	if err := s.CreateToken(ctx, tok); err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	if err := s.RevokeToken(ctx, tok.JTI); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	got, err := s.TokenByJTI(ctx, tok.JTI)
	if err != nil {
		t.Fatalf("TokenByJTI: %v", err)
	}
	if !got.Revoked || got.UserIdentity != "user-1" {
		t.Fatalf("unexpected token entry: %+v", got)
	}
	if err := s.RevokeToken(ctx, "missing"); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
