package recipes

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"recipebox/apperr"
	"recipebox/db"
	"recipebox/models"
	"recipebox/mq"
	"recipebox/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []mq.Event
}

func (r *recorder) Emit(_ context.Context, e mq.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func newUser(t *testing.T, s db.Store, email string) string {
	t.Helper()
	u := &models.User{ID: uuid.NewString(), Email: email, FirstName: "F", LastName: "L", Password: "x", CreatedAt: time.Now().UTC()}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u.ID
}

func TestAddIngredient(t *testing.T) {
	c := NewCatalog(testutil.NewStore(t), nil)
	ctx := context.Background()

	if _, err := c.AddIngredient(ctx, "  "); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	ing, err := c.AddIngredient(ctx, "Salt")
	if err != nil || ing.Name != "Salt" {
		t.Fatalf("AddIngredient: %+v %v", ing, err)
	}
	if _, err := c.AddIngredient(ctx, "Salt"); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := c.AddIngredient(ctx, "salt"); err != nil {
		t.Fatalf("names are case-sensitive, got %v", err)
	}
}

func TestAddRecipe(t *testing.T) {
	s := testutil.NewStore(t)
	rec := &recorder{}
	c := NewCatalog(s, rec)
	ctx := context.Background()
	owner := newUser(t, s, "a@x.com")

	if _, err := c.AddIngredient(ctx, "Oil"); err != nil {
		t.Fatalf("AddIngredient: %v", err)
	}
	r, err := c.AddRecipe(ctx, RecipeInput{
		Name:        "Pork",
		Preparation: "Everybodys favorite dish",
		Ingredients: []string{"Pork", "Oil", "Seasoning", "Oil", " ", "Beer"},
	}, owner)
	if err != nil {
		t.Fatalf("AddRecipe: %v", err)
	}
	if r.NumOfIngredients != 4 || r.Rating != 0 || r.NumOfRatings != 0 {
		t.Fatalf("unexpected recipe: %+v", r)
	}

	got, err := c.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []string{"Pork", "Oil", "Seasoning", "Beer"}
	names := got.IngredientNames()
	for i := range want {
		if i >= len(names) || names[i] != want[i] {
			t.Fatalf("expected ingredients %v, got %v", want, names)
		}
	}
	oil, _ := s.IngredientByName(ctx, "Oil")
	if got.Ingredients[1].ID != oil.ID {
		t.Fatal("existing ingredient was not reused")
	}
	if len(rec.events) != 1 || rec.events[0].EntityType != "recipe" || rec.events[0].Method != "create" {
		t.Fatalf("unexpected events: %+v", rec.events)
	}
}

func TestAddRecipeInvalid(t *testing.T) {
	s := testutil.NewStore(t)
	c := NewCatalog(s, nil)
	ctx := context.Background()
	owner := newUser(t, s, "a@x.com")

	cases := []struct {
		name  string
		in    RecipeInput
		owner string
	}{
		{"blank name", RecipeInput{Name: " ", Ingredients: []string{"Salt"}}, owner},
		{"owner not a uuid", RecipeInput{Name: "Pork"}, "this aint my id"},
		{"unknown owner", RecipeInput{Name: "Pork", Ingredients: []string{"Salt"}}, uuid.NewString()},
	}
	for _, tc := range cases {
		if _, err := c.AddRecipe(ctx, tc.in, tc.owner); apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}
	// A failed recipe leaves no ingredients behind.
	if _, err := s.IngredientByName(ctx, "Salt"); err == nil {
		t.Fatal("ingredient of a rejected recipe was stored")
	}
}

func TestRate(t *testing.T) {
	s := testutil.NewStore(t)
	c := NewCatalog(s, nil)
	ctx := context.Background()
	owner := newUser(t, s, "owner@x.com")
	rater := newUser(t, s, "rater@x.com")

	r, err := c.AddRecipe(ctx, RecipeInput{Name: "Soup", Preparation: "boil", Ingredients: []string{"Water"}}, owner)
	if err != nil {
		t.Fatalf("AddRecipe: %v", err)
	}

	invalid := []struct {
		name   string
		id     string
		rating int
		rater  string
	}{
		{"blank id", "", 3, rater},
		{"too low", r.ID, 0, rater},
		{"too high", r.ID, 6, rater},
		{"unknown recipe", uuid.NewString(), 3, rater},
		{"own recipe", r.ID, 3, owner},
	}
	for _, tc := range invalid {
		if _, err := c.Rate(ctx, tc.id, tc.rating, tc.rater); apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}

	for _, v := range []int{5, 2, 4} {
		if _, err := c.Rate(ctx, r.ID, v, rater); err != nil {
			t.Fatalf("Rate(%d): %v", v, err)
		}
	}
	got, _ := c.Get(ctx, r.ID)
	if got.NumOfRatings != 3 || math.Abs(got.Rating-11.0/3.0) > 1e-9 {
		t.Fatalf("expected 3 ratings averaging 3.67, got %d/%v", got.NumOfRatings, got.Rating)
	}
}

func TestRateConcurrent(t *testing.T) {
	stores := []struct {
		name string
		open func(*testing.T) db.Store
	}{
		{"memory", testutil.NewStore},
		{"file", testutil.NewFileStore},
	}
	for _, st := range stores {
		t.Run(st.name, func(t *testing.T) {
			s := st.open(t)
			c := NewCatalog(s, nil)
			ctx := context.Background()
			owner := newUser(t, s, "owner@x.com")
			r, err := c.AddRecipe(ctx, RecipeInput{Name: "Stew"}, owner)
			if err != nil {
				t.Fatalf("AddRecipe: %v", err)
			}

			const raters = 20
			ids := make([]string, raters)
			for i := range ids {
				ids[i] = newUser(t, s, uuid.NewString()+"@x.com")
			}
			start := make(chan struct{})
			var wg sync.WaitGroup
			errs := make(chan error, raters)
			for i := 0; i < raters; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					if _, err := c.Rate(ctx, r.ID, 1+i%5, ids[i]); err != nil {
						errs <- err
					}
				}(i)
			}
			close(start)
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatalf("Rate: %v", err)
			}

			got, _ := c.Get(ctx, r.ID)
			// Ratings 1..5 four times average to 3.
			if got.NumOfRatings != raters || math.Abs(got.Rating-3) > 1e-9 {
				t.Fatalf("lost update: %d ratings, average %v", got.NumOfRatings, got.Rating)
			}
		})
	}
}

func TestListByUser(t *testing.T) {
	s := testutil.NewStore(t)
	c := NewCatalog(s, nil)
	ctx := context.Background()
	a := newUser(t, s, "a@x.com")
	b := newUser(t, s, "b@x.com")

	for _, name := range []string{"One", "Two"} {
		if _, err := c.AddRecipe(ctx, RecipeInput{Name: name}, a); err != nil {
			t.Fatalf("AddRecipe: %v", err)
		}
	}
	if _, err := c.AddRecipe(ctx, RecipeInput{Name: "Other"}, b); err != nil {
		t.Fatalf("AddRecipe: %v", err)
	}

	got, err := c.ListByUser(ctx, a)
	if err != nil || len(got) != 2 {
		t.Fatalf("expected 2 recipes, got %d (%v)", len(got), err)
	}
	if _, err := c.ListByUser(ctx, "nope"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := c.ListByUser(ctx, uuid.NewString()); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	all, err := c.ListAll(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 recipes, got %d (%v)", len(all), err)
	}
	if _, err := c.Get(ctx, uuid.NewString()); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
