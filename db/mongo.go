package db

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"recipebox/models"
)

// mongoStore implements Store on MongoDB. Transactions need a replica set;
// inside WithTx the session travels in ctx, so the methods are unchanged.
type mongoStore struct {
	client      *mongo.Client
	users       *mongo.Collection
	ingredients *mongo.Collection
	recipes     *mongo.Collection
	tokens      *mongo.Collection
}

func openMongo(ctx context.Context, opts Options) (*mongoStore, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOpts := options.Client().ApplyURI(opts.DSN)
	if opts.MaxOpenConns > 0 {
		clientOpts.SetMaxPoolSize(uint64(opts.MaxOpenConns))
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	name := opts.Database
	if name == "" {
		name = "recipebox"
	}
	database := client.Database(name)
	dbLog().Info("connected to MongoDB", "database", name)
	return &mongoStore{
		client:      client,
		users:       database.Collection("users"),
		ingredients: database.Collection("ingredients"),
		recipes:     database.Collection("recipes"),
		tokens:      database.Collection("token_blacklist"),
	}, nil
}

func (s *mongoStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, s)
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s)
	})
	return err
}

func (s *mongoStore) Migrate(ctx context.Context) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
	}
	plain := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}}
	}
	indexes := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.users, []mongo.IndexModel{unique("email")}},
		{s.ingredients, []mongo.IndexModel{unique("name")}},
		{s.recipes, []mongo.IndexModel{plain("user_id"), plain("num_of_ingredients"), plain("ingredient_ids")}},
		{s.tokens, []mongo.IndexModel{unique("jti")}},
	}
	for _, ix := range indexes {
		if _, err := ix.coll.Indexes().CreateMany(ctx, ix.models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", ix.coll.Name(), err)
		}
	}
	return nil
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Users

func (s *mongoStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.users.InsertOne(ctx, u)
	return mapError(err)
}

func (s *mongoStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (s *mongoStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&u); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// Ingredients

func (s *mongoStore) CreateIngredient(ctx context.Context, ing *models.Ingredient) error {
	_, err := s.ingredients.InsertOne(ctx, ing)
	return mapError(err)
}

func (s *mongoStore) IngredientByName(ctx context.Context, name string) (*models.Ingredient, error) {
	var ing models.Ingredient
	if err := s.ingredients.FindOne(ctx, bson.M{"name": name}).Decode(&ing); err != nil {
		return nil, mapError(err)
	}
	return &ing, nil
}

// Recipes

func (s *mongoStore) CreateRecipe(ctx context.Context, r *models.Recipe) error {
	r.IngredientIDs = make([]string, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		r.IngredientIDs = append(r.IngredientIDs, ing.ID)
	}
	_, err := s.recipes.InsertOne(ctx, r)
	return mapError(err)
}

func (s *mongoStore) RecipeByID(ctx context.Context, id string) (*models.Recipe, error) {
	var r models.Recipe
	if err := s.recipes.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		return nil, mapError(err)
	}
	recipes := []models.Recipe{r}
	if err := s.loadIngredients(ctx, recipes); err != nil {
		return nil, err
	}
	return &recipes[0], nil
}

func (s *mongoStore) AddRating(ctx context.Context, id string, rating int) error {
	// A pipeline $set stage evaluates every field against the old document.
	update := mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"rating": bson.M{"$divide": bson.A{
			bson.M{"$add": bson.A{bson.M{"$multiply": bson.A{"$rating", "$num_of_ratings"}}, float64(rating)}},
			bson.M{"$add": bson.A{"$num_of_ratings", 1}},
		}},
		"num_of_ratings": bson.M{"$add": bson.A{"$num_of_ratings", 1}},
	}}}}
	res, err := s.recipes.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoStore) RecipesByUser(ctx context.Context, userID string) ([]models.Recipe, error) {
	return s.findRecipes(ctx, bson.M{"user_id": userID}, bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
}

func (s *mongoStore) Recipes(ctx context.Context) ([]models.Recipe, error) {
	return s.findRecipes(ctx, bson.M{}, bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
}

func (s *mongoStore) findRecipes(ctx context.Context, filter any, sort bson.D) ([]models.Recipe, error) {
	cursor, err := s.recipes.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, mapError(err)
	}
	defer cursor.Close(ctx)

	recipes := []models.Recipe{}
	if err := cursor.All(ctx, &recipes); err != nil {
		return nil, mapError(err)
	}
	return recipes, s.loadIngredients(ctx, recipes)
}

func (s *mongoStore) loadIngredients(ctx context.Context, recipes []models.Recipe) error {
	var ids []string
	for _, r := range recipes {
		ids = append(ids, r.IngredientIDs...)
	}
	byID := make(map[string]models.Ingredient, len(ids))
	if len(ids) > 0 {
		cursor, err := s.ingredients.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
		if err != nil {
			return mapError(err)
		}
		var found []models.Ingredient
		if err := cursor.All(ctx, &found); err != nil {
			return mapError(err)
		}
		for _, ing := range found {
			byID[ing.ID] = ing
		}
	}
	for i := range recipes {
		recipes[i].Ingredients = make([]models.Ingredient, 0, len(recipes[i].IngredientIDs))
		for _, id := range recipes[i].IngredientIDs {
			if ing, ok := byID[id]; ok {
				recipes[i].Ingredients = append(recipes[i].Ingredients, ing)
			}
		}
	}
	return nil
}

// Queries

func (s *mongoStore) TopIngredients(ctx context.Context, n int) ([]models.IngredientUsage, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$ingredient_ids"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$ingredient_ids"},
			{Key: "recipes", Value: bson.D{{Key: "$addToSet", Value: "$_id"}}},
		}}},
		{{Key: "$project", Value: bson.D{{Key: "uses", Value: bson.D{{Key: "$size", Value: "$recipes"}}}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: s.ingredients.Name()},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "ingredient"},
		}}},
		{{Key: "$unwind", Value: "$ingredient"}},
		{{Key: "$sort", Value: bson.D{{Key: "uses", Value: -1}, {Key: "ingredient.name", Value: 1}}}},
		{{Key: "$limit", Value: n}},
	}
	cursor, err := s.recipes.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, mapError(err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Uses       int               `bson:"uses"`
		Ingredient models.Ingredient `bson:"ingredient"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, mapError(err)
	}
	out := make([]models.IngredientUsage, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.IngredientUsage{Ingredient: r.Ingredient, Uses: r.Uses})
	}
	return out, nil
}

func (s *mongoStore) IngredientCountBounds(ctx context.Context) (int, int, bool, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "max", Value: bson.D{{Key: "$max", Value: "$num_of_ingredients"}}},
			{Key: "min", Value: bson.D{{Key: "$min", Value: "$num_of_ingredients"}}},
		}}},
	}
	cursor, err := s.recipes.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, 0, false, mapError(err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Max int `bson:"max"`
		Min int `bson:"min"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, 0, false, mapError(err)
	}
	if len(rows) == 0 {
		return 0, 0, false, nil
	}
	return rows[0].Max, rows[0].Min, true, nil
}

func (s *mongoStore) RecipesWithIngredientCount(ctx context.Context, counts ...int) ([]models.Recipe, error) {
	if len(counts) == 0 {
		return []models.Recipe{}, nil
	}
	return s.findRecipes(ctx,
		bson.M{"num_of_ingredients": bson.M{"$in": counts}},
		bson.D{{Key: "num_of_ingredients", Value: -1}, {Key: "name", Value: 1}, {Key: "_id", Value: 1}},
	)
}

func (s *mongoStore) SearchRecipes(ctx context.Context, f SearchFilter) ([]models.Recipe, error) {
	if f.Empty() {
		return []models.Recipe{}, nil
	}
	contains := func(term string) bson.M {
		return bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
	}

	var or []bson.M
	if f.Name != "" {
		or = append(or, bson.M{"name": contains(f.Name)})
	}
	if f.Text != "" {
		or = append(or, bson.M{"preparation": contains(f.Text)})
	}
	if len(f.Ingredients) > 0 {
		var names []bson.M
		for _, term := range f.Ingredients {
			names = append(names, bson.M{"name": contains(term)})
		}
		cursor, err := s.ingredients.Find(ctx, bson.M{"$or": names}, options.Find().SetProjection(bson.M{"_id": 1}))
		if err != nil {
			return nil, mapError(err)
		}
		var matched []models.Ingredient
		if err := cursor.All(ctx, &matched); err != nil {
			return nil, mapError(err)
		}
		if len(matched) > 0 {
			ids := make([]string, 0, len(matched))
			for _, ing := range matched {
				ids = append(ids, ing.ID)
			}
			or = append(or, bson.M{"ingredient_ids": bson.M{"$in": ids}})
		}
	}
	if len(or) == 0 {
		return []models.Recipe{}, nil
	}
	return s.findRecipes(ctx, bson.M{"$or": or}, bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
}

// Tokens

func (s *mongoStore) CreateToken(ctx context.Context, t *models.RevokedToken) error {
	_, err := s.tokens.InsertOne(ctx, t)
	return mapError(err)
}

func (s *mongoStore) TokenByJTI(ctx context.Context, jti string) (*models.RevokedToken, error) {
	var t models.RevokedToken
	if err := s.tokens.FindOne(ctx, bson.M{"jti": jti}).Decode(&t); err != nil {
		return nil, mapError(err)
	}
	return &t, nil
}

func (s *mongoStore) RevokeToken(ctx context.Context, jti string) error {
	res, err := s.tokens.UpdateOne(ctx, bson.M{"jti": jti}, bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
