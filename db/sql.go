package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"recipebox/models"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
)

// sqlStore implements Store on top of bun. db is either the root *bun.DB
// or the bun.Tx of a running transaction.
type sqlStore struct {
	root *bun.DB
	db   bun.IDB
}

func openSQL(opts Options) (*sqlStore, error) {
	driverName := opts.Type
	// The pgx stdlib registers driver name "pgx".
	if opts.Type == "postgres" {
		driverName = "pgx"
	}
	dsn := opts.DSN
	if opts.Type == "sqlite" {
		dsn = sqliteDSN(dsn)
	}
	start := time.Now()
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, maxIdle, lifetime := defaultMaxOpenConns, defaultMaxIdleConns, defaultConnMaxLifetime
	if opts.MaxOpenConns > 0 {
		maxOpen = opts.MaxOpenConns
	}
	if opts.MaxIdleConns > 0 {
		maxIdle = opts.MaxIdleConns
	}
	if opts.ConnMaxLifetime > 0 {
		lifetime = opts.ConnMaxLifetime
	}
	// An in-memory sqlite database lives as long as its connections, and
	// every connection would otherwise see its own database.
	if opts.Type == "sqlite" && isMemoryDSN(opts.DSN) {
		maxOpen, maxIdle, lifetime = 1, 1, 0
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)

	bunDB := newBunDB(sqlDB, opts.Type)
	dbLog().Info("opened sql store", "driver", driverName, "maxOpen", maxOpen, "took", time.Since(start))
	return &sqlStore{root: bunDB, db: bunDB}, nil
}

func newBunDB(sqlDB *sql.DB, dbType string) *bun.DB {
	switch dbType {
	case "postgres":
		return bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		return bun.NewDB(sqlDB, mysqldialect.New())
	default:
		return bun.NewDB(sqlDB, sqlitedialect.New())
	}
}

// sqliteDSN makes writers queue for the database lock instead of failing
// with SQLITE_BUSY. Transactions take the write lock at BEGIN, so two of
// them never both read and then race to upgrade. Parameters already present
// in dsn win.
func sqliteDSN(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, "_pragma=busy_timeout(5000)")
	}
	if !strings.Contains(dsn, "_txlock") {
		params = append(params, "_txlock=immediate")
	}
	if !isMemoryDSN(dsn) && !strings.Contains(dsn, "journal_mode") {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}

func (s *sqlStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if _, inTx := s.db.(bun.Tx); inTx {
		return fn(ctx, s)
	}
	return s.root.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &sqlStore{root: s.root, db: tx})
	})
}

func (s *sqlStore) Migrate(ctx context.Context) error {
	tables := []struct {
		model       any
		foreignKeys []string
	}{
		{model: (*models.User)(nil)},
		{model: (*models.Ingredient)(nil)},
		{model: (*models.Recipe)(nil), foreignKeys: []string{
			"(user_id) REFERENCES users (id)",
		}},
		{model: (*models.RecipeIngredient)(nil), foreignKeys: []string{
			"(recipe_id) REFERENCES recipes (id)",
			"(ingredient_id) REFERENCES ingredients (id)",
		}},
		{model: (*models.RevokedToken)(nil)},
	}
	for _, t := range tables {
		q := s.root.NewCreateTable().Model(t.model).IfNotExists()
		for _, fk := range t.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", t.model, err)
		}
	}

	// MySQL has no CREATE INDEX IF NOT EXISTS.
	if s.root.Dialect().Name() == dialect.MySQL {
		return nil
	}
	indexes := []struct {
		model   any
		name    string
		columns []string
	}{
		{(*models.Recipe)(nil), "recipes_user_id_idx", []string{"user_id"}},
		{(*models.Recipe)(nil), "recipes_num_of_ingredients_idx", []string{"num_of_ingredients"}},
		{(*models.RecipeIngredient)(nil), "recipe_ingredients_ingredient_id_idx", []string{"ingredient_id"}},
	}
	for _, ix := range indexes {
		if _, err := s.root.NewCreateIndex().Model(ix.model).Index(ix.name).Column(ix.columns...).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create index %s: %w", ix.name, err)
		}
	}
	return nil
}

func (s *sqlStore) Close() error {
	return s.root.Close()
}

// Users

func (s *sqlStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.NewInsert().Model(u).Exec(ctx)
	return mapError(err)
}

func (s *sqlStore) UserByID(ctx context.Context, id string) (*models.User, error) {
	u := new(models.User)
	if err := s.db.NewSelect().Model(u).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (s *sqlStore) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	u := new(models.User)
	if err := s.db.NewSelect().Model(u).Where("email = ?", email).Limit(1).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

// Ingredients

func (s *sqlStore) CreateIngredient(ctx context.Context, ing *models.Ingredient) error {
	_, err := s.db.NewInsert().Model(ing).Exec(ctx)
	return mapError(err)
}

func (s *sqlStore) IngredientByName(ctx context.Context, name string) (*models.Ingredient, error) {
	ing := new(models.Ingredient)
	if err := s.db.NewSelect().Model(ing).Where("name = ?", name).Limit(1).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return ing, nil
}

// Recipes

func (s *sqlStore) CreateRecipe(ctx context.Context, r *models.Recipe) error {
	if _, err := s.db.NewInsert().Model(r).Exec(ctx); err != nil {
		return mapError(err)
	}
	if len(r.Ingredients) == 0 {
		return nil
	}
	links := make([]models.RecipeIngredient, 0, len(r.Ingredients))
	for i, ing := range r.Ingredients {
		links = append(links, models.RecipeIngredient{RecipeID: r.ID, IngredientID: ing.ID, Position: i})
	}
	_, err := s.db.NewInsert().Model(&links).Exec(ctx)
	return mapError(err)
}

func (s *sqlStore) RecipeByID(ctx context.Context, id string) (*models.Recipe, error) {
	recipes := make([]models.Recipe, 0, 1)
	if err := s.db.NewSelect().Model(&recipes).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	if len(recipes) == 0 {
		return nil, ErrNotFound
	}
	if err := s.loadIngredients(ctx, recipes); err != nil {
		return nil, err
	}
	return &recipes[0], nil
}

func (s *sqlStore) AddRating(ctx context.Context, id string, rating int) error {
	// Both SET expressions read the row as it was before the update.
	res, err := s.db.NewUpdate().
		Model((*models.Recipe)(nil)).
		Set("rating = (rating * num_of_ratings + ?) / (num_of_ratings + 1)", float64(rating)).
		Set("num_of_ratings = num_of_ratings + 1").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) RecipesByUser(ctx context.Context, userID string) ([]models.Recipe, error) {
	recipes := []models.Recipe{}
	err := s.db.NewSelect().Model(&recipes).
		Where("user_id = ?", userID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return recipes, s.loadIngredients(ctx, recipes)
}

func (s *sqlStore) Recipes(ctx context.Context) ([]models.Recipe, error) {
	recipes := []models.Recipe{}
	if err := s.db.NewSelect().Model(&recipes).OrderExpr("created_at ASC, id ASC").Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return recipes, s.loadIngredients(ctx, recipes)
}

// ingredientLink is one row of recipe_ingredients joined with its ingredient.
type ingredientLink struct {
	RecipeID string `bun:"recipe_id"`
	ID       string `bun:"id"`
	Name     string `bun:"name"`
}

// loadIngredients fills Ingredients of every recipe with one query.
func (s *sqlStore) loadIngredients(ctx context.Context, recipes []models.Recipe) error {
	if len(recipes) == 0 {
		return nil
	}
	ids := make([]string, 0, len(recipes))
	index := make(map[string]int, len(recipes))
	for i := range recipes {
		ids = append(ids, recipes[i].ID)
		index[recipes[i].ID] = i
		recipes[i].Ingredients = []models.Ingredient{}
	}

	var links []ingredientLink
	err := s.db.NewSelect().
		TableExpr("recipe_ingredients AS ri").
		Join("JOIN ingredients AS i ON i.id = ri.ingredient_id").
		ColumnExpr("ri.recipe_id, i.id, i.name").
		Where("ri.recipe_id IN (?)", bun.In(ids)).
		OrderExpr("ri.recipe_id ASC, ri.position ASC").
		Scan(ctx, &links)
	if err != nil {
		return mapError(err)
	}
	for _, l := range links {
		i, ok := index[l.RecipeID]
		if !ok {
			continue
		}
		recipes[i].Ingredients = append(recipes[i].Ingredients, models.Ingredient{ID: l.ID, Name: l.Name})
	}
	return nil
}

// Queries

type ingredientUsageRow struct {
	ID   string `bun:"id"`
	Name string `bun:"name"`
	Uses int    `bun:"uses"`
}

func (s *sqlStore) TopIngredients(ctx context.Context, n int) ([]models.IngredientUsage, error) {
	var rows []ingredientUsageRow
	err := s.db.NewSelect().
		TableExpr("ingredients AS i").
		Join("JOIN recipe_ingredients AS ri ON ri.ingredient_id = i.id").
		ColumnExpr("i.id, i.name, COUNT(DISTINCT ri.recipe_id) AS uses").
		GroupExpr("i.id, i.name").
		OrderExpr("uses DESC, i.name ASC").
		Limit(n).
		Scan(ctx, &rows)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]models.IngredientUsage, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.IngredientUsage{
			Ingredient: models.Ingredient{ID: r.ID, Name: r.Name},
			Uses:       r.Uses,
		})
	}
	return out, nil
}

func (s *sqlStore) IngredientCountBounds(ctx context.Context) (int, int, bool, error) {
	var maxN, minN sql.NullInt64
	err := s.db.NewSelect().
		Model((*models.Recipe)(nil)).
		ColumnExpr("MAX(num_of_ingredients)").
		ColumnExpr("MIN(num_of_ingredients)").
		Scan(ctx, &maxN, &minN)
	if err != nil {
		return 0, 0, false, mapError(err)
	}
	if !maxN.Valid || !minN.Valid {
		return 0, 0, false, nil
	}
	return int(maxN.Int64), int(minN.Int64), true, nil
}

func (s *sqlStore) RecipesWithIngredientCount(ctx context.Context, counts ...int) ([]models.Recipe, error) {
	recipes := []models.Recipe{}
	if len(counts) == 0 {
		return recipes, nil
	}
	err := s.db.NewSelect().Model(&recipes).
		Where("num_of_ingredients IN (?)", bun.In(counts)).
		OrderExpr("num_of_ingredients DESC, name ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return recipes, s.loadIngredients(ctx, recipes)
}

func (s *sqlStore) SearchRecipes(ctx context.Context, f SearchFilter) ([]models.Recipe, error) {
	recipes := []models.Recipe{}
	if f.Empty() {
		return recipes, nil
	}
	err := s.db.NewSelect().Model(&recipes).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			if f.Name != "" {
				q = q.WhereOr("LOWER(r.name) LIKE ? ESCAPE '!'", likePattern(f.Name))
			}
			if f.Text != "" {
				q = q.WhereOr("LOWER(r.preparation) LIKE ? ESCAPE '!'", likePattern(f.Text))
			}
			if len(f.Ingredients) > 0 {
				sub := s.db.NewSelect().
					TableExpr("recipe_ingredients AS ri").
					Join("JOIN ingredients AS i ON i.id = ri.ingredient_id").
					ColumnExpr("ri.recipe_id").
					WhereGroup(" AND ", func(sq *bun.SelectQuery) *bun.SelectQuery {
						for _, term := range f.Ingredients {
							sq = sq.WhereOr("LOWER(i.name) LIKE ? ESCAPE '!'", likePattern(term))
						}
						return sq
					})
				q = q.WhereOr("r.id IN (?)", sub)
			}
			return q
		}).
		OrderExpr("r.name ASC, r.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return recipes, s.loadIngredients(ctx, recipes)
}

// likePattern builds a case-folded "contains" pattern with '!' as the
// escape character, which every supported dialect accepts.
func likePattern(term string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}

// Tokens

func (s *sqlStore) CreateToken(ctx context.Context, t *models.RevokedToken) error {
	_, err := s.db.NewInsert().Model(t).Exec(ctx)
	return mapError(err)
}

func (s *sqlStore) TokenByJTI(ctx context.Context, jti string) (*models.RevokedToken, error) {
	t := new(models.RevokedToken)
	if err := s.db.NewSelect().Model(t).Where("jti = ?", jti).Limit(1).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return t, nil
}

func (s *sqlStore) RevokeToken(ctx context.Context, jti string) error {
	res, err := s.db.NewUpdate().
		Model((*models.RevokedToken)(nil)).
		Set("revoked = ?", true).
		Where("jti = ?", jti).
		Exec(ctx)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
