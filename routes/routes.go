// Package routes maps the HTTP API onto the service handlers.
package routes

import (
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"recipebox/auth"
	"recipebox/middleware"
	"recipebox/ratelim"
	"recipebox/recipes"
	"recipebox/search"
	"recipebox/utils"
)

// Deps are the handlers and guards the routes are built from.
type Deps struct {
	Auth      *auth.Handler
	Recipes   *recipes.Handler
	Search    *search.Handler
	Validator middleware.Validator
	Limiter   *ratelim.RateLimiter
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

// NewRouter registers every route.
func NewRouter(d Deps) *httprouter.Router {
	router := httprouter.New()
	router.GET("/health", Index)
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		utils.SendResponse(w, http.StatusNotFound, "Not found")
	})

	AddAuthRoutes(router, d)
	AddRecipeRoutes(router, d)
	AddSearchRoutes(router, d)
	return router
}

func AddAuthRoutes(router *httprouter.Router, d Deps) {
	authed := middleware.Authenticate(d.Validator)

	router.GET("/api/user/check/:email", d.Auth.Check)
	router.POST("/api/user/register", d.Limiter.Limit(d.Auth.Register))
	router.POST("/api/login", d.Limiter.Limit(d.Auth.Login))
	router.PUT("/api/logout", authed(d.Auth.Logout))
	router.POST("/api/token/refresh", d.Limiter.Limit(d.Auth.Refresh))
}

func AddRecipeRoutes(router *httprouter.Router, d Deps) {
	authed := middleware.Authenticate(d.Validator)

	router.POST("/api/ingredients", authed(d.Recipes.AddIngredient))
	router.POST("/api/recipe", authed(d.Recipes.AddRecipe))
	router.GET("/api/recipe/all", d.Recipes.ListAll)
	router.GET("/api/recipe/user/:userid", authed(d.Recipes.ListByUser))
	router.GET("/api/recipe/id/:id", d.Recipes.Get)
	router.PATCH("/api/rate/:id", d.Limiter.Limit(authed(d.Recipes.Rate)))
}

func AddSearchRoutes(router *httprouter.Router, d Deps) {
	authed := middleware.Authenticate(d.Validator)

	router.GET("/api/ingredients", authed(d.Search.TopIngredients))
	router.GET("/api/recipe/filter", authed(d.Search.FilterExtremes))
	router.GET("/api/recipe/search", authed(d.Search.Search))
}
