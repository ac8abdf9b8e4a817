package recipes

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"recipebox/apperr"
	"recipebox/models"
	"recipebox/utils"
)

// View is the JSON shape of a recipe in responses.
type View struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Preparation      string   `json:"preparation"`
	Rating           float64  `json:"rating"`
	NumOfRatings     int      `json:"num_of_ratings"`
	NumOfIngredients int      `json:"num_of_ingredients"`
	UserID           string   `json:"user_id"`
	Ingredients      []string `json:"ingredients"`
}

func NewView(r *models.Recipe) View {
	return View{
		ID:               r.ID,
		Name:             r.Name,
		Preparation:      r.Preparation,
		Rating:           r.Rating,
		NumOfRatings:     r.NumOfRatings,
		NumOfIngredients: r.NumOfIngredients,
		UserID:           r.UserID,
		Ingredients:      r.IngredientNames(),
	}
}

func Views(recipes []models.Recipe) []View {
	out := make([]View, 0, len(recipes))
	for i := range recipes {
		out = append(out, NewView(&recipes[i]))
	}
	return out
}

// Handler exposes a Catalog over HTTP. Routes that change data expect the
// caller's id in the request context.
type Handler struct {
	Catalog *Catalog
}

func NewHandler(c *Catalog) *Handler {
	return &Handler{Catalog: c}
}

func (h *Handler) AddIngredient(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in struct {
		Name string `json:"name"`
	}
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithError(w, err)
		return
	}
	ing, err := h.Catalog.AddIngredient(r.Context(), in.Name)
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusCreated, ing)
}

func (h *Handler) AddRecipe(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in RecipeInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithError(w, err)
		return
	}
	rec, err := h.Catalog.AddRecipe(r.Context(), in, utils.GetUserIDFromRequest(r))
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusCreated, utils.M{
		"detail": fmt.Sprintf("%s created successfully", rec.Name),
		"recipe": NewView(rec),
	})
}

// parseRating accepts integers and whole-valued decimals such as 4.0.
func parseRating(n json.Number) (int, error) {
	if v, err := n.Int64(); err == nil {
		return int(v), nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, apperr.Validation("Invalid rating")
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, apperr.Validation("Rating out of range")
	}
	return int(f), nil
}

func (h *Handler) Rate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var in struct {
		Rating json.Number `json:"rating"`
	}
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithError(w, err)
		return
	}
	rating, err := parseRating(in.Rating)
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	rec, err := h.Catalog.Rate(r.Context(), ps.ByName("id"), rating, utils.GetUserIDFromRequest(r))
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, utils.M{
		"detail": fmt.Sprintf("%s rated successfully", rec.Name),
		"recipe": NewView(rec),
	})
}

// ListByUser only lets callers list their own recipes.
func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	userID := ps.ByName("userid")
	if userID != utils.GetUserIDFromRequest(r) {
		utils.RespondWithError(w, apperr.Unauthorized("Unauthorized"))
		return
	}
	recipes, err := h.Catalog.ListByUser(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, Views(recipes))
}

func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	recipes, err := h.Catalog.ListAll(r.Context())
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, Views(recipes))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rec, err := h.Catalog.Get(r.Context(), ps.ByName("id"))
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, NewView(rec))
}
