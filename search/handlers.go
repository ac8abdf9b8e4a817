package search

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"recipebox/recipes"
	"recipebox/utils"
)

type Handler struct {
	Engine *Engine
}

func NewHandler(e *Engine) *Handler {
	return &Handler{Engine: e}
}

// TopIngredients answers with ingredient names, most used first.
func (h *Handler) TopIngredients(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	top, err := h.Engine.TopIngredients(r.Context(), utils.QueryInt(r, "n", defaultTopN))
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	names := make([]string, 0, len(top))
	for _, u := range top {
		names = append(names, u.Name)
	}
	utils.SendResponse(w, http.StatusOK, names)
}

func (h *Handler) FilterExtremes(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	found, err := h.Engine.FilterExtremes(r.Context())
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, recipes.Views(found))
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	found, err := h.Engine.Search(r.Context(), SearchInput{
		Name:        q.Get("name"),
		Text:        q.Get("text"),
		Ingredients: q.Get("ingredients"),
	})
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, recipes.Views(found))
}
