package auth

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"recipebox/apperr"
	"recipebox/utils"
)

// Handler exposes Credentials and Sessions over HTTP.
type Handler struct {
	Creds    *Credentials
	Sessions *Sessions
}

func NewHandler(creds *Credentials, sessions *Sessions) *Handler {
	return &Handler{Creds: creds, Sessions: sessions}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in RegisterInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithError(w, err)
		return
	}
	u, err := h.Creds.Register(r.Context(), in)
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusCreated, u)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(r, &in); err != nil {
		utils.RespondWithError(w, err)
		return
	}
	if in.Email == "" || in.Password == "" {
		utils.RespondWithError(w, apperr.Validation("Invalid request"))
		return
	}
	pair, err := h.Creds.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, pair)
}

// Logout revokes the access token the request was authenticated with.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := h.Sessions.Logout(r.Context(), utils.BearerToken(r), utils.GetUserIDFromRequest(r)); err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, "Logout successful")
}

// Refresh expects the refresh token as the bearer token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	access, err := h.Sessions.Refresh(r.Context(), utils.BearerToken(r))
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, utils.M{"access_token": access})
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, err := h.Creds.Check(r.Context(), ps.ByName("email"))
	if err != nil {
		utils.RespondWithError(w, err)
		return
	}
	utils.SendResponse(w, http.StatusOK, p)
}
