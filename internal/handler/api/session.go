package api

import (
	"net/http"

	"github.com/dukerupert/cartcore/internal/handler"
)

type signInRequest struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// SignIn handles POST /session. The drain runs on the synchronizer's
// auth-state loop; progress arrives as cart.merged and cart.updated events.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := handler.DecodeJSON(r, &req); err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}

	if err := h.session.SignIn(req.Token, req.UserID); err != nil {
		handler.JSONErrorResponse(w, r, err)
		return
	}
	handler.JSON(w, http.StatusAccepted, map[string]bool{"authenticated": true})
}

// SignOut handles DELETE /session
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.session.SignOut()
	w.WriteHeader(http.StatusNoContent)
}
