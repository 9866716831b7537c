package httpapi

import (
	"net/http"
	"time"

	"dayboard/internal/auth"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.auth.Register(r.Context(), in.Username, in.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	u, token, exp, err := a.auth.Login(r.Context(), in.Username, in.Password, a.clients.IP(r), time.Now().UTC())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.auth.SetSessionCookie(w, token, exp)
	writeJSON(w, http.StatusOK, u)
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(a.auth.CookieName()); err == nil {
		if err := a.auth.Logout(r.Context(), c.Value); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	a.auth.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, u)
}

func (a *api) linkTelegram(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.store.SetTelegramChat(r.Context(), owner(r), in.ChatID); err != nil {
		a.fail(w, r, err)
		return
	}
	u, _ := auth.UserFromContext(r.Context())
	u.TelegramChatID = in.ChatID
	writeJSON(w, http.StatusOK, u)
}
