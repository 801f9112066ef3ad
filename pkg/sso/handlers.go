package sso

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fieldline/fieldline/pkg/httputil"
)

const stateCookie = "fieldline_sso_state"

// Handlers exposes the SSO login flow.
type Handlers struct {
	service *Service
}

// NewHandlers creates SSO HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the login and callback endpoints.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/login", h.Login).Methods("GET")
	router.HandleFunc("/callback", h.Callback).Methods("GET")
}

// Login redirects the browser to the upstream identity provider.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.service.LoginURL(state), http.StatusFound)
}

// Callback completes the login and returns a Fieldline access token.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		httputil.WriteBadRequest(w, "Invalid or missing state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "Missing authorization code")
		return
	}

	token, user, err := h.service.Complete(r.Context(), code)
	if err != nil {
		if errors.Is(err, ErrUnknownUser) {
			httputil.WriteForbidden(w, "No account matches this identity")
			return
		}
		httputil.WriteUnauthorized(w, "SSO login failed")
		return
	}

	// Clear the state cookie; it is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	httputil.WriteSuccess(w, map[string]interface{}{
		"token": token,
		"user":  user,
	})
}

func randomState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
