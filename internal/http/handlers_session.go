package httpx

import (
	"context"
	"net/http"

	domainauth "github.com/parlorchat/parlor/internal/domain/auth"
	"github.com/parlorchat/parlor/internal/service"
)

// SessionService is the coordinator surface the HTTP layer needs.
type SessionService interface {
	State() domainauth.State
	Status() domainauth.Status
	Login(ctx context.Context, email, password string) domainauth.Result
	Register(ctx context.Context, in service.RegisterInput) domainauth.Result
	Logout(ctx context.Context) domainauth.Result
	Watch(ctx context.Context) <-chan domainauth.State
}

var _ SessionService = (*service.SessionCoordinator)(nil)

// SessionHandlers serves the session API.
type SessionHandlers struct {
	Svc SessionService
}

// sessionView is the JSON shape of a state snapshot. Authenticated is null while unknown.
type sessionView struct {
	Status        domainauth.Status       `json:"status"`
	Authenticated *bool                   `json:"authenticated"`
	User          *domainauth.SessionUser `json:"user"`
	Generation    uint64                  `json:"generation"`
}

func newSessionView(s domainauth.State) sessionView {
	v := sessionView{Status: s.Status, User: s.User, Generation: s.Generation}
	if authenticated, known := s.IsAuthenticated(); known {
		v.Authenticated = &authenticated
	}
	return v
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Username   string `json:"username"`
	ProfileURL string `json:"profileUrl"`
}

// Get returns the current session snapshot.
func (h *SessionHandlers) Get(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, newSessionView(h.Svc.State()))
}

// Login signs in with e-mail and password.
func (h *SessionHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	writeResult(w, h.Svc.Login(r.Context(), req.Email, req.Password))
}

// Register creates an account and its profile.
func (h *SessionHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	writeResult(w, h.Svc.Register(r.Context(), service.RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		Username:   req.Username,
		ProfileURL: req.ProfileURL,
	}))
}

// Logout signs the current user out.
func (h *SessionHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.Svc.Logout(r.Context()))
}

// writeResult reports failures as 422 with the classified result body.
func writeResult(w http.ResponseWriter, res domainauth.Result) {
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	WriteJSON(w, status, res)
}
