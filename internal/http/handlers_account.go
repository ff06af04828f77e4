package http

import (
	"net/http"
	"time"

	"carteira/internal/core"
	applog "carteira/internal/log"
	"carteira/internal/services"
)

// parseBody reads the request body, answering 400 itself when it cannot.
func parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Unreadable request body",
			applog.FieldError, err, applog.FieldPath, r.URL.Path)
		BadRequestError(MsgInvalidRequest).Write(w)
		return nil, false
	}
	return p, true
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      core.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	in := services.RegisterInput{
		FullName:        p.Get("fullName"),
		Email:           p.Get("email"),
		Login:           p.Get("login"),
		Phone:           p.Get("phone"),
		BirthDate:       p.Get("birthDate"),
		Password:        p.Password("password"),
		ConfirmPassword: p.Password("confirmPassword"),
	}

	reg, err := s.deps.Accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err, applog.OpCreate, "user", "")
		return
	}

	setSessionCookie(w, r, reg.Session)
	NewResponse().
		Status(http.StatusCreated).
		JSON(sessionResponse{Token: reg.Session.Token, ExpiresAt: reg.Session.ExpiresAt, User: reg.User}).
		TriggerRefresh(EventSessionChanged).
		TriggerSuccessNotification("Conta criada com sucesso! Bem-vindo!").
		Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}

	session, err := s.deps.Accounts.Login(r.Context(), p.Get("email"), p.Password("password"))
	if err != nil {
		writeError(w, r, err, "login", "session", "")
		return
	}
	user, err := s.deps.Accounts.Me(r.Context(), session.UserID)
	if err != nil {
		writeError(w, r, err, "login", "user", session.UserID)
		return
	}

	setSessionCookie(w, r, session)
	NewResponse().
		JSON(sessionResponse{Token: session.Token, ExpiresAt: session.ExpiresAt, User: user}).
		TriggerRefresh(EventSessionChanged).
		TriggerSuccessNotification("Login realizado com sucesso!").
		Write(w)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFrom(r.Context())
	if err := s.deps.Accounts.Logout(r.Context(), session.UserID, session.Token); err != nil {
		writeError(w, r, err, "logout", "session", "")
		return
	}
	clearSessionCookie(w, r)
	NewResponse().
		Status(http.StatusNoContent).
		TriggerRefresh(EventSessionChanged).
		Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Accounts.Me(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err, applog.OpRead, "user", "")
		return
	}
	NewResponse().JSON(user).Write(w)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	in := services.AccountInput{
		FullName:  p.Get("fullName"),
		Phone:     p.Get("phone"),
		BirthDate: p.Get("birthDate"),
	}
	user, err := s.deps.Accounts.UpdateAccount(r.Context(), userID(r.Context()), in)
	if err != nil {
		writeError(w, r, err, applog.OpUpdate, "user", "")
		return
	}
	NewResponse().
		JSON(user).
		TriggerRefresh(EventProfileRefresh).
		TriggerSuccessNotification("Dados atualizados com sucesso!").
		Write(w)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.deps.Accounts.Profile(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, r, err, applog.OpRead, "profile", "")
		return
	}
	NewResponse().JSON(profile).Write(w)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	in := services.ProfileInput{
		MonthlyIncome:  p.Get("monthlyIncome"),
		InitialBalance: p.Get("initialBalance"),
	}
	profile, err := s.deps.Accounts.UpdateProfile(r.Context(), userID(r.Context()), in)
	if err != nil {
		writeError(w, r, err, applog.OpUpdate, "profile", "")
		return
	}
	NewResponse().
		JSON(profile).
		TriggerRefresh(EventProfileRefresh, EventDashboardRefresh).
		TriggerSuccessNotification("Perfil financeiro atualizado!").
		Write(w)
}

func (s *Server) handleClosingDay(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	day, err := p.Int("closingDay")
	if err != nil {
		writeError(w, r, core.FieldErrors{"closingDay": core.ErrInvalidClosingDay.Error()}, applog.OpUpdate, "profile", "")
		return
	}
	profile, err := s.deps.Accounts.SetDefaultClosingDay(r.Context(), userID(r.Context()), day)
	if err != nil {
		writeError(w, r, err, applog.OpUpdate, "profile", "")
		return
	}
	NewResponse().
		JSON(profile).
		TriggerRefresh(EventProfileRefresh).
		TriggerSuccessNotification("Data de fechamento padrão atualizada!").
		Write(w)
}
