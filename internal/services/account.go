package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carteira/internal/core"
	"carteira/internal/identity"
	"carteira/internal/ledger"
)

// Messages shown next to registration and account fields.
const (
	MsgNameTooShort      = "Nome deve ter pelo menos 3 caracteres"
	MsgNameTooLong       = "Nome deve ter no máximo 100 caracteres"
	MsgBirthDateRequired = "Data de nascimento é obrigatória"
	MsgBirthDateInvalid  = "Data de nascimento inválida"
	MsgPhoneInvalid      = "Telefone inválido"
	MsgEmailInvalid      = "E-mail inválido"
	MsgLoginTooShort     = "Login deve ter pelo menos 3 caracteres"
	MsgLoginTooLong      = "Login deve ter no máximo 50 caracteres"
	MsgLoginCharset      = "Login deve conter apenas letras, números e underscore"
	MsgPasswordTooShort  = "Senha deve ter pelo menos 6 caracteres"
	MsgPasswordMismatch  = "As senhas não coincidem"
	MsgFillAllFields     = "Preencha todos os campos"
	MsgEmailTaken        = "Este e-mail já está cadastrado"
	MsgLoginTaken        = "Este login já está em uso"
	MsgDuplicateData     = "Dados duplicados detectados"
)

var loginPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Authenticator is the identity provider as seen by the account flows.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (identity.Session, error)
	SignIn(ctx context.Context, email, password string) (identity.Session, error)
	SignOut(ctx context.Context, token string) error
}

type accountStore interface {
	ledger.UserStore
	ledger.ProfileStore
}

// ConflictError reports a registration value already owned by another account.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Field, e.Message)
}

func (e *ConflictError) Unwrap() error { return ledger.ErrUniqueViolation }

type (
	RegisterInput struct {
		FullName        string `json:"fullName"`
		Email           string `json:"email"`
		Login           string `json:"login"`
		Phone           string `json:"phone"`
		BirthDate       string `json:"birthDate"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}

	AccountInput struct {
		FullName  string `json:"fullName"`
		Phone     string `json:"phone"`
		BirthDate string `json:"birthDate"`
	}

	// ProfileInput holds the raw form amounts. Empty strings clear the value.
	ProfileInput struct {
		MonthlyIncome  string `json:"monthlyIncome"`
		InitialBalance string `json:"initialBalance"`
	}

	Registration struct {
		Session identity.Session `json:"session"`
		User    core.User        `json:"user"`
	}
)

type AccountService struct {
	auth        Authenticator
	store       accountStore
	invalidator Invalidator
	now         func() time.Time
}

func NewAccountService(auth Authenticator, store accountStore, invalidator Invalidator) *AccountService {
	return &AccountService{
		auth:        auth,
		store:       store,
		invalidator: orNop(invalidator),
		now:         time.Now,
	}
}

// Register validates the sign-up form, creates the identity and stores the
// user with an empty financial profile. A collision on the user record after
// the identity exists is reported as is; the identity is not rolled back.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Login = strings.TrimSpace(in.Login)
	in.Phone = strings.TrimSpace(in.Phone)

	fe := core.FieldErrors{}
	validateFullName(fe, in.FullName)
	birth := validateBirthDate(fe, in.BirthDate)
	validatePhone(fe, in.Phone)
	if a, err := mail.ParseAddress(in.Email); err != nil || a.Address != in.Email || len(in.Email) > 255 {
		fe.Set("email", MsgEmailInvalid)
	}
	switch n := utf8.RuneCountInString(in.Login); {
	case n < 3:
		fe.Set("login", MsgLoginTooShort)
	case n > 50:
		fe.Set("login", MsgLoginTooLong)
	case !loginPattern.MatchString(in.Login):
		fe.Set("login", MsgLoginCharset)
	}
	if len(in.Password) < identity.MinPasswordLength {
		fe.Set("password", MsgPasswordTooShort)
	}
	if in.Password != in.ConfirmPassword {
		fe.Set("confirmPassword", MsgPasswordMismatch)
	}
	if err := fe.Err(); err != nil {
		return Registration{}, err
	}

	session, err := s.auth.SignUp(ctx, in.Email, in.Password)
	if errors.Is(err, identity.ErrEmailTaken) {
		return Registration{}, &ConflictError{Field: "email", Message: MsgEmailTaken}
	}
	if err != nil {
		return Registration{}, fmt.Errorf("sign up: %w", err)
	}

	user := core.User{
		ID:        session.UserID,
		FullName:  in.FullName,
		Login:     in.Login,
		Email:     session.Email,
		Phone:     in.Phone,
		BirthDate: birth,
		Active:    true,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		var ue *ledger.UniqueError
		if errors.As(err, &ue) {
			slog.WarnContext(ctx, "Registration collided with existing user",
				"user_id", user.ID, "field", ue.Field)
			return Registration{}, uniqueConflict(ue.Field)
		}
		return Registration{}, fmt.Errorf("create user: %w", err)
	}

	profile := core.FinancialProfile{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		MonthlyIncome:     decimal.NewNullDecimal(decimal.Zero),
		InitialBalance:    decimal.NewNullDecimal(decimal.Zero),
		DefaultClosingDay: 1,
		UpdatedAt:         user.CreatedAt,
	}
	if err := s.store.CreateProfile(ctx, profile); err != nil {
		return Registration{}, fmt.Errorf("create financial profile: %w", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", user.ID, "login", user.Login)
	return Registration{Session: session, User: user}, nil
}

func uniqueConflict(field string) *ConflictError {
	switch field {
	case "login":
		return &ConflictError{Field: "login", Message: MsgLoginTaken}
	case "email":
		return &ConflictError{Field: "email", Message: MsgEmailTaken}
	default:
		return &ConflictError{Field: field, Message: MsgDuplicateData}
	}
}

func (s *AccountService) Login(ctx context.Context, email, password string) (identity.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		fe := core.FieldErrors{}
		fe.Set("form", MsgFillAllFields)
		return identity.Session{}, fe
	}
	return s.auth.SignIn(ctx, email, password)
}

func (s *AccountService) Logout(ctx context.Context, userID, token string) error {
	if err := s.auth.SignOut(ctx, token); err != nil {
		return err
	}
	s.invalidator.Invalidate(userID)
	return nil
}

func (s *AccountService) Me(ctx context.Context, userID string) (core.User, error) {
	return s.store.User(ctx, userID)
}

// UpdateAccount changes the personal data of the account. Login and email
// are fixed after registration.
func (s *AccountService) UpdateAccount(ctx context.Context, userID string, in AccountInput) (core.User, error) {
	user, err := s.store.User(ctx, userID)
	if err != nil {
		return core.User{}, err
	}

	fe := core.FieldErrors{}
	name := strings.TrimSpace(in.FullName)
	validateFullName(fe, name)
	phone := strings.TrimSpace(in.Phone)
	if phone != "" {
		validatePhone(fe, phone)
	}
	var birth core.Date
	if strings.TrimSpace(in.BirthDate) != "" {
		birth = validateBirthDate(fe, in.BirthDate)
	}
	if err := fe.Err(); err != nil {
		return core.User{}, err
	}

	user.FullName, user.Phone, user.BirthDate = name, phone, birth
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return core.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// Profile returns the user's financial profile, or an unsaved default one
// when the user has none yet.
func (s *AccountService) Profile(ctx context.Context, userID string) (core.FinancialProfile, error) {
	p, err := s.store.ProfileByUser(ctx, userID)
	if errors.Is(err, ledger.ErrNotFound) {
		return core.FinancialProfile{UserID: userID, DefaultClosingDay: 1}, nil
	}
	return p, err
}

func (s *AccountService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (core.FinancialProfile, error) {
	fe := core.FieldErrors{}
	income := parseOptionalAmount(fe, "monthlyIncome", in.MonthlyIncome)
	balance := parseOptionalAmount(fe, "initialBalance", in.InitialBalance)
	if err := fe.Err(); err != nil {
		return core.FinancialProfile{}, err
	}

	return s.saveProfile(ctx, userID, func(p *core.FinancialProfile) {
		p.MonthlyIncome = income
		p.InitialBalance = balance
	})
}

// SetDefaultClosingDay stores the closing day suggested for new bills,
// clamped to 1..31.
func (s *AccountService) SetDefaultClosingDay(ctx context.Context, userID string, day int) (core.FinancialProfile, error) {
	day = min(max(day, 1), 31)
	return s.saveProfile(ctx, userID, func(p *core.FinancialProfile) {
		p.DefaultClosingDay = day
	})
}

func (s *AccountService) saveProfile(ctx context.Context, userID string, change func(*core.FinancialProfile)) (core.FinancialProfile, error) {
	p, err := s.store.ProfileByUser(ctx, userID)
	exists := err == nil
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		p = core.FinancialProfile{ID: uuid.NewString(), UserID: userID, DefaultClosingDay: 1}
	case err != nil:
		return core.FinancialProfile{}, fmt.Errorf("load profile: %w", err)
	}

	change(&p)
	p.UpdatedAt = s.now().UTC()
	if err := p.Validate(); err != nil {
		return core.FinancialProfile{}, err
	}

	if exists {
		err = s.store.UpdateProfile(ctx, p)
	} else {
		err = s.store.CreateProfile(ctx, p)
	}
	if err != nil {
		return core.FinancialProfile{}, fmt.Errorf("save profile: %w", err)
	}
	s.invalidator.Invalidate(userID)
	return p, nil
}

func validateFullName(fe core.FieldErrors, name string) {
	switch n := utf8.RuneCountInString(name); {
	case n < 3:
		fe.Set("fullName", MsgNameTooShort)
	case n > 100:
		fe.Set("fullName", MsgNameTooLong)
	}
}

func validatePhone(fe core.FieldErrors, phone string) {
	if n := len(phone); n < 10 || n > 20 {
		fe.Set("phone", MsgPhoneInvalid)
	}
}

func validateBirthDate(fe core.FieldErrors, s string) core.Date {
	if strings.TrimSpace(s) == "" {
		fe.Set("birthDate", MsgBirthDateRequired)
		return core.Date{}
	}
	d, err := core.ParseDate(s)
	if err != nil {
		fe.Set("birthDate", MsgBirthDateInvalid)
	}
	return d
}

func parseOptionalAmount(fe core.FieldErrors, field, s string) decimal.NullDecimal {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}
	}
	d, err := core.ParseBalance(s)
	if err != nil {
		fe.Add(field, err)
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
