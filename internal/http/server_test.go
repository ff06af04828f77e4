package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"carteira/internal/core"
	"carteira/internal/identity"
	"carteira/internal/ledger/memory"
	applog "carteira/internal/log"
	"carteira/internal/services"
)

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv   *Server
	store *memory.Store
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database is locked") }

func newTestEnv(t *testing.T, configure ...func(*Deps, *Options)) *testEnv {
	t.Helper()
	store := memory.New()
	provider := identity.NewProvider(store, "test-secret-0123456789", time.Hour,
		identity.WithBcryptCost(bcrypt.MinCost), identity.WithClock(func() time.Time { return testNow }))

	dashboard := services.NewDashboardService(store, time.Minute, 100)
	categories := services.NewCategoryService(store, dashboard)
	processor := services.NewRecurringProcessor(store, nil, dashboard)
	deps := Deps{
		Auth:         provider,
		Accounts:     services.NewAccountService(provider, store, dashboard),
		Categories:   categories,
		Transactions: services.NewTransactionService(store, nil, dashboard),
		Loans:        services.NewLoanService(store, dashboard),
		Bills:        services.NewRecurringBillService(store, categories, processor, dashboard),
		Processor:    processor,
		Dashboard:    dashboard,
		Ready:        store,
	}
	opts := Options{
		Logger: applog.New(applog.Config{Output: io.Discard, Level: slog.LevelError}),
		Now:    func() time.Time { return testNow },
	}
	for _, c := range configure {
		c(&deps, &opts)
	}

	srv := NewServer(":0", deps, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	switch {
	case strings.HasPrefix(body, "{"):
		req.Header.Set("Content-Type", "application/json")
	case body != "":
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

// register signs up a fresh account and returns its session token.
func (e *testEnv) register(t *testing.T, login string) string {
	t.Helper()
	body := `{"fullName":"Maria Silva","email":"` + login + `@example.com","login":"` + login +
		`","phone":"11987654321","birthDate":"1990-05-20","password":"segredo1","confirmPassword":"segredo1"}`
	rr := e.do(t, http.MethodPost, "/api/auth/register", body, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp sessionResponse
	decode(t, rr, &resp)
	if resp.Token == "" || resp.User.Login != login {
		t.Fatalf("register response = %+v", resp)
	}
	return resp.Token
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func triggers(t *testing.T, rr *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	h := rr.Header().Get("HX-Trigger")
	if h == "" {
		return nil
	}
	var events map[string]json.RawMessage
	if err := json.Unmarshal([]byte(h), &events); err != nil {
		t.Fatalf("HX-Trigger %q: %v", h, err)
	}
	return events
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing request id", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s: security headers not applied", path)
		}
	}

	down := newTestEnv(t, func(d *Deps, _ *Options) { d.Ready = failingPinger{} })
	if rr := down.do(t, http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with broken store = %d", rr.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "maria")

	rr := env.do(t, http.MethodGet, "/api/me", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("me status=%d", rr.Code)
	}
	var me core.User
	decode(t, rr, &me)
	if me.Email != "maria@example.com" {
		t.Errorf("me = %+v", me)
	}

	// login through a form post, then use the cookie it sets
	rr = env.do(t, http.MethodPost, "/api/auth/login", "email=maria%40example.com&password=segredo1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rr.Code, rr.Body.String())
	}
	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("session cookie = %+v", cookie)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(cookie)
	cr := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(cr, req)
	if cr.Code != http.StatusOK {
		t.Errorf("cookie auth status=%d", cr.Code)
	}

	if rr := env.do(t, http.MethodPost, "/api/auth/logout", "", token); rr.Code != http.StatusNoContent {
		t.Fatalf("logout status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/api/me", "", token); rr.Code != http.StatusUnauthorized {
		t.Errorf("revoked token status=%d", rr.Code)
	}
}

func TestLoginErrors(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "maria")

	tests := []struct {
		name string
		body string
		code int
		msg  string
	}{
		{"wrong password", `{"email":"maria@example.com","password":"errada1"}`, http.StatusUnauthorized, MsgInvalidLogin},
		{"unknown email", `{"email":"ana@example.com","password":"segredo1"}`, http.StatusUnauthorized, MsgInvalidLogin},
		{"empty", `{"email":"","password":""}`, http.StatusUnprocessableEntity, services.MsgFillAllFields},
		{"malformed", `{"email":`, http.StatusBadRequest, MsgInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/auth/login", tt.body, "")
			if rr.Code != tt.code {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.code, rr.Body.String())
			}
			var body ErrorBody
			decode(t, rr, &body)
			if body.Error != tt.msg {
				t.Errorf("error = %q, want %q", body.Error, tt.msg)
			}
		})
	}
}

func TestRegisterConflict(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "maria")

	body := `{"fullName":"Outra Maria","email":"maria@example.com","login":"outra","phone":"11987654321","birthDate":"1990-05-20","password":"segredo1","confirmPassword":"segredo1"}`
	rr := env.do(t, http.MethodPost, "/api/auth/register", body, "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var resp ErrorBody
	decode(t, rr, &resp)
	if resp.Fields["email"] != services.MsgEmailTaken {
		t.Errorf("fields = %v", resp.Fields)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/me"},
		{http.MethodGet, "/api/dashboard"},
		{http.MethodGet, "/api/transactions"},
		{http.MethodPost, "/api/transactions"},
		{http.MethodDelete, "/api/categories/c1"},
		{http.MethodGet, "/api/loans/pending-total"},
		{http.MethodPost, "/api/recurring/process"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rr := env.do(t, rt.method, rt.path, "", "")
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status=%d", rr.Code)
			}
			if rr := env.do(t, rt.method, rt.path, "", "not-a-token"); rr.Code != http.StatusUnauthorized {
				t.Errorf("garbage token status=%d", rr.Code)
			}
		})
	}
}

func TestTransactionsAndDashboard(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "maria")

	rr := env.do(t, http.MethodPost, "/api/categories", "name=Mercado&kind=expense", token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create category status=%d body=%s", rr.Code, rr.Body.String())
	}
	var cat core.Category
	decode(t, rr, &cat)
	if _, ok := triggers(t, rr)[EventCategoriesRefresh]; !ok {
		t.Error("category creation should refresh categories")
	}

	rr = env.do(t, http.MethodPost, "/api/transactions",
		`{"categoryId":"`+cat.ID+`","amount":"150,00","date":"2025-03-10","description":"Feira"}`, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create transaction status=%d body=%s", rr.Code, rr.Body.String())
	}
	var tx core.Transaction
	decode(t, rr, &tx)
	events := triggers(t, rr)
	for _, e := range []string{EventTransactionsRefresh, EventDashboardRefresh, "show-notification"} {
		if _, ok := events[e]; !ok {
			t.Errorf("missing trigger %s in %v", e, events)
		}
	}

	rr = env.do(t, http.MethodGet, "/api/dashboard", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard status=%d", rr.Code)
	}
	var dash dashboardResponse
	decode(t, rr, &dash)
	if !dash.MonthExpense.Equal(decimal.NewFromInt(150)) || !dash.MonthBalance.Equal(decimal.NewFromInt(-150)) {
		t.Errorf("dashboard = %+v", dash)
	}

	rr = env.do(t, http.MethodGet, "/api/dashboard/categories?kind=expense&period=current-month", "", token)
	var amounts []core.CategoryAmount
	decode(t, rr, &amounts)
	if len(amounts) != 1 || amounts[0].Name != "Mercado" {
		t.Errorf("breakdown = %+v", amounts)
	}
	if rr := env.do(t, http.MethodGet, "/api/dashboard/categories?period=decada", "", token); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown period status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/dashboard/recent?limit=1", "", token)
	var recent []core.Transaction
	decode(t, rr, &recent)
	if len(recent) != 1 || recent[0].ID != tx.ID {
		t.Errorf("recent = %+v", recent)
	}

	rr = env.do(t, http.MethodDelete, "/api/categories/"+cat.ID, "", token)
	if rr.Code != http.StatusConflict {
		t.Fatalf("delete used category status=%d", rr.Code)
	}
	var conflict ErrorBody
	decode(t, rr, &conflict)
	if conflict.Error != MsgCategoryInUse {
		t.Errorf("error = %q", conflict.Error)
	}

	if rr := env.do(t, http.MethodDelete, "/api/transactions/"+tx.ID, "", token); rr.Code != http.StatusNoContent {
		t.Fatalf("delete transaction status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/transactions/"+tx.ID, "", token); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status=%d", rr.Code)
	}
	if rr := env.do(t, http.MethodDelete, "/api/categories/"+cat.ID, "", token); rr.Code != http.StatusNoContent {
		t.Errorf("delete unused category status=%d", rr.Code)
	}
}

func TestTransactionValidationIsTranslated(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "maria")

	rr := env.do(t, http.MethodPost, "/api/transactions", `{"categoryId":"","amount":"abc","date":"31/02/2025"}`, token)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d", rr.Code)
	}
	var body ErrorBody
	decode(t, rr, &body)
	want := map[string]string{"amount": "Valor inválido", "date": "Data inválida"}
	for field, msg := range want {
		if body.Fields[field] != msg {
			t.Errorf("Fields[%s] = %q, want %q", field, body.Fields[field], msg)
		}
	}
	if body.Error != MsgCheckFields {
		t.Errorf("error = %q", body.Error)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	maria := env.register(t, "maria")
	joao := env.register(t, "joao")

	rr := env.do(t, http.MethodPost, "/api/loans", `{"name":"Cunhado","amount":"300"}`, maria)
	var loan core.Loan
	decode(t, rr, &loan)

	if rr := env.do(t, http.MethodDelete, "/api/loans/"+loan.ID, "", joao); rr.Code != http.StatusNotFound {
		t.Errorf("foreign delete status=%d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/loans", "", joao)
	var loans []core.Loan
	decode(t, rr, &loans)
	if len(loans) != 0 {
		t.Errorf("joao sees %d loans", len(loans))
	}
}

func TestLoanRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "maria")

	rr := env.do(t, http.MethodPost, "/api/loans", `{"name":"Cunhado","amount":"300","createdDate":"2025-03-01"}`, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create loan status=%d body=%s", rr.Code, rr.Body.String())
	}
	var loan core.Loan
	decode(t, rr, &loan)

	var total struct {
		Total decimal.Decimal `json:"total"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/loans/pending-total", "", token), &total)
	if !total.Total.Equal(decimal.NewFromInt(300)) {
		t.Errorf("pending total = %s", total.Total)
	}

	rr = env.do(t, http.MethodPut, "/api/loans/"+loan.ID+"/status", "status=paid", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status update = %d body=%s", rr.Code, rr.Body.String())
	}
	if rr := env.do(t, http.MethodPut, "/api/loans/"+loan.ID+"/status", "status=perdoado", token); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid status = %d", rr.Code)
	}

	var paid []core.Loan
	decode(t, env.do(t, http.MethodGet, "/api/loans?status=paid&search=cunh", "", token), &paid)
	if len(paid) != 1 {
		t.Errorf("filtered loans = %+v", paid)
	}
	if rr := env.do(t, http.MethodGet, "/api/loans?from=ontem", "", token); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad date filter = %d", rr.Code)
	}
}

func TestRecurringRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "maria")

	rr := env.do(t, http.MethodPost, "/api/recurring",
		"name=Academia&totalAmount=90&categoryName=Sa%C3%BAde&isSubscription=on&startDate=2025-03-01&closingDay=10", token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create bill status=%d body=%s", rr.Code, rr.Body.String())
	}
	var bill core.RecurringBill
	decode(t, rr, &bill)
	if !bill.IsSubscription || bill.CategoryName != "Saúde" {
		t.Errorf("bill = %+v", bill)
	}

	if rr := env.do(t, http.MethodPost, "/api/recurring", "name=X&totalAmount=10&installmentCount=duas", token); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("non-numeric installments = %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/recurring/process", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("process status=%d", rr.Code)
	}
	var res processResponse
	decode(t, rr, &res)
	if res.BillsScanned != 1 {
		t.Errorf("process = %+v", res)
	}

	rr = env.do(t, http.MethodPut, "/api/recurring/"+bill.ID+"/active", `{"active":false}`, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("toggle status=%d body=%s", rr.Code, rr.Body.String())
	}
	var inactive []core.RecurringBill
	decode(t, env.do(t, http.MethodGet, "/api/recurring?status=inactive", "", token), &inactive)
	if len(inactive) != 1 || inactive[0].Active {
		t.Errorf("inactive bills = %+v", inactive)
	}
	if rr := env.do(t, http.MethodPut, "/api/recurring/"+bill.ID+"/active", `{}`, token); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("toggle without value = %d", rr.Code)
	}

	if rr := env.do(t, http.MethodDelete, "/api/recurring/"+bill.ID, "", token); rr.Code != http.StatusNoContent {
		t.Errorf("delete bill status=%d", rr.Code)
	}
}

func TestProfileRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "maria")

	rr := env.do(t, http.MethodPut, "/api/profile", `{"monthlyIncome":"5000","initialBalance":"1200,50"}`, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("profile status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPut, "/api/profile/closing-day", `{"closingDay":40}`, token)
	var profile core.FinancialProfile
	decode(t, rr, &profile)
	if profile.DefaultClosingDay != 31 {
		t.Errorf("closing day = %d, want clamp to 31", profile.DefaultClosingDay)
	}

	var dash dashboardResponse
	decode(t, env.do(t, http.MethodGet, "/api/dashboard", "", token), &dash)
	if !dash.InitialBalance.Equal(decimal.RequireFromString("1200.50")) {
		t.Errorf("dashboard initial balance = %s", dash.InitialBalance)
	}

	rr = env.do(t, http.MethodPut, "/api/me", `{"fullName":"Ma"}`, token)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("short name status=%d", rr.Code)
	}
	var body ErrorBody
	decode(t, rr, &body)
	if body.Fields["fullName"] != services.MsgNameTooShort {
		t.Errorf("fields = %v", body.Fields)
	}
}

func TestWritesAreRateLimited(t *testing.T) {
	env := newTestEnv(t, func(_ *Deps, o *Options) { o.RateLimitPerMinute = 1 })

	login := `{"email":"ninguem@example.com","password":"segredo1"}`
	if rr := env.do(t, http.MethodPost, "/api/auth/login", login, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("first login status=%d", rr.Code)
	}
	rr := env.do(t, http.MethodPost, "/api/auth/login", login, "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second login status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
	var body ErrorBody
	decode(t, rr, &body)
	if body.Error != MsgRateLimited {
		t.Errorf("error = %q", body.Error)
	}

	// reads are not counted
	if rr := env.do(t, http.MethodGet, "/healthz", "", ""); rr.Code != http.StatusOK {
		t.Errorf("healthz after limit = %d", rr.Code)
	}
}

func TestScannerProbesAreBlocked(t *testing.T) {
	env := newTestEnv(t)
	if rr := env.do(t, http.MethodGet, "/wp-admin/setup.php", "", ""); rr.Code != http.StatusNotFound {
		t.Errorf("probe status=%d", rr.Code)
	}
	if env.srv.detector.GetMetrics().BlockedRequests != 1 {
		t.Error("probe not counted as blocked")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.srv.Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := env.srv.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
