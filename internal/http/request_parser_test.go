package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestBodyParser_JSON(t *testing.T) {
	body := `{"categoryId": "c1", "description": "  Mercado ", "amount": 42.5, "isSubscription": true}`
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if !parser.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}
	if got := parser.Get("categoryId"); got != "c1" {
		t.Errorf("Get(categoryId) = %q", got)
	}
	if got := parser.Get("description"); got != "Mercado" {
		t.Errorf("Get(description) = %q", got)
	}
	if got := parser.Get("amount"); got != "42.5" {
		t.Errorf("Get(amount) = %q", got)
	}
	if ok, err := parser.Bool("isSubscription"); err != nil || !ok {
		t.Errorf("Bool(isSubscription) = %v, %v", ok, err)
	}
	if !parser.Has("amount") || parser.Has("date") {
		t.Error("Has reported the wrong keys")
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	body := "name=Academia&closingDay=10&isSubscription=on&password=+secret+"
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parser.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}
	if got := parser.Get("name"); got != "Academia" {
		t.Errorf("Get(name) = %q", got)
	}
	if n, err := parser.Int("closingDay"); err != nil || n != 10 {
		t.Errorf("Int(closingDay) = %d, %v", n, err)
	}
	if ok, err := parser.Bool("isSubscription"); err != nil || !ok {
		t.Errorf("Bool(isSubscription) = %v, %v", ok, err)
	}
	if got := parser.Password("password"); got != " secret " {
		t.Errorf("Password kept %q", got)
	}
}

func TestRequestBodyParser_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(""))

	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if val := parser.Get("nonexistent"); val != "" {
		t.Errorf("Get('nonexistent') = %q, want empty string", val)
	}
	if n, err := parser.Int("installmentCount"); err != nil || n != 0 {
		t.Errorf("Int on missing key = %d, %v", n, err)
	}
}

func TestRequestBodyParser_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"amount": `},
		{"too large", "name=" + strings.Repeat("a", maxBodyBytes)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))
			if err := NewRequestBodyParser(req).Parse(); err == nil {
				t.Error("expected a parse error")
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("name="+strings.Repeat("a", maxBodyBytes)))
	if err := NewRequestBodyParser(req).Parse(); !errors.Is(err, errBodyTooLarge) {
		t.Errorf("oversized body error = %v", err)
	}
}

func TestRequestBodyParser_BadNumbers(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader("closingDay=dez&active=talvez"))
	parser := NewRequestBodyParser(req)
	if err := parser.Parse(); err != nil {
		t.Fatal(err)
	}
	if _, err := parser.Int("closingDay"); err == nil {
		t.Error("Int accepted a word")
	}
	if _, err := parser.Bool("active"); err == nil {
		t.Error("Bool accepted a word")
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Aluguel", "Aluguel"},
		{"linha\nnova", "linha\nnova"},
		{"nul\x00byte", "nulbyte"},
		{"bell\x07\x7f", "bell"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"/x?limit=5", 5},
		{"/x", 10},
		{"/x?limit=-1", 10},
		{"/x?limit=abc", 10},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.url, nil)
		if got := queryInt(req, "limit", 10); got != tt.want {
			t.Errorf("queryInt(%s) = %d, want %d", tt.url, got, tt.want)
		}
	}
}
