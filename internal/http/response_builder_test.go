package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		JSON(map[string]string{"id": "t1"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got["id"] != "t1" {
		t.Errorf("Body = %s, %v", w.Body.String(), err)
	}
}

func TestResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		TriggerRefresh(EventTransactionsRefresh, EventDashboardRefresh, EventFormReset).
		TriggerSuccessNotification("Movimentação registrada!").
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if trigger == "" {
		t.Fatal("HX-Trigger header not set")
	}

	var events map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trigger), &events); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	for _, name := range []string{"transactions:refresh", "dashboard:refresh", "form:reset", "show-notification"} {
		if _, ok := events[name]; !ok {
			t.Errorf("HX-Trigger missing %q: %s", name, trigger)
		}
	}
	var toast struct {
		Type     string `json:"type"`
		Message  string `json:"message"`
		Duration int    `json:"duration"`
	}
	if err := json.Unmarshal(events["show-notification"], &toast); err != nil {
		t.Fatal(err)
	}
	if toast.Type != "success" || toast.Message != "Movimentação registrada!" || toast.Duration != 3000 {
		t.Errorf("toast = %+v", toast)
	}
}

func TestResponseBuilder_NoContent(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().Status(http.StatusNoContent).JSON(map[string]string{"ignored": "yes"}).Header("X-Custom", "value").Write(w)

	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d with body %q", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("Custom header not set")
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		builder    *ResponseBuilder
		wantStatus int
		wantFields map[string]string
	}{
		{"bad request", BadRequestError("Requisição inválida"), http.StatusBadRequest, nil},
		{"unauthorized", UnauthorizedError("Sessão expirada"), http.StatusUnauthorized, nil},
		{"not found", NotFoundError("Registro não encontrado"), http.StatusNotFound, nil},
		{"conflict", ConflictError("email", "Este e-mail já está cadastrado"), http.StatusConflict, map[string]string{"email": "Este e-mail já está cadastrado"}},
		{"validation", ValidationError("Valor inválido", map[string]string{"amount": "Valor inválido"}), http.StatusUnprocessableEntity, map[string]string{"amount": "Valor inválido"}},
		{"rate limited", TooManyRequestsError("Aguarde"), http.StatusTooManyRequests, nil},
		{"internal", InternalServerError("Erro"), http.StatusInternalServerError, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantStatus {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantStatus)
			}
			var body ErrorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("Body = %q: %v", w.Body.String(), err)
			}
			if body.Error == "" {
				t.Error("error message missing")
			}
			for field, msg := range tt.wantFields {
				if body.Fields[field] != msg {
					t.Errorf("Fields[%s] = %q, want %q", field, body.Fields[field], msg)
				}
			}
			if !strings.Contains(w.Header().Get("HX-Trigger"), `"type":"error"`) {
				t.Errorf("error toast missing: %s", w.Header().Get("HX-Trigger"))
			}
		})
	}
}

func TestUnauthorizedErrorChallenge(t *testing.T) {
	w := httptest.NewRecorder()
	UnauthorizedError("x").Write(w)
	if !strings.HasPrefix(w.Header().Get("WWW-Authenticate"), "Bearer") {
		t.Errorf("WWW-Authenticate = %q", w.Header().Get("WWW-Authenticate"))
	}
}

func TestNotificationTypes(t *testing.T) {
	tests := []struct {
		notifType NotificationType
		want      string
	}{
		{NotificationSuccess, "success"},
		{NotificationError, "error"},
		{NotificationWarning, "warning"},
		{NotificationInfo, "info"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		NewResponse().
			TriggerNotification(tt.notifType, "test", 1000).
			Write(w)

		trigger := w.Header().Get("HX-Trigger")
		if !strings.Contains(trigger, `"type":"`+tt.want+`"`) {
			t.Errorf("Notification type %q not found in trigger: %s", tt.want, trigger)
		}
	}
}
