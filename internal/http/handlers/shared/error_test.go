package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pluginhub/internal/http/response"
	"github.com/pluginhub/internal/service"

	"github.com/gin-gonic/gin"
)

func respondForTest(err error) (int, map[string]interface{}) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RespondServiceError(c, err)
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w.Code, body
}

func TestRespondServiceErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "wrapped sentinel", err: fmt.Errorf("create: %w", service.ErrUserExists), status: http.StatusBadRequest, message: "User already exists"},
		{name: "otp expired", err: service.ErrOTPExpired, status: http.StatusUnauthorized, message: "OTP expired"},
		{name: "token mismatch", err: service.ErrTokenMismatch, status: http.StatusForbidden, message: "Refresh token mismatch"},
		{name: "provider", err: service.ErrPaymentProvider, status: http.StatusBadGateway, message: "Payment provider request failed"},
		{name: "app error", err: response.WrapError(http.StatusConflict, "Already done", nil), status: http.StatusConflict, message: "Already done"},
		{name: "unknown", err: errors.New("pq: relation missing"), status: http.StatusInternalServerError, message: response.MsgInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := respondForTest(tc.err)
			if status != tc.status {
				t.Fatalf("status want %d got %d", tc.status, status)
			}
			if body["message"] != tc.message {
				t.Fatalf("message want %q got %v", tc.message, body["message"])
			}
		})
	}
}

func TestRespondValidationError(t *testing.T) {
	err := &service.ValidationError{Messages: []string{"Name is required", "Invalid plugin type"}}
	status, body := respondForTest(err)
	if status != http.StatusBadRequest {
		t.Fatalf("status want 400 got %d", status)
	}
	if body["message"] != "Name is required, Invalid plugin type" {
		t.Fatalf("unexpected message %v", body["message"])
	}
}
