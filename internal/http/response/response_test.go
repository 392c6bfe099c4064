package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestEnvelopeShapes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Success(c, gin.H{"ok": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	var ok map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &ok); err != nil {
		t.Fatalf("unmarshal success failed: %v", err)
	}
	if ok["success"] != true || ok["message"] != MsgSuccess {
		t.Fatalf("unexpected success envelope: %v", ok)
	}
	if value, exists := ok["error"]; !exists || value != nil {
		t.Fatalf("error should be present and null, got %v", value)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Set("request_id", "req-9")
	Error(c, CodeConflict, "Already processed")
	if w.Code != http.StatusConflict {
		t.Fatalf("status want 409 got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) != "req-9" {
		t.Fatalf("request id header missing")
	}
	var failed map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &failed); err != nil {
		t.Fatalf("unmarshal error failed: %v", err)
	}
	if failed["success"] != false || failed["error"] != "Already processed" || failed["data"] != nil {
		t.Fatalf("unexpected error envelope: %v", failed)
	}
}

func TestErrorClampsNonErrorStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Error(c, http.StatusOK, "bad")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status want 400 got %d", w.Code)
	}
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	if p.TotalPages != 3 || !p.HasNextPage || !p.HasPrevPage {
		t.Fatalf("unexpected pagination: %+v", p)
	}
	last := NewPagination(3, 10, 25)
	if last.HasNextPage {
		t.Fatalf("last page should not have next page")
	}
	empty := NewPagination(1, 10, 0)
	if empty.TotalPages != 0 || empty.HasNextPage || empty.HasPrevPage {
		t.Fatalf("unexpected empty pagination: %+v", empty)
	}
}
