package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

func TestSuccess_WritesEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-1")

	Success(c, 0, map[string]int{"unread": 3}, "ok", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got APIResponse[map[string]int]
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Success || got.RequestID != "req-1" || got.Data["unread"] != 3 {
		t.Fatalf("envelope = %+v", got)
	}
}

func TestError_AbortsWithStatus(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	resp := Error[any](c, http.StatusForbidden, "forbidden", map[string]string{"ip": "10.0.0.1"})

	if w.Code != http.StatusForbidden || resp.Status != http.StatusForbidden {
		t.Fatalf("status = %d / %d", w.Code, resp.Status)
	}
	if !c.IsAborted() {
		t.Fatal("context not aborted")
	}
	var got APIResponse[any]
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Success || got.Message != "forbidden" || got.Error == nil {
		t.Fatalf("envelope = %+v", got)
	}
}
