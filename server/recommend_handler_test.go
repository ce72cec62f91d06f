package server

import (
	"net/http"
	"strings"
	"testing"
)

func TestRecommendHandler(t *testing.T) {
	s := newTestServer(t)
	token, _ := issueToken(t, "u1")
	body := `{"songs":[{"title":"Teardrop","artist":"Massive Attack"}],"type":"similar"}`

	if rec := s.do(t, http.MethodPost, "/api/recommendations", "", body, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: status = %d, want 401", rec.Code)
	}

	if rec := s.do(t, http.MethodPost, "/api/recommendations", token, `{"songs":[]}`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("no songs: status = %d, want 400", rec.Code)
	}

	// 模型接口不可达
	rec := s.do(t, http.MethodPost, "/api/recommendations", token, body, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"Failed to get recommendations"}` {
		t.Errorf("body = %s", got)
	}
	if strings.Contains(rec.Body.String(), testGeminiKey) {
		t.Error("response leaks the API key")
	}
}
