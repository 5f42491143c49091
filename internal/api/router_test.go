package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"attendance.service/internal/core"
	"attendance.service/internal/ports/repository"
)

func newTestRouter() http.Handler {
	svc := core.NewPunchService(repository.NewMemoryRepository(), nil, core.PunchRules{
		Location:      time.UTC,
		LateThreshold: 23 * time.Hour,
		PunchInCutoff: 24 * time.Hour,
		LateReasons:   core.NewLateReasonOptions([]string{"Traffic"}),
	})
	return NewRouter(svc, "")
}

func TestRouter_Health(t *testing.T) {
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
}

func TestRouter_Routes(t *testing.T) {
	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/v1/attendance/status", http.StatusOK},
		{http.MethodGet, "/api/v1/attendance/late-reasons", http.StatusOK},
		{http.MethodPost, "/api/v1/attendance/break/end", http.StatusUnprocessableEntity},
		{http.MethodPost, "/api/v1/attendance/status", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/attendance/punch-in", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/v1/attendance/break/start", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/attendance/unknown", http.StatusNotFound},
	}

	r := newTestRouter()
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("X-Employee-ID", "emp-1")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
		})
	}
}

func TestRouter_LateReasons(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/attendance/late-reasons", nil)
	req.Header.Set("X-Employee-ID", "emp-1")
	w := httptest.NewRecorder()
	newTestRouter().ServeHTTP(w, req)

	var body struct {
		LateReasons []struct {
			ID     int    `json:"id"`
			Reason string `json:"reason"`
		} `json:"late_reasons"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.LateReasons) != 1 || body.LateReasons[0].Reason != "Traffic" {
		t.Errorf("unexpected late reasons %+v", body.LateReasons)
	}
}
