package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"attendance.service/internal/api/handler"
)

// NewRouter sets up the gorilla/mux router and defines all API routes.
func NewRouter(service handler.AttendanceService, token string) *mux.Router {
	h := handler.AttendanceHandler{
		Service: service,
	}

	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Service is operational."))
	}).Methods(http.MethodGet)

	// Full paths on the root router keep mux's 405 for a wrong method.
	identify := handler.Identify(token)
	attendance := func(path string, fn http.HandlerFunc, method string) {
		r.Handle("/api/v1/attendance"+path, identify(fn)).Methods(method)
	}
	attendance("/status", h.Status, http.MethodGet)
	attendance("/punch-in", h.PunchIn, http.MethodPost)
	attendance("/punch-out", h.PunchOut, http.MethodPost)
	attendance("/break/start", h.StartBreak, http.MethodPost)
	attendance("/break/end", h.EndBreak, http.MethodPost)
	attendance("/late-reasons", h.LateReasons, http.MethodGet)

	return r
}
