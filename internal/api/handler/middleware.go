package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"attendance.service/pkg/logger"
	"attendance.service/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Identify reads the employee from X-Employee-ID. When token is non-empty
// the request must also carry it as a bearer token.
func Identify(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
				if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
					writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "Unauthenticated"})
					return
				}
			}

			employeeID := strings.TrimSpace(r.Header.Get("X-Employee-ID"))
			if employeeID == "" {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "X-Employee-ID header is required"})
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("app.employeeId", employeeID))
			ctx := telemetry.WithEmployeeID(r.Context(), employeeID)
			ctx = logger.WithEmployee(ctx, employeeID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
