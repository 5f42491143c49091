package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"attendance.service/internal/core/model"
	"attendance.service/pkg/telemetry"
	"github.com/rs/zerolog/log"
)

// AttendanceService is what the handlers need from the punch service.
type AttendanceService interface {
	Status(ctx context.Context, employeeID string) (*model.AttendanceSnapshot, error)
	PunchIn(ctx context.Context, employeeID string, req model.PunchInRequest) (*model.ActionResult, error)
	PunchOut(ctx context.Context, employeeID string, req model.PunchOutRequest) (*model.ActionResult, error)
	StartBreak(ctx context.Context, employeeID string) (*model.ActionResult, error)
	EndBreak(ctx context.Context, employeeID string) (*model.ActionResult, error)
	LateReasons() []model.LateReasonOption
}

type AttendanceHandler struct {
	Service AttendanceService
}

type StatusResponse struct {
	Status struct {
		Office model.SessionStatus `json:"office"`
		Field  model.SessionStatus `json:"field"`
		Break  model.SessionStatus `json:"break"`
	} `json:"status"`
	WorklogValidation model.WorklogValidation `json:"worklog_validation"`
}

type PunchInRequest struct {
	MovementType        string   `json:"movement_type"`
	Latitude            *float64 `json:"latitude"`
	Longitude           *float64 `json:"longitude"`
	LateReason          string   `json:"late_reason"`
	EmergencyAttendance bool     `json:"emergency_attendance"`
}

type PunchOutRequest struct {
	MovementType string   `json:"movement_type"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Success           bool                     `json:"success"`
	Message           string                   `json:"message"`
	RequireLateReason bool                     `json:"require_late_reason,omitempty"`
	LateReasons       []model.LateReasonOption `json:"late_reasons,omitempty"`
}

func (h *AttendanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Service.Status(r.Context(), employeeID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var resp StatusResponse
	resp.Status.Office = snap.Office
	resp.Status.Field = snap.Field
	resp.Status.Break = snap.Break
	resp.WorklogValidation = snap.WorklogValidation
	writeJSON(w, http.StatusOK, resp)
}

func (h *AttendanceHandler) PunchIn(w http.ResponseWriter, r *http.Request) {
	var req PunchInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid request body"})
		return
	}
	kind, geo, err := parseMovement(req.MovementType, req.Latitude, req.Longitude)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Service.PunchIn(r.Context(), employeeID(r), model.PunchInRequest{
		Kind:      kind,
		Geo:       geo,
		Reason:    req.LateReason,
		Emergency: req.EmergencyAttendance,
	})
	writeAction(w, r, res, err)
}

func (h *AttendanceHandler) PunchOut(w http.ResponseWriter, r *http.Request) {
	var req PunchOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "Invalid request body"})
		return
	}
	kind, geo, err := parseMovement(req.MovementType, req.Latitude, req.Longitude)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Service.PunchOut(r.Context(), employeeID(r), model.PunchOutRequest{Kind: kind, Geo: geo})
	writeAction(w, r, res, err)
}

func (h *AttendanceHandler) StartBreak(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.StartBreak(r.Context(), employeeID(r))
	writeAction(w, r, res, err)
}

func (h *AttendanceHandler) EndBreak(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.EndBreak(r.Context(), employeeID(r))
	writeAction(w, r, res, err)
}

func (h *AttendanceHandler) LateReasons(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"late_reasons": h.Service.LateReasons()})
}

func parseMovement(movement string, lat, lng *float64) (model.SessionKind, *model.Coordinates, error) {
	kind, err := model.ParseSessionKind(movement)
	if err != nil || !kind.IsWork() {
		return "", nil, model.NewValidationError("movement_type must be %q or %q", model.KindOffice, model.KindField)
	}
	if (lat == nil) != (lng == nil) {
		return "", nil, model.NewValidationError("latitude and longitude must be sent together")
	}
	if lat == nil {
		return kind, nil, nil
	}
	if *lat < -90 || *lat > 90 || *lng < -180 || *lng > 180 {
		return "", nil, model.NewValidationError("coordinates out of range")
	}
	return kind, &model.Coordinates{Latitude: *lat, Longitude: *lng}, nil
}

func employeeID(r *http.Request) string {
	return telemetry.GetEmployeeIDFromContext(r.Context())
}

func writeAction(w http.ResponseWriter, r *http.Request, res *model.ActionResult, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Success: true, Message: res.Message})
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		late *model.LateReasonRequiredError
		ve   *model.ValidationError
	)
	switch {
	case errors.As(err, &late):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Message:           late.Error(),
			RequireLateReason: true,
			LateReasons:       late.Options,
		})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Message: ve.Message})
	default:
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Attendance request failed")
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: "Service error processing attendance request"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
