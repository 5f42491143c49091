package attendanceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"attendance.service/internal/core/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Endpoint paths relative to the base URL.
const (
	StatusPath     = "/attendance/status"
	PunchInPath    = "/attendance/punch-in"
	PunchOutPath   = "/attendance/punch-out"
	BreakStartPath = "/attendance/break/start"
	BreakEndPath   = "/attendance/break/end"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20

// Options configures an HTTPClient.
type Options struct {
	BaseURL    string
	Token      string
	EmployeeID string
	Timeout    time.Duration

	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration

	// Transport overrides the instrumented default transport.
	Transport http.RoundTripper
}

// HTTPClient talks to the attendance REST API.
type HTTPClient struct {
	client     *http.Client
	baseURL    string
	token      string
	employeeID string
	cb         *gobreaker.CircuitBreaker
}

// NewHTTPClient builds a client with a request timeout and a circuit
// breaker. Validation rejections do not count as breaker failures.
func NewHTTPClient(opts Options) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := opts.Transport
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	settings := gobreaker.Settings{
		Name:        "Attendance-API",
		MaxRequests: opts.BreakerMaxRequests,
		Interval:    opts.BreakerInterval,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if failure rate is at least 50% after at least 10 requests
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var ve *model.ValidationError
			return errors.As(err, &ve)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		employeeID: opts.EmployeeID,
		cb:         gobreaker.NewCircuitBreaker(settings),
	}
}

// statusResponse is the wire shape of the fetch-status call.
type statusResponse struct {
	Status struct {
		Office *model.SessionStatus `json:"office"`
		Field  *model.SessionStatus `json:"field"`
		Break  *model.SessionStatus `json:"break"`
	} `json:"status"`
	WorklogValidation model.WorklogValidation `json:"worklog_validation"`
}

// actionResponse is the success shape of every mutating call.
type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// errorResponse is the failure shape; the late-reason fields are only set by
// punch-in.
type errorResponse struct {
	Message           string                   `json:"message"`
	RequireLateReason bool                     `json:"require_late_reason"`
	LateReasons       []model.LateReasonOption `json:"late_reasons"`
}

type punchInPayload struct {
	MovementType        model.SessionKind `json:"movement_type"`
	Latitude            *float64          `json:"latitude,omitempty"`
	Longitude           *float64          `json:"longitude,omitempty"`
	LateReason          string            `json:"late_reason,omitempty"`
	EmergencyAttendance bool              `json:"emergency_attendance,omitempty"`
}

type punchOutPayload struct {
	MovementType model.SessionKind `json:"movement_type"`
	Latitude     *float64          `json:"latitude,omitempty"`
	Longitude    *float64          `json:"longitude,omitempty"`
}

// FetchStatus gets the current attendance snapshot.
func (c *HTTPClient) FetchStatus(ctx context.Context) (*model.AttendanceSnapshot, error) {
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, StatusPath, nil, &resp); err != nil {
		return nil, err
	}

	if resp.Status.Office == nil || resp.Status.Field == nil || resp.Status.Break == nil {
		return nil, &model.RequestFailedError{
			Message: "attendance status response is incomplete",
			Err:     model.ErrMalformedSnapshot,
		}
	}

	return &model.AttendanceSnapshot{
		Office:            *resp.Status.Office,
		Field:             *resp.Status.Field,
		Break:             *resp.Status.Break,
		WorklogValidation: resp.WorklogValidation,
		FetchedAt:         time.Now().UTC(),
	}, nil
}

// PunchIn starts an office or field session.
func (c *HTTPClient) PunchIn(ctx context.Context, req model.PunchInRequest) (*model.ActionResult, error) {
	payload := punchInPayload{
		MovementType:        req.Kind,
		LateReason:          req.Reason,
		EmergencyAttendance: req.Emergency,
	}
	if req.Geo != nil {
		payload.Latitude = &req.Geo.Latitude
		payload.Longitude = &req.Geo.Longitude
	}
	return c.action(ctx, PunchInPath, payload)
}

// PunchOut ends an office or field session.
func (c *HTTPClient) PunchOut(ctx context.Context, req model.PunchOutRequest) (*model.ActionResult, error) {
	payload := punchOutPayload{MovementType: req.Kind}
	if req.Geo != nil {
		payload.Latitude = &req.Geo.Latitude
		payload.Longitude = &req.Geo.Longitude
	}
	return c.action(ctx, PunchOutPath, payload)
}

// Break starts or ends a break. Neither endpoint takes a body.
func (c *HTTPClient) Break(ctx context.Context, dir model.BreakDirection) (*model.ActionResult, error) {
	path := BreakStartPath
	if dir == model.BreakEnd {
		path = BreakEndPath
	}
	return c.action(ctx, path, nil)
}

func (c *HTTPClient) action(ctx context.Context, path string, payload any) (*model.ActionResult, error) {
	var resp actionResponse
	if err := c.do(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &model.ValidationError{Message: fallbackMessage(resp.Message, "request was not accepted")}
	}
	return &model.ActionResult{Message: resp.Message}, nil
}

// do runs one request through the circuit breaker and decodes a 2xx body
// into out.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out any) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, method, path, payload, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &model.RequestFailedError{Message: "attendance service temporarily unavailable", Err: err}
	}
	return err
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return &model.RequestFailedError{Message: "failed to marshal attendance payload", Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &model.RequestFailedError{Message: "failed to create attendance request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.employeeID != "" {
		req.Header.Set("X-Employee-ID", c.employeeID)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.client.Do(req)
	if err != nil {
		return &model.RequestFailedError{Message: "failed to call attendance api", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &model.RequestFailedError{Message: "failed to read attendance response", Err: err}
	}

	log.Ctx(ctx).Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("Attendance API call")

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &model.RequestFailedError{Message: "failed to decode attendance response", Err: err}
		}
		return nil
	}

	return decodeError(resp.StatusCode, raw)
}

// decodeError maps a non-2xx response onto the error taxonomy.
func decodeError(status int, raw []byte) error {
	var er errorResponse
	decoded := json.Unmarshal(raw, &er) == nil

	if status >= 500 || !decoded {
		return &model.RequestFailedError{
			Message: fmt.Sprintf("attendance api returned status %d", status),
			Err:     errors.New(fallbackMessage(er.Message, http.StatusText(status))),
		}
	}

	if status == http.StatusUnprocessableEntity && er.RequireLateReason {
		return &model.LateReasonRequiredError{
			Options: er.LateReasons,
			Message: fallbackMessage(er.Message, "late reason required"),
		}
	}

	return &model.ValidationError{Message: fallbackMessage(er.Message, http.StatusText(status))}
}

func fallbackMessage(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}
