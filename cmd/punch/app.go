package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"attendance.service/internal/adapters/attendanceapi"
	"attendance.service/internal/adapters/location"
	"attendance.service/internal/config"
	"attendance.service/internal/core"
	"attendance.service/internal/core/model"
	"attendance.service/internal/ports"
	"attendance.service/pkg/logger"
	"attendance.service/pkg/telemetry"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
)

type session struct {
	ctl      *core.SessionController
	shutdown func(context.Context) error
}

func newApp() *cli.App {
	var sess session

	return &cli.App{
		Name:  "punch",
		Usage: "Punch in and out of office, field and break sessions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Usage: "attendance API base URL", EnvVars: []string{"API_BASE_URL"}},
			&cli.StringFlag{Name: "employee", Aliases: []string{"e"}, Usage: "employee ID", EnvVars: []string{"EMPLOYEE_ID"}},
			&cli.Float64Flag{Name: "lat", Usage: "current latitude"},
			&cli.Float64Flag{Name: "lng", Usage: "current longitude"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "share location without asking"},
		},
		Before: func(c *cli.Context) error {
			return sess.open(c)
		},
		After: func(c *cli.Context) error {
			return sess.close()
		},
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show the current attendance status",
				Action: sess.status,
			},
			{
				Name:      "start",
				Usage:     "Punch in an office or field session",
				ArgsUsage: "<office|field>",
				Flags:     []cli.Flag{reasonFlag},
				Action:    sess.start,
			},
			{
				Name:      "end",
				Usage:     "Punch out of an office or field session",
				ArgsUsage: "<office|field>",
				Action:    sess.end,
			},
			{
				Name:   "break",
				Usage:  "Start or end a break",
				Action: sess.toggleBreak,
			},
			{
				Name:   "emergency",
				Usage:  "Record emergency office attendance",
				Flags:  []cli.Flag{reasonFlag},
				Action: sess.emergency,
			},
		},
	}
}

var reasonFlag = &cli.StringFlag{
	Name:    "reason",
	Aliases: []string{"r"},
	Usage:   "late reason to send if the server asks for one",
}

func (s *session) open(c *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}
	if c.IsSet("api") {
		cfg.APIBaseURL = c.String("api")
	}
	if c.IsSet("employee") {
		cfg.EmployeeID = c.String("employee")
	}
	if c.IsSet("lat") && c.IsSet("lng") {
		lat, lng := c.Float64("lat"), c.Float64("lng")
		cfg.Latitude, cfg.Longitude = &lat, &lng
	}
	if cfg.EmployeeID == "" {
		return errors.New("an employee ID is required (--employee or EMPLOYEE_ID)")
	}

	logger.SetupWriter(cfg.IsLocalDev, os.Stderr)

	s.shutdown, err = telemetry.InitTracer("attendance-punch", cfg.OTelExporter, cfg.OTelEndpoint)
	if err != nil {
		return err
	}

	api := attendanceapi.NewHTTPClient(attendanceapi.Options{
		BaseURL:            cfg.APIBaseURL,
		Token:              cfg.APIToken,
		EmployeeID:         cfg.EmployeeID,
		Timeout:            cfg.RequestTimeout,
		BreakerMaxRequests: cfg.BreakerMaxRequests,
		BreakerInterval:    cfg.BreakerInterval,
		BreakerTimeout:     cfg.BreakerTimeout,
	})

	var loc ports.LocationProvider = location.NewStatic(true, cfg.Latitude, cfg.Longitude)
	if !cfg.LocationPermission && !c.Bool("yes") {
		loc = location.NewConsent(loc, nil)
	}

	s.ctl = core.NewSessionController(api, loc, core.WithLocationTimeout(cfg.LocationTimeout))
	s.ctl.Subscribe(newRenderer().onState)
	return nil
}

func (s *session) close() error {
	if s.ctl != nil {
		s.ctl.Detach()
	}
	if s.shutdown != nil {
		return s.shutdown(context.Background())
	}
	return nil
}

func (s *session) status(c *cli.Context) error {
	_, err := s.ctl.Refresh(c.Context)
	return err
}

func (s *session) start(c *cli.Context) error {
	kind, err := workKind(c)
	if err != nil {
		return err
	}
	if _, err := s.ctl.Refresh(c.Context); err != nil {
		return err
	}
	res, err := s.ctl.RequestStart(c.Context, kind)
	return s.settle(c, res, err)
}

func (s *session) end(c *cli.Context) error {
	kind, err := workKind(c)
	if err != nil {
		return err
	}
	if _, err := s.ctl.Refresh(c.Context); err != nil {
		return err
	}
	res, err := s.ctl.RequestEnd(c.Context, kind)
	return s.settle(c, res, err)
}

func (s *session) toggleBreak(c *cli.Context) error {
	if _, err := s.ctl.Refresh(c.Context); err != nil {
		return err
	}
	res, err := s.ctl.ToggleBreak(c.Context)
	return s.settle(c, res, err)
}

func (s *session) emergency(c *cli.Context) error {
	if _, err := s.ctl.Refresh(c.Context); err != nil {
		return err
	}
	res, err := s.ctl.RequestEmergencyStart(c.Context)
	return s.settle(c, res, err)
}

// settle reports the outcome of an action. A late-reason rejection is
// resolved by asking for a reason and resubmitting.
func (s *session) settle(c *cli.Context, res *model.ActionResult, err error) error {
	var late *model.LateReasonRequiredError
	for errors.As(err, &late) {
		pterm.Warning.Println(late.Error())

		reason := c.String("reason")
		if reason == "" {
			reason, err = askReason(c.Context, late.Options)
			if err != nil {
				s.ctl.CancelPendingAction()
				return fmt.Errorf("punch-in cancelled: %w", err)
			}
		}
		res, err = s.ctl.ResubmitWithReason(c.Context, reason)
		if err != nil && c.String("reason") != "" {
			break
		}
	}
	if err != nil {
		return describe(err)
	}

	pterm.Success.Println(res.Message)
	return nil
}

func workKind(c *cli.Context) (model.SessionKind, error) {
	kind, err := model.ParseSessionKind(c.Args().First())
	if err != nil || !kind.IsWork() {
		return "", fmt.Errorf("expected office or field, got %q", c.Args().First())
	}
	return kind, nil
}

// describe turns controller errors into user-facing messages.
func describe(err error) error {
	var (
		ve *model.ValidationError
		rf *model.RequestFailedError
	)
	switch {
	case errors.Is(err, model.ErrPermissionDenied):
		return errors.New("location permission denied, nothing was sent")
	case errors.Is(err, model.ErrLocationUnavailable):
		return errors.New("could not get your location, nothing was sent")
	case errors.Is(err, model.ErrBusy):
		return errors.New("another attendance request is still running")
	case errors.As(err, &ve):
		return errors.New(ve.Message)
	case errors.As(err, &rf):
		return fmt.Errorf("request failed: %s", rf.Error())
	}
	return err
}
