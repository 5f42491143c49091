package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"attendance.service/internal/core"
	"attendance.service/internal/core/model"
	"github.com/charmbracelet/huh"
	"github.com/pterm/pterm"
)

// renderer prints a status table whenever the controller publishes a new
// snapshot.
type renderer struct {
	mu   sync.Mutex
	last *model.AttendanceSnapshot
}

func newRenderer() *renderer {
	return &renderer{}
}

func (r *renderer) onState(st core.State) {
	if st.Snapshot == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last != nil && r.last.FetchedAt.Equal(st.Snapshot.FetchedAt) {
		return
	}
	r.last = st.Snapshot

	_ = pterm.DefaultTable.WithHasHeader().WithData(statusTable(st.Snapshot)).Render()
	if msg := st.Snapshot.WorklogValidation.Message; msg != "" {
		pterm.Info.Println(msg)
	}
}

func statusTable(snap *model.AttendanceSnapshot) pterm.TableData {
	data := pterm.TableData{{"Session", "Status", "Last action", "Duration", "Actions"}}
	for _, kind := range model.Kinds {
		st := snap.Status(kind)
		last := "-"
		if st.LastActionTime != nil {
			last = st.LastActionTime.Local().Format(time.Kitchen)
		}
		duration := st.WorkingDuration
		if duration == "" {
			duration = "-"
		}
		data = append(data, []string{string(kind), st.Label, last, duration, actions(snap, kind)})
	}
	return data
}

func actions(snap *model.AttendanceSnapshot, kind model.SessionKind) string {
	st := snap.Status(kind)
	if kind.IsWork() && snap.BreakActive() {
		return "blocked by break"
	}
	var out []string
	if st.CanStart {
		out = append(out, "start")
	}
	if st.CanEnd {
		out = append(out, "end")
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ", ")
}

const otherReason = "__other__"

// askReason lets the user pick one of the server's reasons or type one.
func askReason(ctx context.Context, options []model.LateReasonOption) (string, error) {
	var choice string
	if len(options) > 0 {
		opts := make([]huh.Option[string], 0, len(options)+1)
		for _, o := range options {
			opts = append(opts, huh.NewOption(o.Reason, o.Reason))
		}
		opts = append(opts, huh.NewOption("Other...", otherReason))

		sel := huh.NewSelect[string]().
			Title("Why are you late?").
			Options(opts...).
			Value(&choice)
		if err := huh.NewForm(huh.NewGroup(sel)).RunWithContext(ctx); err != nil {
			return "", err
		}
		if choice != otherReason {
			return choice, nil
		}
	}

	var typed string
	input := huh.NewInput().
		Title("Late reason").
		Value(&typed).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("reason required")
			}
			return nil
		})
	if err := huh.NewForm(huh.NewGroup(input)).RunWithContext(ctx); err != nil {
		return "", err
	}
	return typed, nil
}
