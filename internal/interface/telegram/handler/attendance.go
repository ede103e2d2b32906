package handler

import (
	"context"
	"errors"

	"github.com/care-attendance/attendance-bot/internal/application/query"
	"github.com/care-attendance/attendance-bot/internal/domain/shared"
	"github.com/care-attendance/attendance-bot/internal/domain/student"
	"github.com/care-attendance/attendance-bot/internal/interface/telegram/presenter"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE HANDLER
// Handles /attendance - current attendance on demand.
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceQuery fetches attendance for a session.
// *query.GetAttendanceHandler satisfies it.
type AttendanceQuery interface {
	Handle(ctx context.Context, q query.GetAttendanceQuery) (*query.GetAttendanceResult, error)
}

// AttendanceHandler handles the /attendance command.
type AttendanceHandler struct {
	query     AttendanceQuery
	presenter *presenter.AttendancePresenter
}

// NewAttendanceHandler creates a new AttendanceHandler.
func NewAttendanceHandler(q AttendanceQuery, p *presenter.AttendancePresenter) *AttendanceHandler {
	if p == nil {
		p = presenter.NewAttendancePresenter()
	}
	return &AttendanceHandler{query: q, presenter: p}
}

// AttendanceRequest contains the parsed /attendance command data.
type AttendanceRequest struct {
	SessionID student.SessionID

	// Progress, when set, receives the interim "fetching" message before the
	// provider is called.
	Progress func(ctx context.Context, text string)
}

// Handle processes the /attendance command. Expected failures become replies;
// only unexpected faults are returned as errors.
func (h *AttendanceHandler) Handle(ctx context.Context, req AttendanceRequest) (*Response, error) {
	q := query.GetAttendanceQuery{SessionID: req.SessionID}
	if req.Progress != nil {
		q.OnFetching = func(ctx context.Context) { req.Progress(ctx, presenter.MsgFetching) }
	}

	res, err := h.query.Handle(ctx, q)
	switch {
	case err == nil:
		return textResponse(h.presenter.FormatAttendance(res)), nil
	case errors.Is(err, query.ErrNotRegistered):
		return errorResponse(presenter.MsgNotRegistered), nil
	case errors.Is(err, query.ErrNoSubjects):
		return errorResponse(presenter.MsgNoSubjects), nil
	case shared.IsDataProvider(err):
		return errorResponse(presenter.MsgFetchFailed), nil
	default:
		return errorResponse(presenter.MsgFetchFailed), err
	}
}
