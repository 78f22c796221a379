package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-ledger-api/internal/dto"
	"github.com/noah-isme/attendance-ledger-api/internal/models"
	"github.com/noah-isme/attendance-ledger-api/pkg/response"
)

type checkInFlow interface {
	Resolve(ctx context.Context, req dto.ResolveRequest) (*dto.ResolveResponse, error)
	CheckIn(ctx context.Context, req dto.CheckInRequest) (*dto.CheckInResponse, error)
}

type recordChecker interface {
	HasRecorded(ctx context.Context, sessionID, participantID string) (bool, error)
}

// CheckInHandler serves the participant side: code resolution and check-in.
type CheckInHandler struct {
	service checkInFlow
	ledger  recordChecker
}

// NewCheckInHandler constructs the handler.
func NewCheckInHandler(svc checkInFlow, ledger recordChecker) *CheckInHandler {
	return &CheckInHandler{service: svc, ledger: ledger}
}

// Resolve godoc
// @Summary Resolve a session code
// @Description Returns the live session for a code with the class roster. Unknown, expired and closed codes all return 404.
// @Tags Check-in
// @Accept json
// @Produce json
// @Param payload body dto.ResolveRequest true "Code"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /checkin/resolve [post]
func (h *CheckInHandler) Resolve(c *gin.Context) {
	var req dto.ResolveRequest
	if !bindJSON(c, &req, "invalid resolve payload") {
		return
	}
	res, err := h.service.Resolve(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// CheckIn godoc
// @Summary Check in to a session
// @Description Records attendance once per participant and session. A repeat returns 200 with outcome already_recorded.
// @Tags Check-in
// @Accept json
// @Produce json
// @Param payload body dto.CheckInRequest true "Check-in payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /checkin [post]
func (h *CheckInHandler) CheckIn(c *gin.Context) {
	var req dto.CheckInRequest
	if !bindJSON(c, &req, "invalid check-in payload") {
		return
	}
	res, err := h.service.CheckIn(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == models.OutcomeAccepted {
		status = http.StatusCreated
	}
	response.JSON(c, status, res, nil)
}

// Status godoc
// @Summary Check whether attendance is recorded
// @Description Advisory lookup; a concurrent check-in may land right after.
// @Tags Check-in
// @Produce json
// @Param session_id query string true "Session ID"
// @Param participant_id query string true "Participant ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/status [get]
func (h *CheckInHandler) Status(c *gin.Context) {
	var query dto.AttendanceStatusQuery
	if !bindQuery(c, &query, "invalid status query") {
		return
	}
	recorded, err := h.ledger.HasRecorded(c.Request.Context(), query.SessionID, query.ParticipantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.AttendanceStatusResponse{
		SessionID:     query.SessionID,
		ParticipantID: query.ParticipantID,
		Recorded:      recorded,
	}, nil)
}
