package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-ledger-api/internal/dto"
	"github.com/noah-isme/attendance-ledger-api/internal/models"
	"github.com/noah-isme/attendance-ledger-api/pkg/response"
)

type sessionManager interface {
	Now() time.Time
	Create(ctx context.Context, req dto.CreateSessionRequest) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Deactivate(ctx context.Context, id string) (bool, error)
	SweepExpired(ctx context.Context, now time.Time) ([]string, error)
	ListActive(ctx context.Context) ([]models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
}

// SessionHandler serves the presenter side of the session registry.
type SessionHandler struct {
	service sessionManager
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(svc sessionManager) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Create godoc
// @Summary Open a session
// @Description Opens a check-in session. An active session with the same code is deactivated.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	session, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewSessionView(*session, h.service.Now()))
}

// List godoc
// @Summary List sessions
// @Description Without class_id returns sessions still flagged active; with class_id returns the class history.
// @Tags Sessions
// @Produce json
// @Param class_id query string false "Class ID"
// @Param subject_id query string false "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) List(c *gin.Context) {
	classID := strings.TrimSpace(c.Query("class_id"))
	var (
		sessions []models.Session
		err      error
	)
	if classID == "" {
		sessions, err = h.service.ListActive(c.Request.Context())
	} else {
		sessions, err = h.service.List(c.Request.Context(), models.SessionFilter{
			ClassID:   classID,
			SubjectID: strings.TrimSpace(c.Query("subject_id")),
		})
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	views := dto.NewSessionViews(sessions, h.service.Now())
	response.JSON(c, http.StatusOK, views, map[string]interface{}{"total": len(views)})
}

// Get godoc
// @Summary Get a session
// @Description Returns a session by id in any state.
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewSessionView(*session, h.service.Now()), nil)
}

// Deactivate godoc
// @Summary Deactivate a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sessions/{id}/deactivate [post]
func (h *SessionHandler) Deactivate(c *gin.Context) {
	id := c.Param("id")
	changed, err := h.service.Deactivate(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DeactivateSessionResponse{SessionID: id, Changed: changed}, nil)
}

// Sweep godoc
// @Summary Deactivate expired sessions
// @Tags Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sessions/sweep [post]
func (h *SessionHandler) Sweep(c *gin.Context) {
	now := h.service.Now()
	ids, err := h.service.SweepExpired(c.Request.Context(), now)
	if err != nil {
		response.Error(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	response.JSON(c, http.StatusOK, dto.SweepResponse{Deactivated: ids, SweptAt: now}, nil)
}
