package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/attendance-ledger-api/internal/models"
	"github.com/noah-isme/attendance-ledger-api/pkg/response"
)

type rosterLister interface {
	ListClasses(ctx context.Context) ([]models.Class, error)
	ListSubjects(ctx context.Context, classID string) ([]models.Subject, error)
	ListParticipants(ctx context.Context, classID string) ([]models.Participant, error)
}

// RosterHandler exposes the read-only class roster.
type RosterHandler struct {
	service rosterLister
}

// NewRosterHandler constructs the handler.
func NewRosterHandler(svc rosterLister) *RosterHandler {
	return &RosterHandler{service: svc}
}

// ListClasses godoc
// @Summary List classes
// @Tags Roster
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /classes [get]
func (h *RosterHandler) ListClasses(c *gin.Context) {
	classes, err := h.service.ListClasses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, map[string]interface{}{"total": len(classes)})
}

// ListSubjects godoc
// @Summary List subjects of a class
// @Tags Roster
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id}/subjects [get]
func (h *RosterHandler) ListSubjects(c *gin.Context) {
	subjects, err := h.service.ListSubjects(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, map[string]interface{}{"total": len(subjects)})
}

// ListParticipants godoc
// @Summary List participants of a class
// @Tags Roster
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id}/participants [get]
func (h *RosterHandler) ListParticipants(c *gin.Context) {
	participants, err := h.service.ListParticipants(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, participants, map[string]interface{}{"total": len(participants)})
}
