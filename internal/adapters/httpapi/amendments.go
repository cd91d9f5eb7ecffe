package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"navisol/internal/core"
	"navisol/pkg/domain"
)

func (h *Handler) registerAmendments(api *gin.RouterGroup) {
	api.POST("/projects/:id/amendments", h.createAmendment)
	api.POST("/amendments/:id/approve", h.approveAmendment)
	api.POST("/amendments/:id/reject", h.rejectAmendment)
}

type amendmentBody struct {
	Type                     domain.AmendmentType      `json:"type"`
	Reason                   string                    `json:"reason"`
	Delta                    domain.ConfigurationDelta `json:"delta"`
	ExpectedBeforeSnapshotID string                    `json:"expected_before_snapshot_id"`
}

func (h *Handler) createAmendment(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	version, ok := expectedVersion(c)
	if !ok {
		return
	}
	var body amendmentBody
	if !bind(c, &body) {
		return
	}
	a, err := h.svc.CreateAmendment(c.Request.Context(), core.AmendmentRequest{
		ProjectID:                c.Param("id"),
		Type:                     body.Type,
		Reason:                   body.Reason,
		Delta:                    body.Delta,
		Actor:                    actor,
		ExpectedBeforeSnapshotID: body.ExpectedBeforeSnapshotID,
		ExpectedVersion:          version,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	status := http.StatusCreated
	if a.Status == domain.AmendmentPending {
		status = http.StatusAccepted
	}
	c.JSON(status, a)
}

func (h *Handler) approveAmendment(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	a, err := h.svc.ApproveAmendment(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) rejectAmendment(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var body reasonBody
	if !bind(c, &body) {
		return
	}
	a, err := h.svc.RejectAmendment(c.Request.Context(), c.Param("id"), body.Reason, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
