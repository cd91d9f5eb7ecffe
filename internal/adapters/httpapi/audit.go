package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"navisol/internal/core"
	"navisol/pkg/domain"
)

const defaultAuditLimit = 100

func (h *Handler) registerAudit(api *gin.RouterGroup) {
	api.GET("/audit", h.queryAudit)
}

func (h *Handler) queryAudit(c *gin.Context) {
	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: errorDetail{
				Kind:    string(domain.KindValidation),
				Field:   "limit",
				Message: "limit must be a positive integer",
			}})
			return
		}
		limit = n
	}
	entries, err := h.svc.QueryAudit(c.Request.Context(), core.AuditQuery{
		Kind:       domain.AuditKind(strings.ToUpper(c.Query("kind"))),
		EntityType: domain.EntityType(c.Query("entity_type")),
		EntityID:   c.Query("entity_id"),
		ActorID:    c.Query("actor_id"),
		Limit:      limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
