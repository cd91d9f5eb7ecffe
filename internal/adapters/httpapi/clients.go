package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"navisol/internal/core"
)

func (h *Handler) registerClients(api *gin.RouterGroup) {
	api.POST("/clients", h.createClient)
	api.GET("/clients", h.listClients)
	api.PUT("/clients/:id", h.updateClient)
	api.POST("/clients/:id/archive", h.archiveClient)
}

type clientBody struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Country string `json:"country"`
}

func (b clientBody) request() core.ClientRequest {
	return core.ClientRequest{Name: b.Name, Email: b.Email, Country: b.Country}
}

func (h *Handler) createClient(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var body clientBody
	if !bind(c, &body) {
		return
	}
	client, err := h.svc.CreateClient(c.Request.Context(), body.request(), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

func (h *Handler) listClients(c *gin.Context) {
	clients, err := h.svc.ListClients(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

func (h *Handler) updateClient(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var body clientBody
	if !bind(c, &body) {
		return
	}
	client, err := h.svc.UpdateClient(c.Request.Context(), c.Param("id"), body.request(), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (h *Handler) archiveClient(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	client, err := h.svc.ArchiveClient(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}
