package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"navisol/internal/core"
	"navisol/pkg/domain"
)

func (h *Handler) registerLibrary(api *gin.RouterGroup) {
	lib := api.Group("/library")
	lib.POST("/entities", h.createLibraryEntity)
	lib.GET("/entities", h.listLibraryEntities)
	lib.GET("/entities/:id", h.getLibraryEntity)
	lib.GET("/entities/:id/versions", h.listLibraryVersions)
	lib.POST("/entities/:id/versions", h.createLibraryVersion)
	lib.GET("/versions/:id", h.getLibraryVersion)
	lib.PUT("/versions/:id", h.updateLibraryVersion)
	lib.POST("/versions/:id/approve", h.approveLibraryVersion)
	lib.POST("/versions/:id/deprecate", h.deprecateLibraryVersion)
}

type libraryEntityBody struct {
	Kind         domain.LibraryKind  `json:"kind"`
	Key          string              `json:"key"`
	Name         string              `json:"name"`
	DocumentType domain.DocumentType `json:"document_type"`
}

func (h *Handler) createLibraryEntity(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var body libraryEntityBody
	if !bind(c, &body) {
		return
	}
	entity, err := h.svc.CreateLibraryEntity(c.Request.Context(), core.LibraryEntityRequest{
		Kind:         body.Kind,
		Key:          body.Key,
		Name:         body.Name,
		DocumentType: body.DocumentType,
	}, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entity)
}

func (h *Handler) listLibraryEntities(c *gin.Context) {
	entities, err := h.svc.ListLibraryEntities(c.Request.Context(), domain.LibraryKind(strings.ToUpper(c.Query("kind"))))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities})
}

func (h *Handler) getLibraryEntity(c *gin.Context) {
	entity, err := h.svc.GetLibraryEntity(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entity)
}

func (h *Handler) listLibraryVersions(c *gin.Context) {
	versions, err := h.svc.ListLibraryVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

type libraryVersionBody struct {
	Payload json.RawMessage `json:"payload"`
	Notes   string          `json:"notes"`
}

func (h *Handler) createLibraryVersion(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var body libraryVersionBody
	if !bind(c, &body) {
		return
	}
	version, err := h.svc.CreateLibraryVersion(c.Request.Context(), c.Param("id"), body.Payload, body.Notes, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, version)
}

func (h *Handler) getLibraryVersion(c *gin.Context) {
	version, err := h.svc.GetLibraryVersion(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (h *Handler) updateLibraryVersion(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var body libraryVersionBody
	if !bind(c, &body) {
		return
	}
	version, err := h.svc.UpdateDraftVersion(c.Request.Context(), c.Param("id"), body.Payload, body.Notes, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (h *Handler) approveLibraryVersion(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	version, err := h.svc.ApproveLibraryVersion(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

func (h *Handler) deprecateLibraryVersion(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	version, err := h.svc.DeprecateLibraryVersion(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}
