package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"navisol/internal/blob"
	"navisol/internal/core"
	"navisol/pkg/domain"
)

func (h *Handler) registerProjects(api *gin.RouterGroup) {
	projects := api.Group("/projects")
	projects.POST("", h.createProject)
	projects.GET("", h.listProjects)
	projects.GET("/:id", h.getProject)
	projects.GET("/:id/history", h.projectHistory)
	projects.POST("/:id/transitions", h.transition)
	projects.PUT("/:id/configuration", h.updateConfiguration)
	projects.POST("/:id/freeze", h.freeze)
	projects.POST("/:id/pins", h.pin)
	projects.POST("/:id/unlock", h.unlock)
	projects.POST("/:id/archive", h.archiveProject)
	projects.POST("/:id/quotes", h.createQuote)
	projects.PUT("/:id/quotes/:quoteID/lines", h.updateQuoteLines)
	projects.POST("/:id/quotes/:quoteID/reject", h.rejectQuote)
	projects.POST("/:id/documents", h.addDocument)
	projects.POST("/:id/documents/:documentID/finalize", h.finalizeDocument)
	projects.PUT("/:id/checklist/:key", h.setChecklistItem)
	api.GET("/documents/*key", h.downloadDocument)
}

type createProjectBody struct {
	Title         string                 `json:"title"`
	Type          domain.ProjectType     `json:"type"`
	ClientID      string                 `json:"client_id"`
	Library       domain.LibraryRefs     `json:"library"`
	Configuration domain.Configuration   `json:"configuration"`
	Checklist     []domain.ChecklistItem `json:"checklist"`
}

func (h *Handler) createProject(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var body createProjectBody
	if !bind(c, &body) {
		return
	}
	p, err := h.svc.CreateProject(c.Request.Context(), core.CreateProjectRequest{
		Title:         body.Title,
		Type:          body.Type,
		ClientID:      body.ClientID,
		Library:       body.Library,
		Configuration: body.Configuration,
		Checklist:     body.Checklist,
	}, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Location", "/api/v1/projects/"+p.ID)
	writeProject(c, http.StatusCreated, p)
}

func (h *Handler) listProjects(c *gin.Context) {
	archived, _ := strconv.ParseBool(c.Query("include_archived"))
	projects, err := h.svc.ListProjects(c.Request.Context(), core.ProjectQuery{
		Status:          domain.ProjectStatus(strings.ToUpper(c.Query("status"))),
		ClientID:        c.Query("client_id"),
		IncludeArchived: archived,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *Handler) getProject(c *gin.Context) {
	p, err := h.svc.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeProject(c, http.StatusOK, p)
}

func (h *Handler) projectHistory(c *gin.Context) {
	history, err := h.svc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

type transitionBody struct {
	Target  domain.ProjectStatus `json:"target"`
	Context map[string]string    `json:"context"`
}

func (h *Handler) transition(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	version, ok := expectedVersion(c)
	if !ok {
		return
	}
	var body transitionBody
	if !bind(c, &body) {
		return
	}
	p, err := h.svc.Transition(c.Request.Context(), core.TransitionRequest{
		ProjectID:       c.Param("id"),
		Target:          domain.ProjectStatus(strings.ToUpper(string(body.Target))),
		Actor:           actor,
		ExpectedVersion: version,
		Context:         body.Context,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeProject(c, http.StatusOK, p)
}

func (h *Handler) updateConfiguration(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	version, ok := expectedVersion(c)
	if !ok {
		return
	}
	var cfg domain.Configuration
	if !bind(c, &cfg) {
		return
	}
	p, err := h.svc.UpdateConfiguration(c.Request.Context(), c.Param("id"), cfg, version, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeProject(c, http.StatusOK, p)
}

func (h *Handler) freeze(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	snap, err := h.svc.FreezeConfiguration(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (h *Handler) pin(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	pins, err := h.svc.PinLibraryVersions(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, pins)
}

type reasonBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) unlock(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var body reasonBody
	if !bind(c, &body) {
		return
	}
	grant, err := h.svc.EmergencyUnlock(c.Request.Context(), c.Param("id"), body.Reason, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

func (h *Handler) archiveProject(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var body reasonBody
	if !bind(c, &body) {
		return
	}
	p, err := h.svc.ArchiveProject(c.Request.Context(), c.Param("id"), body.Reason, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeProject(c, http.StatusOK, p)
}

type quoteBody struct {
	Lines []domain.QuoteLine `json:"lines"`
	Notes string             `json:"notes"`
}

func (h *Handler) createQuote(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	version, ok := expectedVersion(c)
	if !ok {
		return
	}
	var body quoteBody
	if !bind(c, &body) {
		return
	}
	q, err := h.svc.CreateQuoteVersion(c.Request.Context(), core.QuoteRequest{
		ProjectID:       c.Param("id"),
		Lines:           body.Lines,
		Notes:           body.Notes,
		ExpectedVersion: version,
	}, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (h *Handler) updateQuoteLines(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	version, ok := expectedVersion(c)
	if !ok {
		return
	}
	var body quoteBody
	if !bind(c, &body) {
		return
	}
	q, err := h.svc.UpdateQuoteLines(c.Request.Context(), c.Param("id"), c.Param("quoteID"), body.Lines, version, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) rejectQuote(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	q, err := h.svc.RejectQuote(c.Request.Context(), c.Param("id"), c.Param("quoteID"), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

type documentBody struct {
	Type              domain.DocumentType `json:"type"`
	Title             string              `json:"title"`
	TemplateVersionID string              `json:"template_version_id"`
}

func (h *Handler) addDocument(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var body documentBody
	if !bind(c, &body) {
		return
	}
	doc, err := h.svc.AddComplianceDocument(c.Request.Context(), core.DocumentRequest{
		ProjectID:         c.Param("id"),
		Type:              body.Type,
		Title:             body.Title,
		TemplateVersionID: body.TemplateVersionID,
	}, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) finalizeDocument(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	doc, err := h.svc.FinalizeDocument(c.Request.Context(), c.Param("id"), c.Param("documentID"), actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

type checklistBody struct {
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

func (h *Handler) setChecklistItem(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var body checklistBody
	if !bind(c, &body) {
		return
	}
	item, err := h.svc.SetChecklistItem(c.Request.Context(), c.Param("id"), c.Param("key"), body.Label, body.Done, actor)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// downloadDocument redirects to a signed URL when the blob driver supports
// one and streams the document otherwise.
func (h *Handler) downloadDocument(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	ctx := c.Request.Context()
	store := h.svc.Blobs()
	if store.Driver() == blob.DriverS3 {
		url, err := store.PresignURL(ctx, key, blob.SignedURLOptions{})
		if err == nil {
			c.Redirect(http.StatusTemporaryRedirect, url)
			return
		}
		if !errors.Is(err, blob.ErrUnsupported) {
			h.fail(c, err)
			return
		}
	}
	info, rc, err := store.Get(ctx, key)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer rc.Close()
	c.Header("ETag", strconv.Quote(info.ETag))
	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, info.Size, contentType, rc, nil)
}
