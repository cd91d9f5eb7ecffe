// Package httpapi exposes the workflow service over HTTP for the UI.
// Callers are identified by X-Actor-Id and X-Actor-Role headers; establishing
// who the caller is belongs to the gateway in front of this API.
package httpapi

import (
	"context"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"navisol/internal/core"
	"navisol/pkg/domain"
)

// Header names understood by the API.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
	HeaderActorName = "X-Actor-Name"
)

const actorKey = "navisol.actor"

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
	Logger   core.Logger
	// Ready is consulted by /healthz in addition to the store.
	Ready   func(context.Context) error
	Version string
	// DebugVars serves expvar's /debug/vars.
	DebugVars bool
	// RateLimit caps API requests per second for each caller. Zero disables
	// limiting; RateBurst defaults to 1.
	RateLimit rate.Limit
	RateBurst int
}

// Handler serves the API.
type Handler struct {
	svc    *core.Service
	logger core.Logger
	ready  func(context.Context) error
	ver    string
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(svc *core.Service, opts Options) *gin.Engine {
	h := &Handler{svc: svc, logger: opts.Logger, ready: opts.Ready, ver: opts.Version}
	if h.logger == nil {
		h.logger = discardLogger{}
	}
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opts.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders:     []string{"Content-Type", "If-Match", HeaderActorID, HeaderActorRole, HeaderActorName},
			ExposeHeaders:    []string{"ETag", "Location", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	if opts.DebugVars {
		r.GET("/debug/vars", gin.WrapH(expvar.Handler()))
	}

	api := r.Group("/api/v1")
	api.Use(readActor())
	if opts.RateLimit > 0 {
		api.Use(newActorLimiter(opts.RateLimit, opts.RateBurst).middleware())
	}
	h.registerProjects(api)
	h.registerAmendments(api)
	h.registerLibrary(api)
	h.registerClients(api)
	h.registerAudit(api)
	return r
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()
	resp := healthResponse{Status: "healthy", Timestamp: time.Now().UTC(), Version: h.ver}
	err := h.svc.Store().View(ctx, func(domain.TransactionView) error { return nil })
	if err == nil && h.ready != nil {
		err = h.ready(ctx)
	}
	if err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// readActor stores the caller from the actor headers. Mutating handlers
// reject requests without one.
func readActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if id != "" {
			c.Set(actorKey, domain.Actor{
				ID:   id,
				Name: strings.TrimSpace(c.GetHeader(HeaderActorName)),
				Role: domain.Role(strings.ToUpper(strings.TrimSpace(c.GetHeader(HeaderActorRole)))),
			})
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: errorDetail{
			Kind:    "Unauthenticated",
			Message: HeaderActorID + " header is required",
		}})
		return domain.Actor{}, false
	}
	return v.(domain.Actor), true
}

// expectedVersion parses If-Match into the optimistic concurrency token.
// A missing header means "no expectation".
func expectedVersion(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	if raw == "" {
		return 0, true
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: errorDetail{
			Kind:    string(domain.KindValidation),
			Field:   "If-Match",
			Message: "If-Match must carry the project version",
		}})
		return 0, false
	}
	return v, true
}

func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: errorDetail{
			Kind:    string(domain.KindValidation),
			Message: "invalid body: " + err.Error(),
		}})
		return false
	}
	return true
}

func writeProject(c *gin.Context, status int, p domain.Project) {
	c.Header("ETag", strconv.Quote(strconv.FormatInt(p.Version, 10)))
	c.JSON(status, p)
}
