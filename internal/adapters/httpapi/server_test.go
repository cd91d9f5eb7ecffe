package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navisol/internal/core"
	"navisol/pkg/domain"
)

type caller struct {
	id   string
	role domain.Role
}

var (
	admin   = caller{"u-admin", domain.RoleAdmin}
	manager = caller{"u-manager", domain.RoleManager}
	sales   = caller{"u-sales", domain.RoleSales}
	viewer  = caller{"u-viewer", domain.RoleViewer}
	nobody  = caller{}
)

type apiFixture struct {
	t      *testing.T
	router *gin.Engine
}

func newFixture(t *testing.T, opts Options) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	require.NoError(t, err)
	svc := core.NewInMemoryService(nil, core.WithMetricsRecorder(metrics))
	if opts.Gatherer == nil {
		opts.Gatherer = reg
	}
	return &apiFixture{t: t, router: NewRouter(svc, opts)}
}

func (f *apiFixture) do(method, path string, who caller, body any, header ...string) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who.id != "" {
		req.Header.Set(HeaderActorID, who.id)
		req.Header.Set(HeaderActorRole, string(who.role))
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// approvedVersion creates a library entity with one approved version over HTTP.
func (f *apiFixture) approvedVersion(kind domain.LibraryKind, key string, docType domain.DocumentType, payload string) domain.LibraryEntity {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/v1/library/entities", admin, libraryEntityBody{Kind: kind, Key: key, Name: key, DocumentType: docType})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	entity := decode[domain.LibraryEntity](f.t, rec)

	rec = f.do(http.MethodPost, "/api/v1/library/entities/"+entity.ID+"/versions", admin, libraryVersionBody{Payload: json.RawMessage(payload)})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	version := decode[domain.LibraryVersion](f.t, rec)

	rec = f.do(http.MethodPost, "/api/v1/library/versions/"+version.ID+"/approve", admin, nil)
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
	return entity
}

// quotedProject creates a project with a draft quote and returns it.
func (f *apiFixture) quotedProject() domain.Project {
	f.t.Helper()
	model := f.approvedVersion(domain.LibraryBoatModel, "EAGLE-28", "", `{"length_m":8.5}`)
	catalog := f.approvedVersion(domain.LibraryCatalog, "MAIN", "", `{"articles":{}}`)
	rec := f.do(http.MethodPost, "/api/v1/projects", sales, createProjectBody{
		Title:   "Eagle 28 for Jansen",
		Type:    domain.ProjectTypeNewBuild,
		Library: domain.LibraryRefs{BoatModelID: model.ID, CatalogID: catalog.ID},
		Configuration: domain.Configuration{Items: []domain.ConfigItem{
			{Code: "HULL", Description: "Hull", Quantity: 1, UnitPrice: 8_000_000, BOMRelevant: true},
		}},
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	project := decode[domain.Project](f.t, rec)
	assert.Equal(f.t, "/api/v1/projects/"+project.ID, rec.Header().Get("Location"))

	rec = f.do(http.MethodPost, "/api/v1/projects/"+project.ID+"/quotes", sales, quoteBody{Notes: "first offer"})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	return project
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, Options{Version: "4.0.0"})

	rec := f.do(http.MethodGet, "/healthz", nobody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[healthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "4.0.0", health.Version)

	rec = f.do(http.MethodPost, "/api/v1/clients", sales, clientBody{Name: "Jansen"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = f.do(http.MethodGet, "/metrics", nobody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "navisol_service_operations_total")
}

func TestHealthReportsReadinessFailure(t *testing.T) {
	f := newFixture(t, Options{Ready: func(context.Context) error { return errors.New("redis down") }})
	rec := f.do(http.MethodGet, "/healthz", nobody, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "redis down", decode[healthResponse](t, rec).Error)
}

func TestMutationsRequireActor(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(http.MethodPost, "/api/v1/projects", nobody, createProjectBody{Title: "x"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthenticated", decode[errorBody](t, rec).Error.Kind)
}

func TestProjectWorkflowOverHTTP(t *testing.T) {
	f := newFixture(t, Options{})
	project := f.quotedProject()
	base := "/api/v1/projects/" + project.ID

	rec := f.do(http.MethodGet, base, viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = f.do(http.MethodPost, base+"/transitions", sales, transitionBody{Target: "quoted"}, "If-Match", etag)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quoted := decode[domain.Project](t, rec)
	assert.Equal(t, domain.StatusQuoted, quoted.Status)

	t.Run("stale If-Match is a precondition failure", func(t *testing.T) {
		rec := f.do(http.MethodPost, base+"/transitions", sales, transitionBody{Target: domain.StatusOfferSent}, "If-Match", etag)
		require.Equal(t, http.StatusPreconditionFailed, rec.Code, rec.Body.String())
		assert.Equal(t, string(domain.KindConcurrencyConflict), decode[errorBody](t, rec).Error.Kind)
	})

	t.Run("malformed If-Match", func(t *testing.T) {
		rec := f.do(http.MethodPost, base+"/transitions", sales, transitionBody{Target: domain.StatusOfferSent}, "If-Match", "abc")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("viewer is forbidden", func(t *testing.T) {
		rec := f.do(http.MethodPost, base+"/transitions", viewer, transitionBody{Target: domain.StatusOfferSent})
		require.Equal(t, http.StatusForbidden, rec.Code)
		body := decode[errorBody](t, rec)
		assert.Equal(t, string(domain.KindAuthorization), body.Error.Kind)
		assert.Equal(t, "actor.role", body.Error.Field)
	})

	t.Run("skipping a state is a conflict", func(t *testing.T) {
		rec := f.do(http.MethodPost, base+"/transitions", manager, transitionBody{Target: domain.StatusInProduction})
		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, string(domain.KindInvalidTransition), decode[errorBody](t, rec).Error.Kind)
	})

	rec = f.do(http.MethodPost, base+"/transitions", sales, transitionBody{Target: domain.StatusOfferSent}, "If-Match", rec.Header().Get("ETag"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sent := decode[domain.Project](t, rec)
	require.Len(t, sent.Quotes, 1)
	require.NotNil(t, sent.Quotes[0].Document)

	rec = f.do(http.MethodGet, "/api/v1/documents/"+sent.Quotes[0].Document.Key, viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Eagle 28 for Jansen")

	rec = f.do(http.MethodGet, "/api/v1/documents/projects/none.json", viewer, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/projects?status=offer_sent", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Projects []domain.Project `json:"projects"`
	}](t, rec)
	require.Len(t, list.Projects, 1)

	rec = f.do(http.MethodGet, "/api/v1/audit?entity_id="+project.ID+"&kind=status_transition", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	audit := decode[struct {
		Entries []domain.AuditEntry `json:"entries"`
	}](t, rec)
	assert.Len(t, audit.Entries, 2)

	rec = f.do(http.MethodGet, "/api/v1/audit?limit=-1", viewer, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAmendmentAndUnlockOverHTTP(t *testing.T) {
	f := newFixture(t, Options{})
	project := f.quotedProject()
	base := "/api/v1/projects/" + project.ID
	for _, target := range []domain.ProjectStatus{domain.StatusQuoted, domain.StatusOfferSent, domain.StatusOrderConfirmed} {
		rec := f.do(http.MethodPost, base+"/transitions", manager, transitionBody{Target: target})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := f.do(http.MethodPut, base+"/configuration", sales, domain.Configuration{})
	require.Equal(t, http.StatusLocked, rec.Code, rec.Body.String())

	delta := domain.ConfigurationDelta{Ops: []domain.DeltaOp{{
		Op:   domain.OpAddItem,
		Item: &domain.ConfigItem{Code: "NAV", Description: "Navigation lights", Quantity: 2, UnitPrice: 150_000, BOMRelevant: true},
	}}}
	rec = f.do(http.MethodPost, base+"/amendments", sales, amendmentBody{Type: domain.AmendmentEquipmentAdd, Reason: "owner request", Delta: delta})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	pending := decode[domain.Amendment](t, rec)
	assert.Equal(t, domain.AmendmentPending, pending.Status)

	rec = f.do(http.MethodPost, "/api/v1/amendments/"+pending.ID+"/approve", sales, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(http.MethodPost, "/api/v1/amendments/"+pending.ID+"/approve", manager, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[domain.Amendment](t, rec)
	assert.Equal(t, domain.AmendmentApproved, approved.Status)
	assert.Equal(t, domain.Money(300_000), approved.PriceImpact)

	rec = f.do(http.MethodGet, base+"/history", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, base+"/unlock", manager, reasonBody{Reason: "typo in scope"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.do(http.MethodPost, base+"/unlock", admin, reasonBody{Reason: "typo in scope"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	grant := decode[domain.UnlockGrant](t, rec)
	assert.NotEmpty(t, grant.AuditEntryID)
}

func TestClientsAndValidation(t *testing.T) {
	f := newFixture(t, Options{})
	rec := f.do(http.MethodPost, "/api/v1/clients", sales, clientBody{Name: ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decode[errorBody](t, rec).Error.Field)

	rec = f.do(http.MethodPost, "/api/v1/clients", sales, clientBody{Name: "Jansen", Email: "j@example.com", Country: "NL"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/v1/clients", viewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Jansen")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/clients", bytes.NewBufferString("{"))
	req.Header.Set(HeaderActorID, sales.id)
	req.Header.Set(HeaderActorRole, string(sales.role))
	bad := httptest.NewRecorder()
	f.router.ServeHTTP(bad, req)
	require.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Options{AllowedOrigins: []string{"https://yard.example"}})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/projects", nil)
	req.Header.Set("Origin", "https://yard.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", HeaderActorID)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://yard.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusMapping(t *testing.T) {
	cases := map[domain.ErrorKind]int{
		domain.KindValidation:                      http.StatusBadRequest,
		domain.KindAuthorization:                   http.StatusForbidden,
		domain.KindNotFound:                        http.StatusNotFound,
		domain.KindConcurrencyConflict:             http.StatusPreconditionFailed,
		domain.KindLocked:                          http.StatusLocked,
		domain.KindAmendmentChain:                  http.StatusConflict,
		domain.KindIncompleteMilestonePrecondition: http.StatusUnprocessableEntity,
		domain.KindUnapprovedLibraryVersion:        http.StatusUnprocessableEntity,
		domain.KindWorkflow:                        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), kind)
	}
}

func TestDebugVarsOnlyWhenEnabled(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/debug/vars", nobody, nil).Code)

	f = newFixture(t, Options{DebugVars: true})
	rec := f.do(http.MethodGet, "/debug/vars", nobody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "memstats")
}

func TestRateLimitPerCaller(t *testing.T) {
	f := newFixture(t, Options{RateLimit: 0.001, RateBurst: 2})
	for range 2 {
		require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/clients", sales, nil).Code)
	}
	rec := f.do(http.MethodGet, "/api/v1/clients", sales, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "RateLimited", decode[errorBody](t, rec).Error.Kind)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/clients", viewer, nil).Code, "other callers keep their own budget")
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", sales, nil).Code, "health is not limited")
}
