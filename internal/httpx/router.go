// Package httpx exposes the console services over HTTP for the browser
// frontend. Routing uses the standard mux with manual path splitting; every
// handler resolves the caller's bearer token and passes it through to the
// deployment service untouched.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quayside/console/internal/domain"
	"github.com/quayside/console/internal/service/dispatch"
	"github.com/quayside/console/internal/service/draft"
	"github.com/quayside/console/internal/service/lifecycle"
	"github.com/quayside/console/internal/service/overview"
	"github.com/quayside/console/internal/service/reconcile"
	"github.com/quayside/console/internal/service/wizard"
	"github.com/quayside/console/internal/validate"
	"github.com/quayside/console/internal/ws"
)

const (
	apiRateLimit    = 120
	submitRateLimit = 10
	rateWindow      = time.Minute

	// Multipart uploads carry the archive plus a small JSON descriptor.
	maxUploadBytes = validate.MaxArchiveSize + 1<<20
)

// ProjectAPI is the slice of the deployment service used for whole-project
// operations.
type ProjectAPI interface {
	DeleteProject(ctx context.Context, token, projectID string) error
}

// Router wires every console endpoint.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	drafts     *draft.Store
	dispatcher dispatch.Service
	lifecycle  *lifecycle.Service
	reconciler *reconcile.Service
	wizard     *wizard.Service
	projects   ProjectAPI
	hub        *ws.Hub
	limiter    RateLimiter
	upgrader   websocket.Upgrader

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

// NewRouter assembles the HTTP surface. limiter may be nil to disable rate
// limiting; hub may be nil to disable streaming.
func NewRouter(
	logger *slog.Logger,
	drafts *draft.Store,
	dispatcher dispatch.Service,
	lc *lifecycle.Service,
	reconciler *reconcile.Service,
	wiz *wizard.Service,
	projects ProjectAPI,
	hub *ws.Hub,
	limiter RateLimiter,
) *Router {
	r := &Router{
		mux:        http.NewServeMux(),
		logger:     logger,
		drafts:     drafts,
		dispatcher: dispatcher,
		lifecycle:  lc,
		reconciler: reconciler,
		wizard:     wiz,
		projects:   projects,
		hub:        hub,
		limiter:    limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	r.initMetrics()
	r.routes()
	return r
}

func (r *Router) routes() {
	r.mux.HandleFunc("/healthz", r.handleHealth)
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/domains/check", r.withRateLimit("domains_check", apiRateLimit, rateWindow, r.handleDomainCheck))
	r.mux.HandleFunc("/projects/", r.withRateLimit("projects", apiRateLimit, rateWindow, r.handleProjects))
	r.mux.HandleFunc("/ws/projects/", r.handleStream)
}

// Handler returns the audited root handler.
func (r *Router) Handler() http.Handler {
	return r.audit(r.mux)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *Router) handleDomainCheck(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	label := req.URL.Query().Get("label")
	check, err := r.dispatcher.CheckDomain(req.Context(), bearerToken(req), label)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// handleProjects dispatches every /projects/{id}/... route by splitting the
// path manually.
func (r *Router) handleProjects(w http.ResponseWriter, req *http.Request) {
	rest := strings.TrimPrefix(req.URL.Path, "/projects/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "project id required")
		return
	}
	projectID := parts[0]

	switch {
	case len(parts) == 1:
		if req.Method == http.MethodDelete {
			r.deleteProject(w, req, projectID)
			return
		}
	case parts[1] == "draft":
		r.handleDraft(w, req, projectID, parts[2:])
		return
	case parts[1] == "resources":
		r.handleResources(w, req, projectID, parts[2:])
		return
	case parts[1] == "overview" && len(parts) == 2:
		if req.Method == http.MethodGet {
			r.getOverview(w, req, projectID)
			return
		}
	case parts[1] == "wizard":
		r.handleWizard(w, req, projectID, parts[2:])
		return
	case parts[1] == "submit" && len(parts) == 2:
		if req.Method == http.MethodPost {
			r.submit(w, req, projectID)
			return
		}
	}
	writeError(w, http.StatusNotFound, "not found")
}

func (r *Router) handleDraft(w http.ResponseWriter, req *http.Request, projectID string, parts []string) {
	switch {
	case len(parts) == 0:
		if req.Method == http.MethodDelete {
			r.drafts.Clear(projectID)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	case parts[0] == "details" && len(parts) == 1:
		if req.Method == http.MethodPut {
			r.putDraftDetails(w, req, projectID)
			return
		}
	case parts[0] == "resources" && len(parts) == 1:
		switch req.Method {
		case http.MethodPost:
			r.addDraftResource(w, req, projectID)
			return
		case http.MethodGet:
			r.listDraftResources(w, projectID)
			return
		}
	case parts[0] == "resources" && len(parts) == 3:
		if req.Method == http.MethodDelete {
			r.removeDraftResource(w, projectID, parts[1], parts[2])
			return
		}
	}
	writeError(w, http.StatusNotFound, "not found")
}

func (r *Router) putDraftDetails(w http.ResponseWriter, req *http.Request, projectID string) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	r.drafts.SetDetails(projectID, body.Name, body.Description)
	name, description := r.drafts.Details(projectID)
	writeJSON(w, http.StatusOK, domain.Project{ID: projectID, Name: name, Description: description})
}

// decodeDraftResource reads a draft descriptor from the request body.
// Archive-backed drafts arrive as multipart with a "resource" JSON field and
// an "archive" part; everything else is plain JSON. Returns false after
// writing the error response.
func (r *Router) decodeDraftResource(w http.ResponseWriter, req *http.Request) (domain.DraftResource, bool) {
	var res domain.DraftResource

	if strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/form-data") {
		req.Body = http.MaxBytesReader(w, req.Body, maxUploadBytes)
		if err := req.ParseMultipartForm(32 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart body")
			return res, false
		}
		if err := json.Unmarshal([]byte(req.FormValue("resource")), &res); err != nil {
			writeError(w, http.StatusBadRequest, "invalid resource descriptor")
			return res, false
		}
		archive, err := readArchivePart(req)
		if err != nil {
			r.writeServiceError(w, err)
			return res, false
		}
		if archive != nil {
			attachArchive(&res, archive)
		}
		return res, true
	}
	if err := json.NewDecoder(req.Body).Decode(&res); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return res, false
	}
	return res, true
}

func (r *Router) addDraftResource(w http.ResponseWriter, req *http.Request, projectID string) {
	res, ok := r.decodeDraftResource(w, req)
	if !ok {
		return
	}
	if err := r.drafts.Add(projectID, res); err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res.Redacted())
}

func readArchivePart(req *http.Request) (*domain.Archive, error) {
	file, header, err := req.FormFile("archive")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, validate.ErrInvalidArchive
	}
	defer file.Close()
	if err := validate.Archive(header.Filename, header.Size); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, validate.ErrInvalidArchive
	}
	return &domain.Archive{Name: header.Filename, Size: header.Size, Content: content}, nil
}

func attachArchive(res *domain.DraftResource, archive *domain.Archive) {
	switch res.Kind {
	case domain.KindDatabase:
		if res.Database != nil {
			res.Database.SeedArchive = archive
		}
	default:
		if res.App != nil {
			res.App.Archive = archive
		}
	}
}

func (r *Router) listDraftResources(w http.ResponseWriter, projectID string) {
	out := make(map[domain.Kind][]domain.DraftResource, len(domain.Kinds))
	for _, kind := range domain.Kinds {
		list := r.drafts.List(projectID, kind)
		for i := range list {
			list[i] = list[i].Redacted()
		}
		out[kind] = list
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) removeDraftResource(w http.ResponseWriter, projectID, kindPart, indexPart string) {
	index, err := strconv.Atoi(indexPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}
	if err := r.drafts.RemoveAt(projectID, domain.Kind(kindPart), index); err != nil {
		r.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleResources(w http.ResponseWriter, req *http.Request, projectID string, parts []string) {
	switch {
	case len(parts) == 0:
		switch req.Method {
		case http.MethodGet:
			r.getResources(w, req, projectID)
			return
		case http.MethodPost:
			r.deployOne(w, req, projectID)
			return
		}
	case len(parts) == 1:
		if req.Method == http.MethodDelete {
			r.lifecycleOp(w, req, projectID, parts[0], domain.OpDelete)
			return
		}
	case len(parts) == 2:
		if req.Method != http.MethodPost {
			break
		}
		switch parts[1] {
		case "start":
			r.lifecycleOp(w, req, projectID, parts[0], domain.OpStart)
			return
		case "stop":
			r.lifecycleOp(w, req, projectID, parts[0], domain.OpStop)
			return
		}
	}
	writeError(w, http.StatusNotFound, "not found")
}

// getResources returns the merged view. With ?refresh=1 the authoritative
// lists are re-fetched first; a failed fetch still yields a view, flagged
// stale, because the known-good data is kept.
func (r *Router) getResources(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.URL.Query().Get("refresh") == "1" {
		if err := r.reconciler.Refresh(req.Context(), bearerToken(req), projectID); err != nil {
			if r.logger != nil {
				r.logger.Warn("refresh on view failed", "project_id", projectID, "error", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, r.reconciler.View(projectID))
}

// deployOne submits a single draft outside the wizard flow. Multipart bodies
// carry the archive alongside the descriptor, same shape as draft staging.
func (r *Router) deployOne(w http.ResponseWriter, req *http.Request, projectID string) {
	res, ok := r.decodeDraftResource(w, req)
	if !ok {
		return
	}

	token := bearerToken(req)
	databases := r.reconciler.Remotes(projectID, domain.KindDatabase)
	deployed, err := r.dispatcher.Deploy(req.Context(), token, projectID, res, databases)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	if err := r.reconciler.RefreshKind(req.Context(), token, projectID, deployed.Kind); err != nil {
		if r.logger != nil {
			r.logger.Warn("refresh after deploy failed", "project_id", projectID, "kind", deployed.Kind, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, deployed.Redacted())
}

func (r *Router) lifecycleOp(w http.ResponseWriter, req *http.Request, projectID, resourceID string, op domain.Operation) {
	token := bearerToken(req)
	var err error
	switch op {
	case domain.OpStart:
		err = r.lifecycle.Start(req.Context(), token, projectID, resourceID)
	case domain.OpStop:
		err = r.lifecycle.Stop(req.Context(), token, projectID, resourceID)
	case domain.OpDelete:
		err = r.lifecycle.Delete(req.Context(), token, projectID, resourceID)
	}
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, r.reconciler.View(projectID))
}

func (r *Router) getOverview(w http.ResponseWriter, req *http.Request, projectID string) {
	if req.URL.Query().Get("refresh") == "1" {
		if err := r.reconciler.Refresh(req.Context(), bearerToken(req), projectID); err != nil {
			if r.logger != nil {
				r.logger.Warn("refresh on overview failed", "project_id", projectID, "error", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, overview.ForProject(r.reconciler.View(projectID)))
}

func (r *Router) handleWizard(w http.ResponseWriter, req *http.Request, projectID string, parts []string) {
	switch {
	case len(parts) == 0:
		if req.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]wizard.Step{"step": r.wizard.Current(projectID)})
			return
		}
	case len(parts) == 1 && req.Method == http.MethodPost:
		switch parts[0] {
		case "next":
			step, err := r.wizard.Next(projectID)
			if err != nil {
				r.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]wizard.Step{"step": step})
			return
		case "back":
			writeJSON(w, http.StatusOK, map[string]wizard.Step{"step": r.wizard.Back(projectID)})
			return
		}
	}
	writeError(w, http.StatusNotFound, "not found")
}

func (r *Router) submit(w http.ResponseWriter, req *http.Request, projectID string) {
	limited := r.withRateLimit("submit", submitRateLimit, rateWindow, func(w http.ResponseWriter, req *http.Request) {
		result, err := r.wizard.Submit(req.Context(), bearerToken(req), projectID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		for i := range result.Deployed {
			result.Deployed[i] = result.Deployed[i].Redacted()
		}
		status := http.StatusOK
		if len(result.Failed) > 0 {
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, result)
	})
	limited(w, req)
}

func (r *Router) deleteProject(w http.ResponseWriter, req *http.Request, projectID string) {
	if err := r.projects.DeleteProject(req.Context(), bearerToken(req), projectID); err != nil {
		r.writeServiceError(w, err)
		return
	}
	r.drafts.Clear(projectID)
	r.reconciler.Forget(projectID)
	w.WriteHeader(http.StatusNoContent)
}

// handleStream upgrades /ws/projects/{id} and subscribes the connection to
// the project's reconciled-view broadcasts. The read loop exists only to
// detect the close.
func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) {
	if r.hub == nil {
		writeError(w, http.StatusNotFound, "streaming disabled")
		return
	}
	projectID := strings.Trim(strings.TrimPrefix(req.URL.Path, "/ws/projects/"), "/")
	if projectID == "" || strings.Contains(projectID, "/") {
		writeError(w, http.StatusNotFound, "project id required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("websocket upgrade failed", "project_id", projectID, "error", err)
		}
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(projectID, client)
	go func() {
		defer func() {
			r.hub.Unregister(projectID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func bearerToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// writeServiceError maps service errors to HTTP statuses. Server-provided
// rejection text is passed through verbatim.
func (r *Router) writeServiceError(w http.ResponseWriter, err error) {
	var deployErr *dispatch.DeploymentError
	switch {
	case errors.Is(err, validate.ErrInvalidArchive),
		errors.Is(err, validate.ErrInvalidImageReference),
		errors.Is(err, validate.ErrInvalidDomainLabel),
		errors.Is(err, domain.ErrInvalidBinding):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, draft.ErrDuplicateName):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, draft.ErrUnknownKind),
		errors.Is(err, draft.ErrMissingName),
		errors.Is(err, draft.ErrIndexRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrOperationInFlight):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrUnknownResource):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrMissingBinding),
		errors.Is(err, dispatch.ErrUnresolvedBinding),
		errors.Is(err, dispatch.ErrMissingSpec):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, dispatch.ErrAvailabilityCheck):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, wizard.ErrStepBlocked):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, wizard.ErrLastStep):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &deployErr):
		writeError(w, http.StatusBadGateway, deployErr.Message)
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
