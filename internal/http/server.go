package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"budgetbook/internal/auth"
	"budgetbook/internal/cache"
	"budgetbook/internal/cashcount"
	applog "budgetbook/internal/log"
	"budgetbook/internal/middleware/ratelimit"
	"budgetbook/internal/middleware/security"
	"budgetbook/internal/middleware/trace"
	"budgetbook/internal/schema"
	"budgetbook/internal/services"
)

const (
	workspaceCacheSize   = 256
	cacheCleanupInterval = 10 * time.Minute
)

// Dependencies are the collaborators of the API server.
type Dependencies struct {
	Store        schema.Store
	Projects     *services.ProjectService
	Transactions *services.TransactionService
	Invitations  *services.InvitationService
	CashCount    cashcount.Store
	Verifier     *auth.Verifier

	// WorkspaceTTL bounds how long a project's schema manager is reused.
	WorkspaceTTL time.Duration
	// InvitationRetention is the age past which cleanup removes invitations.
	InvitationRetention time.Duration
	// Now is the clock used for periods, exports and cash counts.
	Now func() time.Time
}

type Server struct {
	http.Server

	store        schema.Store
	projects     *services.ProjectService
	transactions *services.TransactionService
	invitations  *services.InvitationService
	cash         cashcount.Store
	retention    time.Duration
	now          func() time.Time

	// Schema managers per project, used as the local state of the
	// optimistic settings and category writes.
	workspaceCache *cache.LRUCache[*schema.Manager]
	workspaces     *cache.Loader[*schema.Manager]
	cacheManager   *cache.Manager

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	logger           *applog.Logger
	startedAt        time.Time

	workspaceLookups    int64
	workspaceLoads      int64
	transactionsWritten int64

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Dependencies) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	logger := applog.ForComponent(applog.ComponentHTTP)
	detector := security.NewDetector()
	workspaceCache := cache.NewLRUCache[*schema.Manager](workspaceCacheSize, deps.WorkspaceTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(workspaceCache)
	cacheManager.StartCleanup(cacheCleanupInterval)

	s := &Server{
		store:            deps.Store,
		projects:         deps.Projects,
		transactions:     deps.Transactions,
		invitations:      deps.Invitations,
		cash:             deps.CashCount,
		retention:        deps.InvitationRetention,
		now:              deps.Now,
		workspaceCache:   workspaceCache,
		workspaces:       cache.NewLoader[*schema.Manager](workspaceCache),
		cacheManager:     cacheManager,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP),
		logger:           logger,
		startedAt:        time.Now(),
	}

	api := http.NewServeMux()
	s.registerAPI(api)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.Handle("/api/", deps.Verifier.Middleware(api))

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, writesOnly)(handler)
	handler = s.detectSuspicious(handler)
	handler = security.NewHeadersMiddleware(security.APIHeadersConfig()).Middleware(handler)
	handler = applog.Middleware(logger, func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerAPI(mux *http.ServeMux) {
	// projects
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{project}", s.handleGetProject)
	mux.HandleFunc("PATCH /api/projects/{project}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /api/projects/{project}", s.handleDeleteProject)
	mux.HandleFunc("GET /api/projects/{project}/members", s.handleListMembers)
	mux.HandleFunc("DELETE /api/projects/{project}/members/{user}", s.handleRemoveMember)

	// settings
	mux.HandleFunc("GET /api/projects/{project}/settings", s.handleGetSettings)
	mux.HandleFunc("PATCH /api/projects/{project}/settings/preferences", s.handleUpdatePreferences)

	// categories
	mux.HandleFunc("GET /api/projects/{project}/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/projects/{project}/categories", s.handleAddCategory)
	mux.HandleFunc("PATCH /api/projects/{project}/categories/{category}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /api/projects/{project}/categories/{category}", s.handleDeleteCategory)
	mux.HandleFunc("POST /api/projects/{project}/categories/{index}/move", s.handleMoveCategory)

	// custom fields
	mux.HandleFunc("GET /api/projects/{project}/fields", s.handleListFields)
	mux.HandleFunc("POST /api/projects/{project}/fields", s.handleAddField)
	mux.HandleFunc("PUT /api/projects/{project}/fields/{field}", s.handleRenameField)
	mux.HandleFunc("DELETE /api/projects/{project}/fields/{field}", s.handleDeleteField)
	mux.HandleFunc("POST /api/projects/{project}/fields/{index}/move", s.handleMoveField)
	mux.HandleFunc("POST /api/projects/{project}/fields/{field}/values", s.handleImportFieldValues)
	mux.HandleFunc("GET /api/projects/{project}/fields/{field}/suggestions", s.handleFieldSuggestions)

	// transactions
	mux.HandleFunc("GET /api/projects/{project}/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/projects/{project}/transactions", s.handleCreateTransaction)
	mux.HandleFunc("POST /api/projects/{project}/transactions/bulk-delete", s.handleBulkDelete)
	mux.HandleFunc("GET /api/projects/{project}/transactions/{transaction}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/projects/{project}/transactions/{transaction}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/projects/{project}/transactions/{transaction}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/projects/{project}/transactions/{transaction}/navigation", s.handleNavigation)

	// dashboard and export
	mux.HandleFunc("GET /api/projects/{project}/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/projects/{project}/export.csv", s.handleExportCSV)
	mux.HandleFunc("GET /api/projects/{project}/export.xlsx", s.handleExportXLSX)

	// invitations
	mux.HandleFunc("GET /api/projects/{project}/invitations", s.handleListInvitations)
	mux.HandleFunc("POST /api/projects/{project}/invitations", s.handleInvite)
	mux.HandleFunc("DELETE /api/projects/{project}/invitations/{invitation}", s.handleRevokeInvitation)
	mux.HandleFunc("POST /api/invitations/accept", s.handleAcceptInvitation)
	mux.HandleFunc("POST /api/invitations/cleanup", s.handleCleanupInvitations)

	// cash count
	mux.HandleFunc("GET /api/projects/{project}/cashcount", s.handleGetCashCount)
	mux.HandleFunc("PUT /api/projects/{project}/cashcount/denominations/{cents}", s.handleSetDenomination)
	mux.HandleFunc("POST /api/projects/{project}/cashcount/entries", s.handleAddCashEntry)
	mux.HandleFunc("DELETE /api/projects/{project}/cashcount/entries/{index}", s.handleRemoveCashEntry)
	mux.HandleFunc("DELETE /api/projects/{project}/cashcount", s.handleResetCashCount)
}

// writesOnly limits rate limiting to requests that change state.
func writesOnly(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// detectSuspicious logs requests matching known probe patterns.
func (s *Server) detectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.securityDetector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request detected",
				applog.FieldComponent, applog.ComponentSecurity,
				applog.FieldPath, r.URL.Path,
				applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				applog.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// workspace returns the cached schema manager of a project, loading it on
// first use.
func (s *Server) workspace(ctx context.Context, projectID string) (*schema.Manager, error) {
	atomic.AddInt64(&s.workspaceLookups, 1)
	return s.workspaces.GetOrLoad(projectID, func() (*schema.Manager, error) {
		atomic.AddInt64(&s.workspaceLoads, 1)
		m := schema.New(s.store, projectID)
		if err := m.Load(ctx); err != nil {
			return nil, err
		}
		return m, nil
	})
}

// forgetWorkspace drops the cached manager after writes that bypass it.
func (s *Server) forgetWorkspace(projectID string) {
	s.workspaces.Forget(projectID)
}
