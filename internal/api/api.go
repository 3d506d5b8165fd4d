package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/susu3304/warikan/internal/config"
	"github.com/susu3304/warikan/internal/logger"
	"github.com/susu3304/warikan/internal/warikan"
	"golang.org/x/oauth2"
)

const defaultLineAPIBase = "https://api.line.me"

type API struct {
	router      *mux.Router
	server      *http.Server
	svc         *warikan.Service
	rdb         *redis.Client
	config      *config.Config
	oauthConfig *oauth2.Config
	jwtSecret   []byte

	lineAPIBase string
	httpClient  *http.Client
}

// New builds the API. rdb may be nil, in which case POST requests are not deduplicated.
func New(cfg *config.Config, svc *warikan.Service, rdb *redis.Client) *API {
	api := &API{
		router:      mux.NewRouter(),
		svc:         svc,
		rdb:         rdb,
		config:      cfg,
		jwtSecret:   []byte(cfg.JWTSecret),
		lineAPIBase: defaultLineAPIBase,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.LineChannelID,
			ClientSecret: cfg.LineChannelSecret,
			RedirectURL:  cfg.LineRedirectURI,
			Scopes:       []string{"profile", "openid"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://access.line.me/oauth2/v2.1/authorize",
				TokenURL:  defaultLineAPIBase + "/oauth2/v2.1/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}

	api.setupRoutes()
	api.server = &http.Server{
		Addr:              cfg.WebBind,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return api
}

func (a *API) setupRoutes() {
	// Auth endpoints
	a.router.HandleFunc("/api/auth/line", a.handleLineAuth).Methods("POST")
	a.router.HandleFunc("/api/auth/login", a.handleLogin).Methods("GET")
	a.router.HandleFunc("/api/auth/callback", a.handleCallback).Methods("GET")
	a.router.HandleFunc("/api/auth/logout", a.handleLogout).Methods("POST")

	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")

	// Protected endpoints
	protected := a.router.PathPrefix("/api").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/groups", a.handleListGroups).Methods("GET")
	protected.HandleFunc("/groups", a.handleCreateGroup).Methods("POST")
	protected.HandleFunc("/groups/{group_id}", a.handleGetGroup).Methods("GET")
	protected.HandleFunc("/groups/{group_id}", a.handleDeleteGroup).Methods("DELETE")
	protected.HandleFunc("/groups/{group_id}/join", a.handleJoin).Methods("POST")

	protected.HandleFunc("/groups/{group_id}/members", a.handleListMembers).Methods("GET")
	protected.HandleFunc("/groups/{group_id}/members", a.handleAddMember).Methods("POST")
	protected.HandleFunc("/groups/{group_id}/members/{member_id}", a.handleRemoveMember).Methods("DELETE")

	protected.HandleFunc("/groups/{group_id}/expenses", a.handleListExpenses).Methods("GET")
	protected.Handle("/groups/{group_id}/expenses", a.idempotency(http.HandlerFunc(a.handleAddExpense))).Methods("POST")
	protected.HandleFunc("/groups/{group_id}/expenses/{expense_id}", a.handleUpdateExpense).Methods("PUT")
	protected.HandleFunc("/groups/{group_id}/expenses/{expense_id}", a.handleDeleteExpense).Methods("DELETE")

	protected.HandleFunc("/groups/{group_id}/settlements", a.handleSettlements).Methods("GET")
	protected.HandleFunc("/groups/{group_id}/settle", a.handleSettle).Methods("POST")
	protected.HandleFunc("/groups/{group_id}/balances", a.handleBalances).Methods("GET")
	protected.HandleFunc("/groups/{group_id}/invite", a.handleInvite).Methods("GET")
	protected.HandleFunc("/groups/{group_id}/export.xlsx", a.handleExport).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (a *API) Handler() http.Handler {
	// When AllowedOrigins is "*", AllowCredentials must be false
	corsOptions := cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", idempotencyHeader},
		AllowCredentials: false,
	}
	if a.config.AppEnv == "production" && a.config.WebUIBaseURL != "" {
		corsOptions.AllowedOrigins = []string{a.config.WebUIBaseURL}
	}
	return cors.New(corsOptions).Handler(a.router)
}

func (a *API) Start() error {
	logger.Log.Infof("API server listening on http://%s", a.config.WebBind)
	return a.server.ListenAndServe()
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
