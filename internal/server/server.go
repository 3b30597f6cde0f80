// Package server provides the HTTP server for the AgentCore API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentcore-ai/agentcore/internal/agentloop"
	"github.com/agentcore-ai/agentcore/internal/command"
	"github.com/agentcore-ai/agentcore/internal/event"
	"github.com/agentcore-ai/agentcore/internal/formatter"
	"github.com/agentcore-ai/agentcore/internal/lsp"
	"github.com/agentcore-ai/agentcore/internal/mcp"
	"github.com/agentcore-ai/agentcore/internal/permission"
	"github.com/agentcore-ai/agentcore/internal/persist"
	"github.com/agentcore-ai/agentcore/internal/project"
	"github.com/agentcore-ai/agentcore/internal/promptbuild"
	"github.com/agentcore-ai/agentcore/internal/provider"
	"github.com/agentcore-ai/agentcore/internal/registry"
	"github.com/agentcore-ai/agentcore/internal/session"
	"github.com/agentcore-ai/agentcore/internal/sessionmgr"
	"github.com/agentcore-ai/agentcore/internal/storage"
	"github.com/agentcore-ai/agentcore/internal/subagent"
	"github.com/agentcore-ai/agentcore/internal/tool"
	"github.com/agentcore-ai/agentcore/internal/vcs"
	"github.com/agentcore-ai/agentcore/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Port         int
	Directory    string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		Directory:    "",
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for SSE
	}
}

// Server is the HTTP server.
type Server struct {
	config           *Config
	router           *chi.Mux
	httpSrv          *http.Server
	appConfig        *types.Config
	storage          *storage.Storage
	sessionService   *session.Service
	providerReg      *provider.Registry
	toolReg          *tool.Registry
	registry         *registry.Registry
	loop             *agentloop.Runner
	bus              *event.Bus
	mcpClient        *mcp.Client
	commandExecutor  *command.Executor
	formatterManager *formatter.Manager
	sessionMgr       *sessionmgr.Manager
	projectService   *project.Service
	lspClient        *lsp.Client
	vcsWatcher       *vcs.Watcher
}

// New creates a new Server instance. It wires the same component registry,
// permission checker and agent-loop runner internal/headless.Runner uses, so
// a Task tool invocation made over the HTTP API spawns subagents through the
// identical shared approval gate as a headless or interactive run.
func New(cfg *Config, appConfig *types.Config, store *storage.Storage, providerReg *provider.Registry, toolReg *tool.Registry) (*Server, error) {
	r := chi.NewRouter()

	// Parse default provider and model from config
	// Format: "provider/model" (e.g., "ark/ep-xxx" or "anthropic/claude-sonnet-4-20250514")
	var defaultProviderID, defaultModelID string
	if appConfig != nil && appConfig.Model != "" {
		parts := strings.SplitN(appConfig.Model, "/", 2)
		if len(parts) == 2 {
			defaultProviderID = parts[0]
			defaultModelID = parts[1]
		}
	}

	// Create MCP client
	mcpClient := mcp.NewClient()

	// Component registry: agents (including config-defined custom agents),
	// commands, skills and hooks.
	reg, err := registry.New(cfg.Directory, appConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize component registry: %w", err)
	}
	toolReg.RegisterTaskTool(reg.Agents)

	// A single permission.Checker is shared between the session processor
	// and the subagent spawner so Task-tool approvals serialize through the
	// same gate as the parent session's.
	sharedChecker := permission.NewChecker()

	loop := agentloop.New(
		sharedChecker,
		store,
		providerReg,
		toolReg,
		subagent.Config{
			AgentRegistry:     reg.Agents,
			WorkDir:           cfg.Directory,
			DefaultProviderID: defaultProviderID,
			DefaultModelID:    defaultModelID,
		},
		defaultProviderID,
		defaultModelID,
	)
	toolReg.SetTaskExecutor(loop.Spawner)
	loop.Processor.SetPromptBuilder(promptbuild.New(reg))

	// Create formatter manager
	fmtManager := formatter.NewManager(cfg.Directory, appConfig)

	bus := event.NewBus()

	// sessionMgr backs the async /session/{id}/push control surface:
	// pushed messages are queued and processed by the same agentloop.Runner
	// as the synchronous /session/{id}/message path, with output delivered
	// as event.SessionMgrOutput events instead of an HTTP response body.
	persistStore := persist.New(store)
	sessionFactory := func(ctx context.Context, id string) (*sessionmgr.SessionConfig, error) {
		return &sessionmgr.SessionConfig{
			ProviderType: defaultProviderID,
			Model:        defaultModelID,
			Persist:      true,
		}, nil
	}
	sessionMgr := sessionmgr.New(loop, store, sessionFactory, persistStore, bus)

	s := &Server{
		config:           cfg,
		router:           r,
		appConfig:        appConfig,
		storage:          store,
		sessionService:   session.NewServiceWithProcessor(store, providerReg, toolReg, sharedChecker, defaultProviderID, defaultModelID),
		providerReg:      providerReg,
		toolReg:          toolReg,
		registry:         reg,
		loop:             loop,
		bus:              bus,
		mcpClient:        mcpClient,
		commandExecutor:  reg.Commands,
		formatterManager: fmtManager,
		sessionMgr:       sessionMgr,
		projectService:   project.NewService(cfg.Directory),
		lspClient:        lsp.NewClient(cfg.Directory, appConfig != nil && appConfig.LSP != nil && appConfig.LSP.Disabled),
	}

	// Branch changes surface as VcsBranchUpdated events on the SSE stream.
	if w, err := vcs.NewWatcher(cfg.Directory); err == nil && w != nil {
		w.Start()
		s.vcsWatcher = w
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// InitializeMCP initializes MCP servers from configuration.
func (s *Server) InitializeMCP(ctx context.Context) error {
	if s.appConfig == nil || s.appConfig.MCP == nil {
		return nil
	}

	for name, cfg := range s.appConfig.MCP {
		enabled := cfg.Enabled == nil || *cfg.Enabled
		mcpCfg := &mcp.Config{
			Enabled:     enabled,
			Type:        mcp.TransportType(cfg.Type),
			URL:         cfg.URL,
			Headers:     cfg.Headers,
			Command:     cfg.Command,
			Environment: cfg.Environment,
			Timeout:     cfg.Timeout,
		}
		if err := s.mcpClient.AddServer(ctx, name, mcpCfg); err != nil {
			// Log but don't fail on individual server errors
			continue
		}
	}

	return nil
}

// CloseMCP closes all MCP server connections.
func (s *Server) CloseMCP() error {
	if s.mcpClient != nil {
		return s.mcpClient.Close()
	}
	return nil
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Logging
	s.router.Use(middleware.Logger)

	// Recover from panics
	s.router.Use(middleware.Recoverer)

	// Real IP
	s.router.Use(middleware.RealIP)

	// CORS
	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Instance context
	s.router.Use(s.instanceContext)
}

// instanceContext middleware injects directory into context.
func (s *Server) instanceContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get directory from query or use default
		dir := r.URL.Query().Get("directory")
		if dir == "" {
			dir = s.config.Directory
		}

		ctx := context.WithValue(r.Context(), contextKeyDirectory, dir)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server, stopping any sessions still
// running under sessionMgr and waiting for their persistence to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.sessionMgr != nil {
		s.sessionMgr.StopAll()
		s.sessionMgr.Wait()
	}
	if s.vcsWatcher != nil {
		s.vcsWatcher.Stop()
	}
	if s.lspClient != nil {
		s.lspClient.Close()
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Context keys
type contextKey string

const (
	contextKeyDirectory contextKey = "directory"
)

// getDirectory returns the directory from context.
func getDirectory(ctx context.Context) string {
	if dir, ok := ctx.Value(contextKeyDirectory).(string); ok {
		return dir
	}
	return ""
}
