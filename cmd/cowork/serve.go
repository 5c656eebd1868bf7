package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/jaakkos/cowork/internal/app"
	"github.com/jaakkos/cowork/internal/collabws"
	"github.com/jaakkos/cowork/internal/dashboard"
	"github.com/jaakkos/cowork/internal/docsession"
	"github.com/jaakkos/cowork/internal/policy"
	"github.com/jaakkos/cowork/internal/repository"
	"github.com/jaakkos/cowork/internal/tools/workspace"
)

var (
	servePort    int
	serveNoStdio bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordination server (stdio + HTTP)",
	Long: `Run the MCP server. Stdio serves the launching client; HTTP serves other
agents (/mcp, /sse), collaborative editors (/collab) and observers (/api/*).
With --no-stdio the server runs until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", -1, "HTTP port (overrides config; 0 picks a free port)")
	serveCmd.Flags().BoolVar(&serveNoStdio, "no-stdio", false, "serve HTTP only")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	tmpLogger := log.New(os.Stderr, "[cowork] ", log.LstdFlags|log.Lshortfile)
	cfg, err := loadConfig(tmpLogger)
	if err != nil {
		return err
	}
	if servePort >= 0 {
		cfg.HTTPPort = servePort
	}
	pol := policy.New(cfg)

	logger := setupLogger(pol.LogFile())
	logger.Println("Starting cowork server...")
	logger.Printf("Log file: %s", pol.LogFile())
	logger.Printf("Workspace root: %s", pol.WorkspaceRoot())

	var svcOpts []app.ServiceOption
	var toolOpts []workspace.RegisterOption
	var archive app.IntentArchive
	if pol.JournalEnabled() {
		archive, err = repository.NewIntentArchive(pol.JournalPath())
		if err != nil {
			logger.Printf("Warning: intent journal init failed: %v (feature disabled)", err)
		} else {
			svcOpts = append(svcOpts, app.WithJournal(archive))
			toolOpts = append(toolOpts, workspace.WithArchive(archive))
			logger.Printf("Intent journal: %s", pol.JournalPath())
		}
	}
	svc := app.NewWorkspaceService(pol, logger, svcOpts...)

	docs := docsession.NewManager(logger,
		docsession.WithIdleWindow(pol.DocIdleWindow()),
		docsession.WithPathNormalizer(pol.NormalizeResourcePath),
		docsession.WithChangeHook(func(reason string) { svc.RecordChange(reason) }),
	)
	toolOpts = append(toolOpts, workspace.WithDocs(docs), workspace.WithToolFilter(pol.IsToolEnabled))

	// Session registry binds MCP sessions to agents; the store keeps the
	// session objects for push notifications.
	registry := app.NewSessionRegistry()
	sessions := newSessionStore()

	var notifier *app.Notifier

	hooks := &server.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		sessions.set(session.SessionID(), session)
		logger.Printf("Client session registered: %s", session.SessionID())
	})
	hooks.AddBeforeInitialize(func(ctx context.Context, id any, message *mcp.InitializeRequest) {
		if message != nil {
			ci := message.Params.ClientInfo
			logger.Printf("Client: %s %s, Protocol: %s", ci.Name, ci.Version, message.Params.ProtocolVersion)
		}
	})
	// A freshly initialized client gets the current state without waiting
	// for the next change.
	hooks.AddAfterInitialize(func(ctx context.Context, id any, message *mcp.InitializeRequest, result *mcp.InitializeResult) {
		if notifier != nil {
			notifier.Trigger()
		}
	})
	hooks.AddAfterCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest, result *mcp.CallToolResult) {
		if message != nil {
			logger.Printf("Calling tool: %s", message.Params.Name)
		}
	})
	// A dropped transport marks the bound agent disconnected; only
	// leave_workspace removes it.
	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		sid := session.SessionID()
		sessions.remove(sid)
		agentID := registry.RemoveSession(sid)
		if agentID == "" {
			logger.Printf("Client session unregistered: %s", sid)
			return
		}
		logger.Printf("Client session unregistered: %s (agent=%s)", sid, agentID)
		if err := svc.MarkDisconnected(agentID); err != nil {
			logger.Printf("Mark %s disconnected: %v", agentID, err)
		}
	})

	mcpServer := server.NewMCPServer(
		"cowork",
		Version,
		server.WithInstructions(workspace.InstructionsText()),
		server.WithToolHandlerMiddleware(workspace.PiggybackMiddleware(svc, registry)),
		server.WithHooks(hooks),
	)
	workspace.Register(mcpServer, svc, registry, logger, toolOpts...)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Ignore SIGHUP so the server keeps running when daemonized (nohup, launchd, etc.)
	signal.Ignore(syscall.SIGHUP)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received signal %v, shutting down...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	notifier = app.NewNotifier(svc, logger,
		app.WithDebounce(pol.NotifyDebounce()),
		app.WithSignalFile(pol.SignalFilePath()),
		app.WithPushFunc(sessions.pushFunc(logger)),
	)
	go notifier.Start(ctx)

	scheduler := app.NewScheduler(logger,
		app.Task{Name: "lock-reclaim", Interval: pol.LockReclaimInterval(), Run: svc.ReclaimExpiredLocks},
		app.Task{Name: "stale-work", Interval: pol.StaleWorkInterval(), Run: svc.ReclaimStaleWork},
		app.Task{Name: "doc-gc", Interval: pol.DocGCInterval(), Run: func() int { return len(docs.CollectIdle()) }},
	)
	go scheduler.Start(ctx)

	httpShutdown, err := startHTTPServer(mcpServer, pol.HTTPPort(), logger, registry, svc, docs, notifier)
	if err != nil {
		return err
	}

	if serveNoStdio {
		logger.Println("HTTP only; waiting for signal")
		<-ctx.Done()
	} else {
		logger.Println("Stdio ready")
		stdioSrv := server.NewStdioServer(mcpServer)
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
			logger.Printf("Stdio server stopped: %v", err)
		}
	}

	// Stdio client gone or signal received: shut everything down.
	cancel()
	httpShutdown()
	scheduler.Stop()
	notifier.Stop()

	if archive != nil {
		if err := archive.Close(); err != nil {
			logger.Printf("Warning: close intent journal: %v", err)
		}
	}
	logger.Println("Server stopped")
	return nil
}

// startHTTPServer starts the HTTP server in the background and returns a
// shutdown function. Port 0 picks a free port.
func startHTTPServer(mcpServer *server.MCPServer, port int, logger *log.Logger, registry *app.SessionRegistry, svc *app.WorkspaceService, docs *docsession.Manager, notifier *app.Notifier) (func(), error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("HTTP listen: %w", err)
	}
	actualPort := ln.Addr().(*net.TCPAddr).Port
	baseURL := fmt.Sprintf("http://localhost:%d", actualPort)

	logger.Printf("HTTP server on :%d", actualPort)
	logger.Printf("  Agents connect at:  %s/mcp", baseURL)
	logger.Printf("  Editors connect at: ws://localhost:%d/collab", actualPort)
	logger.Printf("  State:              %s/api/state", baseURL)

	sseSrv := server.NewSSEServer(mcpServer, server.WithBaseURL(baseURL))
	streamSrv := server.NewStreamableHTTPServer(mcpServer)

	mux := http.NewServeMux()
	mux.Handle("/sse", sseSrv)
	mux.Handle("/sse/", sseSrv)
	mux.Handle("/message", sseSrv)
	mux.Handle("/mcp", streamSrv)
	mux.Handle("/collab", collabws.NewHandler(docs, logger))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"port":     actualPort,
			"version":  svc.Version(),
			"sessions": registry.AgentCount(),
			"docs":     len(docs.List()),
		})
	})
	dashboard.NewHandler(svc, registry,
		dashboard.WithDocs(docs),
		dashboard.WithStreamer(notifier),
	).RegisterRoutes(mux)

	httpServer := &http.Server{Handler: mux}
	go func() {
		if err := httpServer.Serve(ln); err != http.ErrServerClosed {
			logger.Printf("HTTP server error: %v", err)
		}
	}()

	return func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
	}, nil
}
