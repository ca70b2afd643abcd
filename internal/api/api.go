// Package api provides the HTTP surface and main server logic for CartCheck.
//
// It exposes the WhatsApp webhook endpoints (verification handshake and
// inbound message delivery) plus a health check, and wires the store, vision
// classifier, and messaging backend into the conversation engine.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kindatcart/cartcheck/internal/flow"
	"github.com/kindatcart/cartcheck/internal/genai"
	"github.com/kindatcart/cartcheck/internal/messaging"
	"github.com/kindatcart/cartcheck/internal/models"
	"github.com/kindatcart/cartcheck/internal/store"
)

// Default server configuration.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	// handlerTimeout bounds the processing of a single inbound message,
	// including the vision call.
	handlerTimeout = 2 * time.Minute
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	VerifyToken string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address for the API server.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// Server holds the API server dependencies.
type Server struct {
	addr        string
	verifyToken string
	engine      *flow.Engine
	msgService  messaging.Service
	st          store.Store
}

// NewServer creates an API server from the given collaborators.
func NewServer(engine *flow.Engine, msgService messaging.Service, st store.Store, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		addr:        cfg.Addr,
		verifyToken: cfg.VerifyToken,
		engine:      engine,
		msgService:  msgService,
		st:          st,
	}
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run builds all modules from the given options and serves until the process
// receives SIGINT or SIGTERM.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, msgService messaging.Service, apiOpts []Option) error {
	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("Server failed to close store", "error", err)
		}
	}()

	visionClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize vision client: %w", err)
	}

	classifier := flow.NewCartClassifier(visionClient)
	engine := flow.NewEngine(st, msgService, classifier)
	server := NewServer(engine, msgService, st, apiOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer func() {
		if err := msgService.Stop(); err != nil {
			slog.Error("Server failed to stop messaging service", "error", err)
		}
	}()

	// Backends like whatsmeow deliver inbound messages on a channel instead
	// of the webhook. Drain it into the engine.
	go server.consumeResponses(ctx)

	httpServer := &http.Server{
		Addr:    server.addr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("CartCheck API listening", "addr", server.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	slog.Info("CartCheck API shut down cleanly")
	return nil
}

// buildStore selects a backend from the options: Postgres or SQLite when a
// DSN is present, in-memory otherwise.
func buildStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		slog.Info("Using PostgreSQL store")
		return store.NewPostgresStore(opts...)
	}
	slog.Info("Using SQLite store", "path", cfg.DSN)
	return store.NewSQLiteStore(opts...)
}

// consumeResponses feeds channel-delivered messages into the engine.
func (s *Server) consumeResponses(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.msgService.Responses():
			if !ok {
				return
			}
			go s.dispatch(msg)
		}
	}
}

// dispatch runs the engine on one inbound message with a bounded timeout.
func (s *Server) dispatch(msg models.IncomingMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()
	if err := s.engine.HandleIncoming(ctx, msg); err != nil {
		slog.Error("Server failed to handle incoming message", "error", err, "from", msg.From, "kind", msg.Kind)
	}
}
