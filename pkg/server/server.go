// Package server provides the public entry point for composing a chorusd
// coordinator: registry, ledger, reputation engine, orchestrator, and the
// HTTP API wired together. It lives in pkg/ so embedders can run a
// coordinator in-process (tests, demos) without going through cmd/chorusd.
package server

import (
	"context"
	"net/http"

	"github.com/chorusnet/chorus/internal/api"
	"github.com/chorusnet/chorus/internal/api/handlers"
	"github.com/chorusnet/chorus/internal/config"
	"github.com/chorusnet/chorus/internal/dispatch"
	"github.com/chorusnet/chorus/internal/ledger"
	"github.com/chorusnet/chorus/internal/orchestrator"
	"github.com/chorusnet/chorus/internal/registry"
	"github.com/chorusnet/chorus/internal/reputation"
	"github.com/chorusnet/chorus/internal/telemetry"

	"github.com/rs/zerolog/log"
)

// Server holds an initialized Chorus coordinator.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Core services, exposed for in-process embedding.
	Registry     *registry.Registry
	Ledger       *ledger.Ledger
	Reputation   *reputation.Engine
	Orchestrator *orchestrator.Orchestrator

	// Config is the loaded coordinator configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all coordinator components and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	cfg := config.Load()

	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, err
	}

	rep := reputation.NewEngine()
	reg := registry.New(rep)
	led := ledger.New()

	local := dispatch.NewLocal()
	dispatcher := dispatch.NewComposite(local, dispatch.NewHTTP(cfg.Dispatch.Timeout))
	orch := orchestrator.New(reg, led, cfg.Ledger.OrchestratorOwner,
		orchestrator.WithDispatcher(dispatcher))

	h := handlers.New(reg, led, cfg.Ledger.InitialBalance)

	log.Info().
		Str("owner", cfg.Ledger.OrchestratorOwner).
		Int("port", cfg.Port).
		Msg("coordinator initialized")

	return &Server{
		Handler:      api.NewRouter(cfg, h),
		Registry:     reg,
		Ledger:       led,
		Reputation:   rep,
		Orchestrator: orch,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
