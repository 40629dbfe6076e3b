// agentd — a standalone Chorus agent daemon.
//
// It wraps one skill handler in an agent container, serves jobs over HTTP,
// self-registers with the coordinator, and heartbeats until shut down.
// Which skill it runs is chosen with CHORUS_AGENT_SKILL (one of the builtin
// handlers) — real deployments embed the container with their own logic
// instead.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chorusnet/chorus/internal/agent"
	"github.com/chorusnet/chorus/internal/config"
	"github.com/chorusnet/chorus/pkg/client"
	"github.com/chorusnet/chorus/pkg/models"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.LoadAgent()

	handler, ok := agent.BuiltinSkills[cfg.Skill]
	if !ok {
		log.Fatal().Str("skill", cfg.Skill).Msg("unknown builtin skill")
	}

	container := agent.New(cfg.Name, cfg.OwnerID, cfg.Skill, cfg.Cost, handler,
		agent.WithDescription(cfg.SkillDescription),
		agent.WithEndpoint(cfg.AdvertiseURL),
	)

	log.Info().
		Str("agent", cfg.Name).
		Str("skill", cfg.Skill).
		Float64("cost", cfg.Cost).
		Msg("🎵 Chorus agent starting...")

	// Register with the coordinator, then keep the heartbeat alive.
	coord := client.New(cfg.CoordinatorURL, client.WithOwner(cfg.OwnerID))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	info, err := coord.Register(ctx, container.Registration())
	if err != nil {
		log.Fatal().Err(err).Str("coordinator", cfg.CoordinatorURL).Msg("registration failed")
	}
	log.Info().
		Str("agent_id", info.AgentID).
		Float64("reputation", info.ReputationScore).
		Msg("registered with coordinator")

	go heartbeatLoop(ctx, coord, info.AgentID, cfg.HeartbeatInterval)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Post("/jobs", handleJob(container))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "agent_id": info.AgentID})
	})
	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, container.Stats())
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
	}

	// Graceful shutdown: stop heartbeating, unregister, stop serving.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutting down...")
		cancel()

		unregCtx, unregCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer unregCancel()
		if err := coord.Unregister(unregCtx, info.AgentID); err != nil {
			log.Warn().Err(err).Msg("unregister failed")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", cfg.Port).Str("endpoint", cfg.AdvertiseURL).Msg("🎵 agent ready for jobs")

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// handleJob decodes a job request, runs it through the container, and
// returns the structured result. The container never lets handler failures
// escape, so this endpoint always answers 200 with a JobResult.
func handleJob(container *agent.Container) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.JobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid job request"})
			return
		}

		result := container.HandleJob(req)

		log.Info().
			Str("job_id", req.JobID).
			Str("skill", req.SkillName).
			Str("status", string(result.Status)).
			Int64("time_ms", result.ExecutionTimeMS).
			Msg("job handled")

		respondJSON(w, http.StatusOK, result)
	}
}

// heartbeatLoop keeps the agent marked online until ctx is cancelled.
func heartbeatLoop(ctx context.Context, coord *client.Client, agentID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := coord.Heartbeat(ctx, agentID); err != nil {
				log.Warn().Err(err).Msg("heartbeat failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
