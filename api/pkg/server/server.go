// Package server exposes the capture agent's localhost HTTP API: session
// lifecycle, timer control, conflict probes and the websocket event
// stream the kiosk UI listens on. The agent binds to loopback; auth is
// the floor network's problem, not ours.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/floorlinehq/floorline/api/pkg/config"
	"github.com/floorlinehq/floorline/api/pkg/pubsub"
	"github.com/floorlinehq/floorline/api/pkg/session"
	"github.com/floorlinehq/floorline/api/pkg/store"
	"github.com/floorlinehq/floorline/api/pkg/system"
)

const APIPrefix = "/api/v1"

type FloorlineAPIServer struct {
	Cfg      *config.ServerConfig
	Store    store.Store
	Sessions *session.Manager

	pubsub pubsub.PubSub
	router *mux.Router
}

func NewServer(
	cfg *config.ServerConfig,
	backing store.Store,
	ps pubsub.PubSub,
	sessions *session.Manager,
) *FloorlineAPIServer {
	return &FloorlineAPIServer{
		Cfg:      cfg,
		Store:    backing,
		Sessions: sessions,
		pubsub:   ps,
	}
}

// Router assembles the full route table, websocket endpoint included.
func (apiServer *FloorlineAPIServer) Router(ctx context.Context) *mux.Router {
	apiRouter := apiServer.registerRoutes(ctx)
	apiServer.startSessionWebSocketServer(ctx, apiRouter, "/sessions/{key}/events")
	return apiServer.router
}

func (apiServer *FloorlineAPIServer) ListenAndServe(ctx context.Context, _ *system.CleanupManager) error {
	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", apiServer.Cfg.WebServer.Host, apiServer.Cfg.WebServer.Port),
		// WriteTimeout and ReadTimeout are 0 so websocket event streams
		// can live as long as a shift. ReadHeaderTimeout still guards
		// against stuck clients.
		WriteTimeout:      0,
		ReadTimeout:       0,
		ReadHeaderTimeout: time.Second * 60,
		IdleTimeout:       time.Minute * 60,
		Handler:           apiServer.Router(ctx),
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down agent API server")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("error shutting down agent API server")
		}
	}()

	log.Info().Str("address", srv.Addr).Msg("starting agent API server")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (apiServer *FloorlineAPIServer) registerRoutes(_ context.Context) *mux.Router {
	router := mux.NewRouter()
	router.Use(ErrorLoggingMiddleware)

	subRouter := router.PathPrefix(APIPrefix).Subrouter()

	subRouter.HandleFunc("/healthz", system.DefaultWrapperWithConfig(apiServer.healthz, system.WrapperConfig{
		SilenceErrors: true,
	})).Methods(http.MethodGet)
	subRouter.HandleFunc("/config", system.DefaultWrapper(apiServer.agentConfig)).Methods(http.MethodGet)

	subRouter.HandleFunc("/sessions", system.Wrapper(apiServer.createSession)).Methods(http.MethodPost)
	subRouter.HandleFunc("/sessions", system.Wrapper(apiServer.listSessions)).Methods(http.MethodGet)
	subRouter.HandleFunc("/sessions/{key}", system.Wrapper(apiServer.getSession)).Methods(http.MethodGet)
	subRouter.HandleFunc("/sessions/{key}", system.Wrapper(apiServer.abandonSession)).Methods(http.MethodDelete)
	subRouter.HandleFunc("/sessions/{key}/start", system.Wrapper(apiServer.startTimer)).Methods(http.MethodPost)
	subRouter.HandleFunc("/sessions/{key}/pause", system.Wrapper(apiServer.pauseTimer)).Methods(http.MethodPost)
	subRouter.HandleFunc("/sessions/{key}/resume", system.Wrapper(apiServer.resumeTimer)).Methods(http.MethodPost)
	subRouter.HandleFunc("/sessions/{key}/submit", system.Wrapper(apiServer.submitSession)).Methods(http.MethodPost)

	subRouter.HandleFunc("/leases/{key}/conflict", system.Wrapper(apiServer.checkLeaseConflict)).Methods(http.MethodGet)
	subRouter.HandleFunc("/timers/{key}/mirror", system.Wrapper(apiServer.getTimerMirror)).Methods(http.MethodGet)
	subRouter.HandleFunc("/downtime", system.Wrapper(apiServer.listDowntime)).Methods(http.MethodGet)

	apiServer.router = router

	return subRouter
}
