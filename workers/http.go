package workers

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"wardenbridge/registry"
	"wardenbridge/workers/handlers"
)

// NewRouter is the operator surface: liveness, last pass report, relay records
// by status, warden balances and metrics. /health fails once the last pass is
// older than staleAfter, 0 disables that check.
func NewRouter(r *Relayer, store handlers.RecordLister, reg *registry.Registry, warden common.Address, gatherer prometheus.Gatherer, staleAfter time.Duration) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Options("/*", CORSHeaders)

	router.Get("/health", handlers.HealthCheck(r, staleAfter))
	router.Get("/state", handlers.State(r))
	router.Get("/relays/{status}", handlers.GetRelays(store))
	router.Get("/balance/{role}", handlers.Balance(reg, warden))
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return router
}

// Worker_HTTP serves handler on addr until ctx is cancelled.
func Worker_HTTP(ctx context.Context, addr string, handler http.Handler) error {
	log.Info().Str("addr", addr).Msg("Starting HTTP service")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("error listening")
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info().Msg("HTTP service stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP service shutdown error")
		return err
	}
	log.Info().Msg("HTTP service shutdown normal")
	return nil
}

func CORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Origin, X-Requested-With")
}
