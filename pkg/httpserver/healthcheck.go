package httpserver

import (
	"context"
	"log/slog"
	"net/http"
)

// HealthCheckHandler returns a probe endpoint. With no dependency
// probes it is a liveness check answering ALIVE. With probes (queue
// store ping, database ping) it is a readiness check: READY when all
// pass, 500 NOT_READY on the first failure.
func HealthCheckHandler(log *slog.Logger, probes ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(probes) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ALIVE"))
			return
		}

		for _, probe := range probes {
			if err := probe(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "readiness check failed",
					slog.String("error", err.Error()))
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
