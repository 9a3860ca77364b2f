package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Task is a named periodic job exposed on the trigger surface alongside
// queue dispatch, e.g. the contact-list poller or the scheduler watchdog.
type Task func(ctx context.Context) error

// Routes mounts the external trigger surface:
//
//	POST /dispatch            one Dispatch pass over every queue
//	POST /dispatch/{queue}    one Dispatch on a single queue
//	POST /run/{task}          run a named periodic task
//
// Every endpoint is idempotent on empty queues and safe to invoke more
// often than jobs become due; an external cron hitting these URLs is the
// only clock this subsystem has.
func (d *Dispatcher) Routes(tasks map[string]Task) http.Handler {
	r := chi.NewRouter()

	r.Post("/dispatch", func(w http.ResponseWriter, req *http.Request) {
		if err := d.DispatchAll(req.Context()); err != nil {
			d.log.ErrorContext(req.Context(), "dispatch-all trigger failed",
				slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/dispatch/{queue}", func(w http.ResponseWriter, req *http.Request) {
		queue := chi.URLParam(req, "queue")
		err := d.Dispatch(req.Context(), queue)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "queue": queue})
		case errors.Is(err, ErrNoHandler):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		default:
			d.log.ErrorContext(req.Context(), "dispatch trigger failed",
				slog.String("queue", queue),
				slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	})

	r.Post("/run/{task}", func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "task")
		task, ok := tasks[name]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown task: " + name})
			return
		}
		if err := task(req.Context()); err != nil {
			d.log.ErrorContext(req.Context(), "task trigger failed",
				slog.String("task", name),
				slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "task": name})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
