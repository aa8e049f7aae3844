package assetcache

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Control message types. Anything else is ignored silently.
const (
	// MessageSkipWaiting promotes a waiting worker immediately.
	MessageSkipWaiting = "SKIP_WAITING"
	// MessageClearCaches purges every cache partition,
	// for troubleshooting stuck caches independent of deployments.
	MessageClearCaches = "CLEAR_CACHES"
)

// DefaultControlPrefix is where the control API is mounted by default.
const DefaultControlPrefix = "/_assetcache"

type controlMessage struct {
	Type string `json:"type"`
}

// Handler returns the full handler for the gateway: the control API
// mounted under controlPrefix, everything else intercepted by the worker.
func (wk *Worker) Handler(controlPrefix string) http.Handler {
	if controlPrefix == "" {
		controlPrefix = DefaultControlPrefix
	}
	r := chi.NewRouter()
	r.Mount(controlPrefix, wk.ControlRouter())
	r.Handle("/*", wk)
	return r
}

// ControlRouter returns the control API routes.
func (wk *Worker) ControlRouter() chi.Router {
	r := chi.NewRouter()
	r.Post("/messages", wk.handleMessage)
	r.Get("/partitions", wk.handlePartitions)
	return r
}

func (wk *Worker) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg controlMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid message", http.StatusBadRequest)
		return
	}
	switch msg.Type {
	case MessageSkipWaiting:
		wk.log.Info().Msg("Skip waiting requested")
		wk.SkipWaiting()
		w.WriteHeader(http.StatusAccepted)
	case MessageClearCaches:
		wk.log.Info().Msg("Purging all cache partitions")
		if err := wk.store.PurgeAll(); err != nil {
			wk.log.Error().Err(err).Msg("Could not purge cache")
			http.Error(w, "purge failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	default:
		wk.log.Debug().Str("type", msg.Type).Msg("Ignoring unrecognized message")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (wk *Worker) handlePartitions(w http.ResponseWriter, r *http.Request) {
	names, err := wk.store.Partitions()
	if err != nil {
		wk.log.Error().Err(err).Msg("Could not list partitions")
		http.Error(w, "could not list partitions", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(names); err != nil {
		wk.log.Error().Err(err).Msg("Could not write partition list")
	}
}
