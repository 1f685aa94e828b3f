// Package chi mounts the interaction return endpoint on a chi router. It is
// a thin adapter over the shared return logic in http/internal/helpers.
package chi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ilpay/openpayments-go/flow"
	"github.com/ilpay/openpayments-go/http/internal/helpers"
)

// Finisher resumes a pending flow. *flow.Orchestrator implements it.
type Finisher = helpers.Finisher

// NewRouter returns a router serving:
//   - GET /return, the URL the auth server redirects the user back to. It
//     reads flow, interact_ref and hash from the query, finishes the flow and
//     answers with its state and outgoing payment as JSON
//   - GET /flows/{id}, the stored state of a flow
//
// Example usage:
//
//	store := flow.NewMemoryStore()
//	r := chi.NewRouter()
//	r.Mount("/payments", NewRouter(orchestrator, store, logger))
//	http.ListenAndServe(":8080", r)
func NewRouter(f Finisher, store flow.Store, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Get("/return", NewReturnHandler(f, store, logger).ServeHTTP)
	r.Get("/flows/{id}", func(w http.ResponseWriter, req *http.Request) {
		p, err := store.Load(req.Context(), chi.URLParam(req, "id"))
		helpers.WriteJSON(w, helpers.StatusFor(err), helpers.NewResult(p, err))
	})
	return r
}

// NewReturnHandler returns the interaction return handler on its own, for
// callers that route it themselves.
func NewReturnHandler(f Finisher, store flow.Store, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := helpers.ParseReturn(r.URL.Query())
		if err != nil {
			logger.Warn("invalid interaction return", "error", err)
			helpers.WriteJSON(w, http.StatusBadRequest, helpers.NewResult(nil, err))
			return
		}

		p, err := helpers.Resume(r.Context(), f, store, params)
		status := helpers.StatusFor(err)
		if err != nil {
			logger.Warn("interaction return failed", "flow", params.FlowID, "status", status, "error", err)
		} else {
			logger.Info("interaction return handled", "flow", params.FlowID, "state", p.State.String())
		}
		helpers.WriteJSON(w, status, helpers.NewResult(p, err))
	})
}
