// Package gin provides the interaction return endpoint as gin handlers. This
// package is a thin adapter that translates gin.Context to the shared return
// logic in http/internal/helpers.
package gin

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ilpay/openpayments-go/flow"
	"github.com/ilpay/openpayments-go/http/internal/helpers"
)

// Finisher resumes a pending flow. *flow.Orchestrator implements it.
type Finisher = helpers.Finisher

// NewReturnHandler creates the handler for the URL the auth server redirects
// the user back to. It finishes the flow named by the flow query parameter
// and aborts the chain with the JSON result.
//
// Example usage:
//
//	r := gin.Default()
//	r.GET("/return", NewReturnHandler(orchestrator, store, logger))
//	r.GET("/flows/:id", NewFlowHandler(store))
func NewReturnHandler(f Finisher, store flow.Store, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		params, err := helpers.ParseReturn(c.Request.URL.Query())
		if err != nil {
			logger.Warn("invalid interaction return", "error", err)
			c.AbortWithStatusJSON(http.StatusBadRequest, helpers.NewResult(nil, err))
			return
		}

		p, err := helpers.Resume(c.Request.Context(), f, store, params)
		status := helpers.StatusFor(err)
		if err != nil {
			logger.Warn("interaction return failed", "flow", params.FlowID, "status", status, "error", err)
			c.AbortWithStatusJSON(status, helpers.NewResult(p, err))
			return
		}

		logger.Info("interaction return handled", "flow", params.FlowID, "state", p.State.String())
		c.Set(FlowContextKey, p)
		c.JSON(status, helpers.NewResult(p, nil))
	}
}

// FlowContextKey is the gin context key the finished *flow.Pending is stored under.
const FlowContextKey = "openpayments_flow"

// NewFlowHandler serves the stored state of the flow named by the :id path parameter.
func NewFlowHandler(store flow.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := store.Load(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.AbortWithStatusJSON(helpers.StatusFor(err), helpers.NewResult(nil, err))
			return
		}
		c.JSON(http.StatusOK, helpers.NewResult(p, nil))
	}
}
