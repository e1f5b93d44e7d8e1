package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
)

// RegisterRoutes mounts the event API, the service state endpoints and the
// probe and metrics endpoints on r.
func RegisterRoutes(r *gin.Engine, h *Handler, apiKey string, gatherer prometheus.Gatherer) {
	r.GET("/healthz", h.Health)

	ready := &healthz.Handler{Checks: map[string]healthz.Checker{
		"ping": healthz.Ping,
		"state": func(req *http.Request) error {
			return h.store.Health(req.Context())
		},
	}}
	r.GET("/readyz", gin.WrapH(http.StripPrefix("/readyz", ready)))

	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	if apiKey != "" {
		api.Use(RequireAPIKey(apiKey))
	}

	api.POST("/events", h.PostEvent)

	api.GET("/services/:id", h.GetService)
	api.PUT("/services/:id/variables/:key", h.PutVariable)
	api.DELETE("/services/:id/variables/:key", h.DeleteVariable)
}
