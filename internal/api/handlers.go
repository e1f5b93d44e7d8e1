package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/controller"
	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/service"
	"github.com/yuriy-kovalchuk/yk-subdomain-keeper/internal/state"
)

// EventHandler processes one lifecycle event for a loaded service.
type EventHandler interface {
	Handle(ctx context.Context, command string, svc *service.Instance) (controller.Outcome, error)
}

// Store loads and saves service state.
type Store interface {
	Load(ctx context.Context, id, ipAddress string) (*service.Instance, error)
	Save(ctx context.Context, inst *service.Instance) error
	SetVariable(ctx context.Context, id, key, value string) error
	DeleteVariable(ctx context.Context, id, key string) error
	Health(ctx context.Context) error
}

// Handler contains dependencies for API handlers.
type Handler struct {
	events EventHandler
	store  Store
	log    logr.Logger

	// mu makes load, handle and save one critical section so events for the
	// same service never interleave.
	mu sync.Mutex
}

// NewHandler creates a Handler.
func NewHandler(events EventHandler, store Store, log logr.Logger) *Handler {
	return &Handler{events: events, store: store, log: log}
}

// PostEvent runs the lifecycle reconciler for one platform event. State is
// saved only when the event did not fail hard.
func (h *Handler) PostEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := c.Request.Context()
	inst, err := h.store.Load(ctx, req.Service.ID, req.Service.IPAddress)
	if err != nil {
		h.fail(c, err)
		return
	}

	out, err := h.events.Handle(ctx, req.Command, inst)
	if err != nil {
		h.fail(c, err)
		return
	}

	if err := h.store.Save(ctx, inst); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, EventResponse{Status: string(out.Status), Message: out.Message})
}

func (h *Handler) fail(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, EventResponse{Status: "Error", Message: err.Error()})
}

// GetService returns both stores of a service.
func (h *Handler) GetService(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	inst, err := h.store.Load(c.Request.Context(), c.Param("id"), "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, ServiceResponse{
		ID:        inst.ID,
		Variables: service.Snapshot(inst.Variables),
		AppData:   service.Snapshot(inst.AppData),
	})
}

// PutVariable sets one live variable of a service.
func (h *Handler) PutVariable(c *gin.Context) {
	var req VariableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id, key := c.Param("id"), c.Param("key")
	if err := h.store.SetVariable(c.Request.Context(), id, key, *req.Value); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	h.log.Info("variable set", "service", id, "key", key)
	c.Status(http.StatusNoContent)
}

// DeleteVariable removes one live variable of a service.
func (h *Handler) DeleteVariable(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id, key := c.Param("id"), c.Param("key")
	err := h.store.DeleteVariable(c.Request.Context(), id, key)
	switch {
	case errors.Is(err, state.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	h.log.Info("variable deleted", "service", id, "key", key)
	c.Status(http.StatusNoContent)
}

// Health reports whether the state database is reachable.
func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}
